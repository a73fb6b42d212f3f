package game

import (
	"fmt"
	"strings"
)

// Tier is the rarity of an opened case, ordered rarest first.
type Tier int

const (
	Legendary Tier = iota
	Epic
	Rare
	Common
)

// Cumulative thresholds on the unit interval. Probability masses are
// 0.2%, 1.8%, 18% and 80%.
const (
	LegendaryBelow = 0.002
	EpicBelow      = 0.02
	RareBelow      = 0.20
)

// Tiers lists every tier in classification order.
var Tiers = []Tier{Legendary, Epic, Rare, Common}

var tierMeta = [...]struct {
	label string
	icon  string
}{
	Legendary: {"Legendary", "💎"},
	Epic:      {"Epic", "✨"},
	Rare:      {"Rare", "🔹"},
	Common:    {"Common", "🎫"},
}

// Classify maps v to a tier. Thresholds are strict and evaluated top-down,
// so v == 1.0 lands in Common.
func Classify(v float64) Tier {
	switch {
	case v < LegendaryBelow:
		return Legendary
	case v < EpicBelow:
		return Epic
	case v < RareBelow:
		return Rare
	default:
		return Common
	}
}

// Odds is the probability mass of the tier.
func Odds(t Tier) float64 {
	switch t {
	case Legendary:
		return LegendaryBelow
	case Epic:
		return EpicBelow - LegendaryBelow
	case Rare:
		return RareBelow - EpicBelow
	case Common:
		return 1 - RareBelow
	}
	return 0
}

func (t Tier) valid() bool { return t >= Legendary && t <= Common }

func (t Tier) String() string {
	if !t.valid() {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return tierMeta[t].label
}

// Icon is the display glyph shown for the tier.
func (t Tier) Icon() string {
	if !t.valid() {
		return "?"
	}
	return tierMeta[t].icon
}

// ParseTier accepts a tier label, case-insensitively.
func ParseTier(s string) (Tier, error) {
	for _, t := range Tiers {
		if strings.EqualFold(s, tierMeta[t].label) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown tier %q", s)
}

func (t Tier) MarshalText() ([]byte, error) {
	if !t.valid() {
		return nil, fmt.Errorf("invalid tier %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
