package events

import (
	"context"
	"fmt"
	"time"

	"fairCaseServer/game"
)

// CommitmentEvent announces a new server seed commitment. It must reach every
// sink before any round under Commitment is resolved.
type CommitmentEvent struct {
	SessionID   string    `json:"sessionId"`
	EpochID     string    `json:"epochId"`
	Commitment  string    `json:"commitment"`
	ClientSeed  string    `json:"clientSeed"`
	Nonce       uint64    `json:"nonce"`
	Balance     string    `json:"balance"`
	PublishedAt time.Time `json:"publishedAt"`
}

// RoundEvent describes a resolved round.
type RoundEvent struct {
	SessionID   string    `json:"sessionId"`
	Commitment  string    `json:"commitment"`
	ClientSeed  string    `json:"clientSeed"`
	Nonce       uint64    `json:"nonce"`
	NextNonce   uint64    `json:"nextNonce"`
	OutcomeHash string    `json:"outcomeHash"`
	Value       float64   `json:"value"`
	Tier        game.Tier `json:"tier"`
	Icon        string    `json:"icon"`
	Balance     string    `json:"balance"`
	ResolvedAt  time.Time `json:"resolvedAt"`
}

// RevealEvent publishes a server seed after its epoch ends.
type RevealEvent struct {
	SessionID  string    `json:"sessionId"`
	Commitment string    `json:"commitment"`
	ServerSeed string    `json:"serverSeed"`
	ClientSeed string    `json:"clientSeed"`
	Rounds     uint64    `json:"rounds"`
	Balance    string    `json:"balance"`
	RevealedAt time.Time `json:"revealedAt"`
}

// Publisher delivers protocol events to an outside audience.
type Publisher interface {
	CommitmentPublished(ctx context.Context, ev CommitmentEvent) error
	RoundResolved(ctx context.Context, ev RoundEvent) error
	SeedRevealed(ctx context.Context, ev RevealEvent) error
}

// Multi fans events out to every publisher in order and stops at the first
// failure.
type Multi []Publisher

func (m Multi) CommitmentPublished(ctx context.Context, ev CommitmentEvent) error {
	for _, p := range m {
		if err := p.CommitmentPublished(ctx, ev); err != nil {
			return fmt.Errorf("%T: %w", p, err)
		}
	}
	return nil
}

func (m Multi) RoundResolved(ctx context.Context, ev RoundEvent) error {
	for _, p := range m {
		if err := p.RoundResolved(ctx, ev); err != nil {
			return fmt.Errorf("%T: %w", p, err)
		}
	}
	return nil
}

func (m Multi) SeedRevealed(ctx context.Context, ev RevealEvent) error {
	for _, p := range m {
		if err := p.SeedRevealed(ctx, ev); err != nil {
			return fmt.Errorf("%T: %w", p, err)
		}
	}
	return nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) CommitmentPublished(context.Context, CommitmentEvent) error { return nil }
func (Nop) RoundResolved(context.Context, RoundEvent) error             { return nil }
func (Nop) SeedRevealed(context.Context, RevealEvent) error             { return nil }
