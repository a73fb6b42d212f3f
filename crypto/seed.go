package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strconv"
	"time"
)

// SeedBytes is the number of random bytes drawn for every seed.
const SeedBytes = 16

// ErrEntropyUnavailable is returned when the randomness source cannot supply
// SeedBytes of secure randomness. There is no weaker fallback.
var ErrEntropyUnavailable = errors.New("secure randomness unavailable")

// HashFunc constructs the hash primitive used for commitments and outcomes.
type HashFunc func() hash.Hash

// DefaultHash constructs SHA-256. Commitments and outcomes both hash through
// it, so a commitment always verifies under the hash that resolved its rounds.
func DefaultHash() hash.Hash {
	return sha256.New()
}

// SeedGenerator draws seeds from Entropy and stamps them with Now.
type SeedGenerator struct {
	Entropy io.Reader
	Now     func() time.Time
}

// NewSeedGenerator returns a generator backed by crypto/rand and the wall clock.
func NewSeedGenerator() *SeedGenerator {
	return &SeedGenerator{Entropy: rand.Reader, Now: time.Now}
}

// Generate returns "<32 lowercase hex>-<base36 unix millis>".
func (g *SeedGenerator) Generate() (string, error) {
	src := g.Entropy
	if src == nil {
		src = rand.Reader
	}
	now := g.Now
	if now == nil {
		now = time.Now
	}

	bytes := make([]byte, SeedBytes)
	if _, err := io.ReadFull(src, bytes); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}

	return hex.EncodeToString(bytes) + "-" + strconv.FormatInt(now().UnixMilli(), 36), nil
}

// GenerateSeed draws a seed from the default generator.
func GenerateSeed() (string, error) {
	return NewSeedGenerator().Generate()
}

// GenerateServerSeed returns a fresh server seed with its commitment.
func GenerateServerSeed() (seed string, commitment string, err error) {
	seed, err = GenerateSeed()
	if err != nil {
		return "", "", err
	}
	return seed, Commit(seed), nil
}

// HexDigest hashes msg with fn and returns the lowercase hex digest.
func HexDigest(fn HashFunc, msg string) string {
	h := fn()
	h.Write([]byte(msg))
	return hex.EncodeToString(h.Sum(nil))
}

// Commit returns the SHA-256 commitment of seed.
func Commit(seed string) string {
	return HexDigest(DefaultHash, seed)
}

// VerifySeed reports whether commitment is the commitment of seed.
func VerifySeed(seed, commitment string) bool {
	return subtle.ConstantTimeCompare([]byte(Commit(seed)), []byte(commitment)) == 1
}
