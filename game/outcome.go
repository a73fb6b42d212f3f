package game

import (
	"errors"
	"fmt"
	"strconv"

	"fairCaseServer/crypto"
)

// ErrMalformedOutcome is returned for outcome hashes that do not start with
// eight hex characters.
var ErrMalformedOutcome = errors.New("malformed outcome hash")

// unitDivisor maps a 32-bit prefix onto [0, 1]. 0xffffffff maps to exactly 1.0.
const unitDivisor = float64(0xFFFFFFFF)

// Outcome is one resolved round.
type Outcome struct {
	Nonce uint64  `json:"nonce"`
	Hash  string  `json:"outcomeHash"`
	Value float64 `json:"value"`
	Tier  Tier    `json:"tier"`
}

// OutcomeMessage is the exact string that is hashed for a round.
func OutcomeMessage(serverSeed, clientSeed string, nonce uint64) string {
	return serverSeed + ":" + clientSeed + ":" + strconv.FormatUint(nonce, 10)
}

// Resolve returns the SHA-256 hex digest of "serverSeed:clientSeed:nonce".
func Resolve(serverSeed, clientSeed string, nonce uint64) string {
	return crypto.HexDigest(crypto.DefaultHash, OutcomeMessage(serverSeed, clientSeed, nonce))
}

// ToUnitInterval reads the first 8 hex characters of hashHex as a uint32 and
// divides by 0xFFFFFFFF.
func ToUnitInterval(hashHex string) (float64, error) {
	if len(hashHex) < 8 {
		return 0, fmt.Errorf("%w: %d characters", ErrMalformedOutcome, len(hashHex))
	}
	prefix, err := strconv.ParseUint(hashHex[:8], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedOutcome, err)
	}
	return float64(prefix) / unitDivisor, nil
}

// Draw resolves a round and classifies it.
func Draw(serverSeed, clientSeed string, nonce uint64) Outcome {
	hash := Resolve(serverSeed, clientSeed, nonce)
	// a SHA-256 hex digest always has a valid prefix
	v, _ := ToUnitInterval(hash)
	return Outcome{
		Nonce: nonce,
		Hash:  hash,
		Value: v,
		Tier:  Classify(v),
	}
}
