package game

import (
	"errors"
	"fmt"

	"fairCaseServer/crypto"
)

var (
	// ErrPreconditionViolated is returned when an operation runs before the
	// commitment or seed it depends on exists. State is left untouched.
	ErrPreconditionViolated = errors.New("precondition violated")

	// ErrCommitmentMismatch means the revealed seed does not hash to the
	// published commitment. Every round under that commitment is untrusted.
	ErrCommitmentMismatch = errors.New("commitment mismatch")

	// ErrOutcomeMismatch means a reported outcome hash differs from the
	// recomputed one.
	ErrOutcomeMismatch = errors.New("outcome mismatch")
)

// ClaimedRound is a round as it was reported during play.
type ClaimedRound struct {
	Nonce       uint64 `json:"nonce" yaml:"nonce"`
	OutcomeHash string `json:"outcomeHash" yaml:"outcomeHash"`
}

// Transcript is everything a verifier needs once the server seed is revealed.
type Transcript struct {
	ServerSeed string         `json:"serverSeed" yaml:"serverSeed"`
	Commitment string         `json:"commitment" yaml:"commitment"`
	ClientSeed string         `json:"clientSeed" yaml:"clientSeed"`
	Rounds     []ClaimedRound `json:"rounds" yaml:"rounds"`
}

// RoundCheck is the verification result for a single claimed round.
type RoundCheck struct {
	Nonce    uint64  `json:"nonce"`
	Claimed  string  `json:"claimed"`
	Expected string  `json:"expected"`
	Value    float64 `json:"value"`
	Tier     Tier    `json:"tier"`
	Match    bool    `json:"match"`
}

// Report is the full result of a verification run.
type Report struct {
	Commitment         string       `json:"commitment"`
	ExpectedCommitment string       `json:"expectedCommitment"`
	CommitmentMatch    bool         `json:"commitmentMatch"`
	Rounds             []RoundCheck `json:"rounds"`
	Mismatched         []uint64     `json:"mismatched,omitempty"`
	Trusted            bool         `json:"trusted"`
}

// Verify recomputes the commitment and every claimed round. All rounds are
// checked even after a mismatch so the report is complete. The returned error
// wraps ErrCommitmentMismatch and/or ErrOutcomeMismatch.
func Verify(t Transcript) (*Report, error) {
	expected := crypto.Commit(t.ServerSeed)
	report := &Report{
		Commitment:         t.Commitment,
		ExpectedCommitment: expected,
		CommitmentMatch:    crypto.VerifySeed(t.ServerSeed, t.Commitment),
		Rounds:             make([]RoundCheck, 0, len(t.Rounds)),
	}

	for _, claimed := range t.Rounds {
		out := Draw(t.ServerSeed, t.ClientSeed, claimed.Nonce)
		check := RoundCheck{
			Nonce:    claimed.Nonce,
			Claimed:  claimed.OutcomeHash,
			Expected: out.Hash,
			Value:    out.Value,
			Tier:     out.Tier,
			Match:    out.Hash == claimed.OutcomeHash,
		}
		if !check.Match {
			report.Mismatched = append(report.Mismatched, claimed.Nonce)
		}
		report.Rounds = append(report.Rounds, check)
	}

	var errs []error
	if !report.CommitmentMatch {
		errs = append(errs, fmt.Errorf("%w: published %s, seed hashes to %s", ErrCommitmentMismatch, t.Commitment, expected))
	}
	if len(report.Mismatched) > 0 {
		errs = append(errs, fmt.Errorf("%w: nonces %v", ErrOutcomeMismatch, report.Mismatched))
	}
	report.Trusted = len(errs) == 0

	return report, errors.Join(errs...)
}
