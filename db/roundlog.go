package db

import (
	"context"
	"errors"
	"time"

	"fairCaseServer/game"
)

var (
	// ErrDuplicateRound is returned when a (commitment, nonce) pair is logged twice.
	ErrDuplicateRound = errors.New("round already logged")

	// ErrCommitmentExists is returned when a commitment is published twice.
	ErrCommitmentExists = errors.New("commitment already published")
)

// RoundRecord is one entry of the round log. Together with the reveal it is
// everything an independent verifier needs.
type RoundRecord struct {
	SessionID   string    `json:"sessionId"`
	Commitment  string    `json:"commitment"`
	ClientSeed  string    `json:"clientSeed"`
	Nonce       uint64    `json:"nonce"`
	OutcomeHash string    `json:"outcomeHash"`
	Value       float64   `json:"value"`
	Tier        game.Tier `json:"tier"`
	Price       string    `json:"price"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RevealRecord stores a revealed server seed.
type RevealRecord struct {
	SessionID  string    `json:"sessionId"`
	Commitment string    `json:"commitment"`
	ServerSeed string    `json:"serverSeed"`
	ClientSeed string    `json:"clientSeed"`
	Rounds     uint64    `json:"rounds"`
	RevealedAt time.Time `json:"revealedAt"`
}

// RoundLog is the durable record of played rounds and reveals.
type RoundLog interface {
	AppendRound(ctx context.Context, rec RoundRecord) error
	AppendReveal(ctx context.Context, rec RevealRecord) error
	// Rounds returns up to limit rounds for commitment ordered by nonce;
	// limit <= 0 returns all of them.
	Rounds(ctx context.Context, commitment string, limit int) ([]RoundRecord, error)
	// Reveal returns nil when the commitment has not been revealed.
	Reveal(ctx context.Context, commitment string) (*RevealRecord, error)
}

// Transcript assembles the verifier input for a revealed commitment.
// It returns nil when the commitment is still secret.
func Transcript(ctx context.Context, log RoundLog, commitment string, limit int) (*game.Transcript, error) {
	reveal, err := log.Reveal(ctx, commitment)
	if err != nil {
		return nil, err
	}
	if reveal == nil {
		return nil, nil
	}

	rounds, err := log.Rounds(ctx, commitment, limit)
	if err != nil {
		return nil, err
	}

	t := &game.Transcript{
		ServerSeed: reveal.ServerSeed,
		Commitment: reveal.Commitment,
		ClientSeed: reveal.ClientSeed,
		Rounds:     make([]game.ClaimedRound, 0, len(rounds)),
	}
	for _, r := range rounds {
		t.Rounds = append(t.Rounds, game.ClaimedRound{Nonce: r.Nonce, OutcomeHash: r.OutcomeHash})
	}
	return t, nil
}
