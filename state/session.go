package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fairCaseServer/config"
	"fairCaseServer/crypto"
	"fairCaseServer/db"
	"fairCaseServer/events"
	"fairCaseServer/game"
	"fairCaseServer/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInsufficientBalance is returned when the wallet cannot pay for a case.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ==============================================================================
// ROUND EPOCH
// ==============================================================================

// Epoch binds one committed server seed to a client seed and the next nonce.
// It is a value: every change produces a new Epoch that replaces the old one
// whole, so seed and nonce can never drift apart.
type Epoch struct {
	ID          string
	ServerSeed  string
	Commitment  string
	ClientSeed  string
	Nonce       uint64
	PublishedAt time.Time
}

func (e Epoch) advanced() Epoch {
	e.Nonce++
	return e
}

// ==============================================================================
// SESSION
// ==============================================================================

// Options are the collaborators and economy shared by sessions.
type Options struct {
	Seeds           *crypto.SeedGenerator
	RoundLog        db.RoundLog
	Publisher       events.Publisher
	StartingBalance decimal.Decimal
	CasePrice       decimal.Decimal
	Now             func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Seeds == nil {
		o.Seeds = crypto.NewSeedGenerator()
	}
	if o.Publisher == nil {
		o.Publisher = events.Nop{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// RoundResult is what a player sees after opening a case.
type RoundResult struct {
	SessionID  string          `json:"sessionId"`
	Commitment string          `json:"commitment"`
	ClientSeed string          `json:"clientSeed"`
	Outcome    game.Outcome    `json:"outcome"`
	Icon       string          `json:"icon"`
	NextNonce  uint64          `json:"nextNonce"`
	Balance    decimal.Decimal `json:"balance"`
}

// Snapshot is the public view of a session. The unrevealed server seed is
// never part of it.
type Snapshot struct {
	SessionID   string           `json:"sessionId"`
	Published   bool             `json:"published"`
	Commitment  string           `json:"commitment,omitempty"`
	ClientSeed  string           `json:"clientSeed"`
	Nonce       uint64           `json:"nonce"`
	Balance     decimal.Decimal  `json:"balance"`
	CasePrice   decimal.Decimal  `json:"casePrice"`
	LastOutcome *game.Outcome    `json:"lastOutcome,omitempty"`
	LastReveal  *db.RevealRecord `json:"lastReveal,omitempty"`
}

// Session is one player's case-opening state. Operations are serialised.
type Session struct {
	ID string

	mu         sync.Mutex
	opts       Options
	epoch      *Epoch
	clientSeed string
	balance    decimal.Decimal
	last       *game.Outcome
	lastReveal *db.RevealRecord
	createdAt  time.Time
}

// NewSession creates a session. An empty clientSeed is replaced by a freshly
// generated one.
func NewSession(clientSeed string, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	if opts.RoundLog == nil {
		return nil, errors.New("round log is required")
	}

	if clientSeed == "" {
		seed, err := opts.Seeds.Generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate client seed: %w", err)
		}
		clientSeed = seed
	}

	return &Session{
		ID:         uuid.NewString(),
		opts:       opts,
		clientSeed: clientSeed,
		balance:    opts.StartingBalance,
		createdAt:  opts.Now(),
	}, nil
}

// Publish commits to a fresh server seed. The epoch becomes active only after
// every publisher accepted the commitment; on failure the previous state is
// kept. A previous unrevealed seed is discarded and the nonce restarts at 0.
func (s *Session) Publish(ctx context.Context) (events.CommitmentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seed, err := s.opts.Seeds.Generate()
	if err != nil {
		return events.CommitmentEvent{}, fmt.Errorf("failed to generate server seed: %w", err)
	}

	next := Epoch{
		ID:          uuid.NewString(),
		ServerSeed:  seed,
		Commitment:  crypto.Commit(seed),
		ClientSeed:  s.clientSeed,
		Nonce:       0,
		PublishedAt: s.opts.Now().UTC(),
	}

	ev := events.CommitmentEvent{
		SessionID:   s.ID,
		EpochID:     next.ID,
		Commitment:  next.Commitment,
		ClientSeed:  next.ClientSeed,
		Nonce:       next.Nonce,
		Balance:     s.balance.String(),
		PublishedAt: next.PublishedAt,
	}

	if err := s.opts.Publisher.CommitmentPublished(ctx, ev); err != nil {
		return events.CommitmentEvent{}, fmt.Errorf("failed to publish commitment: %w", err)
	}

	if s.epoch != nil {
		logger.Warn("⚠️  Discarding unrevealed server seed",
			"session", s.ID, "commitment", s.epoch.Commitment, "rounds", s.epoch.Nonce)
	}
	s.epoch = &next

	logger.Info("🔒 Server hash published", "session", s.ID, "commitment", next.Commitment)
	return ev, nil
}

// OpenRound charges the case price and resolves the round under the current
// nonce. Nothing changes unless a commitment exists, the balance covers the
// price and the round was written to the round log.
func (s *Session) OpenRound(ctx context.Context) (*RoundResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch == nil {
		return nil, fmt.Errorf("%w: publish a server hash before opening a case", game.ErrPreconditionViolated)
	}
	price := s.opts.CasePrice
	if s.balance.LessThan(price) {
		return nil, fmt.Errorf("%w: balance %s, price %s", ErrInsufficientBalance, s.balance, price)
	}

	epoch := *s.epoch
	out := game.Draw(epoch.ServerSeed, epoch.ClientSeed, epoch.Nonce)
	now := s.opts.Now().UTC()

	rec := db.RoundRecord{
		SessionID:   s.ID,
		Commitment:  epoch.Commitment,
		ClientSeed:  epoch.ClientSeed,
		Nonce:       out.Nonce,
		OutcomeHash: out.Hash,
		Value:       out.Value,
		Tier:        out.Tier,
		Price:       price.String(),
		CreatedAt:   now,
	}
	if err := s.opts.RoundLog.AppendRound(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to log round: %w", err)
	}

	next := epoch.advanced()
	s.epoch = &next
	s.balance = s.balance.Sub(price)
	s.last = &out

	result := &RoundResult{
		SessionID:  s.ID,
		Commitment: epoch.Commitment,
		ClientSeed: epoch.ClientSeed,
		Outcome:    out,
		Icon:       out.Tier.Icon(),
		NextNonce:  next.Nonce,
		Balance:    s.balance,
	}

	ev := events.RoundEvent{
		SessionID:   s.ID,
		Commitment:  epoch.Commitment,
		ClientSeed:  epoch.ClientSeed,
		Nonce:       out.Nonce,
		NextNonce:   next.Nonce,
		OutcomeHash: out.Hash,
		Value:       out.Value,
		Tier:        out.Tier,
		Icon:        out.Tier.Icon(),
		Balance:     s.balance.String(),
		ResolvedAt:  now,
	}
	// the round is already logged; display failures never roll it back
	if err := s.opts.Publisher.RoundResolved(ctx, ev); err != nil {
		logger.Warn("⚠️  Failed to broadcast round", "session", s.ID, "nonce", out.Nonce, logger.Err(err))
	}

	logger.Info("🎁 Opened case",
		"session", s.ID, "tier", out.Tier.String(), "v", fmt.Sprintf("%.5f", out.Value), "nonce", out.Nonce)
	return result, nil
}

// Reveal discloses the server seed and retires the epoch. Further rounds need
// a new Publish.
func (s *Session) Reveal(ctx context.Context) (*db.RevealRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch == nil {
		return nil, fmt.Errorf("%w: no server seed generated yet, publish a server hash first", game.ErrPreconditionViolated)
	}

	epoch := *s.epoch
	rec := &db.RevealRecord{
		SessionID:  s.ID,
		Commitment: epoch.Commitment,
		ServerSeed: epoch.ServerSeed,
		ClientSeed: epoch.ClientSeed,
		Rounds:     epoch.Nonce,
		RevealedAt: s.opts.Now().UTC(),
	}
	if err := s.opts.RoundLog.AppendReveal(ctx, *rec); err != nil {
		return nil, fmt.Errorf("failed to log reveal: %w", err)
	}

	s.epoch = nil
	s.lastReveal = rec

	ev := events.RevealEvent{
		SessionID:  s.ID,
		Commitment: rec.Commitment,
		ServerSeed: rec.ServerSeed,
		ClientSeed: rec.ClientSeed,
		Rounds:     rec.Rounds,
		Balance:    s.balance.String(),
		RevealedAt: rec.RevealedAt,
	}
	if err := s.opts.Publisher.SeedRevealed(ctx, ev); err != nil {
		logger.Warn("⚠️  Failed to broadcast reveal", "session", s.ID, logger.Err(err))
	}

	logger.Info("🔓 Server seed revealed", "session", s.ID, "commitment", rec.Commitment, "rounds", rec.Rounds)
	return rec, nil
}

// SetClientSeed rotates the client seed. An empty seed is replaced by a
// generated one. The client seed is part of a published commitment, so it
// can only change while no commitment is active.
func (s *Session) SetClientSeed(seed string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != nil {
		return "", fmt.Errorf("%w: reveal the current server seed before changing the client seed", game.ErrPreconditionViolated)
	}

	if seed == "" {
		generated, err := s.opts.Seeds.Generate()
		if err != nil {
			return "", fmt.Errorf("failed to generate client seed: %w", err)
		}
		seed = generated
	}

	s.clientSeed = seed
	return seed, nil
}

// Snapshot returns the public view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:  s.ID,
		ClientSeed: s.clientSeed,
		Balance:    s.balance,
		CasePrice:  s.opts.CasePrice,
		LastReveal: s.lastReveal,
	}
	if s.epoch != nil {
		snap.Published = true
		snap.Commitment = s.epoch.Commitment
		snap.Nonce = s.epoch.Nonce
	}
	if s.last != nil {
		out := *s.last
		snap.LastOutcome = &out
	}
	return snap
}

// Balance returns the current wallet balance.
func (s *Session) Balance() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// DefaultOptions fills the economy from the package defaults.
func DefaultOptions(log db.RoundLog, pub events.Publisher) Options {
	return Options{
		RoundLog:        log,
		Publisher:       pub,
		StartingBalance: config.DefaultStartingBalance,
		CasePrice:       config.DefaultCasePrice,
	}
}
