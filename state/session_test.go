package state

import (
	"context"
	"errors"
	"sync"
	"testing"

	"fairCaseServer/crypto"
	"fairCaseServer/db"
	"fairCaseServer/events"
	"fairCaseServer/game"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memLog is an in-memory RoundLog that can be told to fail.
type memLog struct {
	mu      sync.Mutex
	rounds  []db.RoundRecord
	reveals []db.RevealRecord
	failErr error
}

func (m *memLog) AppendRound(_ context.Context, rec db.RoundRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.rounds = append(m.rounds, rec)
	return nil
}

func (m *memLog) AppendReveal(_ context.Context, rec db.RevealRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.reveals = append(m.reveals, rec)
	return nil
}

func (m *memLog) Rounds(_ context.Context, commitment string, _ int) ([]db.RoundRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.RoundRecord
	for _, r := range m.rounds {
		if r.Commitment == commitment {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memLog) Reveal(_ context.Context, commitment string) (*db.RevealRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reveals {
		if r.Commitment == commitment {
			rec := r
			return &rec, nil
		}
	}
	return nil, nil
}

// capture records published events and can reject commitments.
type capture struct {
	commitments []events.CommitmentEvent
	rounds      []events.RoundEvent
	reveals     []events.RevealEvent
	rejectErr   error
	roundErr    error
}

func (c *capture) CommitmentPublished(_ context.Context, ev events.CommitmentEvent) error {
	if c.rejectErr != nil {
		return c.rejectErr
	}
	c.commitments = append(c.commitments, ev)
	return nil
}

func (c *capture) RoundResolved(_ context.Context, ev events.RoundEvent) error {
	c.rounds = append(c.rounds, ev)
	return c.roundErr
}

func (c *capture) SeedRevealed(_ context.Context, ev events.RevealEvent) error {
	c.reveals = append(c.reveals, ev)
	return nil
}

func newTestSession(t *testing.T, balance int64) (*Session, *memLog, *capture) {
	t.Helper()
	log := &memLog{}
	pub := &capture{}
	s, err := NewSession("client-seed", Options{
		RoundLog:        log,
		Publisher:       pub,
		StartingBalance: decimal.NewFromInt(balance),
		CasePrice:       decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	return s, log, pub
}

func TestSession_OpenBeforePublish(t *testing.T) {
	s, log, pub := newTestSession(t, 1000)

	_, err := s.OpenRound(context.Background())
	assert.ErrorIs(t, err, game.ErrPreconditionViolated)

	assert.True(t, s.Balance().Equal(decimal.NewFromInt(1000)), "balance must not be charged")
	assert.Empty(t, log.rounds)
	assert.Empty(t, pub.rounds)
}

func TestSession_RevealBeforePublish(t *testing.T) {
	s, _, _ := newTestSession(t, 1000)

	_, err := s.Reveal(context.Background())
	assert.ErrorIs(t, err, game.ErrPreconditionViolated)
}

func TestSession_NonceAdvancesByOne(t *testing.T) {
	s, log, pub := newTestSession(t, 1000)
	ctx := context.Background()

	committed, err := s.Publish(ctx)
	require.NoError(t, err)
	require.Len(t, pub.commitments, 1, "commitment is published before any round")
	assert.Equal(t, uint64(0), s.Snapshot().Nonce)

	for want := uint64(0); want < 5; want++ {
		res, err := s.OpenRound(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, res.Outcome.Nonce)
		assert.Equal(t, want+1, res.NextNonce)
		assert.Equal(t, committed.Commitment, res.Commitment)
		assert.Equal(t, want+1, s.Snapshot().Nonce)
	}

	assert.True(t, s.Balance().Equal(decimal.NewFromInt(500)))
	require.Len(t, log.rounds, 5)
	require.Len(t, pub.rounds, 5)
	for i, r := range log.rounds {
		assert.Equal(t, uint64(i), r.Nonce)
		assert.Equal(t, "100", r.Price)
	}
}

func TestSession_PublishResetsNonce(t *testing.T) {
	s, _, _ := newTestSession(t, 1000)
	ctx := context.Background()

	first, err := s.Publish(ctx)
	require.NoError(t, err)
	_, err = s.OpenRound(ctx)
	require.NoError(t, err)
	_, err = s.OpenRound(ctx)
	require.NoError(t, err)

	second, err := s.Publish(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.Commitment, second.Commitment)

	snap := s.Snapshot()
	assert.Equal(t, second.Commitment, snap.Commitment)
	assert.Equal(t, uint64(0), snap.Nonce)

	res, err := s.OpenRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.Outcome.Nonce)
}

func TestSession_PublishFailureKeepsState(t *testing.T) {
	s, _, pub := newTestSession(t, 1000)
	ctx := context.Background()

	first, err := s.Publish(ctx)
	require.NoError(t, err)
	_, err = s.OpenRound(ctx)
	require.NoError(t, err)

	pub.rejectErr = errors.New("board down")
	_, err = s.Publish(ctx)
	require.Error(t, err)

	snap := s.Snapshot()
	assert.Equal(t, first.Commitment, snap.Commitment)
	assert.Equal(t, uint64(1), snap.Nonce)
}

func TestSession_PublishFailureBeforeFirstEpoch(t *testing.T) {
	s, _, pub := newTestSession(t, 1000)
	pub.rejectErr = errors.New("board down")

	_, err := s.Publish(context.Background())
	require.Error(t, err)

	_, err = s.OpenRound(context.Background())
	assert.ErrorIs(t, err, game.ErrPreconditionViolated)
}

func TestSession_InsufficientBalance(t *testing.T) {
	s, log, _ := newTestSession(t, 150)
	ctx := context.Background()

	_, err := s.Publish(ctx)
	require.NoError(t, err)
	_, err = s.OpenRound(ctx)
	require.NoError(t, err)

	_, err = s.OpenRound(ctx)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.True(t, s.Balance().Equal(decimal.NewFromInt(50)))
	assert.Equal(t, uint64(1), s.Snapshot().Nonce)
	assert.Len(t, log.rounds, 1)
}

func TestSession_LogFailureConsumesNothing(t *testing.T) {
	s, log, pub := newTestSession(t, 1000)
	ctx := context.Background()

	_, err := s.Publish(ctx)
	require.NoError(t, err)

	log.failErr = errors.New("disk full")
	_, err = s.OpenRound(ctx)
	require.Error(t, err)

	assert.True(t, s.Balance().Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, uint64(0), s.Snapshot().Nonce)
	assert.Empty(t, pub.rounds)

	log.failErr = nil
	res, err := s.OpenRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.Outcome.Nonce)
}

func TestSession_BroadcastFailureKeepsRound(t *testing.T) {
	s, log, pub := newTestSession(t, 1000)
	ctx := context.Background()

	_, err := s.Publish(ctx)
	require.NoError(t, err)

	pub.roundErr = errors.New("socket closed")
	_, err = s.OpenRound(ctx)
	require.NoError(t, err)
	assert.Len(t, log.rounds, 1)
	assert.Equal(t, uint64(1), s.Snapshot().Nonce)
}

func TestSession_RevealAndVerify(t *testing.T) {
	s, log, pub := newTestSession(t, 1000)
	ctx := context.Background()

	committed, err := s.Publish(ctx)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := s.OpenRound(ctx)
		require.NoError(t, err)
	}

	snap := s.Snapshot()
	assert.Nil(t, snap.LastReveal)

	rec, err := s.Reveal(ctx)
	require.NoError(t, err)
	assert.Equal(t, committed.Commitment, rec.Commitment)
	assert.Equal(t, uint64(3), rec.Rounds)
	assert.True(t, crypto.VerifySeed(rec.ServerSeed, committed.Commitment))
	require.Len(t, pub.reveals, 1)

	// the epoch is retired
	_, err = s.OpenRound(ctx)
	assert.ErrorIs(t, err, game.ErrPreconditionViolated)
	assert.False(t, s.Snapshot().Published)

	tr, err := db.Transcript(ctx, log, committed.Commitment, 0)
	require.NoError(t, err)
	report, err := game.Verify(*tr)
	require.NoError(t, err)
	assert.True(t, report.Trusted)
	assert.Len(t, report.Rounds, 3)
}

func TestSession_OutcomesMatchResolver(t *testing.T) {
	s, _, _ := newTestSession(t, 1000)
	ctx := context.Background()

	_, err := s.Publish(ctx)
	require.NoError(t, err)
	first, err := s.OpenRound(ctx)
	require.NoError(t, err)
	second, err := s.OpenRound(ctx)
	require.NoError(t, err)

	rec, err := s.Reveal(ctx)
	require.NoError(t, err)

	assert.Equal(t, game.Resolve(rec.ServerSeed, "client-seed", 0), first.Outcome.Hash)
	assert.Equal(t, game.Resolve(rec.ServerSeed, "client-seed", 1), second.Outcome.Hash)
	assert.NotEqual(t, first.Outcome.Hash, second.Outcome.Hash)
}

func TestSession_SetClientSeed(t *testing.T) {
	s, _, pub := newTestSession(t, 1000)
	ctx := context.Background()

	seed, err := s.SetClientSeed("")
	require.NoError(t, err)
	assert.NotEqual(t, "client-seed", seed)

	_, err = s.SetClientSeed("mine")
	require.NoError(t, err)

	committed, err := s.Publish(ctx)
	require.NoError(t, err)

	// the published commitment names the seed every round under it uses
	_, err = s.SetClientSeed("another")
	assert.ErrorIs(t, err, game.ErrPreconditionViolated)
	assert.Equal(t, "mine", s.Snapshot().ClientSeed)

	res, err := s.OpenRound(ctx)
	require.NoError(t, err)
	require.Len(t, pub.commitments, 1)
	assert.Equal(t, "mine", pub.commitments[0].ClientSeed)
	assert.Equal(t, committed.ClientSeed, res.ClientSeed)

	_, err = s.SetClientSeed("another")
	assert.ErrorIs(t, err, game.ErrPreconditionViolated)

	rec, err := s.Reveal(ctx)
	require.NoError(t, err)
	assert.Equal(t, "mine", rec.ClientSeed)

	_, err = s.SetClientSeed("another")
	require.NoError(t, err)
	assert.Equal(t, "another", s.Snapshot().ClientSeed)
}

func TestSession_SnapshotHidesServerSeed(t *testing.T) {
	s, _, _ := newTestSession(t, 1000)
	ctx := context.Background()

	ev, err := s.Publish(ctx)
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.True(t, snap.Published)
	assert.Equal(t, ev.Commitment, snap.Commitment)
	assert.Nil(t, snap.LastOutcome)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(Options{RoundLog: &memLog{}, StartingBalance: decimal.NewFromInt(10), CasePrice: decimal.NewFromInt(1)})

	s, err := r.Create("")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())

	got, err := r.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	r.Delete(s.ID)
	_, err = r.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistry_RequiresRoundLog(t *testing.T) {
	r := NewRegistry(Options{})
	_, err := r.Create("x")
	assert.Error(t, err)
}
