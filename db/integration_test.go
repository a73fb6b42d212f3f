package db

import (
	"context"
	"os"
	"testing"
	"time"

	"fairCaseServer/config"
	"fairCaseServer/crypto"
	"fairCaseServer/events"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRoundLog(t *testing.T) {
	_ = godotenv.Load("../.env")

	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set")
	}

	require.NoError(t, InitPostgres(os.Getenv("DATABASE_URL")))
	defer ClosePostgres()

	ctx := context.Background()
	log := NewPostgresRoundLog(PostgresPool)
	_, commitment, err := crypto.GenerateServerSeed()
	require.NoError(t, err)

	defer PostgresPool.Exec(ctx, "DELETE FROM fair_rounds WHERE commitment = $1", commitment)
	defer PostgresPool.Exec(ctx, "DELETE FROM fair_reveals WHERE commitment = $1", commitment)

	t.Run("AppendRound_Ordered", func(t *testing.T) {
		for _, n := range []uint64{1, 0, 2} {
			require.NoError(t, log.AppendRound(ctx, round(commitment, n)))
		}

		rounds, err := log.Rounds(ctx, commitment, 10)
		require.NoError(t, err)
		require.Len(t, rounds, 3)
		for i, r := range rounds {
			assert.Equal(t, uint64(i), r.Nonce)
		}
		assert.Equal(t, round(commitment, 0).Tier, rounds[0].Tier)

		all, err := log.Rounds(ctx, commitment, 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		limited, err := log.Rounds(ctx, commitment, 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("AppendRound_Duplicate", func(t *testing.T) {
		err := log.AppendRound(ctx, round(commitment, 0))
		assert.ErrorIs(t, err, ErrDuplicateRound)
	})

	t.Run("Reveal", func(t *testing.T) {
		rec, err := log.Reveal(ctx, commitment)
		require.NoError(t, err)
		assert.Nil(t, rec)

		require.NoError(t, log.AppendReveal(ctx, RevealRecord{
			SessionID: "s", Commitment: commitment, ServerSeed: "server", ClientSeed: "client",
			Rounds: 3, RevealedAt: time.Now().UTC(),
		}))

		rec, err = log.Reveal(ctx, commitment)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, uint64(3), rec.Rounds)
	})
}

func TestCommitmentBoard(t *testing.T) {
	_ = godotenv.Load("../.env")

	if os.Getenv("REDIS_URL") == "" {
		t.Skip("REDIS_URL not set")
	}

	require.NoError(t, InitRedis(config.RedisConfig{Addr: os.Getenv("REDIS_URL"), Password: os.Getenv("REDIS_PASSWORD")}))
	defer CloseRedis()

	ctx := context.Background()
	board := NewCommitmentBoard(RedisClient)
	seed, commitment, err := crypto.GenerateServerSeed()
	require.NoError(t, err)

	defer RedisClient.Del(ctx, commitmentKey(commitment), sessionKey("board-test"))

	published := events.CommitmentEvent{SessionID: "board-test", Commitment: commitment, ClientSeed: "client", Balance: "1000", PublishedAt: time.Now().UTC()}
	require.NoError(t, board.CommitmentPublished(ctx, published))

	err = board.CommitmentPublished(ctx, published)
	assert.ErrorIs(t, err, ErrCommitmentExists)

	require.NoError(t, board.RoundResolved(ctx, events.RoundEvent{
		SessionID: "board-test", Commitment: commitment, ClientSeed: "client",
		Nonce: 0, NextNonce: 1, OutcomeHash: "ab", Balance: "900", ResolvedAt: time.Now().UTC(),
	}))

	snap, err := board.GetSnapshot(ctx, "board-test")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, uint64(1), snap.Nonce)
	assert.Equal(t, "900", snap.Balance)

	require.NoError(t, board.SeedRevealed(ctx, events.RevealEvent{
		SessionID: "board-test", Commitment: commitment, ServerSeed: seed, ClientSeed: "client",
		Rounds: 1, Balance: "900", RevealedAt: time.Now().UTC(),
	}))

	rec, err := board.GetCommitment(ctx, commitment)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, seed, rec.ServerSeed)
	assert.True(t, crypto.VerifySeed(rec.ServerSeed, rec.Commitment))
	assert.Equal(t, uint64(1), rec.Rounds)
}
