package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fairCaseServer/config"
	"fairCaseServer/events"
	"fairCaseServer/logger"

	"github.com/redis/go-redis/v9"
)

var (
	// RedisClient is the global Redis client instance
	RedisClient *redis.Client
)

// CommitmentRecord is the public record of a published commitment
type CommitmentRecord struct {
	Commitment  string     `json:"commitment"`
	SessionID   string     `json:"sessionId"`
	ClientSeed  string     `json:"clientSeed"`
	PublishedAt time.Time  `json:"publishedAt"`
	Rounds      uint64     `json:"rounds"`
	ServerSeed  string     `json:"serverSeed,omitempty"`
	RevealedAt  *time.Time `json:"revealedAt,omitempty"`
}

// SessionSnapshot is the cached public view of a session
type SessionSnapshot struct {
	SessionID   string    `json:"sessionId"`
	Commitment  string    `json:"commitment,omitempty"`
	ClientSeed  string    `json:"clientSeed"`
	Nonce       uint64    `json:"nonce"`
	Balance     string    `json:"balance"`
	LastOutcome string    `json:"lastOutcome,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// InitRedis initializes the Redis client connection
func InitRedis(cfg config.RedisConfig) error {
	logger.Info("🔌 Connecting to Redis...")

	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}

	RedisClient = redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := RedisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("✅ Redis connected successfully", "addr", addr)
	return nil
}

// CloseRedis closes the Redis connection
func CloseRedis() error {
	if RedisClient != nil {
		logger.Info("🔌 Closing Redis connection...")
		return RedisClient.Close()
	}
	return nil
}

// HealthCheck pings Redis
func HealthCheck(ctx context.Context) error {
	if RedisClient == nil {
		return fmt.Errorf("Redis not initialized")
	}
	return RedisClient.Ping(ctx).Err()
}

/* =========================
   COMMITMENT BOARD
   Redis Key: commitment:{commitment} -> JSON CommitmentRecord
   Redis Key: session:{sessionId}     -> JSON SessionSnapshot
========================= */

// CommitmentBoard records every published commitment in Redis so auditors can
// see when it was published relative to the rounds played under it. It also
// keeps the public session snapshot fresh.
type CommitmentBoard struct {
	client *redis.Client
}

func NewCommitmentBoard(client *redis.Client) *CommitmentBoard {
	return &CommitmentBoard{client: client}
}

func commitmentKey(commitment string) string {
	return fmt.Sprintf(config.RedisCommitmentKey, commitment)
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf(config.RedisSessionKey, sessionID)
}

// CommitmentPublished stores the commitment with SET NX; a commitment can only
// ever be published once.
func (b *CommitmentBoard) CommitmentPublished(ctx context.Context, ev events.CommitmentEvent) error {
	rec := CommitmentRecord{
		Commitment:  ev.Commitment,
		SessionID:   ev.SessionID,
		ClientSeed:  ev.ClientSeed,
		PublishedAt: ev.PublishedAt,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal commitment: %w", err)
	}

	ok, err := b.client.SetNX(ctx, commitmentKey(ev.Commitment), data, config.CommitmentTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to publish commitment: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrCommitmentExists, ev.Commitment)
	}

	return b.StoreSnapshot(ctx, &SessionSnapshot{
		SessionID:  ev.SessionID,
		Commitment: ev.Commitment,
		ClientSeed: ev.ClientSeed,
		Nonce:      ev.Nonce,
		Balance:    ev.Balance,
		UpdatedAt:  ev.PublishedAt,
	})
}

// RoundResolved bumps the round count of the commitment and refreshes the
// session snapshot.
func (b *CommitmentBoard) RoundResolved(ctx context.Context, ev events.RoundEvent) error {
	err := b.updateCommitment(ctx, ev.Commitment, func(rec *CommitmentRecord) {
		rec.Rounds = ev.NextNonce
	})
	if err != nil {
		return err
	}

	return b.StoreSnapshot(ctx, &SessionSnapshot{
		SessionID:   ev.SessionID,
		Commitment:  ev.Commitment,
		ClientSeed:  ev.ClientSeed,
		Nonce:       ev.NextNonce,
		Balance:     ev.Balance,
		LastOutcome: ev.OutcomeHash,
		UpdatedAt:   ev.ResolvedAt,
	})
}

// SeedRevealed attaches the revealed seed to the commitment record.
func (b *CommitmentBoard) SeedRevealed(ctx context.Context, ev events.RevealEvent) error {
	err := b.updateCommitment(ctx, ev.Commitment, func(rec *CommitmentRecord) {
		revealedAt := ev.RevealedAt
		rec.ServerSeed = ev.ServerSeed
		rec.RevealedAt = &revealedAt
		rec.Rounds = ev.Rounds
	})
	if err != nil {
		return err
	}

	return b.StoreSnapshot(ctx, &SessionSnapshot{
		SessionID:  ev.SessionID,
		ClientSeed: ev.ClientSeed,
		Balance:    ev.Balance,
		UpdatedAt:  ev.RevealedAt,
	})
}

func (b *CommitmentBoard) updateCommitment(ctx context.Context, commitment string, apply func(*CommitmentRecord)) error {
	key := commitmentKey(commitment)

	return b.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("commitment %s was never published", commitment)
			}
			return fmt.Errorf("failed to get commitment: %w", err)
		}

		var rec CommitmentRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal commitment: %w", err)
		}
		apply(&rec)

		updated, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal commitment: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		return err
	}, key)
}

// GetCommitment returns the published record, nil if unknown
func (b *CommitmentBoard) GetCommitment(ctx context.Context, commitment string) (*CommitmentRecord, error) {
	data, err := b.client.Get(ctx, commitmentKey(commitment)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get commitment: %w", err)
	}

	var rec CommitmentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal commitment: %w", err)
	}
	return &rec, nil
}

// StoreSnapshot caches the public view of a session
func (b *CommitmentBoard) StoreSnapshot(ctx context.Context, snap *SessionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := b.client.Set(ctx, sessionKey(snap.SessionID), data, config.SessionSnapshotTTL).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the cached session view, nil if absent
func (b *CommitmentBoard) GetSnapshot(ctx context.Context, sessionID string) (*SessionSnapshot, error) {
	data, err := b.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snap SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
