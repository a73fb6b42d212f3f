package db

import (
	"context"
	"errors"
	"fmt"

	"fairCaseServer/config"
	"fairCaseServer/game"
	"fairCaseServer/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// PostgresPool is the global PostgreSQL connection pool
	PostgresPool *pgxpool.Pool
)

const pgUniqueViolation = "23505"

// InitPostgres initializes the PostgreSQL connection pool and schema
func InitPostgres(databaseURL string) error {
	logger.Info("🔌 Connecting to PostgreSQL...")

	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = config.MaxOpenConns
	poolConfig.MinConns = config.MinIdleConns
	poolConfig.MaxConnLifetime = config.ConnMaxLifetime

	PostgresPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := PostgresPool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("✅ PostgreSQL connected successfully")

	if err := InitSchema(ctx); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// ClosePostgres closes the PostgreSQL connection pool
func ClosePostgres() {
	if PostgresPool != nil {
		logger.Info("🔌 Closing PostgreSQL connection...")
		PostgresPool.Close()
	}
}

// InitSchema creates the round log tables if they don't exist
func InitSchema(ctx context.Context) error {
	logger.Info("📋 Initializing database schema...")

	roundsSchema := `
	CREATE TABLE IF NOT EXISTS fair_rounds (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		commitment TEXT NOT NULL,
		client_seed TEXT NOT NULL,
		nonce BIGINT NOT NULL,
		outcome_hash TEXT NOT NULL,
		value DOUBLE PRECISION NOT NULL,
		tier TEXT NOT NULL,
		price TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE(commitment, nonce)
	);

	CREATE INDEX IF NOT EXISTS idx_fair_rounds_session ON fair_rounds(session_id);
	`

	if _, err := PostgresPool.Exec(ctx, roundsSchema); err != nil {
		return fmt.Errorf("failed to create fair_rounds table: %w", err)
	}

	revealsSchema := `
	CREATE TABLE IF NOT EXISTS fair_reveals (
		commitment TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		server_seed TEXT NOT NULL,
		client_seed TEXT NOT NULL,
		rounds BIGINT NOT NULL,
		revealed_at TIMESTAMPTZ NOT NULL
	);
	`

	if _, err := PostgresPool.Exec(ctx, revealsSchema); err != nil {
		return fmt.Errorf("failed to create fair_reveals table: %w", err)
	}

	logger.Info("✅ Database schema initialized")
	return nil
}

// HealthCheckPostgres pings the pool
func HealthCheckPostgres(ctx context.Context) error {
	if PostgresPool == nil {
		return fmt.Errorf("PostgreSQL not initialized")
	}
	return PostgresPool.Ping(ctx)
}

/* =========================
   ROUND LOG
========================= */

// PostgresRoundLog is the RoundLog backed by PostgreSQL
type PostgresRoundLog struct {
	pool *pgxpool.Pool
}

func NewPostgresRoundLog(pool *pgxpool.Pool) *PostgresRoundLog {
	return &PostgresRoundLog{pool: pool}
}

// AppendRound stores a resolved round
func (l *PostgresRoundLog) AppendRound(ctx context.Context, rec RoundRecord) error {
	query := `
		INSERT INTO fair_rounds
		(session_id, commitment, client_seed, nonce, outcome_hash, value, tier, price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := l.pool.Exec(
		ctx,
		query,
		rec.SessionID,
		rec.Commitment,
		rec.ClientSeed,
		int64(rec.Nonce),
		rec.OutcomeHash,
		rec.Value,
		rec.Tier.String(),
		rec.Price,
		rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s/%d", ErrDuplicateRound, rec.Commitment, rec.Nonce)
		}
		return fmt.Errorf("failed to store round: %w", err)
	}

	return nil
}

// AppendReveal stores a revealed server seed
func (l *PostgresRoundLog) AppendReveal(ctx context.Context, rec RevealRecord) error {
	query := `
		INSERT INTO fair_reveals
		(commitment, session_id, server_seed, client_seed, rounds, revealed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (commitment) DO NOTHING
	`

	_, err := l.pool.Exec(
		ctx,
		query,
		rec.Commitment,
		rec.SessionID,
		rec.ServerSeed,
		rec.ClientSeed,
		int64(rec.Rounds),
		rec.RevealedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store reveal: %w", err)
	}

	return nil
}

// roundsQuery builds the rounds query; limit <= 0 selects every round
func roundsQuery(commitment string, limit int) (string, []any) {
	query := `
		SELECT session_id, commitment, client_seed, nonce, outcome_hash, value, tier, price, created_at
		FROM fair_rounds
		WHERE commitment = $1
		ORDER BY nonce ASC
	`
	if limit <= 0 {
		return query, []any{commitment}
	}
	return query + "LIMIT $2\n", []any{commitment, limit}
}

// Rounds returns the logged rounds of a commitment ordered by nonce
func (l *PostgresRoundLog) Rounds(ctx context.Context, commitment string, limit int) ([]RoundRecord, error) {
	query, args := roundsQuery(commitment, limit)

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}
	defer rows.Close()

	records := make([]RoundRecord, 0)
	for rows.Next() {
		var rec RoundRecord
		var nonce int64
		var tier string

		if err := rows.Scan(
			&rec.SessionID,
			&rec.Commitment,
			&rec.ClientSeed,
			&nonce,
			&rec.OutcomeHash,
			&rec.Value,
			&tier,
			&rec.Price,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}

		rec.Nonce = uint64(nonce)
		if rec.Tier, err = game.ParseTier(tier); err != nil {
			return nil, fmt.Errorf("round %s/%d: %w", rec.Commitment, rec.Nonce, err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rounds: %w", err)
	}

	return records, nil
}

// Reveal returns the reveal of a commitment, nil if not revealed yet
func (l *PostgresRoundLog) Reveal(ctx context.Context, commitment string) (*RevealRecord, error) {
	query := `
		SELECT commitment, session_id, server_seed, client_seed, rounds, revealed_at
		FROM fair_reveals
		WHERE commitment = $1
	`

	var rec RevealRecord
	var rounds int64
	err := l.pool.QueryRow(ctx, query, commitment).Scan(
		&rec.Commitment,
		&rec.SessionID,
		&rec.ServerSeed,
		&rec.ClientSeed,
		&rounds,
		&rec.RevealedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get reveal: %w", err)
	}

	rec.Rounds = uint64(rounds)
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
