package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fairCaseServer/logger"

	"github.com/dgraph-io/badger/v4"
)

// BadgerRoundLog is an embedded RoundLog for single-node deployments.
//
// Keys:
//
//	round/<commitment>/<nonce, 20 digits>
//	reveal/<commitment>
type BadgerRoundLog struct {
	db *badger.DB
}

// OpenBadgerRoundLog opens the log at path. An empty path keeps it in memory.
func OpenBadgerRoundLog(path string) (*BadgerRoundLog, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	logger.Info("✅ Badger round log opened", "path", path, "inMemory", path == "")
	return &BadgerRoundLog{db: bdb}, nil
}

func (l *BadgerRoundLog) Close() error {
	return l.db.Close()
}

func roundPrefix(commitment string) []byte {
	return []byte("round/" + commitment + "/")
}

func roundKey(commitment string, nonce uint64) []byte {
	return []byte(fmt.Sprintf("round/%s/%020d", commitment, nonce))
}

func revealKey(commitment string) []byte {
	return []byte("reveal/" + commitment)
}

func (l *BadgerRoundLog) AppendRound(_ context.Context, rec RoundRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal round: %w", err)
	}

	key := roundKey(rec.Commitment, rec.Nonce)
	return l.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("%w: %s/%d", ErrDuplicateRound, rec.Commitment, rec.Nonce)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
}

func (l *BadgerRoundLog) AppendReveal(_ context.Context, rec RevealRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal reveal: %w", err)
	}

	key := revealKey(rec.Commitment)
	return l.db.Update(func(txn *badger.Txn) error {
		// first reveal wins
		if _, err := txn.Get(key); err == nil {
			return nil
		}
		return txn.Set(key, data)
	})
}

func (l *BadgerRoundLog) Rounds(_ context.Context, commitment string, limit int) ([]RoundRecord, error) {
	records := make([]RoundRecord, 0)
	prefix := roundPrefix(commitment)

	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(records) >= limit {
				break
			}
			var rec RoundRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("failed to decode round: %w", err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (l *BadgerRoundLog) Reveal(_ context.Context, commitment string) (*RevealRecord, error) {
	var rec *RevealRecord

	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(revealKey(commitment))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			rec = &RevealRecord{}
			return json.Unmarshal(val, rec)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get reveal: %w", err)
	}

	return rec, nil
}
