// Package sequence issues human-readable document numbers of the form
// PREFIX-YYYYMMDD-NNNNN, counted per prefix per UTC day.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

const dayLayout = "20060102"

var prefixPattern = regexp.MustCompile(`^[A-Z]{2,8}$`)

// ErrInvalidPrefix indicates a prefix outside [A-Z]{2,8}.
var ErrInvalidPrefix = fmt.Errorf("sequence: invalid prefix: %w", shared.ErrValidation)

// Sequencer returns the next unique number for a prefix.
type Sequencer interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// Format renders a document number.
func Format(prefix string, day time.Time, n int64) string {
	return fmt.Sprintf("%s-%s-%05d", prefix, day.UTC().Format(dayLayout), n)
}

func checkPrefix(prefix string) error {
	if !prefixPattern.MatchString(prefix) {
		return ErrInvalidPrefix
	}
	return nil
}

type clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

// RedisSequencer counts with INCR on a per-day key that expires after two days.
type RedisSequencer struct {
	client redis.UniversalClient
	now    clock
}

// NewRedisSequencer constructs RedisSequencer.
func NewRedisSequencer(client redis.UniversalClient) *RedisSequencer {
	return &RedisSequencer{client: client, now: utcNow}
}

// Next implements Sequencer.
func (s *RedisSequencer) Next(ctx context.Context, prefix string) (string, error) {
	if err := checkPrefix(prefix); err != nil {
		return "", err
	}
	day := s.now()
	key := shared.SequenceKey(prefix, day.Format(dayLayout))
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("sequence: redis incr: %w", err)
	}
	return Format(prefix, day, incr.Val()), nil
}

// PostgresSequencer counts in the document_sequences table.
type PostgresSequencer struct {
	pool *pgxpool.Pool
	now  clock
}

// NewPostgresSequencer constructs PostgresSequencer.
func NewPostgresSequencer(pool *pgxpool.Pool) *PostgresSequencer {
	return &PostgresSequencer{pool: pool, now: utcNow}
}

// Next implements Sequencer.
func (s *PostgresSequencer) Next(ctx context.Context, prefix string) (string, error) {
	if err := checkPrefix(prefix); err != nil {
		return "", err
	}
	if s == nil || s.pool == nil {
		return "", errors.New("sequence: postgres pool not initialised")
	}
	day := s.now()
	var seq int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO document_sequences (prefix, period, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (prefix, period)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq
	`, prefix, day.Format(dayLayout)).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("sequence: postgres upsert: %w", err)
	}
	return Format(prefix, day, seq), nil
}

// MemorySequencer counts in process memory.
type MemorySequencer struct {
	mu       sync.Mutex
	counters map[string]int64
	now      clock
}

// NewMemorySequencer constructs MemorySequencer.
func NewMemorySequencer() *MemorySequencer {
	return &MemorySequencer{counters: make(map[string]int64), now: utcNow}
}

// Next implements Sequencer.
func (s *MemorySequencer) Next(_ context.Context, prefix string) (string, error) {
	if err := checkPrefix(prefix); err != nil {
		return "", err
	}
	day := s.now()
	key := prefix + ":" + day.Format(dayLayout)
	s.mu.Lock()
	s.counters[key]++
	n := s.counters[key]
	s.mu.Unlock()
	return Format(prefix, day, n), nil
}
