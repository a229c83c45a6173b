package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS performance_records (
	id BIGSERIAL PRIMARY KEY,
	process_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	source TEXT,
	text TEXT,
	audio_format TEXT,
	cached INTEGER,
	elapsed DOUBLE PRECISION
)`

// PostgresRecorder appends performance records to PostgreSQL from a single
// background worker goroutine, decoupling recording latency from the
// request path. A failed insert is retried once before the record is
// dropped; a dropped record never takes the worker down.
type PostgresRecorder struct {
	pool  *pgxpool.Pool
	queue chan Record
	done  chan struct{}
}

func NewPostgresRecorder(ctx context.Context, pool *pgxpool.Pool) (*PostgresRecorder, error) {
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("init performance_records table: %w", err)
	}

	r := &PostgresRecorder{
		pool:  pool,
		queue: make(chan Record, 1024),
		done:  make(chan struct{}),
	}
	go r.worker()
	return r, nil
}

// Record enqueues without blocking; if the worker has fallen far behind the
// record is dropped rather than stalling a response stream.
func (r *PostgresRecorder) Record(rec Record) {
	select {
	case r.queue <- rec:
	default:
		slog.Warn("performance record queue full, dropping record", "process_id", rec.ProcessID)
	}
}

// Close drains pending records before returning. Record must not be called
// after Close.
func (r *PostgresRecorder) Close() {
	close(r.queue)
	<-r.done
}

func (r *PostgresRecorder) worker() {
	defer close(r.done)
	for rec := range r.queue {
		if err := r.insert(rec); err != nil {
			slog.Warn("performance record insert failed, retrying", "error", err)
			if err := r.insert(rec); err != nil {
				slog.Error("performance record dropped", "process_id", rec.ProcessID, "error", err)
			}
		}
	}
}

func (r *PostgresRecorder) insert(rec Record) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cached := 0
	if rec.Cached {
		cached = 1
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO performance_records (process_id, created_at, source, text, audio_format, cached, elapsed)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ProcessID, time.Now().UTC(), rec.Source, rec.Text, rec.AudioFormat, cached, rec.Elapsed.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("insert performance record: %w", err)
	}
	return nil
}
