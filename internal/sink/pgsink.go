package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"regexp"
	"time"

	_ "github.com/lib/pq"

	"github.com/shortontech/netlens/internal/report"
)

// tableNamePattern matches a plain Postgres identifier (63-byte limit).
var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

// validateTableName guards the one place a name is interpolated into SQL.
func validateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// PGSink batches detection reports into a Postgres table. Enqueue pushes
// onto a buffered channel; a background worker flushes on size or interval.
type PGSink struct {
	dsn       string
	table     string
	batchSize int
	interval  time.Duration

	db    *sql.DB
	queue chan report.Report
	done  chan struct{}
}

// NewPGSinkFromEnv creates a PGSink from environment variables.
func NewPGSinkFromEnv() *PGSink {
	return NewPGSink(
		os.Getenv("PG_DSN"),
		getEnvOr("PG_TABLE", "detections"),
	)
}

// NewPGSink creates a PGSink with explicit configuration.
func NewPGSink(dsn, table string) *PGSink {
	return &PGSink{
		dsn:       dsn,
		table:     table,
		batchSize: 100,
		interval:  2 * time.Second,
		queue:     make(chan report.Report, 1024),
		done:      make(chan struct{}),
	}
}

func (s *PGSink) Name() string { return "postgres" }

func (s *PGSink) Start(ctx context.Context) error {
	if err := validateTableName(s.table); err != nil {
		return err
	}
	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return fmt.Errorf("pg: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("pg: ping: %w", err)
	}
	s.db = db

	if err := s.ensureTable(ctx); err != nil {
		db.Close()
		return err
	}

	go s.run(ctx)
	return nil
}

func (s *PGSink) ensureTable(ctx context.Context) error {
	// Table name is validated in Start.
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		report_id       uuid PRIMARY KEY,
		ts              timestamptz NOT NULL,
		candidate_ip    text NOT NULL,
		connection_type text NOT NULL,
		confidence      text NOT NULL,
		score           integer NOT NULL,
		is_tor          boolean NOT NULL,
		payload         jsonb NOT NULL
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("pg: create table: %w", err)
	}
	return nil
}

// Enqueue buffers a report for the next flush. Returns an error when the
// buffer is full rather than blocking the request path.
func (s *PGSink) Enqueue(r report.Report) error {
	if s.db == nil {
		return fmt.Errorf("pg sink not started")
	}
	select {
	case s.queue <- r:
		return nil
	default:
		return fmt.Errorf("pg sink queue full")
	}
}

// Depth reports how many reports are waiting to be flushed.
func (s *PGSink) Depth() int { return len(s.queue) }

func (s *PGSink) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	batch := make([]report.Report, 0, s.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.insertBatch(ctx, batch); err != nil {
			log.Printf("pg: flush of %d reports failed: %v", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			close(s.done)
			return
		case r := <-s.queue:
			batch = append(batch, r)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (s *PGSink) insertBatch(ctx context.Context, batch []report.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (report_id, ts, candidate_ip, connection_type, confidence, score, is_tor, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (report_id) DO NOTHING`, s.table))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range batch {
		payload, err := json.Marshal(r)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			r.ReportID,
			r.TS,
			r.Client.CandidateIP,
			string(r.Verdict.ConnectionType),
			string(r.Verdict.Confidence),
			r.Verdict.Score,
			r.Verdict.IsTorNetwork,
			payload,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *PGSink) Close() error {
	if s.db == nil {
		return nil
	}
	// Give the worker a moment to flush what the context cancel left behind.
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
	}
	return s.db.Close()
}
