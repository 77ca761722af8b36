// Package journal records tuple space events in a SQLite database.
//
// The journal is an audit trail, not a persistence layer: the space never reads
// it back. It is a space.EventSink, so entries arrive from the event pool and a
// dropped event is also missing from the journal.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dyluth/tuplespace/pkg/bridge"
	"github.com/dyluth/tuplespace/pkg/space"

	_ "modernc.org/sqlite"
)

// Journal appends space events to a SQLite table.
type Journal struct {
	db *sql.DB
}

var _ space.EventSink = (*Journal)(nil)

// Entry is one journaled event with its sequence number.
type Entry struct {
	Seq        int64       `json:"seq"`
	Event      space.Event `json:"event"`
	RecordedAt time.Time   `json:"recorded_at"`
}

// Open opens (or creates) the journal database at path and initializes the
// schema.
func Open(path string) (*Journal, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return j, nil
}

// Close closes the database.
func (j *Journal) Close() error { return j.db.Close() }

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		kind        TEXT NOT NULL,
		tag         TEXT NOT NULL,
		tuple_id    INTEGER NOT NULL,
		live_until  INTEGER NOT NULL,
		properties  TEXT NOT NULL,
		origin      TEXT NOT NULL,
		at_ms       INTEGER NOT NULL,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tuple ON events(tuple_id, seq);
	CREATE INDEX IF NOT EXISTS idx_events_tag ON events(tag, seq);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Publish appends ev to the journal.
func (j *Journal) Publish(ctx context.Context, ev space.Event) error {
	if err := ev.Kind.Validate(); err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}
	props, err := json.Marshal(ev.Properties)
	if err != nil {
		return fmt.Errorf("marshal properties: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	return retryOnContention(func() error {
		_, err := j.db.ExecContext(ctx,
			`INSERT INTO events (kind, tag, tuple_id, live_until, properties, origin, at_ms, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			string(ev.Kind), ev.Tag, int64(ev.TupleID), ev.LiveUntil, string(props), ev.Origin, ev.At, now,
		)
		return err
	})
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	SinceSeq int64
	Tag      string
	TupleID  uint64
	FromMs   int64
	UntilMs  int64
	Limit    int
}

// List returns entries after f.SinceSeq in sequence order.
func (j *Journal) List(ctx context.Context, f Filter) ([]Entry, error) {
	query := `SELECT seq, kind, tag, tuple_id, live_until, properties, origin, at_ms, recorded_at
		FROM events WHERE seq > ?`
	args := []any{f.SinceSeq}
	if f.Tag != "" {
		query += ` AND tag = ?`
		args = append(args, f.Tag)
	}
	if f.TupleID != 0 {
		query += ` AND tuple_id = ?`
		args = append(args, int64(f.TupleID))
	}
	if f.FromMs > 0 {
		query += ` AND at_ms >= ?`
		args = append(args, f.FromMs)
	}
	if f.UntilMs > 0 {
		query += ` AND at_ms < ?`
		args = append(args, f.UntilMs)
	}
	query += ` ORDER BY seq`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// Count returns the number of journaled events.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count journal: %w", err)
	}
	return n, nil
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var (
		e          Entry
		kind       string
		tupleID    int64
		props      string
		recordedAt string
	)
	err := rows.Scan(&e.Seq, &kind, &e.Event.Tag, &tupleID, &e.Event.LiveUntil, &props,
		&e.Event.Origin, &e.Event.At, &recordedAt)
	if err != nil {
		return nil, fmt.Errorf("scan journal entry: %w", err)
	}

	e.Event.Kind = space.EventKind(kind)
	e.Event.TupleID = uint64(tupleID)
	e.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)

	e.Event.Properties, err = bridge.DecodeProperties([]byte(props))
	if err != nil {
		return nil, fmt.Errorf("decode properties of entry %d: %w", e.Seq, err)
	}
	return &e, nil
}
