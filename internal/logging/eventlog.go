package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/persuasion-state/internal/events"
)

const (
	// DefaultBufferSize is how many events are held before a forced flush.
	DefaultBufferSize = 100
	// DefaultFlushInterval is the background flush period.
	DefaultFlushInterval = 10 * time.Second
)

// #region schema
const eventSchema = `
CREATE TABLE IF NOT EXISTS event_log (
	event_id     TEXT PRIMARY KEY,
	event_type   TEXT NOT NULL,
	target_id    TEXT,
	payload_json TEXT,
	created_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_event_log_created ON event_log(created_at);
CREATE INDEX IF NOT EXISTS idx_event_log_target ON event_log(target_id);
`

// #endregion schema

// #region entry
// Entry is one persisted event. Payload is the event body as stored.
type Entry struct {
	ID        string          `json:"id"`
	Type      events.Type     `json:"type"`
	TargetID  string          `json:"targetId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// #endregion entry

// #region event-log
// EventLog buffers bus events and writes them to SQLite in batches. It is
// safe for concurrent use.
type EventLog struct {
	db       *sql.DB
	logger   *zap.Logger
	size     int
	interval time.Duration

	mu     sync.Mutex
	buffer []Entry

	started  sync.Once
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// EventLogOption configures an EventLog.
type EventLogOption func(*EventLog)

// WithBufferSize sets the forced flush threshold.
func WithBufferSize(n int) EventLogOption {
	return func(l *EventLog) {
		if n > 0 {
			l.size = n
		}
	}
}

// WithFlushInterval sets the background flush period.
func WithFlushInterval(d time.Duration) EventLogOption {
	return func(l *EventLog) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithLogger reports flush failures.
func WithLogger(lg *zap.Logger) EventLogOption {
	return func(l *EventLog) {
		if lg != nil {
			l.logger = lg.Named("eventlog")
		}
	}
}

// NewEventLog creates the event_log table in db if needed. Call Start to
// flush in the background and Close to stop and drain.
func NewEventLog(db *sql.DB, opts ...EventLogOption) (*EventLog, error) {
	if _, err := db.Exec(eventSchema); err != nil {
		return nil, fmt.Errorf("migrate event log: %w", err)
	}
	l := &EventLog{
		db:       db,
		logger:   zap.NewNop(),
		size:     DefaultBufferSize,
		interval: DefaultFlushInterval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Start runs the periodic flush loop until Close. Later calls are no-ops.
func (l *EventLog) Start() {
	l.started.Do(l.run)
}

func (l *EventLog) run() {
	go func() {
		defer close(l.done)
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := l.Flush(); err != nil {
					l.logger.Warn("periodic flush failed", zap.Error(err))
				}
			case <-l.stopCh:
				return
			}
		}
	}()
}

// Close stops the flush loop, if started, and writes what is buffered.
func (l *EventLog) Close() error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		// a loop that never started must not be waited on
		l.started.Do(func() { close(l.done) })
		<-l.done
	})
	return l.Flush()
}

// Attach subscribes the log to every event on bus. The returned function
// detaches it.
func (l *EventLog) Attach(bus *events.Bus) (detach func()) {
	return bus.Subscribe(func(e events.Event) {
		if err := l.Log(e); err != nil {
			l.logger.Warn("event log write failed", zap.String("event", e.ID), zap.Error(err))
		}
	})
}

// #endregion event-log

// #region write
// Log buffers e and flushes when the buffer is full.
func (l *EventLog) Log(e events.Event) error {
	entry := Entry{ID: e.ID, Type: e.Type, TargetID: e.TargetID, Timestamp: e.Timestamp}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload of %s: %w", e.Type, err)
		}
		entry.Payload = raw
	}

	l.mu.Lock()
	l.buffer = append(l.buffer, entry)
	full := len(l.buffer) >= l.size
	l.mu.Unlock()

	if full {
		return l.Flush()
	}
	return nil
}

// Flush writes every buffered entry in one transaction. On failure the
// entries are put back at the front of the buffer.
func (l *EventLog) Flush() error {
	l.mu.Lock()
	pending := l.buffer
	l.buffer = nil
	l.mu.Unlock()
	if len(pending) == 0 {
		return nil
	}

	if err := l.write(pending); err != nil {
		l.mu.Lock()
		l.buffer = append(pending, l.buffer...)
		l.mu.Unlock()
		return err
	}
	return nil
}

func (l *EventLog) write(entries []Entry) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO event_log (event_id, event_type, target_id, payload_json, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			e.ID, string(e.Type), nullIfEmpty(e.TargetID), nullIfEmpty(string(e.Payload)), e.Timestamp.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("log event %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// Buffered reports how many entries wait for the next flush.
func (l *EventLog) Buffered() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buffer)
}

// #endregion write

// #region read
// Query filters stored events. Zero fields match everything.
type Query struct {
	Type     events.Type
	TargetID string
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}

// Query flushes, then returns matching events newest first.
func (l *EventLog) Query(q Query) ([]Entry, error) {
	if err := l.Flush(); err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if q.Type != "" {
		where = append(where, "event_type = ?")
		args = append(args, string(q.Type))
	}
	if q.TargetID != "" {
		where = append(where, "target_id = ?")
		args = append(args, q.TargetID)
	}
	if !q.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	if !q.Until.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, q.Until.UnixMilli())
	}

	stmt := `SELECT event_id, event_type, target_id, payload_json, created_at FROM event_log`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY created_at DESC, rowid DESC"
	if q.Limit > 0 || q.Offset > 0 {
		limit := q.Limit
		if limit <= 0 {
			limit = -1
		}
		stmt += " LIMIT ? OFFSET ?"
		args = append(args, limit, q.Offset)
	}

	rows, err := l.db.Query(stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var typ string
		var target, payload sql.NullString
		var ms int64
		if err := rows.Scan(&e.ID, &typ, &target, &payload, &ms); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		e.Type = events.Type(typ)
		e.TargetID = target.String
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		e.Timestamp = time.UnixMilli(ms).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats counts stored events by type and target.
type Stats struct {
	Total    int                 `json:"total"`
	ByType   map[events.Type]int `json:"byType"`
	ByTarget map[string]int      `json:"byTarget"`
	Earliest time.Time           `json:"earliest"`
	Latest   time.Time           `json:"latest"`
}

// Stats summarizes the events matching q.
func (l *EventLog) Stats(q Query) (Stats, error) {
	entries, err := l.Query(q)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Total: len(entries), ByType: map[events.Type]int{}, ByTarget: map[string]int{}}
	for _, e := range entries {
		st.ByType[e.Type]++
		if e.TargetID != "" {
			st.ByTarget[e.TargetID]++
		}
		if st.Earliest.IsZero() || e.Timestamp.Before(st.Earliest) {
			st.Earliest = e.Timestamp
		}
		if e.Timestamp.After(st.Latest) {
			st.Latest = e.Timestamp
		}
	}
	return st, nil
}

// Bucket is one slot of a Timeline.
type Bucket struct {
	Start time.Time           `json:"timestamp"`
	Count int                 `json:"count"`
	Types map[events.Type]int `json:"types"`
}

// Timeline groups events since the given time into fixed-width buckets,
// oldest first. An empty targetID covers every target. Timestamps are stored
// in milliseconds, so width must be at least one millisecond.
func (l *EventLog) Timeline(targetID string, since time.Time, width time.Duration) ([]Bucket, error) {
	if width < time.Millisecond {
		return nil, fmt.Errorf("timeline: bucket width %s is below one millisecond", width)
	}
	entries, err := l.Query(Query{TargetID: targetID, Since: since})
	if err != nil {
		return nil, err
	}
	buckets := map[int64]*Bucket{}
	for _, e := range entries {
		key := e.Timestamp.UnixMilli() / width.Milliseconds() * width.Milliseconds()
		b, ok := buckets[key]
		if !ok {
			b = &Bucket{Start: time.UnixMilli(key).UTC(), Types: map[events.Type]int{}}
			buckets[key] = b
		}
		b.Count++
		b.Types[e.Type]++
	}
	out := make([]Bucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// Prune deletes stored events older than before and returns how many went.
func (l *EventLog) Prune(before time.Time) (int64, error) {
	if err := l.Flush(); err != nil {
		return 0, err
	}
	res, err := l.db.Exec(`DELETE FROM event_log WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}

// #endregion read

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
