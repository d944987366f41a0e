package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
	"github.com/danielpatrickdp/persuasion-state/internal/tracker"
)

const targetColumns = `record_json`

// #region put
// Put inserts or replaces a target.
func (s *Store) Put(t *tracker.Target) error {
	return s.putTargets([]*tracker.Target{t})
}

// PutAll writes every target in one transaction.
func (s *Store) PutAll(targets []*tracker.Target) error {
	return s.putTargets(targets)
}

// ReplaceAll swaps the whole targets table for targets in one transaction.
func (s *Store) ReplaceAll(targets []*tracker.Target) error {
	return s.writeTargets(targets, true)
}

func (s *Store) putTargets(targets []*tracker.Target) error {
	return s.writeTargets(targets, false)
}

func (s *Store) writeTargets(targets []*tracker.Target, replace bool) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if replace {
		if _, err := tx.Exec(`DELETE FROM targets`); err != nil {
			return fmt.Errorf("clear targets: %w", err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, t := range targets {
		recJSON, err := json.Marshal(tracker.EncodeTarget(t))
		if err != nil {
			return fmt.Errorf("marshal target %s: %w", t.ID, err)
		}
		snap := s.model.Snapshot(t.State)
		var archetype any
		if a, ok := t.Metadata["archetype"].(string); ok && a != "" {
			archetype = a
		}
		_, err = tx.Exec(
			`INSERT INTO targets (id, stage, composite, status, archetype, record_json, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   stage = excluded.stage,
			   composite = excluded.composite,
			   status = excluded.status,
			   archetype = excluded.archetype,
			   record_json = excluded.record_json,
			   updated_at = excluded.updated_at`,
			t.ID, snap.Stage.String(), snap.Composite, string(t.Status), archetype, string(recJSON),
			t.CreatedAt.UTC().Format(time.RFC3339Nano), now,
		)
		if err != nil {
			return fmt.Errorf("upsert target %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// #endregion put

// #region get
// Get loads one target.
func (s *Store) Get(id string) (*tracker.Target, error) {
	var recJSON string
	err := s.db.QueryRow(`SELECT `+targetColumns+` FROM targets WHERE id = ?`, id).Scan(&recJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get target %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get target %s: %w", id, err)
	}
	return decode(recJSON)
}

// Delete removes a target. Deleting an unknown id returns ErrNotFound.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM targets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete target %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete target %s: %w", id, ErrNotFound)
	}
	return nil
}

// #endregion get

// #region queries
// Query narrows Search. Zero fields match everything.
type Query struct {
	Stage        *belief.Stage
	Status       tracker.Status
	Archetype    string
	MinComposite *float64
	MaxComposite *float64
	Limit        int
}

// Search returns matching targets ordered by composite, highest first, then
// by id.
func (s *Store) Search(q Query) ([]*tracker.Target, error) {
	var where []string
	var args []any
	if q.Stage != nil {
		where = append(where, "stage = ?")
		args = append(args, q.Stage.String())
	}
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.Archetype != "" {
		where = append(where, "archetype = ?")
		args = append(args, q.Archetype)
	}
	if q.MinComposite != nil {
		where = append(where, "composite >= ?")
		args = append(args, *q.MinComposite)
	}
	if q.MaxComposite != nil {
		where = append(where, "composite <= ?")
		args = append(args, *q.MaxComposite)
	}

	stmt := `SELECT ` + targetColumns + ` FROM targets`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY composite DESC, id ASC"
	if q.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, q.Limit)
	}
	return s.queryTargets(stmt, args...)
}

// ByStage returns targets stored in stage.
func (s *Store) ByStage(stage belief.Stage) ([]*tracker.Target, error) {
	return s.Search(Query{Stage: &stage})
}

// ByArchetype returns targets whose metadata names archetype.
func (s *Store) ByArchetype(archetype string) ([]*tracker.Target, error) {
	return s.Search(Query{Archetype: archetype})
}

// Prospect is a stored target ranked by composite.
type Prospect struct {
	Target    *tracker.Target
	Composite float64
	Stage     belief.Stage
}

// HotProspects returns up to limit targets that are not converted, highest
// composite first.
func (s *Store) HotProspects(limit int) ([]Prospect, error) {
	stmt := `SELECT ` + targetColumns + ` FROM targets WHERE status != ? ORDER BY composite DESC, id ASC`
	args := []any{string(tracker.StatusConverted)}
	if limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, limit)
	}
	targets, err := s.queryTargets(stmt, args...)
	if err != nil {
		return nil, err
	}
	out := make([]Prospect, len(targets))
	for i, t := range targets {
		snap := s.model.Snapshot(t.State)
		out[i] = Prospect{Target: t, Composite: snap.Composite, Stage: snap.Stage}
	}
	return out, nil
}

// All returns every stored target ordered by id.
func (s *Store) All() ([]*tracker.Target, error) {
	return s.queryTargets(`SELECT ` + targetColumns + ` FROM targets ORDER BY id ASC`)
}

// Export returns every stored target in its persisted form.
func (s *Store) Export() ([]tracker.Record, error) {
	targets, err := s.All()
	if err != nil {
		return nil, err
	}
	out := make([]tracker.Record, len(targets))
	for i, t := range targets {
		out[i] = tracker.EncodeTarget(t)
	}
	return out, nil
}

// #endregion queries

// #region stats
// Stats summarizes the stored targets.
type Stats struct {
	Total            int                    `json:"total"`
	ByStatus         map[tracker.Status]int `json:"byStatus"`
	ByStage          map[string]int         `json:"byStage"`
	AverageComposite float64                `json:"averageComposite"`
}

// Stats counts targets by status and stage.
func (s *Store) Stats() (Stats, error) {
	st := Stats{
		ByStatus: map[tracker.Status]int{
			tracker.StatusNone:      0,
			tracker.StatusPartial:   0,
			tracker.StatusConverted: 0,
		},
		ByStage: map[string]int{},
	}
	rows, err := s.db.Query(`SELECT stage, status, composite FROM targets`)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	var total float64
	for rows.Next() {
		var stage, status string
		var composite float64
		if err := rows.Scan(&stage, &status, &composite); err != nil {
			return Stats{}, fmt.Errorf("scan row: %w", err)
		}
		st.Total++
		st.ByStatus[tracker.Status(status)]++
		st.ByStage[stage]++
		total += composite
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}
	if st.Total > 0 {
		st.AverageComposite = total / float64(st.Total)
	}
	return st, nil
}

// #endregion stats

// #region tracker-sync
// SaveTracker writes every target the tracker holds.
func (s *Store) SaveTracker(tr *tracker.Tracker) error {
	return s.PutAll(tr.Targets())
}

// LoadTracker restores every stored target into tr and returns how many were
// loaded.
func (s *Store) LoadTracker(tr *tracker.Tracker) (int, error) {
	targets, err := s.All()
	if err != nil {
		return 0, err
	}
	for _, t := range targets {
		tr.Restore(t)
	}
	return len(targets), nil
}

// #endregion tracker-sync

// #region helpers
func (s *Store) queryTargets(stmt string, args ...any) ([]*tracker.Target, error) {
	rows, err := s.db.Query(stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	defer rows.Close()

	var out []*tracker.Target
	for rows.Next() {
		var recJSON string
		if err := rows.Scan(&recJSON); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		t, err := decode(recJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func decode(recJSON string) (*tracker.Target, error) {
	var rec tracker.Record
	if err := json.Unmarshal([]byte(recJSON), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal target: %w", err)
	}
	return tracker.DecodeTarget(rec)
}

// #endregion helpers
