package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/persuasion-state/internal/tracker"
)

// #region snapshot-record
// SnapshotRecord is one saved tracker snapshot. Snapshots form a chain
// through ParentID; the active pointer marks the one to restore from.
type SnapshotRecord struct {
	ID          string
	ParentID    string
	TargetCount int
	Snapshot    tracker.Snapshot
	CreatedAt   time.Time
}

// #endregion snapshot-record

// #region commit-snapshot
// CommitSnapshot stores snap as a child of the active snapshot and makes it
// active, atomically.
func (s *Store) CommitSnapshot(snap tracker.Snapshot) (SnapshotRecord, error) {
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("marshal snapshot: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var parent sql.NullString
	err = tx.QueryRow(`SELECT snapshot_id FROM active_snapshot WHERE id = 1`).Scan(&parent)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return SnapshotRecord{}, fmt.Errorf("get active: %w", err)
	}

	rec := SnapshotRecord{
		ID:          uuid.New().String(),
		ParentID:    parent.String,
		TargetCount: len(snap.Targets),
		Snapshot:    snap,
		CreatedAt:   time.Now().UTC(),
	}
	var parentPtr any
	if rec.ParentID != "" {
		parentPtr = rec.ParentID
	}

	_, err = tx.Exec(
		`INSERT INTO snapshots (snapshot_id, parent_id, target_count, snapshot_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID, parentPtr, rec.TargetCount, string(snapJSON), rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("insert snapshot: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_snapshot (id, snapshot_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET snapshot_id = excluded.snapshot_id`,
		rec.ID,
	)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return SnapshotRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// #endregion commit-snapshot

// #region get-snapshot
// ActiveSnapshot reads the snapshot the active pointer names.
func (s *Store) ActiveSnapshot() (SnapshotRecord, error) {
	var id string
	err := s.db.QueryRow(`SELECT snapshot_id FROM active_snapshot WHERE id = 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotRecord{}, fmt.Errorf("get active snapshot: %w", ErrNotFound)
	}
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("get active snapshot: %w", err)
	}
	return s.Snapshot(id)
}

// Snapshot retrieves one snapshot by id.
func (s *Store) Snapshot(id string) (SnapshotRecord, error) {
	row := s.db.QueryRow(
		`SELECT snapshot_id, parent_id, target_count, snapshot_json, created_at
		 FROM snapshots WHERE snapshot_id = ?`, id,
	)
	rec, err := scanSnapshot(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return SnapshotRecord{}, fmt.Errorf("get snapshot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("get snapshot %s: %w", id, err)
	}
	return rec, nil
}

// #endregion get-snapshot

// #region rollback
// Rollback points the active snapshot at an earlier one.
func (s *Store) Rollback(id string) error {
	var exists int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM snapshots WHERE snapshot_id = ?`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check snapshot: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("rollback to %s: %w", id, ErrNotFound)
	}
	if _, err := s.db.Exec(`UPDATE active_snapshot SET snapshot_id = ? WHERE id = 1`, id); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// RestoreActive imports the active snapshot into tr.
func (s *Store) RestoreActive(tr *tracker.Tracker) (SnapshotRecord, error) {
	rec, err := s.ActiveSnapshot()
	if err != nil {
		return SnapshotRecord{}, err
	}
	if err := tr.Import(rec.Snapshot); err != nil {
		return SnapshotRecord{}, fmt.Errorf("restore snapshot %s: %w", rec.ID, err)
	}
	return rec, nil
}

// #endregion rollback

// #region list-snapshots
// ListSnapshots returns the most recent snapshots, newest first.
func (s *Store) ListSnapshots(limit int) ([]SnapshotRecord, error) {
	rows, err := s.db.Query(
		`SELECT snapshot_id, parent_id, target_count, snapshot_json, created_at
		 FROM snapshots ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotRecord
	for rows.Next() {
		rec, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// #endregion list-snapshots

func scanSnapshot(scan func(dest ...any) error) (SnapshotRecord, error) {
	var rec SnapshotRecord
	var parent sql.NullString
	var snapJSON, created string
	if err := scan(&rec.ID, &parent, &rec.TargetCount, &snapJSON, &created); err != nil {
		return SnapshotRecord{}, err
	}
	rec.ParentID = parent.String
	if err := json.Unmarshal([]byte(snapJSON), &rec.Snapshot); err != nil {
		return SnapshotRecord{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return rec, nil
}
