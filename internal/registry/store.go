package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/giantswarm/redislite/internal/server"
)

// Entry is the persisted record of one running instance.
type Entry struct {
	Target     string
	InstanceID string
	PID        int
	Endpoint   string
	WorkDir    string
	ConfigPath string
	PIDPath    string
	Refcount   int
	StartedAt  time.Time
	LastSeen   time.Time
}

func (e Entry) record() server.Record {
	return server.Record{
		ID:         e.InstanceID,
		Target:     e.Target,
		PID:        e.PID,
		Endpoint:   e.Endpoint,
		WorkDir:    e.WorkDir,
		ConfigPath: e.ConfigPath,
		PIDPath:    e.PIDPath,
		StartedAt:  e.StartedAt,
	}
}

const entryColumns = `target_path, instance_id, pid, endpoint, work_dir, config_path,
	pid_path, refcount, started_at, last_seen`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e                   Entry
		startedAt, lastSeen int64
	)
	err := row.Scan(&e.Target, &e.InstanceID, &e.PID, &e.Endpoint, &e.WorkDir,
		&e.ConfigPath, &e.PIDPath, &e.Refcount, &startedAt, &lastSeen)
	if err != nil {
		return Entry{}, err
	}
	e.StartedAt = time.Unix(0, startedAt)
	e.LastSeen = time.Unix(0, lastSeen)
	return e, nil
}

func lookup(ctx context.Context, db *sql.DB, target string) (Entry, bool, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM instances WHERE target_path = ?`, target)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("lookup %s: %w", target, err)
	}
	return e, true, nil
}

func entries(ctx context.Context, db *sql.DB) ([]Entry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM instances ORDER BY target_path`)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// inTx runs fn in a transaction, committing on success.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *Registry) insertEntry(ctx context.Context, inst *server.Instance, h Handle) error {
	now := time.Now().UnixNano()
	rec := inst.Record()
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO instances (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			rec.Target, rec.ID, rec.PID, rec.Endpoint, rec.WorkDir,
			rec.ConfigPath, rec.PIDPath, rec.StartedAt.UnixNano(), now)
		if err != nil {
			return fmt.Errorf("insert instance: %w", err)
		}
		return insertHolder(ctx, tx, h, r.ownerPID, now)
	})
}

func insertHolder(ctx context.Context, tx *sql.Tx, h Handle, ownerPID int, now int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO holders (handle_id, target_path, owner_pid, attached_at) VALUES (?, ?, ?, ?)`,
		h.ID, h.Target, ownerPID, now)
	if err != nil {
		return fmt.Errorf("insert holder: %w", err)
	}
	return nil
}

// addHolder records h and increments the refcount of its target.
func (r *Registry) addHolder(ctx context.Context, h Handle) error {
	now := time.Now().UnixNano()
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE instances SET refcount = refcount + 1, last_seen = ? WHERE target_path = ?`,
			now, h.Target)
		if err != nil {
			return fmt.Errorf("increment refcount: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("increment refcount: no entry for %s", h.Target)
		}
		return insertHolder(ctx, tx, h, r.ownerPID, now)
	})
}

// removeHolder deletes one holder and decrements the refcount. The caller
// has checked that the refcount stays positive.
func (r *Registry) removeHolder(ctx context.Context, handleID, target string) error {
	return inTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM holders WHERE handle_id = ?`, handleID)
		if err != nil {
			return fmt.Errorf("delete holder: %w", err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("handle %s: %w", handleID, ErrDoubleRelease)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE instances SET refcount = refcount - 1, last_seen = ? WHERE target_path = ?`,
			time.Now().UnixNano(), target)
		if err != nil {
			return fmt.Errorf("decrement refcount: %w", err)
		}
		return nil
	})
}

// deleteEntry removes the entry for target together with its holders.
func deleteEntry(ctx context.Context, db *sql.DB, target string) error {
	return inTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM holders WHERE target_path = ?`, target); err != nil {
			return fmt.Errorf("delete holders: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM instances WHERE target_path = ?`, target); err != nil {
			return fmt.Errorf("delete instance: %w", err)
		}
		return nil
	})
}

func deleteHolder(ctx context.Context, db *sql.DB, handleID string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM holders WHERE handle_id = ?`, handleID); err != nil {
		return fmt.Errorf("delete holder: %w", err)
	}
	return nil
}

func holderTarget(ctx context.Context, db *sql.DB, handleID string) (string, bool, error) {
	var target string
	err := db.QueryRowContext(ctx,
		`SELECT target_path FROM holders WHERE handle_id = ?`, handleID).Scan(&target)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup holder: %w", err)
	}
	return target, true, nil
}

func holderOwners(ctx context.Context, db *sql.DB) ([]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT owner_pid FROM holders`)
	if err != nil {
		return nil, fmt.Errorf("list holder owners: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []int
	for rows.Next() {
		var pid int
		if err := rows.Scan(&pid); err != nil {
			return nil, err
		}
		out = append(out, pid)
	}
	return out, rows.Err()
}

type holderRow struct {
	id     string
	target string
}

func holdersOf(ctx context.Context, db *sql.DB, ownerPID int) ([]holderRow, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT handle_id, target_path FROM holders WHERE owner_pid = ? ORDER BY attached_at`, ownerPID)
	if err != nil {
		return nil, fmt.Errorf("list holders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []holderRow
	for rows.Next() {
		var h holderRow
		if err := rows.Scan(&h.id, &h.target); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
