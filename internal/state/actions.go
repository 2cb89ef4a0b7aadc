package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Idosegev23/ldrsagent/pkg/models"
)

// ErrActionNotFound indicates the requested pending action does not exist.
var ErrActionNotFound = errors.New("pending action not found")

// ErrActionDecided indicates an approval-state change conflicting with an
// earlier human decision (e.g., approving a rejected action).
var ErrActionDecided = errors.New("action already decided")

// CreatePendingAction inserts a new pending action derived from a job result.
// A zero CreatedAt is stamped with the current time.
func (db *DB) CreatePendingAction(a *models.PendingAction) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := db.Exec(`
		INSERT INTO pending_actions (id, job_id, kind, payload, status, created_at, decided_at, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.JobID, a.Kind, a.Payload, string(a.Status), formatTime(a.CreatedAt),
		nullableTimeString(a.DecidedAt), nullableTimeString(a.ExecutedAt))
	if err != nil {
		return fmt.Errorf("insert pending action: %w", err)
	}
	return nil
}

// GetAction loads a pending action by ID.
func (db *DB) GetAction(id string) (*models.PendingAction, error) {
	row := db.QueryRow(`
		SELECT id, job_id, kind, payload, status, created_at, decided_at, executed_at
		FROM pending_actions WHERE id = ?
	`, id)
	return scanAction(row)
}

// ListActions returns actions filtered by status; an empty status returns all.
func (db *DB) ListActions(status models.ActionStatus) ([]*models.PendingAction, error) {
	query := `
		SELECT id, job_id, kind, payload, status, created_at, decided_at, executed_at
		FROM pending_actions`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.PendingAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// ApproveAction marks a pending action approved. Approval is idempotent:
// approving an already approved or executed action is a no-op. Approving a
// rejected action returns ErrActionDecided.
func (db *DB) ApproveAction(id string) error {
	a, err := db.GetAction(id)
	if err != nil {
		return err
	}
	switch a.Status {
	case models.ActionApproved, models.ActionExecuted:
		return nil
	case models.ActionRejected:
		return fmt.Errorf("approve rejected action %s: %w", id, ErrActionDecided)
	}

	now := formatTime(time.Now())
	res, err := db.Exec(`
		UPDATE pending_actions SET status = ?, decided_at = ?
		WHERE id = ? AND status = ?
	`, string(models.ActionApproved), now, id, string(models.ActionPending))
	if err != nil {
		return fmt.Errorf("approve action: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// Raced with another decision; re-check for idempotency.
		a, err := db.GetAction(id)
		if err != nil {
			return err
		}
		if a.Status == models.ActionApproved || a.Status == models.ActionExecuted {
			return nil
		}
		return fmt.Errorf("approve action %s: %w", id, ErrActionDecided)
	}
	return nil
}

// RejectAction marks a pending action rejected. Rejecting an already
// rejected action is a no-op; rejecting after approval or execution
// returns ErrActionDecided.
func (db *DB) RejectAction(id string) error {
	a, err := db.GetAction(id)
	if err != nil {
		return err
	}
	switch a.Status {
	case models.ActionRejected:
		return nil
	case models.ActionApproved, models.ActionExecuted:
		return fmt.Errorf("reject decided action %s: %w", id, ErrActionDecided)
	}

	now := formatTime(time.Now())
	res, err := db.Exec(`
		UPDATE pending_actions SET status = ?, decided_at = ?
		WHERE id = ? AND status = ?
	`, string(models.ActionRejected), now, id, string(models.ActionPending))
	if err != nil {
		return fmt.Errorf("reject action: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("reject action %s: %w", id, ErrActionDecided)
	}
	return nil
}

// MarkActionExecuted records that an approved action was carried out.
// Marking an already executed action is a no-op.
func (db *DB) MarkActionExecuted(id string) error {
	a, err := db.GetAction(id)
	if err != nil {
		return err
	}
	switch a.Status {
	case models.ActionExecuted:
		return nil
	case models.ActionPending, models.ActionRejected:
		return fmt.Errorf("execute unapproved action %s: %w", id, ErrActionDecided)
	}

	now := formatTime(time.Now())
	_, err = db.Exec(`
		UPDATE pending_actions SET status = ?, executed_at = ?
		WHERE id = ? AND status = ?
	`, string(models.ActionExecuted), now, id, string(models.ActionApproved))
	if err != nil {
		return fmt.Errorf("mark action executed: %w", err)
	}
	return nil
}

// scanAction reads one pending action row.
func scanAction(row scanner) (*models.PendingAction, error) {
	var a models.PendingAction
	var status, createdAt string
	var decidedAt, executedAt sql.NullString

	err := row.Scan(&a.ID, &a.JobID, &a.Kind, &a.Payload, &status, &createdAt, &decidedAt, &executedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrActionNotFound
		}
		return nil, fmt.Errorf("scan pending action: %w", err)
	}

	a.Status = models.ActionStatus(status)
	if t, err := parseTime(createdAt); err == nil {
		a.CreatedAt = t
	}
	a.DecidedAt = parseNullableTime(decidedAt)
	a.ExecutedAt = parseNullableTime(executedAt)
	return &a, nil
}
