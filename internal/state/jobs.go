package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Idosegev23/ldrsagent/pkg/models"
)

// ErrJobNotFound indicates the requested job does not exist.
var ErrJobNotFound = errors.New("job not found")

// ErrInvalidTransition indicates a status change that is not on the
// forward-only transition graph, or that lost a compare-and-set race.
var ErrInvalidTransition = errors.New("invalid status transition")

// CreateJob inserts a new job record. Zero creation timestamps are stamped
// with the current time; ClaimNext orders on created_at, so it must be real.
func (db *DB) CreateJob(job *models.Job) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = now
	}

	intentJSON, err := marshalNullable(job.Intent)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	packJSON, err := marshalNullable(job.KnowledgePack)
	if err != nil {
		return fmt.Errorf("marshal knowledge pack: %w", err)
	}
	resultJSON, err := marshalNullable(job.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	validationJSON, err := marshalNullable(job.ValidationResult)
	if err != nil {
		return fmt.Errorf("marshal validation result: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO jobs (id, status, raw_input, client_id, user_id, intent, knowledge_pack,
			assigned_capability, parent_job_id, retry_count, result, validation_result,
			created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, string(job.Status), job.RawInput, job.ClientID, job.UserID,
		intentJSON, packJSON, job.AssignedCapability, job.ParentJobID, job.RetryCount,
		resultJSON, validationJSON, formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
		nullableTimeString(job.CompletedAt))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob loads a job by ID, including its memory log.
func (db *DB) GetJob(id string) (*models.Job, error) {
	row := db.QueryRow(`
		SELECT id, status, raw_input, client_id, user_id, intent, knowledge_pack,
			assigned_capability, parent_job_id, retry_count, result, validation_result,
			created_at, updated_at, completed_at
		FROM jobs WHERE id = ?
	`, id)

	job, err := scanJob(row)
	if err != nil {
		return nil, err
	}

	memory, err := db.jobMemory(id)
	if err != nil {
		return nil, err
	}
	job.Memory = memory
	return job, nil
}

// UpdateJob persists the mutable fields of a job record.
// The status column is written as-is; use Transition for guarded status changes.
func (db *DB) UpdateJob(job *models.Job) error {
	intentJSON, err := marshalNullable(job.Intent)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	packJSON, err := marshalNullable(job.KnowledgePack)
	if err != nil {
		return fmt.Errorf("marshal knowledge pack: %w", err)
	}
	resultJSON, err := marshalNullable(job.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	validationJSON, err := marshalNullable(job.ValidationResult)
	if err != nil {
		return fmt.Errorf("marshal validation result: %w", err)
	}

	job.UpdatedAt = time.Now()
	res, err := db.Exec(`
		UPDATE jobs SET status = ?, intent = ?, knowledge_pack = ?, assigned_capability = ?,
			retry_count = ?, result = ?, validation_result = ?, updated_at = ?, completed_at = ?
		WHERE id = ?
	`, string(job.Status), intentJSON, packJSON, job.AssignedCapability,
		job.RetryCount, resultJSON, validationJSON, formatTime(job.UpdatedAt),
		nullableTimeString(job.CompletedAt), job.ID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

// ClaimNext atomically claims the oldest queued job and marks it running.
// The claim is a single guarded UPDATE so that two concurrent workers can
// never claim the same job. Returns nil without error when nothing is queued.
// Blocked jobs are never claimable.
func (db *DB) ClaimNext() (*models.Job, error) {
	now := formatTime(time.Now())

	// The claim is a write, so it takes the write lock even though it goes
	// through QueryRow for the RETURNING clause.
	db.mu.Lock()
	row := db.conn.QueryRow(`
		UPDATE jobs SET status = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM jobs WHERE status = ? ORDER BY created_at, id LIMIT 1
		) AND status = ?
		RETURNING id
	`, string(models.JobStatusRunning), now,
		string(models.JobStatusQueued), string(models.JobStatusQueued))

	var id string
	err := row.Scan(&id)
	db.mu.Unlock()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim next job: %w", err)
	}

	return db.GetJob(id)
}

// Transition moves a job from one status to another with a compare-and-set
// guard. The transition must be on the forward-only graph and the stored
// status must still equal from, otherwise ErrInvalidTransition is returned.
func (db *DB) Transition(id string, from, to models.JobStatus) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}

	now := time.Now()
	completed := sql.NullString{}
	if to.Terminal() {
		completed = sql.NullString{String: formatTime(now), Valid: true}
	}

	res, err := db.Exec(`
		UPDATE jobs SET status = ?, updated_at = ?,
			completed_at = COALESCE(?, completed_at)
		WHERE id = ? AND status = ?
	`, string(to), formatTime(now), completed, id, string(from))
	if err != nil {
		return fmt.Errorf("transition job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// Either the job is gone or someone moved it first.
		if _, getErr := db.GetJob(id); errors.Is(getErr, ErrJobNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("%s -> %s raced: %w", from, to, ErrInvalidTransition)
	}
	return nil
}

// AppendMemory records one stage audit entry for a job.
// Memory writes are best-effort for callers: they return errors but callers
// are expected to log and continue rather than fail the job.
func (db *DB) AppendMemory(jobID string, entry models.MemoryEntry) error {
	_, err := db.Exec(`
		INSERT INTO job_memory (job_id, stage, message, at) VALUES (?, ?, ?, ?)
	`, jobID, entry.Stage, entry.Message, formatTime(entry.At))
	if err != nil {
		return fmt.Errorf("append memory: %w", err)
	}
	return nil
}

// jobMemory loads the ordered memory log for a job.
func (db *DB) jobMemory(jobID string) ([]models.MemoryEntry, error) {
	rows, err := db.Query(`
		SELECT stage, message, at FROM job_memory WHERE job_id = ? ORDER BY seq
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("query memory: %w", err)
	}
	defer rows.Close()

	var entries []models.MemoryEntry
	for rows.Next() {
		var e models.MemoryEntry
		var at string
		if err := rows.Scan(&e.Stage, &e.Message, &at); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		if t, err := parseTime(at); err == nil {
			e.At = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListJobs returns jobs filtered by status; an empty status returns all jobs.
func (db *DB) ListJobs(status models.JobStatus) ([]*models.Job, error) {
	query := `
		SELECT id, status, raw_input, client_id, user_id, intent, knowledge_pack,
			assigned_capability, parent_job_id, retry_count, result, validation_result,
			created_at, updated_at, completed_at
		FROM jobs`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// ChildJobs returns the jobs spawned by the given parent.
func (db *DB) ChildJobs(parentID string) ([]*models.Job, error) {
	rows, err := db.Query(`
		SELECT id, status, raw_input, client_id, user_id, intent, knowledge_pack,
			assigned_capability, parent_job_id, retry_count, result, validation_result,
			created_at, updated_at, completed_at
		FROM jobs WHERE parent_job_id = ? ORDER BY created_at
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list child jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows for scanJob.
type scanner interface {
	Scan(dest ...any) error
}

// scanJob reads one job row.
func scanJob(row scanner) (*models.Job, error) {
	var job models.Job
	var status string
	var clientID, userID, assignedCapability, parentJobID sql.NullString
	var intentJSON, packJSON, resultJSON, validationJSON sql.NullString
	var createdAt, updatedAt string
	var completedAt sql.NullString

	err := row.Scan(&job.ID, &status, &job.RawInput, &clientID, &userID,
		&intentJSON, &packJSON, &assignedCapability, &parentJobID, &job.RetryCount,
		&resultJSON, &validationJSON, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.Status = models.JobStatus(status)
	job.ClientID = clientID.String
	job.UserID = userID.String
	job.AssignedCapability = assignedCapability.String
	job.ParentJobID = parentJobID.String

	if err := unmarshalNullable(intentJSON, &job.Intent); err != nil {
		return nil, fmt.Errorf("unmarshal intent: %w", err)
	}
	if err := unmarshalNullable(packJSON, &job.KnowledgePack); err != nil {
		return nil, fmt.Errorf("unmarshal knowledge pack: %w", err)
	}
	if err := unmarshalNullable(resultJSON, &job.Result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	if err := unmarshalNullable(validationJSON, &job.ValidationResult); err != nil {
		return nil, fmt.Errorf("unmarshal validation result: %w", err)
	}

	if t, err := parseTime(createdAt); err == nil {
		job.CreatedAt = t
	}
	if t, err := parseTime(updatedAt); err == nil {
		job.UpdatedAt = t
	}
	job.CompletedAt = parseNullableTime(completedAt)

	return &job, nil
}

// marshalNullable marshals a pointer value to JSON, returning a NULL for nil.
func marshalNullable(v any) (sql.NullString, error) {
	if isNilPointer(v) {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// unmarshalNullable unmarshals a JSON column into target, leaving it nil for NULL.
func unmarshalNullable[T any](s sql.NullString, target **T) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	var v T
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return err
	}
	*target = &v
	return nil
}

// isNilPointer reports whether v is a typed nil pointer.
func isNilPointer(v any) bool {
	switch p := v.(type) {
	case *models.Intent:
		return p == nil
	case *models.KnowledgePack:
		return p == nil
	case *models.Result:
		return p == nil
	case *models.ValidationResult:
		return p == nil
	default:
		return v == nil
	}
}

// nullableTimeString converts an optional time to a nullable SQLite value.
func nullableTimeString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
