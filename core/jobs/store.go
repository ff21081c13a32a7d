package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/halcyonlabs/repgraph/core/graph"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidJobType    = errors.New("invalid job type")
	ErrMissingTarget     = errors.New("job type requires a target")
	ErrUnexpectedTarget  = errors.New("full jobs do not take a target")
	ErrDuplicateActiveJob = errors.New("an active job already exists for this target")
	ErrInvalidTransition = errors.New("job is not in the expected state")
)

// JobStore persists computation jobs. The single-active-job-per-target
// rule is a partial UNIQUE index over queued/running rows, so the claim
// on submission is atomic at the storage layer: two racing submitters
// cannot both win.
type JobStore struct {
	db *graph.DB
}

// NewJobStore creates a JobStore backed by the shared graph database.
func NewJobStore(db *graph.DB) *JobStore {
	return &JobStore{db: db}
}

// Create inserts a new Queued job. Returns ErrDuplicateActiveJob when a
// queued or running job for the same (type, target) already exists.
func (js *JobStore) Create(jobType JobType, target string, parameters map[string]any) (*Job, error) {
	if !jobType.IsValid() {
		return nil, ErrInvalidJobType
	}
	if jobType.NeedsTarget() && target == "" {
		return nil, ErrMissingTarget
	}
	if !jobType.NeedsTarget() && target != "" {
		return nil, ErrUnexpectedTarget
	}

	job := &Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Target:     target,
		Status:     StatusQueued,
		Parameters: parameters,
		CreatedAt:  time.Now().UTC(),
	}

	params, err := json.Marshal(parameters)
	if err != nil {
		return nil, fmt.Errorf("marshal job parameters: %w", err)
	}

	_, err = js.db.DB().Exec(`
		INSERT INTO jobs (id, job_type, target, status, parameters, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, job.ID, job.Type, job.Target, job.Status, string(params),
		job.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: type=%s target=%q", ErrDuplicateActiveJob, jobType, target)
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return job, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// Get returns the job with the given ID.
func (js *JobStore) Get(id string) (*Job, error) {
	row := js.db.DB().QueryRow(jobSelect+" WHERE id = ?", id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	return job, err
}

// List returns jobs, newest first, optionally filtered by status.
// A limit of 0 means no limit.
func (js *JobStore) List(status JobStatus, limit int) ([]*Job, error) {
	query := jobSelect
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC, id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := js.db.DB().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobList []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobList = append(jobList, job)
	}
	return jobList, rows.Err()
}

// MarkRunning transitions a Queued job to Running. The guard on the
// previous status makes the transition a compare-and-swap: a job that
// already left Queued stays untouched and ErrInvalidTransition is
// returned.
func (js *JobStore) MarkRunning(id string, startedAt time.Time) error {
	result, err := js.db.DB().Exec(`
		UPDATE jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?
	`, StatusRunning, startedAt.UTC().Format(time.RFC3339Nano), id, StatusQueued)
	if err != nil {
		return fmt.Errorf("mark job %s running: %w", id, err)
	}
	return checkTransition(js, result, id)
}

// Complete transitions a Running job to Completed with its result.
func (js *JobStore) Complete(id string, jobResult *JobResult, completedAt time.Time) error {
	resultJSON, err := json.Marshal(jobResult)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}

	result, err := js.db.DB().Exec(`
		UPDATE jobs SET status = ?, result = ?, completed_at = ? WHERE id = ? AND status = ?
	`, StatusCompleted, string(resultJSON), completedAt.UTC().Format(time.RFC3339Nano), id, StatusRunning)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return checkTransition(js, result, id)
}

// Fail transitions a Running job to Failed with its error record and
// whatever partial result was accumulated.
func (js *JobStore) Fail(id string, jobErr *JobError, partial *JobResult, completedAt time.Time) error {
	errJSON, err := json.Marshal(jobErr)
	if err != nil {
		return fmt.Errorf("marshal job error: %w", err)
	}
	var resultJSON any
	if partial != nil {
		data, err := json.Marshal(partial)
		if err != nil {
			return fmt.Errorf("marshal partial result: %w", err)
		}
		resultJSON = string(data)
	}

	result, err := js.db.DB().Exec(`
		UPDATE jobs SET status = ?, error = ?, result = ?, completed_at = ? WHERE id = ? AND status = ?
	`, StatusFailed, string(errJSON), resultJSON, completedAt.UTC().Format(time.RFC3339Nano), id, StatusRunning)
	if err != nil {
		return fmt.Errorf("fail job %s: %w", id, err)
	}
	return checkTransition(js, result, id)
}

func checkTransition(js *JobStore, result sql.Result, id string) error {
	rows, _ := result.RowsAffected()
	if rows == 0 {
		if _, err := js.Get(id); errors.Is(err, ErrJobNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("%w: job %s", ErrInvalidTransition, id)
	}
	return nil
}

const jobSelect = `
	SELECT id, job_type, target, status, parameters, result, error, created_at, started_at, completed_at
	FROM jobs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var params, resultJSON, errJSON, startedAt, completedAt sql.NullString
	var createdAt string

	err := row.Scan(&job.ID, &job.Type, &job.Target, &job.Status,
		&params, &resultJSON, &errJSON, &createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if params.Valid && params.String != "" && params.String != "null" {
		if err := json.Unmarshal([]byte(params.String), &job.Parameters); err != nil {
			job.Parameters = nil
		}
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var r JobResult
		if err := json.Unmarshal([]byte(resultJSON.String), &r); err == nil {
			job.Result = &r
		}
	}
	if errJSON.Valid && errJSON.String != "" {
		var e JobError
		if err := json.Unmarshal([]byte(errJSON.String), &e); err == nil {
			job.Error = &e
		}
	}

	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if startedAt.Valid {
		job.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt.String)
	}
	if completedAt.Valid {
		job.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt.String)
	}

	return &job, nil
}
