package sessiondb

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/agentserver/agentserver/internal/apierror"
)

// ShellJobStatus enumerates the lifecycle of a backgrounded shell
// command launched via run_shell_command.
type ShellJobStatus string

const (
	ShellJobRunning  ShellJobStatus = "running"
	ShellJobExited   ShellJobStatus = "exited"
	ShellJobKilled   ShellJobStatus = "killed"
)

// ShellJob records one pseudo-terminal-backed command invocation.
type ShellJob struct {
	ID         string
	SessionID  string
	BranchID   string
	Command    string
	Status     ShellJobStatus
	ExitCode   *int
	Output     string
	StartedAt  int64
	FinishedAt *int64
}

// CreateShellJob records a newly started shell job.
func (db *DB) CreateShellJob(ctx context.Context, sessionID, branchID, command string, now int64) (string, error) {
	id := uuid.NewString()
	err := db.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO shell_jobs (id, session_id, branch_id, command, status, output, started_at)
			VALUES (?, ?, ?, ?, ?, '', ?)`,
			id, sessionID, branchID, command, ShellJobRunning, now)
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, "insert shell job", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// AppendShellJobOutput appends captured output to a running job.
func (db *DB) AppendShellJobOutput(ctx context.Context, jobID, chunk string) error {
	return db.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE shell_jobs SET output = output || ? WHERE id = ?`, chunk, jobID)
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, "append shell job output", err)
		}
		return checkAffected(res, jobID)
	})
}

// FinishShellJob marks a job as exited or killed with an exit code.
func (db *DB) FinishShellJob(ctx context.Context, jobID string, status ShellJobStatus, exitCode int, now int64) error {
	return db.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE shell_jobs SET status = ?, exit_code = ?, finished_at = ? WHERE id = ?`,
			status, exitCode, now, jobID)
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, "finish shell job", err)
		}
		return checkAffected(res, jobID)
	})
}

// GetShellJob fetches a job's current state, used to poll and kill.
func (db *DB) GetShellJob(ctx context.Context, jobID string) (*ShellJob, error) {
	row := db.read.QueryRowContext(ctx, `
		SELECT id, session_id, branch_id, command, status, exit_code, output, started_at, finished_at
		FROM shell_jobs WHERE id = ?`, jobID)

	var j ShellJob
	var exitCode sql.NullInt64
	var finishedAt sql.NullInt64
	if err := row.Scan(&j.ID, &j.SessionID, &j.BranchID, &j.Command, &j.Status, &exitCode, &j.Output, &j.StartedAt, &finishedAt); err != nil {
		if isNoRows(err) {
			return nil, apierror.NotFound("shell job %q not found", jobID)
		}
		return nil, apierror.Wrap(apierror.KindInternal, "query shell job", err)
	}
	if exitCode.Valid {
		v := int(exitCode.Int64)
		j.ExitCode = &v
	}
	if finishedAt.Valid {
		v := finishedAt.Int64
		j.FinishedAt = &v
	}
	return &j, nil
}
