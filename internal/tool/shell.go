package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/agentserver/agentserver/internal/apierror"
	"github.com/agentserver/agentserver/internal/sessiondb"
)

const (
	defaultShellTimeout = 2 * time.Minute
	maxShellTimeout     = 10 * time.Minute
	maxShellOutput      = 30000
	killGrace           = 200 * time.Millisecond
)

// runningJob tracks the live process behind a backgrounded shell job;
// shellJobs stores only its persisted, poll-able state.
type runningJob struct {
	mu     sync.Mutex
	ptmx   *fdCloser
	cmd    *exec.Cmd
	buf    bytes.Buffer
	done   bool
	exit   int
	killed bool
}

// JobManager keeps the in-memory handles for shell jobs that outlive
// a single tool call, keyed by the job ID sessiondb assigned them.
// One JobManager is shared across run/poll/kill_shell_command so a
// job started by one call can be polled and killed by later ones.
type JobManager struct {
	mu   sync.Mutex
	jobs map[string]*runningJob
}

// NewJobManager builds an empty shell job manager.
func NewJobManager() *JobManager {
	return &JobManager{jobs: make(map[string]*runningJob)}
}

func (m *JobManager) put(id string, j *runningJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id] = j
}

func (m *JobManager) get(id string) (*runningJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	return j, ok
}

type fdCloser struct {
	io.ReadWriteCloser
}

type runShellArgs struct {
	Command     string `json:"command"`
	Description string `json:"description"`
	TimeoutMs   int    `json:"timeout_ms,omitempty"`
}

const runShellDescription = `Starts a shell command in the session's sandbox, running in the background. Returns a job ID immediately; use poll_shell_command to read its output and check whether it has finished, and kill_shell_command to terminate it early.`

// NewRunShellCommandTool builds the run_shell_command built-in.
func NewRunShellCommandTool(db *sessiondb.DB, mgr *JobManager, sandboxes SandboxProvider) *Definition {
	return &Definition{
		Name:        "run_shell_command",
		Description: runShellDescription,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"command": {"type": "string", "description": "The shell command to run"},
				"description": {"type": "string", "description": "Brief description of what this command does"},
				"timeout_ms": {"type": "integer", "description": "Optional timeout in milliseconds (max 600000)"}
			},
			"required": ["command", "description"]
		}`),
		Handler: func(tc *Context, raw json.RawMessage) (*Result, error) {
			m, err := DecodeArgs(raw)
			if err != nil {
				return nil, err
			}
			if err := EnsureKnownKeys(m, "command", "description", "timeout_ms"); err != nil {
				return nil, err
			}
			var args runShellArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, apierror.BadRequest("invalid run_shell_command arguments: %v", err)
			}
			if args.Command == "" {
				return nil, apierror.BadRequest("run_shell_command requires a command")
			}

			fs, err := sandboxes(tc.SessionID)
			if err != nil {
				return nil, err
			}

			timeout := defaultShellTimeout
			if args.TimeoutMs > 0 {
				timeout = time.Duration(args.TimeoutMs) * time.Millisecond
				if timeout > maxShellTimeout {
					timeout = maxShellTimeout
				}
			}

			jobID, err := db.CreateShellJob(tc.Ctx, tc.SessionID, tc.BranchID, args.Command, time.Now().Unix())
			if err != nil {
				return nil, err
			}

			shell := "/bin/sh"
			shellFlag := "-c"
			if runtime.GOOS == "windows" {
				shell = "cmd.exe"
				shellFlag = "/c"
			} else if found, err := exec.LookPath("bash"); err == nil {
				shell = found
			}

			cmd := exec.Command(shell, shellFlag, args.Command)
			cmd.Dir = fs.Base()

			ptmx, err := pty.Start(cmd)
			if err != nil {
				_ = db.FinishShellJob(tc.Ctx, jobID, sessiondb.ShellJobExited, -1, time.Now().Unix())
				return nil, apierror.Wrap(apierror.KindToolError, "start shell command", err)
			}

			job := &runningJob{ptmx: &fdCloser{ptmx}, cmd: cmd}
			mgr.put(jobID, job)

			go runJob(db, jobID, job, timeout)

			return &Result{Value: map[string]any{"jobId": jobID, "status": string(sessiondb.ShellJobRunning)}}, nil
		},
	}
}

func runJob(db *sessiondb.DB, jobID string, job *runningJob, timeout time.Duration) {
	doneReading := make(chan struct{})
	chunks := make(chan []byte, 16)

	go func() {
		defer close(chunks)
		buf := make([]byte, 4096)
		for {
			n, err := job.ptmx.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				chunks <- chunk
			}
			if err != nil {
				return
			}
		}
	}()

	go func() {
		for chunk := range chunks {
			job.mu.Lock()
			job.buf.Write(chunk)
			text := string(chunk)
			job.mu.Unlock()
			_ = db.AppendShellJobOutput(context.Background(), jobID, text)
		}
		close(doneReading)
	}()

	timer := time.AfterFunc(timeout, func() {
		job.mu.Lock()
		killed := job.killed
		job.mu.Unlock()
		if !killed {
			killProcessGroup(job.cmd)
		}
	})

	err := job.cmd.Wait()
	timer.Stop()
	_ = job.ptmx.Close()
	<-doneReading

	job.mu.Lock()
	job.done = true
	status := sessiondb.ShellJobExited
	if job.killed {
		status = sessiondb.ShellJobKilled
	}
	exitCode := 0
	if job.cmd.ProcessState != nil {
		exitCode = job.cmd.ProcessState.ExitCode()
	} else if err != nil {
		exitCode = -1
	}
	job.exit = exitCode
	job.mu.Unlock()

	_ = db.FinishShellJob(context.Background(), jobID, status, exitCode, time.Now().Unix())
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if runtime.GOOS == "windows" {
		_ = exec.Command("taskkill", "/pid", fmt.Sprint(cmd.Process.Pid), "/f", "/t").Run()
		return
	}
	_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	time.Sleep(killGrace)
	if cmd.ProcessState == nil {
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

type pollShellArgs struct {
	JobID string `json:"job_id"`
}

const pollShellDescription = `Reads a backgrounded shell command's output so far and whether it has finished.`

// NewPollShellCommandTool builds the poll_shell_command built-in.
func NewPollShellCommandTool(db *sessiondb.DB) *Definition {
	return &Definition{
		Name:        "poll_shell_command",
		Description: pollShellDescription,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {"job_id": {"type": "string"}},
			"required": ["job_id"]
		}`),
		Handler: func(tc *Context, raw json.RawMessage) (*Result, error) {
			m, err := DecodeArgs(raw)
			if err != nil {
				return nil, err
			}
			if err := EnsureKnownKeys(m, "job_id"); err != nil {
				return nil, err
			}
			var args pollShellArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, apierror.BadRequest("invalid poll_shell_command arguments: %v", err)
			}
			job, err := db.GetShellJob(tc.Ctx, args.JobID)
			if err != nil {
				return nil, err
			}
			output := job.Output
			if len(output) > maxShellOutput {
				output = output[len(output)-maxShellOutput:]
			}
			value := map[string]any{
				"jobId":  job.ID,
				"status": string(job.Status),
				"output": output,
			}
			if job.ExitCode != nil {
				value["exitCode"] = *job.ExitCode
			}
			return &Result{Value: value}, nil
		},
	}
}

type killShellArgs struct {
	JobID string `json:"job_id"`
}

const killShellDescription = `Terminates a running backgrounded shell command.`

// NewKillShellCommandTool builds the kill_shell_command built-in.
func NewKillShellCommandTool(db *sessiondb.DB, mgr *JobManager) *Definition {
	return &Definition{
		Name:        "kill_shell_command",
		Description: killShellDescription,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {"job_id": {"type": "string"}},
			"required": ["job_id"]
		}`),
		Handler: func(tc *Context, raw json.RawMessage) (*Result, error) {
			m, err := DecodeArgs(raw)
			if err != nil {
				return nil, err
			}
			if err := EnsureKnownKeys(m, "job_id"); err != nil {
				return nil, err
			}
			var args killShellArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, apierror.BadRequest("invalid kill_shell_command arguments: %v", err)
			}
			job, ok := mgr.get(args.JobID)
			if !ok {
				return nil, apierror.NotFound("shell job %q not found", args.JobID)
			}
			job.mu.Lock()
			alreadyDone := job.done
			job.killed = true
			job.mu.Unlock()
			if !alreadyDone {
				killProcessGroup(job.cmd)
			}
			return &Result{Value: map[string]any{"jobId": args.JobID, "killed": true}}, nil
		},
	}
}
