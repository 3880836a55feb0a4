package attempt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.skia.org/culprit/culprit/go/change"
	"go.skia.org/culprit/go/exec"
	"go.skia.org/culprit/go/now"
	"go.skia.org/culprit/go/skerr"
	"go.skia.org/culprit/go/sklog"
)

// ExitTempFail is the exit code a measurement command uses to report a
// transient failure (EX_TEMPFAIL from sysexits.h).
const ExitTempFail = 75

// finishedRetention is how long a finished execution is kept after its result
// was first polled. Within it, Start with the same key and Poll still see the
// result, which covers a tick that is retried after a failed save.
const finishedRetention = time.Hour

// CommandRunner measures a Change by running a local command. The command
// receives the Change through the environment:
//
//	CULPRIT_COMMITS    space separated repository@hash for every commit
//	CULPRIT_REPOSITORY the repository being bisected
//	CULPRIT_GIT_HASH   the commit being bisected
//	CULPRIT_PATCH      the patch, if any
//	CULPRIT_ARG_<NAME> one per argument
//
// and prints the measured values, separated by whitespace, to stdout.
//
// Executions live in memory, so polling an execution started by another
// process, or one whose result was polled more than an hour ago, fails with a
// retryable error.
type CommandRunner struct {
	name    string
	args    []string
	timeout time.Duration

	mutex      sync.Mutex
	executions map[string]*execution
}

type execution struct {
	done   chan struct{}
	status Status
	// polled is when the finished status was first returned by Poll.
	polled time.Time
}

// NewCommandRunner returns a CommandRunner that runs name with args.
func NewCommandRunner(name string, args []string, timeout time.Duration) *CommandRunner {
	return &CommandRunner{
		name:       name,
		args:       args,
		timeout:    timeout,
		executions: map[string]*execution{},
	}
}

// Start implements Runner.
func (r *CommandRunner) Start(ctx context.Context, key string, c *change.Change, args map[string]string) (string, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.prune(ctx)
	if _, ok := r.executions[key]; ok {
		return key, nil
	}
	e := &execution{
		done:   make(chan struct{}),
		status: Status{State: Running},
	}
	r.executions[key] = e
	cmd := &exec.Command{
		Name:    r.name,
		Args:    r.args,
		Env:     commandEnv(c, args),
		Timeout: r.timeout,
	}
	// The execution outlives the tick that started it.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(e.done)
		status := run(runCtx, cmd)
		r.mutex.Lock()
		e.status = status
		r.mutex.Unlock()
	}()
	return key, nil
}

// Poll implements Runner.
func (r *CommandRunner) Poll(ctx context.Context, executionID string) (*Status, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.prune(ctx)
	e, ok := r.executions[executionID]
	if !ok {
		return &Status{State: Failed, Err: Retryable(skerr.Fmt("unknown execution %s", executionID))}, nil
	}
	ret := e.status
	if ret.State != Running && e.polled.IsZero() {
		e.polled = now.Now(ctx)
	}
	return &ret, nil
}

// prune forgets executions whose result was polled more than
// finishedRetention ago. Must be called with the mutex held.
func (r *CommandRunner) prune(ctx context.Context) {
	cutoff := now.Now(ctx).Add(-finishedRetention)
	for key, e := range r.executions {
		if !e.polled.IsZero() && e.polled.Before(cutoff) {
			delete(r.executions, key)
		}
	}
}

// Len returns the number of executions held in memory.
func (r *CommandRunner) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.executions)
}

// Wait blocks until the execution finishes or ctx is done. Used by tests.
func (r *CommandRunner) Wait(ctx context.Context, executionID string) error {
	r.mutex.Lock()
	e, ok := r.executions[executionID]
	r.mutex.Unlock()
	if !ok {
		return skerr.Fmt("unknown execution %s", executionID)
	}
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return skerr.Wrap(ctx.Err())
	}
}

func commandEnv(c *change.Change, args map[string]string) []string {
	commits := make([]string, 0, len(c.Commits))
	for _, commit := range c.Commits {
		commits = append(commits, commit.Repository+"@"+commit.GitHash)
	}
	env := []string{
		"CULPRIT_COMMITS=" + strings.Join(commits, " "),
		"CULPRIT_REPOSITORY=" + c.Base().Repository,
		"CULPRIT_GIT_HASH=" + c.Base().GitHash,
	}
	if c.Patch != nil {
		env = append(env, "CULPRIT_PATCH="+c.Patch.String())
	}
	names := make([]string, 0, len(args))
	for k := range args {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		env = append(env, fmt.Sprintf("CULPRIT_ARG_%s=%s", strings.ToUpper(k), args[k]))
	}
	return env
}

func run(ctx context.Context, cmd *exec.Command) Status {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := exec.Run(ctx, cmd)
	if err != nil {
		sklog.Warningf("Measurement %q failed: %s\n%s", exec.DebugString(cmd), err, stderr.String())
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.Code == ExitTempFail {
			return Status{State: Failed, Err: Retryable(err)}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return Status{State: Failed, Err: Retryable(err)}
		}
		return Status{State: Failed, Err: err}
	}
	values, err := ParseValues(stdout.String())
	if err != nil {
		return Status{State: Failed, Err: err}
	}
	return Status{State: Completed, Values: values}
}

// ParseValues parses whitespace separated numbers. At least one is required.
func ParseValues(s string) ([]float64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, skerr.Fmt("measurement printed no values")
	}
	ret := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, skerr.Wrapf(err, "measurement output %q is not a number", f)
		}
		ret = append(ret, v)
	}
	return ret, nil
}

var _ Runner = (*CommandRunner)(nil)
