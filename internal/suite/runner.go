package suite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/testagent/internal/client"
	"github.com/mattjoyce/testagent/internal/sequence"
)

//go:generate mockgen -destination=mocks/mock_session.go -package=mocks github.com/mattjoyce/testagent/internal/suite Session

// ErrSuitesFailed is returned by Run when at least one suite failed.
var ErrSuitesFailed = errors.New("one or more suites failed")

// cleanupTimeout bounds the done/keep call after a suite, even when the
// run's own context has expired.
const cleanupTimeout = 10 * time.Second

// Session is the part of *client.Session a suite needs.
type Session interface {
	sequence.Runner
	Ready(ctx context.Context) (int, error)
	UploadPath(ctx context.Context, localPath, dest string) error
	Keep(ctx context.Context) error
	Cleanup(ctx context.Context) error
}

var _ Session = (*client.Session)(nil)

// SessionFactory opens a session on the agent at baseURL.
type SessionFactory func(ctx context.Context, baseURL string) Session

// Result is the outcome of one suite.
type Result struct {
	Suite       string
	RunID       string
	WorkspaceID int
	Duration    time.Duration
	Output      string
	Err         error
}

// Passed reports whether the suite succeeded.
func (r Result) Passed() bool { return r.Err == nil }

// Runner executes suites one after another.
type Runner struct {
	open   SessionFactory
	out    io.Writer
	logger *slog.Logger
}

// NewRunner creates a runner. Final output of each suite is written to out.
func NewRunner(open SessionFactory, out io.Writer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = io.Discard
	}
	return &Runner{open: open, out: out, logger: logger}
}

// Run executes every suite in order. A failing suite is logged and the next
// one still runs; the returned error wraps ErrSuitesFailed if any failed.
func (r *Runner) Run(ctx context.Context, f *File) ([]Result, error) {
	results := make([]Result, 0, len(f.Suites))
	failed := 0
	for _, s := range f.Suites {
		if ctx.Err() != nil {
			break
		}
		res := r.runSuite(ctx, s)
		if !res.Passed() {
			failed++
			r.logger.Error("suite failed", "suite", s.Name, "run_id", res.RunID, "error", res.Err)
		} else {
			r.logger.Info("suite passed", "suite", s.Name, "run_id", res.RunID, "duration_ms", res.Duration.Milliseconds())
		}
		results = append(results, res)
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	if failed > 0 {
		return results, fmt.Errorf("%w: %d of %d", ErrSuitesFailed, failed, len(f.Suites))
	}
	return results, nil
}

func (r *Runner) runSuite(ctx context.Context, s Suite) (res Result) {
	res = Result{Suite: s.Name, RunID: uuid.NewString()}
	logger := r.logger.With("suite", s.Name, "run_id", res.RunID, "agent", s.Agent)
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	sess := r.open(ctx, s.Agent)
	defer r.finish(sess, s, logger)

	id, err := sess.Ready(ctx)
	if err != nil {
		res.Err = fmt.Errorf("connect: %w", err)
		return res
	}
	res.WorkspaceID = id
	logger = logger.With("workspace_id", id)
	logger.Info("suite started")

	for _, u := range s.Uploads {
		if err := sess.UploadPath(ctx, u.Local, u.Remote); err != nil {
			res.Err = fmt.Errorf("upload %s: %w", u.Local, err)
			return res
		}
	}
	if _, err := sequence.RunSteps(ctx, sess, steps(s.Setup)); err != nil {
		res.Err = fmt.Errorf("setup: %w", err)
		return res
	}

	var done []*client.RemoteCommand
	err = client.WithTimeout(ctx, s.Timeout, func(ctx context.Context) error {
		var err error
		done, err = sequence.RunSteps(ctx, sess, steps(s.Run))
		return err
	})
	if len(done) > 0 && done[len(done)-1] != nil {
		res.Output = done[len(done)-1].Snapshot().Result
	}
	if err != nil {
		res.Err = fmt.Errorf("run: %w", err)
		var ce *client.CommandError
		if errors.As(err, &ce) {
			res.Output = ce.Result
		}
	}
	fmt.Fprintf(r.out, "== %s: output ==\n%s\n", s.Name, res.Output)
	return res
}

func (r *Runner) finish(sess Session, s Suite, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if s.Keep {
		if err := sess.Keep(ctx); err != nil {
			logger.Warn("failed to keep workspace", "error", err)
		}
		return
	}
	if err := sess.Cleanup(ctx); err != nil {
		logger.Warn("failed to clean up workspace", "error", err)
	}
}
