// Package sequence runs a list of remote commands one after another, stopping
// at the first that fails.
package sequence

import (
	"context"
	"fmt"

	"github.com/mattjoyce/testagent/internal/client"
)

//go:generate mockgen -destination=mocks/mock_runner.go -package=mocks github.com/mattjoyce/testagent/internal/sequence Runner

// Runner runs one command to completion and reports failure as an error.
// *client.Session satisfies it.
type Runner interface {
	RunCommandAndWaitForSuccess(ctx context.Context, line, cwd string) (*client.RemoteCommand, error)
}

var _ Runner = (*client.Session)(nil)

// Step is one command and the directory it runs in, relative to the
// workspace root.
type Step struct {
	Command string `yaml:"command"`
	Cwd     string `yaml:"cwd,omitempty"`
}

// StepError reports which step of a sequence failed.
type StepError struct {
	Index   int
	Command string
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index+1, e.Command, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Run executes commands in the workspace root. It returns the commands that
// completed before any failure.
func Run(ctx context.Context, r Runner, commands []string) ([]*client.RemoteCommand, error) {
	steps := make([]Step, len(commands))
	for i, c := range commands {
		steps[i] = Step{Command: c}
	}
	return RunSteps(ctx, r, steps)
}

// RunSteps is Run with a working directory per step.
func RunSteps(ctx context.Context, r Runner, steps []Step) ([]*client.RemoteCommand, error) {
	done := make([]*client.RemoteCommand, 0, len(steps))
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return done, &StepError{Index: i, Command: step.Command, Err: err}
		}
		rc, err := r.RunCommandAndWaitForSuccess(ctx, step.Command, step.Cwd)
		if err != nil {
			return done, &StepError{Index: i, Command: step.Command, Err: err}
		}
		done = append(done, rc)
	}
	return done, nil
}
