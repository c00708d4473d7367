package sequence

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"

	"github.com/mattjoyce/testagent/internal/client"
	"github.com/mattjoyce/testagent/internal/sequence/mocks"
)

func TestRunInOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	runner := mocks.NewMockRunner(ctrl)
	first, second := &client.RemoteCommand{}, &client.RemoteCommand{}
	gomock.InOrder(
		runner.EXPECT().RunCommandAndWaitForSuccess(ctx, "npm install", "").Return(first, nil),
		runner.EXPECT().RunCommandAndWaitForSuccess(ctx, "npm test", "").Return(second, nil),
	)

	done, err := Run(ctx, runner, []string{"npm install", "npm test"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(done) != 2 || done[0] != first || done[1] != second {
		t.Fatalf("done = %v", done)
	}
}

func TestRunShortCircuits(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	runner := mocks.NewMockRunner(ctrl)
	failure := &client.CommandError{Command: "make", Stderr: "no rule"}
	gomock.InOrder(
		runner.EXPECT().RunCommandAndWaitForSuccess(ctx, "configure", "").Return(&client.RemoteCommand{}, nil),
		runner.EXPECT().RunCommandAndWaitForSuccess(ctx, "make", "").Return(&client.RemoteCommand{}, failure),
	)
	// "make install" must never be called; gomock fails on unexpected calls.

	done, err := Run(ctx, runner, []string{"configure", "make", "make install"})
	if len(done) != 1 {
		t.Fatalf("completed = %d, want 1", len(done))
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("error = %v, want *StepError", err)
	}
	if stepErr.Index != 1 || stepErr.Command != "make" {
		t.Errorf("step = %d %q", stepErr.Index, stepErr.Command)
	}
	var cmdErr *client.CommandError
	if !errors.As(err, &cmdErr) {
		t.Errorf("error does not wrap *client.CommandError: %v", err)
	}
}

func TestRunEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	done, err := Run(context.Background(), mocks.NewMockRunner(ctrl), nil)
	if err != nil || len(done) != 0 {
		t.Fatalf("Run(nil) = %v, %v", done, err)
	}
}

func TestRunStepsPassesCwd(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mocks.NewMockRunner(ctrl)
	gomock.InOrder(
		runner.EXPECT().RunCommandAndWaitForSuccess(gomock.Any(), "mkdir sub", "").Return(&client.RemoteCommand{}, nil),
		runner.EXPECT().RunCommandAndWaitForSuccess(gomock.Any(), "echo ok", "sub").Return(&client.RemoteCommand{}, nil),
	)

	_, err := RunSteps(context.Background(), runner, []Step{
		{Command: "mkdir sub"},
		{Command: "echo ok", Cwd: "sub"},
	})
	if err != nil {
		t.Fatalf("RunSteps: %v", err)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx, cancel := context.WithCancel(context.Background())
	runner := mocks.NewMockRunner(ctrl)
	runner.EXPECT().RunCommandAndWaitForSuccess(gomock.Any(), "one", "").DoAndReturn(
		func(context.Context, string, string) (*client.RemoteCommand, error) {
			cancel()
			return &client.RemoteCommand{}, nil
		})

	done, err := Run(ctx, runner, []string{"one", "two"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if len(done) != 1 {
		t.Fatalf("completed = %d, want 1", len(done))
	}
}
