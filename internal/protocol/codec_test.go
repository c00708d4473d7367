package protocol

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"
)

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		checkFn func(t *testing.T, cmd *Command)
	}{
		{
			name:  "started command",
			input: `{"id":1,"status":"started","command":"echo hello","result":""}`,
			checkFn: func(t *testing.T, cmd *Command) {
				if cmd.Status != StatusStarted {
					t.Errorf("Status = %q, want started", cmd.Status)
				}
				if cmd.Code != nil || cmd.Signal != nil || cmd.TimeTaken != nil {
					t.Error("optional fields should be absent while started")
				}
			},
		},
		{
			name:  "killed command",
			input: `{"id":2,"status":"error","command":"sleep 60","result":"","signal":"SIGTERM","timeTaken":12.5}`,
			checkFn: func(t *testing.T, cmd *Command) {
				if cmd.Signal == nil || *cmd.Signal != "SIGTERM" {
					t.Errorf("Signal = %v, want SIGTERM", cmd.Signal)
				}
				if cmd.TimeTaken == nil || *cmd.TimeTaken != 12.5 {
					t.Errorf("TimeTaken = %v, want 12.5", cmd.TimeTaken)
				}
			},
		},
		{
			name:  "exit code zero is preserved",
			input: `{"id":3,"status":"done","command":"true","result":"","code":0}`,
			checkFn: func(t *testing.T, cmd *Command) {
				if cmd.Code == nil || *cmd.Code != 0 {
					t.Errorf("Code = %v, want 0", cmd.Code)
				}
			},
		},
		{
			name:    "unknown status",
			input:   `{"id":1,"status":"running","command":"x","result":""}`,
			wantErr: true,
		},
		{
			name:    "missing id",
			input:   `{"status":"done","command":"x","result":""}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `Cannot GET /test/1/command/1`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := DecodeCommand(strings.NewReader(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("DecodeCommand() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeCommand() error = %v", err)
			}
			tt.checkFn(t, cmd)
		})
	}
}

func TestDecodeCommandLenientReturnsRawBody(t *testing.T) {
	raw := `<html>proxy error</html>`
	_, data, err := DecodeCommandLenient(strings.NewReader(raw))
	if err == nil {
		t.Fatal("DecodeCommandLenient() expected error")
	}
	if string(data) != raw {
		t.Errorf("raw = %q, want %q", data, raw)
	}
}

func TestDecodeWorkspace(t *testing.T) {
	input := `{"id":4,"folder":"/tmp/testagent/4","commands":{"1":{"id":1,"status":"done","command":"echo hi","result":"hi\n","code":0}},"nextCommand":2}`
	ws, err := DecodeWorkspace(strings.NewReader(input))
	if err != nil {
		t.Fatalf("DecodeWorkspace() error = %v", err)
	}
	if ws.ID != 4 || ws.NextCommand != 2 {
		t.Errorf("got id=%d nextCommand=%d", ws.ID, ws.NextCommand)
	}
	if got := ws.Commands["1"].Result; got != "hi\n" {
		t.Errorf("command result = %q", got)
	}

	if _, err := DecodeWorkspace(strings.NewReader(`{"id":5,"commands":{"1":{"id":1,"status":"bogus"}}}`)); err == nil {
		t.Error("DecodeWorkspace() accepted an invalid nested command")
	}
}

func TestCommandOmitsEmptyOptionalFields(t *testing.T) {
	data, err := json.Marshal(Command{ID: 1, Status: StatusStarted, Command: "ls"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	got := string(data)
	for _, field := range []string{"stderr", "code", "signal", "timeTaken"} {
		if strings.Contains(got, `"`+field+`"`) {
			t.Errorf("marshaled started command contains %q: %s", field, got)
		}
	}
	if !strings.Contains(got, `"result":""`) {
		t.Errorf("result should always be present: %s", got)
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusStarted.Terminal() {
		t.Error("started must not be terminal")
	}
	if !StatusDone.Terminal() || !StatusError.Terminal() {
		t.Error("done and error must be terminal")
	}
}

func TestCommandsMarshalInIDOrder(t *testing.T) {
	cmds := Commands{}
	for _, id := range []int{10, 2, 1} {
		cmds[strconv.Itoa(id)] = Command{ID: id, Status: StatusDone}
	}
	data, err := json.Marshal(Workspace{ID: 1, Commands: cmds, NextCommand: 11})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	got := string(data)
	i1, i2, i10 := strings.Index(got, `"1":`), strings.Index(got, `"2":`), strings.Index(got, `"10":`)
	if !(i1 < i2 && i2 < i10) {
		t.Errorf("commands not in id order: %s", got)
	}

	empty, err := json.Marshal(Workspace{ID: 1})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(empty), `"commands":{}`) {
		t.Errorf("nil commands should marshal as {}: %s", empty)
	}
}
