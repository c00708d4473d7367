package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// MarshalJSON writes commands in submission (numeric id) order rather than
// the lexical order encoding/json uses for maps.
func (c Commands) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA != nil || errB != nil {
			return keys[i] < keys[j]
		}
		return a < b
	})

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DecodeWorkspace reads a Workspace from r and checks the fields every agent
// response must carry.
func DecodeWorkspace(r io.Reader) (*Workspace, error) {
	var ws Workspace
	if err := json.NewDecoder(r).Decode(&ws); err != nil {
		return nil, fmt.Errorf("failed to decode workspace: %w", err)
	}
	if ws.ID <= 0 {
		return nil, fmt.Errorf("workspace missing required field: id")
	}
	for key, cmd := range ws.Commands {
		if err := validateCommand(&cmd); err != nil {
			return nil, fmt.Errorf("workspace command %s: %w", key, err)
		}
	}
	return &ws, nil
}

// DecodeCommand reads a Command snapshot from r.
func DecodeCommand(r io.Reader) (*Command, error) {
	var cmd Command
	if err := json.NewDecoder(r).Decode(&cmd); err != nil {
		return nil, fmt.Errorf("failed to decode command: %w", err)
	}
	if err := validateCommand(&cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// DecodeCommandLenient is like DecodeCommand but also returns the raw body so
// callers can report what the agent actually sent.
func DecodeCommandLenient(r io.Reader) (*Command, []byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read command: %w", err)
	}
	cmd, err := DecodeCommand(bytes.NewReader(data))
	if err != nil {
		return nil, data, err
	}
	return cmd, data, nil
}

// DecodeWorkspaceLenient is the Workspace counterpart of DecodeCommandLenient.
func DecodeWorkspaceLenient(r io.Reader) (*Workspace, []byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read workspace: %w", err)
	}
	ws, err := DecodeWorkspace(bytes.NewReader(data))
	if err != nil {
		return nil, data, err
	}
	return ws, data, nil
}

func validateCommand(cmd *Command) error {
	if cmd.ID <= 0 {
		return fmt.Errorf("command missing required field: id")
	}
	if !cmd.Status.Valid() {
		return fmt.Errorf("invalid status value: %q (must be 'started', 'done' or 'error')", cmd.Status)
	}
	return nil
}
