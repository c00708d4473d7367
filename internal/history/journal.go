// Package history keeps an append-only SQLite journal of finished commands.
// It is an audit trail only; nothing is ever restored from it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/testagent/internal/command"
	"github.com/mattjoyce/testagent/internal/protocol"
	"github.com/mattjoyce/testagent/internal/storage"
)

// DefaultLimit caps Recent when the caller passes a non-positive limit.
const DefaultLimit = 100

// Journal records finished commands.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
	limit  int
	now    func() time.Time
}

var _ command.Observer = (*Journal)(nil)

// Open opens the journal database at path.
func Open(ctx context.Context, path string, limit int, logger *slog.Logger) (*Journal, error) {
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return New(db, limit, logger), nil
}

// New wraps an already bootstrapped database.
func New(db *sql.DB, limit int, logger *slog.Logger) *Journal {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{db: db, logger: logger, limit: limit, now: time.Now}
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one finished command.
func (j *Journal) Record(ctx context.Context, workspaceID int, cwd string, cmd protocol.Command) error {
	var code sql.NullInt64
	if cmd.Code != nil {
		code = sql.NullInt64{Int64: int64(*cmd.Code), Valid: true}
	}
	var signal sql.NullString
	if cmd.Signal != nil {
		signal = sql.NullString{String: *cmd.Signal, Valid: true}
	}
	var taken sql.NullFloat64
	if cmd.TimeTaken != nil {
		taken = sql.NullFloat64{Float64: *cmd.TimeTaken, Valid: true}
	}

	_, err := j.db.ExecContext(ctx, `
INSERT INTO command_log(workspace_id, command_id, command, cwd, status, code, signal, time_taken_ms, finished_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, workspaceID, cmd.ID, cmd.Command, cwd, string(cmd.Status), code, signal, taken,
		j.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert command_log: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]protocol.HistoryEntry, error) {
	if limit <= 0 || limit > j.limit {
		limit = j.limit
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT workspace_id, command_id, command, status, code, signal, time_taken_ms, finished_at
FROM command_log
ORDER BY id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query command_log: %w", err)
	}
	defer rows.Close()

	out := []protocol.HistoryEntry{}
	for rows.Next() {
		var (
			e      protocol.HistoryEntry
			status string
			code   sql.NullInt64
			signal sql.NullString
			taken  sql.NullFloat64
		)
		if err := rows.Scan(&e.WorkspaceID, &e.CommandID, &e.Command, &status, &code, &signal, &taken, &e.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan command_log: %w", err)
		}
		e.Status = protocol.Status(status)
		if code.Valid {
			c := int(code.Int64)
			e.Code = &c
		}
		if signal.Valid {
			s := signal.String
			e.Signal = &s
		}
		if taken.Valid {
			f := taken.Float64
			e.TimeTakenMS = &f
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CommandFinished implements command.Observer. Errors are logged; a journal
// failure never affects the command.
func (j *Journal) CommandFinished(workspaceID int, p *command.Process) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := j.Record(ctx, workspaceID, p.Cwd(), p.Snapshot()); err != nil {
		j.logger.Warn("failed to record command history",
			"workspace_id", workspaceID, "command_id", p.ID(), "error", err)
	}
}

// CommandStarted implements command.Observer.
func (j *Journal) CommandStarted(int, *command.Process) {}

// CommandKilled implements command.Observer.
func (j *Journal) CommandKilled(int, *command.Process, string) {}
