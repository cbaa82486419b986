package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"fms/internal/database"
	"fms/internal/models"
	"fms/internal/websocket"
)

// Action constants.
const (
	ActionCreate   = "CREATE"
	ActionUpdate   = "UPDATE"
	ActionDelete   = "DELETE"
	ActionApprove  = "APPROVE"
	ActionReject   = "REJECT"
	ActionIssue    = "ISSUE"
	ActionRestore  = "RESTORE"
	ActionReceive  = "RECEIVE"
	ActionComplete = "COMPLETE"
	ActionCancel   = "CANCEL"
	ActionImport   = "IMPORT"
	ActionLogin    = "LOGIN"
)

// Entry is one audit trail record. OldValues and NewValues are marshalled to
// JSON; nil stays NULL.
type Entry struct {
	Table     string
	RecordID  int64
	Action    string
	OldValues any
	NewValues any
	UserID    int64
}

// Sink receives audit entries after a mutation commits. Implementations
// must not fail the caller.
type Sink interface {
	LogAuditTrail(ctx context.Context, e Entry)
}

// Nop discards entries.
type Nop struct{}

func (Nop) LogAuditTrail(context.Context, Entry) {}

// DBSink writes entries to audit_log and broadcasts a websocket event.
type DBSink struct {
	db  *sql.DB
	hub *websocket.Hub
	log *zap.Logger
}

func NewDBSink(db *sql.DB, hub *websocket.Hub, log *zap.Logger) *DBSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &DBSink{db: db, hub: hub, log: log}
}

func marshal(v any) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

// LogAuditTrail records e. Failures are logged and swallowed.
func (s *DBSink) LogAuditTrail(ctx context.Context, e Entry) {
	var userID sql.NullInt64
	if e.UserID != 0 {
		userID = sql.NullInt64{Int64: e.UserID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (table_name, record_id, action, old_values, new_values, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Table, e.RecordID, e.Action, marshal(e.OldValues), marshal(e.NewValues), userID, database.Now())
	if err != nil {
		s.log.Error("audit log write failed",
			zap.String("table", e.Table),
			zap.Int64("record_id", e.RecordID),
			zap.String("action", e.Action),
			zap.Error(err))
	}

	s.hub.BroadcastChange(e.Table, strings.ToLower(e.Action), e.RecordID)
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Table    string
	RecordID int64
	UserID   int64
	Limit    int
}

// List returns audit entries newest first.
func List(ctx context.Context, q database.Querier, f Filter) ([]models.AuditEntry, error) {
	query := `SELECT id, table_name, record_id, action, old_values, new_values, user_id, created_at
		FROM audit_log WHERE 1=1`
	var args []any
	if f.Table != "" {
		query += " AND table_name = ?"
		args = append(args, f.Table)
	}
	if f.RecordID != 0 {
		query += " AND record_id = ?"
		args = append(args, f.RecordID)
	}
	if f.UserID != 0 {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT %d", limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var e models.AuditEntry
		var oldV, newV sql.NullString
		var uid sql.NullInt64
		if err := rows.Scan(&e.ID, &e.TableName, &e.RecordID, &e.Action, &oldV, &newV, &uid, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.OldValues = database.SP(oldV)
		e.NewValues = database.SP(newV)
		e.UserID = database.IP(uid)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
