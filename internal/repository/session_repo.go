// Package repository persists sessions and their message logs in SQLite.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/aieditor/backend/internal/model"
)

// SessionRepository provides data access for sessions. It implements
// session.Archive.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// SaveSession inserts the session row or updates it when it already exists.
// Messages are written separately by AppendMessage.
func (r *SessionRepository) SaveSession(ctx context.Context, s *model.Session) error {
	contextJSON, err := marshalMap(s.Context)
	if err != nil {
		return errors.Wrap(err, "serialize context")
	}

	query := `
		INSERT INTO sessions (id, user_id, workspace_path, context, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			workspace_path = excluded.workspace_path,
			context = excluded.context,
			last_activity = excluded.last_activity
	`

	_, err = r.db.ExecContext(ctx, query,
		s.ID,
		s.UserID,
		s.WorkspacePath,
		contextJSON,
		s.CreatedAt.UTC(),
		s.LastActivity.UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "save session")
	}

	return nil
}

// AppendMessage inserts a message at the end of the session log and bumps the
// session's last activity.
func (r *SessionRepository) AppendMessage(ctx context.Context, sessionID string, msg model.Message) error {
	metadataJSON, err := marshalMap(msg.Metadata)
	if err != nil {
		return errors.Wrap(err, "serialize metadata")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	// Touch the session first so an unknown id is reported as such rather
	// than as a foreign key failure.
	result, err := tx.ExecContext(ctx, `UPDATE sessions SET last_activity = ? WHERE id = ?`, msg.Timestamp.UTC(), sessionID)
	if err != nil {
		return errors.Wrap(err, "update last activity")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "get rows affected")
	}
	if rowsAffected == 0 {
		return model.ErrSessionNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (session_id, kind, content, metadata, agent_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, sessionID, msg.Kind, msg.Content, metadataJSON, msg.AgentName, msg.Timestamp.UTC())
	if err != nil {
		return errors.Wrap(err, "insert message")
	}

	return errors.Wrap(tx.Commit(), "commit message")
}

// ClearMessages removes every message of the session.
func (r *SessionRepository) ClearMessages(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID); err != nil {
		return errors.Wrap(err, "clear messages")
	}
	return nil
}

// DeleteSession removes a session and its messages. Messages are deleted
// explicitly as well, so no log survives even on a connection opened without
// foreign keys.
func (r *SessionRepository) DeleteSession(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return errors.Wrap(err, "delete messages")
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete session")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "get rows affected")
	}

	if rowsAffected == 0 {
		return model.ErrSessionNotFound
	}

	return errors.Wrap(tx.Commit(), "commit delete")
}

// LoadAll retrieves every session with its message log, oldest first.
func (r *SessionRepository) LoadAll(ctx context.Context) ([]*model.Session, error) {
	query := `
		SELECT id, user_id, workspace_path, context, created_at, last_activity
		FROM sessions
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}

	var sessions []*model.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan session")
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.Wrap(err, "iterate sessions")
	}
	rows.Close()

	for _, session := range sessions {
		messages, err := r.loadMessages(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		session.Messages = messages
	}

	return sessions, nil
}

func (r *SessionRepository) loadMessages(ctx context.Context, sessionID string) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, content, metadata, agent_name, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	defer rows.Close()

	messages := []model.Message{}
	for rows.Next() {
		var msg model.Message
		var metadataJSON sql.NullString
		if err := rows.Scan(&msg.Kind, &msg.Content, &metadataJSON, &msg.AgentName, &msg.Timestamp); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		if !msg.Kind.Valid() {
			return nil, errors.Errorf("session %s: unknown message kind %q", sessionID, msg.Kind)
		}
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &msg.Metadata); err != nil {
				return nil, errors.Wrap(err, "parse metadata")
			}
		}
		msg.SessionID = sessionID
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate messages")
	}

	return messages, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	session := &model.Session{}
	var contextJSON sql.NullString

	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.WorkspacePath,
		&contextJSON,
		&session.CreatedAt,
		&session.LastActivity,
	)
	if err != nil {
		return nil, err
	}

	session.Context = map[string]any{}
	if contextJSON.Valid && contextJSON.String != "" {
		if err := json.Unmarshal([]byte(contextJSON.String), &session.Context); err != nil {
			return nil, errors.Wrap(err, "parse context")
		}
	}

	return session, nil
}

func marshalMap(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
