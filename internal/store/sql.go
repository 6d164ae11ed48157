package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentrun/core/internal/errkind"
	"github.com/agentrun/core/pkg/models"
)

// placeholderFunc renders the nth (1-indexed) bind parameter for a dialect:
// Postgres uses $1, $2, ...; SQLite uses a bare ?.
type placeholderFunc func(n int) string

func dollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }
func questionPlaceholder(int) string { return "?" }

// sqlStore is the dialect-agnostic body shared by the Postgres and SQLite
// stores: every query below is written against database/sql and differs
// between backends only in placeholder syntax, carried by the ph field;
// both backends apply the same schema DDL.
type sqlStore struct {
	db *sql.DB
	ph placeholderFunc
}

func (s *sqlStore) Sessions() Sessions         { return (*sqlSessions)(s) }
func (s *sqlStore) Messages() Messages         { return (*sqlMessages)(s) }
func (s *sqlStore) MessageParts() MessageParts { return (*sqlParts)(s) }
func (s *sqlStore) Credentials() Credentials   { return (*sqlCreds)(s) }

// Close releases the underlying connection pool.
func (s *sqlStore) Close() error { return s.db.Close() }

const schemaDDL = `
CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	project_id       TEXT NOT NULL,
	agent            TEXT NOT NULL,
	vendor           TEXT,
	model            TEXT,
	parent_session_id TEXT,
	title            TEXT,
	message_count    INTEGER NOT NULL DEFAULT 0,
	tokens_input     INTEGER NOT NULL DEFAULT 0,
	tokens_output    INTEGER NOT NULL DEFAULT 0,
	cost             DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	role          TEXT NOT NULL,
	parent_id     TEXT,
	vendor        TEXT,
	model         TEXT,
	agent         TEXT,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL,
	finish_reason TEXT,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost          DOUBLE PRECISION NOT NULL DEFAULT 0,
	error_kind    TEXT,
	error_message TEXT
);

CREATE TABLE IF NOT EXISTS message_parts (
	id           TEXT PRIMARY KEY,
	message_id   TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	type         TEXT NOT NULL,
	content      TEXT,
	tool_name    TEXT,
	tool_call_id TEXT,
	status       TEXT,
	step_number  INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS credentials (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	vendor        TEXT NOT NULL,
	api_key       TEXT,
	oauth_access  TEXT,
	oauth_refresh TEXT,
	oauth_expires TIMESTAMP,
	UNIQUE(user_id, vendor)
);
`

type sqlSessions sqlStore

func (s *sqlSessions) Get(ctx context.Context, id string) (*models.Session, error) {
	q := fmt.Sprintf(`SELECT id, project_id, agent, vendor, model, parent_session_id, title,
		message_count, tokens_input, tokens_output, cost, created_at, updated_at
		FROM sessions WHERE id = %s`, s.ph(1))

	row := s.db.QueryRowContext(ctx, q, id)
	session := &models.Session{}
	var vendor, model, parentID, title sql.NullString
	err := row.Scan(&session.ID, &session.ProjectID, &session.Agent, &vendor, &model, &parentID, &title,
		&session.MessageCount, &session.TokensInput, &session.TokensOutput, &session.Cost,
		&session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errkind.New(errkind.SessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	session.Vendor, session.Model, session.ParentSessionID, session.Title = vendor.String, model.String, parentID.String, title.String
	return session, nil
}

func (s *sqlSessions) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	q := fmt.Sprintf(`INSERT INTO sessions
		(id, project_id, agent, vendor, model, parent_session_id, title, message_count, tokens_input, tokens_output, cost, created_at, updated_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9), s.ph(10), s.ph(11), s.ph(12), s.ph(13))

	_, err := s.db.ExecContext(ctx, q,
		session.ID, session.ProjectID, session.Agent, session.Vendor, session.Model, session.ParentSessionID, session.Title,
		session.MessageCount, session.TokensInput, session.TokensOutput, session.Cost, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *sqlSessions) UpdateStats(ctx context.Context, id string, delta models.SessionStatsDelta) error {
	sets := []string{}
	args := []any{}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = %s + %s", col, col, s.ph(len(args))))
	}
	if delta.MessageCount != nil {
		add("message_count", *delta.MessageCount)
	}
	if delta.TokensInput != nil {
		add("tokens_input", *delta.TokensInput)
	}
	if delta.TokensOutput != nil {
		add("tokens_output", *delta.TokensOutput)
	}
	if delta.Cost != nil {
		add("cost", *delta.Cost)
	}
	args = append(args, time.Now())
	updatedAtClause := fmt.Sprintf("updated_at = %s", s.ph(len(args)))
	args = append(args, id)
	whereClause := fmt.Sprintf("id = %s", s.ph(len(args)))

	setClause := updatedAtClause
	for _, c := range sets {
		setClause = c + ", " + setClause
	}
	q := fmt.Sprintf("UPDATE sessions SET %s WHERE %s", setClause, whereClause)

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update session stats: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errkind.New(errkind.SessionNotFound, id)
	}
	return nil
}

type sqlMessages sqlStore

func (s *sqlMessages) Create(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = now

	q := fmt.Sprintf(`INSERT INTO messages
		(id, session_id, role, parent_id, vendor, model, agent, created_at, updated_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9))

	_, err := s.db.ExecContext(ctx, q,
		msg.ID, msg.SessionID, msg.Role, msg.ParentID, msg.Vendor, msg.Model, msg.Agent, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (s *sqlMessages) Finalize(ctx context.Context, id string, finish models.FinishReason, inputTokens, outputTokens int, cost float64, msgErr *models.MessageError) error {
	var kind, message sql.NullString
	if msgErr != nil {
		kind = sql.NullString{String: msgErr.Kind, Valid: true}
		message = sql.NullString{String: msgErr.Message, Valid: true}
	}

	q := fmt.Sprintf(`UPDATE messages SET finish_reason = %s, input_tokens = %s, output_tokens = %s,
		cost = %s, error_kind = %s, error_message = %s, updated_at = %s WHERE id = %s`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8))

	res, err := s.db.ExecContext(ctx, q, finish, inputTokens, outputTokens, cost, kind, message, time.Now(), id)
	if err != nil {
		return fmt.Errorf("finalize message: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errkind.New(errkind.SessionNotFound, "message "+id)
	}
	return nil
}

func (s *sqlMessages) ListBySession(ctx context.Context, sessionID string) ([]*models.Message, error) {
	q := fmt.Sprintf(`SELECT id, session_id, role, parent_id, vendor, model, agent, created_at, updated_at,
		finish_reason, input_tokens, output_tokens, cost, error_kind, error_message
		FROM messages WHERE session_id = %s ORDER BY created_at ASC`, s.ph(1))

	rows, err := s.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		var parentID, vendor, model, agent, finish, errKind, errMessage sql.NullString
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &parentID, &vendor, &model, &agent,
			&msg.CreatedAt, &msg.UpdatedAt, &finish, &msg.InputTokens, &msg.OutputTokens, &msg.Cost,
			&errKind, &errMessage); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.ParentID, msg.Vendor, msg.Model, msg.Agent = parentID.String, vendor.String, model.String, agent.String
		msg.FinishReason = models.FinishReason(finish.String)
		if errKind.Valid {
			msg.Error = &models.MessageError{Kind: errKind.String, Message: errMessage.String}
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

type sqlParts sqlStore

func (s *sqlParts) Create(ctx context.Context, part *models.MessagePart) error {
	if part.ID == "" {
		part.ID = uuid.NewString()
	}
	if part.CreatedAt.IsZero() {
		part.CreatedAt = time.Now()
	}

	q := fmt.Sprintf(`INSERT INTO message_parts
		(id, message_id, session_id, type, content, tool_name, tool_call_id, status, step_number, created_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9), s.ph(10))

	_, err := s.db.ExecContext(ctx, q,
		part.ID, part.MessageID, part.SessionID, part.Type, string(part.Content),
		part.ToolName, part.ToolCallID, part.Status, part.StepNumber, part.CreatedAt)
	if err != nil {
		return fmt.Errorf("create message part: %w", err)
	}
	return nil
}

func (s *sqlParts) AppendText(ctx context.Context, partID string, delta string) error {
	selectQ := fmt.Sprintf(`SELECT content FROM message_parts WHERE id = %s`, s.ph(1))
	var content sql.NullString
	if err := s.db.QueryRowContext(ctx, selectQ, partID).Scan(&content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errkind.New(errkind.SessionNotFound, "part "+partID)
		}
		return fmt.Errorf("append text lookup: %w", err)
	}

	var text models.TextContent
	if content.Valid && content.String != "" {
		_ = json.Unmarshal([]byte(content.String), &text)
	}
	text.Text += delta
	encoded, err := json.Marshal(text)
	if err != nil {
		return err
	}

	updateQ := fmt.Sprintf(`UPDATE message_parts SET content = %s WHERE id = %s`, s.ph(1), s.ph(2))
	_, err = s.db.ExecContext(ctx, updateQ, string(encoded), partID)
	if err != nil {
		return fmt.Errorf("append text: %w", err)
	}
	return nil
}

func (s *sqlParts) SetToolStatus(ctx context.Context, partID string, status models.ToolStatus) error {
	q := fmt.Sprintf(`UPDATE message_parts SET status = %s WHERE id = %s`, s.ph(1), s.ph(2))
	res, err := s.db.ExecContext(ctx, q, status, partID)
	if err != nil {
		return fmt.Errorf("set tool status: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errkind.New(errkind.SessionNotFound, "part "+partID)
	}
	return nil
}

func (s *sqlParts) ListByMessage(ctx context.Context, messageID string) ([]*models.MessagePart, error) {
	q := fmt.Sprintf(`SELECT id, message_id, session_id, type, content, tool_name, tool_call_id, status, step_number, created_at
		FROM message_parts WHERE message_id = %s ORDER BY created_at ASC`, s.ph(1))

	rows, err := s.db.QueryContext(ctx, q, messageID)
	if err != nil {
		return nil, fmt.Errorf("list message parts: %w", err)
	}
	defer rows.Close()

	var out []*models.MessagePart
	for rows.Next() {
		p := &models.MessagePart{}
		var content, toolName, toolCallID, status sql.NullString
		if err := rows.Scan(&p.ID, &p.MessageID, &p.SessionID, &p.Type, &content, &toolName, &toolCallID,
			&status, &p.StepNumber, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message part: %w", err)
		}
		if content.Valid {
			p.Content = json.RawMessage(content.String)
		}
		p.ToolName, p.ToolCallID, p.Status = toolName.String, toolCallID.String, models.ToolStatus(status.String)
		out = append(out, p)
	}
	return out, rows.Err()
}

type sqlCreds sqlStore

func (s *sqlCreds) GetCredential(ctx context.Context, userID string, vendor models.Vendor) (*models.Credential, error) {
	q := fmt.Sprintf(`SELECT id, user_id, vendor, api_key, oauth_access, oauth_refresh, oauth_expires
		FROM credentials WHERE user_id = %s AND vendor = %s`, s.ph(1), s.ph(2))

	row := s.db.QueryRowContext(ctx, q, userID, string(vendor))
	c := &models.Credential{}
	var apiKey, access, refresh sql.NullString
	var expires sql.NullTime
	var vendorStr string
	err := row.Scan(&c.ID, &c.UserID, &vendorStr, &apiKey, &access, &refresh, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	c.Vendor = models.Vendor(vendorStr)
	c.APIKey = apiKey.String
	if access.Valid {
		c.OAuth = &models.OAuthTokenTriple{Access: access.String, Refresh: refresh.String, Expires: expires.Time}
	}
	return c, nil
}

func (s *sqlCreds) SaveCredential(ctx context.Context, cred *models.Credential) error {
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}
	var access, refresh sql.NullString
	var expires sql.NullTime
	if cred.OAuth != nil {
		access = sql.NullString{String: cred.OAuth.Access, Valid: true}
		refresh = sql.NullString{String: cred.OAuth.Refresh, Valid: true}
		expires = sql.NullTime{Time: cred.OAuth.Expires, Valid: true}
	}

	q := fmt.Sprintf(`INSERT INTO credentials (id, user_id, vendor, api_key, oauth_access, oauth_refresh, oauth_expires)
		VALUES (%s, %s, %s, %s, %s, %s, %s)
		ON CONFLICT (user_id, vendor) DO UPDATE SET
			id = excluded.id, api_key = excluded.api_key, oauth_access = excluded.oauth_access,
			oauth_refresh = excluded.oauth_refresh, oauth_expires = excluded.oauth_expires`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7))

	_, err := s.db.ExecContext(ctx, q,
		cred.ID, cred.UserID, string(cred.Vendor), cred.APIKey, access, refresh, expires)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}
