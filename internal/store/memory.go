package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentrun/core/internal/errkind"
	"github.com/agentrun/core/pkg/models"
)

// MemoryStore is an in-memory Store, for tests and the CLI harness. Every
// read and write works on a clone so callers can never mutate stored state
// through a returned pointer.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	messages map[string]*models.Message
	byOwner  map[string][]string // sessionID -> ordered message ids
	parts    map[string]*models.MessagePart
	byMsg    map[string][]string // messageID -> ordered part ids
	creds    map[string]*models.Credential
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]*models.Session{},
		messages: map[string]*models.Message{},
		byOwner:  map[string][]string{},
		parts:    map[string]*models.MessagePart{},
		byMsg:    map[string][]string{},
		creds:    map[string]*models.Credential{},
	}
}

func (m *MemoryStore) Sessions() Sessions         { return (*memSessions)(m) }
func (m *MemoryStore) Messages() Messages         { return (*memMessages)(m) }
func (m *MemoryStore) MessageParts() MessageParts { return (*memParts)(m) }
func (m *MemoryStore) Credentials() Credentials   { return (*memCreds)(m) }

func cloneSession(s *models.Session) *models.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func cloneMessage(m *models.Message) *models.Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Error != nil {
		e := *m.Error
		c.Error = &e
	}
	return &c
}

func clonePart(p *models.MessagePart) *models.MessagePart {
	if p == nil {
		return nil
	}
	c := *p
	if p.Content != nil {
		c.Content = append([]byte(nil), p.Content...)
	}
	return &c
}

type memSessions MemoryStore

func (m *memSessions) Get(ctx context.Context, id string) (*models.Session, error) {
	mm := (*MemoryStore)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	s, ok := mm.sessions[id]
	if !ok {
		return nil, errkind.New(errkind.SessionNotFound, id)
	}
	return cloneSession(s), nil
}

func (m *memSessions) Create(ctx context.Context, session *models.Session) error {
	mm := (*MemoryStore)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	mm.sessions[session.ID] = cloneSession(session)
	return nil
}

func (m *memSessions) UpdateStats(ctx context.Context, id string, delta models.SessionStatsDelta) error {
	mm := (*MemoryStore)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	s, ok := mm.sessions[id]
	if !ok {
		return errkind.New(errkind.SessionNotFound, id)
	}
	if delta.MessageCount != nil {
		s.MessageCount += *delta.MessageCount
	}
	if delta.TokensInput != nil {
		s.TokensInput += *delta.TokensInput
	}
	if delta.TokensOutput != nil {
		s.TokensOutput += *delta.TokensOutput
	}
	if delta.Cost != nil {
		s.Cost += *delta.Cost
	}
	s.UpdatedAt = time.Now()
	return nil
}

type memMessages MemoryStore

func (m *memMessages) Create(ctx context.Context, msg *models.Message) error {
	mm := (*MemoryStore)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.UpdatedAt = now
	mm.messages[msg.ID] = cloneMessage(msg)
	mm.byOwner[msg.SessionID] = append(mm.byOwner[msg.SessionID], msg.ID)
	return nil
}

func (m *memMessages) Finalize(ctx context.Context, id string, finish models.FinishReason, inputTokens, outputTokens int, cost float64, msgErr *models.MessageError) error {
	mm := (*MemoryStore)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	msg, ok := mm.messages[id]
	if !ok {
		return errkind.New(errkind.SessionNotFound, "message "+id)
	}
	msg.FinishReason = finish
	msg.InputTokens = inputTokens
	msg.OutputTokens = outputTokens
	msg.Cost = cost
	msg.Error = msgErr
	msg.UpdatedAt = time.Now()
	return nil
}

func (m *memMessages) ListBySession(ctx context.Context, sessionID string) ([]*models.Message, error) {
	mm := (*MemoryStore)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	ids := mm.byOwner[sessionID]
	out := make([]*models.Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := mm.messages[id]; ok {
			out = append(out, cloneMessage(msg))
		}
	}
	return out, nil
}

type memParts MemoryStore

func (m *memParts) Create(ctx context.Context, part *models.MessagePart) error {
	mm := (*MemoryStore)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if part.ID == "" {
		part.ID = uuid.NewString()
	}
	if part.CreatedAt.IsZero() {
		part.CreatedAt = time.Now()
	}
	mm.parts[part.ID] = clonePart(part)
	mm.byMsg[part.MessageID] = append(mm.byMsg[part.MessageID], part.ID)
	return nil
}

func (m *memParts) AppendText(ctx context.Context, partID string, delta string) error {
	mm := (*MemoryStore)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	p, ok := mm.parts[partID]
	if !ok {
		return errkind.New(errkind.SessionNotFound, "part "+partID)
	}
	var text models.TextContent
	if len(p.Content) > 0 {
		_ = json.Unmarshal(p.Content, &text)
	}
	text.Text += delta
	encoded, err := json.Marshal(text)
	if err != nil {
		return err
	}
	p.Content = encoded
	return nil
}

func (m *memParts) SetToolStatus(ctx context.Context, partID string, status models.ToolStatus) error {
	mm := (*MemoryStore)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	p, ok := mm.parts[partID]
	if !ok {
		return errkind.New(errkind.SessionNotFound, "part "+partID)
	}
	p.Status = status
	return nil
}

func (m *memParts) ListByMessage(ctx context.Context, messageID string) ([]*models.MessagePart, error) {
	mm := (*MemoryStore)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	ids := mm.byMsg[messageID]
	out := make([]*models.MessagePart, 0, len(ids))
	for _, id := range ids {
		if p, ok := mm.parts[id]; ok {
			out = append(out, clonePart(p))
		}
	}
	return out, nil
}

type memCreds MemoryStore

func credKey(userID string, vendor models.Vendor) string { return userID + "|" + string(vendor) }

func (m *memCreds) GetCredential(ctx context.Context, userID string, vendor models.Vendor) (*models.Credential, error) {
	mm := (*MemoryStore)(m)
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	c, ok := mm.creds[credKey(userID, vendor)]
	if !ok {
		return nil, nil
	}
	clone := *c
	if c.OAuth != nil {
		o := *c.OAuth
		clone.OAuth = &o
	}
	return &clone, nil
}

func (m *memCreds) SaveCredential(ctx context.Context, cred *models.Credential) error {
	mm := (*MemoryStore)(m)
	mm.mu.Lock()
	defer mm.mu.Unlock()
	clone := *cred
	if cred.OAuth != nil {
		o := *cred.OAuth
		clone.OAuth = &o
	}
	mm.creds[credKey(cred.UserID, cred.Vendor)] = &clone
	return nil
}
