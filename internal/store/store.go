// Package store defines the narrow repository interfaces the
// orchestration core consumes; the concrete relational store behind them
// is out of scope for this module. Three implementations are provided:
// an in-memory store for tests and the CLI harness, and Postgres/SQLite
// adapters for a real deployment.
package store

import (
	"context"

	"github.com/agentrun/core/pkg/models"
)

// Sessions is the narrow session repository the core touches: lookup,
// creation, and commutative aggregate increments. Sessions are never
// deleted by the core.
type Sessions interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	Create(ctx context.Context, session *models.Session) error
	UpdateStats(ctx context.Context, id string, delta models.SessionStatsDelta) error
}

// Messages is the narrow message repository: creation and the one
// finalisation mutation a message undergoes.
type Messages interface {
	Create(ctx context.Context, msg *models.Message) error
	Finalize(ctx context.Context, id string, finish models.FinishReason, inputTokens, outputTokens int, cost float64, msgErr *models.MessageError) error
	ListBySession(ctx context.Context, sessionID string) ([]*models.Message, error)
}

// MessageParts is the narrow message-part repository: ordered append and
// per-part-type mutation (text accumulation, tool status transitions).
type MessageParts interface {
	Create(ctx context.Context, part *models.MessagePart) error
	AppendText(ctx context.Context, partID string, delta string) error
	SetToolStatus(ctx context.Context, partID string, status models.ToolStatus) error
	ListByMessage(ctx context.Context, messageID string) ([]*models.MessagePart, error)
}

// Credentials is the narrow credential repository the Credential Resolver
// uses; it is the same Store seam defined in internal/credentials, kept
// here as the concrete store implementations satisfy both by construction.
type Credentials interface {
	GetCredential(ctx context.Context, userID string, vendor models.Vendor) (*models.Credential, error)
	SaveCredential(ctx context.Context, cred *models.Credential) error
}

// Store aggregates the four repositories a deployment wires together.
type Store interface {
	Sessions() Sessions
	Messages() Messages
	MessageParts() MessageParts
	Credentials() Credentials
}
