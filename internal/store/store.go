package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/alialshehriar/bithrah-app-sub003/internal/models"
)

var (
	// ErrOpenSessionExists is returned by CreateSession when the
	// (listing, initiator) pair already has a pending or active session.
	// Backed by a unique partial index so concurrent opens cannot both pass.
	ErrOpenSessionExists = errors.New("open session already exists for listing and initiator")

	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
)

// DataStore defines persistent storage for the negotiation engine.
// PostgresStore, SQLiteStore and MemoryStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Listings (read-only; listing CRUD is owned by the platform)
	GetListing(ctx context.Context, id uuid.UUID) (*models.ListingSummary, error)

	// Access agreements (read-only). Returns the record covering the
	// listing, preferring a listing-scoped record over a platform-scoped
	// one, or ErrNotFound when the user signed nothing applicable.
	GetAccessRecord(ctx context.Context, userID, listingID uuid.UUID) (*models.AccessRecord, error)

	// Sessions
	CreateSession(ctx context.Context, s *models.NegotiationSession) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.NegotiationSession, error)
	UpdateSession(ctx context.Context, s *models.NegotiationSession) error
	ListDueSessions(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	SessionStats(ctx context.Context) (map[models.SessionStatus]int64, error)

	// Messages (append-only)
	AppendMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.Message, error)

	// Settlements
	// SettleSession persists the completed session and its settlement
	// records as one atomic unit. Records already present for a
	// (session, kind) are left untouched.
	SettleSession(ctx context.Context, s *models.NegotiationSession, records []models.SettlementRecord) error
	ListSettlements(ctx context.Context, sessionID uuid.UUID) ([]models.SettlementRecord, error)
}
