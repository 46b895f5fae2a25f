package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alialshehriar/bithrah-app-sub003/internal/models"
)

// MemoryStore is an in-memory DataStore used in development without a
// database and throughout the engine's tests. It enforces the same
// uniqueness guarantees as the SQL stores.
type MemoryStore struct {
	mu          sync.RWMutex
	listings    map[uuid.UUID]*models.ListingSummary
	access      map[uuid.UUID][]models.AccessRecord
	sessions    map[uuid.UUID]*models.NegotiationSession
	messages    map[uuid.UUID][]models.Message
	settlements map[uuid.UUID][]models.SettlementRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings:    make(map[uuid.UUID]*models.ListingSummary),
		access:      make(map[uuid.UUID][]models.AccessRecord),
		sessions:    make(map[uuid.UUID]*models.NegotiationSession),
		messages:    make(map[uuid.UUID][]models.Message),
		settlements: make(map[uuid.UUID][]models.SettlementRecord),
	}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() {}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// PutListing seeds a listing. Used by development seeding and tests;
// listing CRUD is otherwise external to the engine.
func (s *MemoryStore) PutListing(l *models.ListingSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.listings[l.ID] = &cp
}

// PutAccessRecord seeds an access agreement.
func (s *MemoryStore) PutAccessRecord(rec models.AccessRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access[rec.UserID] = append(s.access[rec.UserID], rec)
}

// GetListing retrieves the negotiation view of a listing.
func (s *MemoryStore) GetListing(ctx context.Context, id uuid.UUID) (*models.ListingSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *l
	return &cp, nil
}

// GetAccessRecord retrieves the access agreement covering a listing,
// preferring a listing-scoped record over a platform-scoped one.
func (s *MemoryStore) GetAccessRecord(ctx context.Context, userID, listingID uuid.UUID) (*models.AccessRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var platform *models.AccessRecord
	for i := range s.access[userID] {
		rec := s.access[userID][i]
		switch rec.ListingID {
		case listingID:
			return &rec, nil
		case uuid.Nil:
			platform = &rec
		}
	}
	if platform != nil {
		return platform, nil
	}
	return nil, ErrNotFound
}

// CreateSession inserts a session, enforcing the one-open-session
// invariant under the store lock like the SQL unique partial index.
func (s *MemoryStore) CreateSession(ctx context.Context, sess *models.NegotiationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.ListingID == sess.ListingID && existing.InitiatorID == sess.InitiatorID &&
			(existing.Status == models.SessionPending || existing.Status == models.SessionActive) {
			return ErrOpenSessionExists
		}
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

// GetSession retrieves a session by ID.
func (s *MemoryStore) GetSession(ctx context.Context, id uuid.UUID) (*models.NegotiationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

// UpdateSession persists the full session.
func (s *MemoryStore) UpdateSession(ctx context.Context, sess *models.NegotiationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return ErrNotFound
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

// ListDueSessions returns IDs of active sessions whose window has elapsed.
func (s *MemoryStore) ListDueSessions(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []uuid.UUID
	for id, sess := range s.sessions {
		if sess.Status == models.SessionActive && sess.WindowElapsed(now) {
			ids = append(ids, id)
			if len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}

// SessionStats returns session counts grouped by status.
func (s *MemoryStore) SessionStats(ctx context.Context) (map[models.SessionStatus]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := make(map[models.SessionStatus]int64)
	for _, sess := range s.sessions {
		stats[sess.Status]++
	}
	return stats, nil
}

// AppendMessage inserts a transcript message.
func (s *MemoryStore) AppendMessage(ctx context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.SessionID] = append(s.messages[m.SessionID], *m)
	return nil
}

// ListMessages retrieves the transcript in chronological order.
func (s *MemoryStore) ListMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[sessionID]
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SettleSession persists the completed session and its settlement records
// atomically under the store lock.
func (s *MemoryStore) SettleSession(ctx context.Context, sess *models.NegotiationSession, records []models.SettlementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return ErrNotFound
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	for _, r := range records {
		if s.hasSettlement(r.SessionID, r.Kind) {
			continue
		}
		s.settlements[r.SessionID] = append(s.settlements[r.SessionID], r)
	}
	return nil
}

// ListSettlements retrieves settlement records for a session.
func (s *MemoryStore) ListSettlements(ctx context.Context, sessionID uuid.UUID) ([]models.SettlementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.settlements[sessionID]
	out := make([]models.SettlementRecord, len(records))
	copy(out, records)
	return out, nil
}

func (s *MemoryStore) hasSettlement(sessionID uuid.UUID, kind models.SettlementKind) bool {
	for _, r := range s.settlements[sessionID] {
		if r.Kind == kind {
			return true
		}
	}
	return false
}
