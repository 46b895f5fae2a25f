package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alialshehriar/bithrah-app-sub003/internal/models"
)

const sessionColumns = `id, listing_id, initiator_id, owner_id, status,
	window_start, window_end, deposit_amount::text, deposit_status,
	proposed_terms, agreement_reached, agreed_terms,
	created_at, updated_at, completed_at`

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GetListing retrieves the negotiation view of a listing.
func (s *PostgresStore) GetListing(ctx context.Context, id uuid.UUID) (*models.ListingSummary, error) {
	l := &models.ListingSummary{}
	var goal, funding, flat, pct, min, max string
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner_id, title, description, category,
			funding_goal::text, current_funding::text, timeline_months, team_size, traction,
			negotiation_enabled, deposit_flat::text, deposit_pct::text,
			deposit_min::text, deposit_max::text, commission_tier,
			referrer_id, referrer_tier
		FROM listings WHERE id = $1
	`, id).Scan(
		&l.ID, &l.OwnerID, &l.Title, &l.Description, &l.Category,
		&goal, &funding, &l.TimelineMonths, &l.TeamSize, &l.Traction,
		&l.Negotiation.Enabled, &flat, &pct, &min, &max, &l.Negotiation.CommissionTier,
		&l.ReferrerID, &l.ReferrerTier,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if l.FundingGoal, err = decimal.NewFromString(goal); err != nil {
		return nil, err
	}
	if l.CurrentFunding, err = decimal.NewFromString(funding); err != nil {
		return nil, err
	}
	if l.Negotiation.DepositFlat, err = decimal.NewFromString(flat); err != nil {
		return nil, err
	}
	if l.Negotiation.DepositPct, err = decimal.NewFromString(pct); err != nil {
		return nil, err
	}
	if l.Negotiation.DepositMin, err = decimal.NewFromString(min); err != nil {
		return nil, err
	}
	if l.Negotiation.DepositMax, err = decimal.NewFromString(max); err != nil {
		return nil, err
	}
	return l, nil
}

// GetAccessRecord retrieves the access agreement covering a listing,
// preferring a listing-scoped record over a platform-scoped one.
func (s *PostgresStore) GetAccessRecord(ctx context.Context, userID, listingID uuid.UUID) (*models.AccessRecord, error) {
	rec := &models.AccessRecord{}
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, listing_id, signed_at, expires_at, valid
		FROM access_records
		WHERE user_id = $1 AND listing_id IN ($2, '00000000-0000-0000-0000-000000000000')
		ORDER BY (listing_id = $2) DESC
		LIMIT 1
	`, userID, listingID).Scan(&rec.UserID, &rec.ListingID, &rec.SignedAt, &rec.ExpiresAt, &rec.Valid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// CreateSession inserts a new negotiation session. The unique partial index
// on open sessions turns a concurrent duplicate into ErrOpenSessionExists.
func (s *PostgresStore) CreateSession(ctx context.Context, sess *models.NegotiationSession) error {
	proposed, agreed, err := marshalTerms(sess)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO negotiation_sessions
			(id, listing_id, initiator_id, owner_id, status,
			 window_start, window_end, deposit_amount, deposit_status,
			 proposed_terms, agreement_reached, agreed_terms,
			 created_at, updated_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8::numeric,$9,$10,$11,$12,$13,$14,$15)
	`, sess.ID, sess.ListingID, sess.InitiatorID, sess.OwnerID, sess.Status,
		sess.WindowStart, sess.WindowEnd, sess.DepositAmount.String(), sess.DepositStatus,
		proposed, sess.AgreementReached, agreed,
		sess.CreatedAt, sess.UpdatedAt, sess.CompletedAt)
	if isUniqueViolation(err) {
		return ErrOpenSessionExists
	}
	return err
}

// GetSession retrieves a session by ID.
func (s *PostgresStore) GetSession(ctx context.Context, id uuid.UUID) (*models.NegotiationSession, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM negotiation_sessions WHERE id = $1`, id)
	return scanSession(row)
}

// UpdateSession persists the full session row in a single statement, so a
// status change and its deposit consequence land atomically.
func (s *PostgresStore) UpdateSession(ctx context.Context, sess *models.NegotiationSession) error {
	proposed, agreed, err := marshalTerms(sess)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE negotiation_sessions SET
			status = $2, window_start = $3, window_end = $4,
			deposit_amount = $5::numeric, deposit_status = $6,
			proposed_terms = $7, agreement_reached = $8, agreed_terms = $9,
			updated_at = $10, completed_at = $11
		WHERE id = $1
	`, sess.ID, sess.Status, sess.WindowStart, sess.WindowEnd,
		sess.DepositAmount.String(), sess.DepositStatus,
		proposed, sess.AgreementReached, agreed,
		sess.UpdatedAt, sess.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDueSessions returns IDs of active sessions whose window has elapsed.
func (s *PostgresStore) ListDueSessions(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM negotiation_sessions
		WHERE status = 'active' AND window_end < $1
		ORDER BY window_end
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SessionStats returns session counts grouped by status.
func (s *PostgresStore) SessionStats(ctx context.Context) (map[models.SessionStatus]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM negotiation_sessions GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[models.SessionStatus]int64)
	for rows.Next() {
		var status models.SessionStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// AppendMessage inserts a transcript message.
func (s *PostgresStore) AppendMessage(ctx context.Context, m *models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO negotiation_messages (id, session_id, sender_role, content, flagged, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, m.ID, m.SessionID, m.Sender, m.Content, m.Flagged, m.CreatedAt)
	return err
}

// ListMessages retrieves the transcript in chronological order. ULIDs sort
// lexicographically by time, so ordering by id is ordering by creation.
func (s *PostgresStore) ListMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, sender_role, content, flagged, created_at
		FROM negotiation_messages
		WHERE session_id = $1
		ORDER BY id
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Sender, &m.Content, &m.Flagged, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// SettleSession persists the completed session and its settlement records in
// one transaction. Existing (session, kind) records are left untouched so a
// replayed finalize never duplicates a payout.
func (s *PostgresStore) SettleSession(ctx context.Context, sess *models.NegotiationSession, records []models.SettlementRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	proposed, agreed, err := marshalTerms(sess)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE negotiation_sessions SET
			status = $2, deposit_status = $3,
			proposed_terms = $4, agreement_reached = $5, agreed_terms = $6,
			updated_at = $7, completed_at = $8
		WHERE id = $1
	`, sess.ID, sess.Status, sess.DepositStatus,
		proposed, sess.AgreementReached, agreed, sess.UpdatedAt, sess.CompletedAt)
	if err != nil {
		return err
	}

	for i := range records {
		r := &records[i]
		_, err := tx.Exec(ctx, `
			INSERT INTO settlement_records
				(id, session_id, beneficiary_id, kind, amount, rate, base_amount, status, created_at)
			VALUES ($1,$2,$3,$4,$5::numeric,$6::numeric,$7::numeric,$8,$9)
			ON CONFLICT (session_id, kind) DO NOTHING
		`, r.ID, r.SessionID, r.BeneficiaryID, r.Kind,
			r.Amount.String(), r.Rate.String(), r.BaseAmount.String(), r.Status, r.CreatedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// ListSettlements retrieves settlement records for a session.
func (s *PostgresStore) ListSettlements(ctx context.Context, sessionID uuid.UUID) ([]models.SettlementRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, beneficiary_id, kind,
			amount::text, rate::text, base_amount::text, status, created_at
		FROM settlement_records WHERE session_id = $1
		ORDER BY kind
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SettlementRecord
	for rows.Next() {
		var r models.SettlementRecord
		var amount, rate, base string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.BeneficiaryID, &r.Kind,
			&amount, &rate, &base, &r.Status, &r.CreatedAt); err != nil {
			return nil, err
		}
		if r.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		if r.Rate, err = decimal.NewFromString(rate); err != nil {
			return nil, err
		}
		if r.BaseAmount, err = decimal.NewFromString(base); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (*models.NegotiationSession, error) {
	sess := &models.NegotiationSession{}
	var amount string
	var proposed, agreed []byte
	err := row.Scan(
		&sess.ID, &sess.ListingID, &sess.InitiatorID, &sess.OwnerID, &sess.Status,
		&sess.WindowStart, &sess.WindowEnd, &amount, &sess.DepositStatus,
		&proposed, &sess.AgreementReached, &agreed,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if sess.DepositAmount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if sess.ProposedTerms, err = unmarshalTerms(proposed); err != nil {
		return nil, err
	}
	if sess.AgreedTerms, err = unmarshalTerms(agreed); err != nil {
		return nil, err
	}
	return sess, nil
}

func marshalTerms(sess *models.NegotiationSession) (proposed, agreed []byte, err error) {
	if sess.ProposedTerms != nil {
		if proposed, err = json.Marshal(sess.ProposedTerms); err != nil {
			return nil, nil, err
		}
	}
	if sess.AgreedTerms != nil {
		if agreed, err = json.Marshal(sess.AgreedTerms); err != nil {
			return nil, nil, err
		}
	}
	return proposed, agreed, nil
}

func unmarshalTerms(data []byte) (*models.Terms, error) {
	if len(data) == 0 {
		return nil, nil
	}
	t := &models.Terms{}
	if err := json.Unmarshal(data, t); err != nil {
		return nil, err
	}
	return t, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
