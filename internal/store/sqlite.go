package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/alialshehriar/bithrah-app-sub003/internal/models"
)

// SQLiteStore handles SQLite database operations for single-node deploys.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/negotiation.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/negotiation.db"
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		funding_goal TEXT NOT NULL,
		current_funding TEXT NOT NULL DEFAULT '0',
		timeline_months INTEGER NOT NULL DEFAULT 0,
		team_size INTEGER NOT NULL DEFAULT 0,
		traction TEXT NOT NULL DEFAULT '',
		negotiation_enabled INTEGER NOT NULL DEFAULT 0,
		deposit_flat TEXT NOT NULL DEFAULT '0',
		deposit_pct TEXT NOT NULL DEFAULT '0',
		deposit_min TEXT NOT NULL DEFAULT '0',
		deposit_max TEXT NOT NULL DEFAULT '0',
		commission_tier TEXT NOT NULL DEFAULT 'standard',
		referrer_id TEXT,
		referrer_tier TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS access_records (
		user_id TEXT NOT NULL,
		listing_id TEXT NOT NULL DEFAULT '00000000-0000-0000-0000-000000000000',
		signed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		expires_at DATETIME,
		valid INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (user_id, listing_id)
	);

	CREATE TABLE IF NOT EXISTS negotiation_sessions (
		id TEXT PRIMARY KEY,
		listing_id TEXT NOT NULL,
		initiator_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		window_start DATETIME,
		window_end DATETIME,
		deposit_amount TEXT NOT NULL DEFAULT '0',
		deposit_status TEXT NOT NULL DEFAULT 'pending',
		proposed_terms TEXT,
		agreement_reached INTEGER NOT NULL DEFAULT 0,
		agreed_terms TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		completed_at DATETIME
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_open
		ON negotiation_sessions (listing_id, initiator_id)
		WHERE status IN ('pending','active');

	CREATE TABLE IF NOT EXISTS negotiation_messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES negotiation_sessions(id),
		sender_role TEXT NOT NULL,
		content TEXT NOT NULL,
		flagged INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session
		ON negotiation_messages (session_id, id);

	CREATE TABLE IF NOT EXISTS settlement_records (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES negotiation_sessions(id),
		beneficiary_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		rate TEXT NOT NULL,
		base_amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL,
		UNIQUE (session_id, kind)
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetListing retrieves the negotiation view of a listing.
func (s *SQLiteStore) GetListing(ctx context.Context, id uuid.UUID) (*models.ListingSummary, error) {
	l := &models.ListingSummary{}
	var lid, owner string
	var goal, funding, flat, pct, min, max string
	var referrer sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, description, category,
			funding_goal, current_funding, timeline_months, team_size, traction,
			negotiation_enabled, deposit_flat, deposit_pct, deposit_min, deposit_max,
			commission_tier, referrer_id, referrer_tier
		FROM listings WHERE id = ?
	`, id.String()).Scan(
		&lid, &owner, &l.Title, &l.Description, &l.Category,
		&goal, &funding, &l.TimelineMonths, &l.TeamSize, &l.Traction,
		&l.Negotiation.Enabled, &flat, &pct, &min, &max,
		&l.Negotiation.CommissionTier, &referrer, &l.ReferrerTier,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if l.ID, err = uuid.Parse(lid); err != nil {
		return nil, err
	}
	if l.OwnerID, err = uuid.Parse(owner); err != nil {
		return nil, err
	}
	if referrer.Valid {
		refID, err := uuid.Parse(referrer.String)
		if err != nil {
			return nil, err
		}
		l.ReferrerID = &refID
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

// GetAccessRecord retrieves the access agreement covering a listing.
func (s *SQLiteStore) GetAccessRecord(ctx context.Context, userID, listingID uuid.UUID) (*models.AccessRecord, error) {
	rec := &models.AccessRecord{}
	var uid, lid string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, listing_id, signed_at, expires_at, valid
		FROM access_records
		WHERE user_id = ? AND listing_id IN (?, '00000000-0000-0000-0000-000000000000')
		ORDER BY (listing_id = ?) DESC
		LIMIT 1
	`, userID.String(), listingID.String(), listingID.String()).
		Scan(&uid, &lid, &rec.SignedAt, &rec.ExpiresAt, &rec.Valid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if rec.UserID, err = uuid.Parse(uid); err != nil {
		return nil, err
	}
	if rec.ListingID, err = uuid.Parse(lid); err != nil {
		return nil, err
	}
	return rec, nil
}

// CreateSession inserts a new negotiation session.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *models.NegotiationSession) error {
	proposed, agreed, err := marshalTerms(sess)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO negotiation_sessions
			(id, listing_id, initiator_id, owner_id, status,
			 window_start, window_end, deposit_amount, deposit_status,
			 proposed_terms, agreement_reached, agreed_terms,
			 created_at, updated_at, completed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`, sess.ID.String(), sess.ListingID.String(), sess.InitiatorID.String(), sess.OwnerID.String(),
		sess.Status, sess.WindowStart, sess.WindowEnd,
		sess.DepositAmount.String(), sess.DepositStatus,
		nullBytes(proposed), sess.AgreementReached, nullBytes(agreed),
		sess.CreatedAt, sess.UpdatedAt, sess.CompletedAt)
	if isSQLiteUniqueViolation(err) {
		return ErrOpenSessionExists
	}
	return err
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id uuid.UUID) (*models.NegotiationSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, listing_id, initiator_id, owner_id, status,
			window_start, window_end, deposit_amount, deposit_status,
			proposed_terms, agreement_reached, agreed_terms,
			created_at, updated_at, completed_at
		FROM negotiation_sessions WHERE id = ?
	`, id.String())
	return scanSQLiteSession(row)
}

// UpdateSession persists the full session row in a single statement.
func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *models.NegotiationSession) error {
	proposed, agreed, err := marshalTerms(sess)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE negotiation_sessions SET
			status = ?, window_start = ?, window_end = ?,
			deposit_amount = ?, deposit_status = ?,
			proposed_terms = ?, agreement_reached = ?, agreed_terms = ?,
			updated_at = ?, completed_at = ?
		WHERE id = ?
	`, sess.Status, sess.WindowStart, sess.WindowEnd,
		sess.DepositAmount.String(), sess.DepositStatus,
		nullBytes(proposed), sess.AgreementReached, nullBytes(agreed),
		sess.UpdatedAt, sess.CompletedAt, sess.ID.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDueSessions returns IDs of active sessions whose window has elapsed.
func (s *SQLiteStore) ListDueSessions(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM negotiation_sessions
		WHERE status = 'active' AND window_end < ?
		ORDER BY window_end
		LIMIT ?
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SessionStats returns session counts grouped by status.
func (s *SQLiteStore) SessionStats(ctx context.Context) (map[models.SessionStatus]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM negotiation_sessions GROUP BY status`)
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
func (s *SQLiteStore) AppendMessage(ctx context.Context, m *models.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO negotiation_messages (id, session_id, sender_role, content, flagged, created_at)
		VALUES (?,?,?,?,?,?)
	`, m.ID, m.SessionID.String(), m.Sender, m.Content, m.Flagged, m.CreatedAt)
	return err
}

// ListMessages retrieves the transcript in chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, sender_role, content, flagged, created_at
		FROM negotiation_messages
		WHERE session_id = ?
		ORDER BY id
		LIMIT ?
	`, sessionID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var sid string
		if err := rows.Scan(&m.ID, &sid, &m.Sender, &m.Content, &m.Flagged, &m.CreatedAt); err != nil {
			return nil, err
		}
		if m.SessionID, err = uuid.Parse(sid); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// SettleSession persists the completed session and its settlement records
// in one transaction.
func (s *SQLiteStore) SettleSession(ctx context.Context, sess *models.NegotiationSession, records []models.SettlementRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	proposed, agreed, err := marshalTerms(sess)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE negotiation_sessions SET
			status = ?, deposit_status = ?,
			proposed_terms = ?, agreement_reached = ?, agreed_terms = ?,
			updated_at = ?, completed_at = ?
		WHERE id = ?
	`, sess.Status, sess.DepositStatus,
		nullBytes(proposed), sess.AgreementReached, nullBytes(agreed),
		sess.UpdatedAt, sess.CompletedAt, sess.ID.String())
	if err != nil {
		return err
	}

	for i := range records {
		r := &records[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO settlement_records
				(id, session_id, beneficiary_id, kind, amount, rate, base_amount, status, created_at)
			VALUES (?,?,?,?,?,?,?,?,?)
			ON CONFLICT (session_id, kind) DO NOTHING
		`, r.ID.String(), r.SessionID.String(), r.BeneficiaryID.String(), r.Kind,
			r.Amount.String(), r.Rate.String(), r.BaseAmount.String(), r.Status, r.CreatedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListSettlements retrieves settlement records for a session.
func (s *SQLiteStore) ListSettlements(ctx context.Context, sessionID uuid.UUID) ([]models.SettlementRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, beneficiary_id, kind, amount, rate, base_amount, status, created_at
		FROM settlement_records WHERE session_id = ?
		ORDER BY kind
	`, sessionID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SettlementRecord
	for rows.Next() {
		var r models.SettlementRecord
		var id, sid, ben, amount, rate, base string
		if err := rows.Scan(&id, &sid, &ben, &r.Kind, &amount, &rate, &base, &r.Status, &r.CreatedAt); err != nil {
			return nil, err
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if r.SessionID, err = uuid.Parse(sid); err != nil {
			return nil, err
		}
		if r.BeneficiaryID, err = uuid.Parse(ben); err != nil {
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

func scanSQLiteSession(row *sql.Row) (*models.NegotiationSession, error) {
	sess := &models.NegotiationSession{}
	var id, listing, initiator, owner, amount string
	var proposed, agreed []byte
	err := row.Scan(
		&id, &listing, &initiator, &owner, &sess.Status,
		&sess.WindowStart, &sess.WindowEnd, &amount, &sess.DepositStatus,
		&proposed, &sess.AgreementReached, &agreed,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if sess.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if sess.ListingID, err = uuid.Parse(listing); err != nil {
		return nil, err
	}
	if sess.InitiatorID, err = uuid.Parse(initiator); err != nil {
		return nil, err
	}
	if sess.OwnerID, err = uuid.Parse(owner); err != nil {
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

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
