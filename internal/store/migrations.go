package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// schema is the engine's slice of the platform database. Listing and access
// rows are written by the platform; the engine only reads them, so they are
// created here solely to make a fresh database usable.
const schema = `
CREATE TABLE IF NOT EXISTS listings (
	id UUID PRIMARY KEY,
	owner_id UUID NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	funding_goal NUMERIC(18,2) NOT NULL,
	current_funding NUMERIC(18,2) NOT NULL DEFAULT 0,
	timeline_months INT NOT NULL DEFAULT 0,
	team_size INT NOT NULL DEFAULT 0,
	traction TEXT NOT NULL DEFAULT '',
	negotiation_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	deposit_flat NUMERIC(18,2) NOT NULL DEFAULT 0,
	deposit_pct NUMERIC(9,6) NOT NULL DEFAULT 0,
	deposit_min NUMERIC(18,2) NOT NULL DEFAULT 0,
	deposit_max NUMERIC(18,2) NOT NULL DEFAULT 0,
	commission_tier TEXT NOT NULL DEFAULT 'standard',
	referrer_id UUID,
	referrer_tier TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS access_records (
	user_id UUID NOT NULL,
	listing_id UUID NOT NULL DEFAULT '00000000-0000-0000-0000-000000000000',
	signed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ,
	valid BOOLEAN NOT NULL DEFAULT TRUE,
	PRIMARY KEY (user_id, listing_id)
);

CREATE TABLE IF NOT EXISTS negotiation_sessions (
	id UUID PRIMARY KEY,
	listing_id UUID NOT NULL,
	initiator_id UUID NOT NULL,
	owner_id UUID NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending'
		CHECK (status IN ('pending','active','agreement_reached','completed','expired','cancelled')),
	window_start TIMESTAMPTZ,
	window_end TIMESTAMPTZ,
	deposit_amount NUMERIC(18,2) NOT NULL DEFAULT 0,
	deposit_status TEXT NOT NULL DEFAULT 'pending'
		CHECK (deposit_status IN ('pending','held','released','forfeited')),
	proposed_terms JSONB,
	agreement_reached BOOLEAN NOT NULL DEFAULT FALSE,
	agreed_terms JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

-- One open negotiation per (listing, initiator). This closes the race
-- between the gate's existence check and the insert.
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_open
	ON negotiation_sessions (listing_id, initiator_id)
	WHERE status IN ('pending','active');

CREATE INDEX IF NOT EXISTS idx_sessions_window_end
	ON negotiation_sessions (window_end)
	WHERE status = 'active';

CREATE TABLE IF NOT EXISTS negotiation_messages (
	id TEXT PRIMARY KEY,
	session_id UUID NOT NULL REFERENCES negotiation_sessions(id),
	sender_role TEXT NOT NULL CHECK (sender_role IN ('investor','owner')),
	content TEXT NOT NULL,
	flagged BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_session
	ON negotiation_messages (session_id, id);

CREATE TABLE IF NOT EXISTS settlement_records (
	id UUID PRIMARY KEY,
	session_id UUID NOT NULL REFERENCES negotiation_sessions(id),
	beneficiary_id UUID NOT NULL,
	kind TEXT NOT NULL CHECK (kind IN ('platform_commission','referral')),
	amount NUMERIC(18,2) NOT NULL,
	rate NUMERIC(9,6) NOT NULL,
	base_amount NUMERIC(18,2) NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','approved','paid')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (session_id, kind)
);
`

// RunMigrations applies the schema to the PostgreSQL database.
func RunMigrations(databaseURL string) error {
	ctx := context.Background()

	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, schema)
	return err
}
