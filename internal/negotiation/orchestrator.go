package negotiation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/alialshehriar/bithrah-app-sub003/internal/crypto"
	"github.com/alialshehriar/bithrah-app-sub003/internal/metrics"
	"github.com/alialshehriar/bithrah-app-sub003/internal/models"
	"github.com/alialshehriar/bithrah-app-sub003/internal/notify"
	"github.com/alialshehriar/bithrah-app-sub003/internal/store"
)

// transcriptLimit caps how much history is replayed to the agent.
const transcriptLimit = 200

// Config holds the orchestrator's tunables.
type Config struct {
	Window       time.Duration // negotiation window from activation
	AgentTimeout time.Duration // bound on the text-generation call
	Bounds       PolicyBounds
}

// Orchestrator coordinates the gate, deposit ledger, moderator, agent and
// settlement engine for each inbound request. Every state-mutating
// operation runs under a per-session mutex; the store's unique constraints
// are the cross-process second line of defense.
type Orchestrator struct {
	store     store.DataStore
	gate      *AccessGate
	moderator *ContentModerator
	deposits  *DepositLedger
	agent     CounterpartyAgent
	settler   *SettlementEngine
	notifier  notify.Notifier
	cfg       Config
	logger    zerolog.Logger

	locks sync.Map // session ID -> *sync.Mutex
	clock func() time.Time
}

// NewOrchestrator wires the engine's components together.
func NewOrchestrator(
	ds store.DataStore,
	gate *AccessGate,
	moderator *ContentModerator,
	deposits *DepositLedger,
	agent CounterpartyAgent,
	settler *SettlementEngine,
	notifier notify.Notifier,
	cfg Config,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:     ds,
		gate:      gate,
		moderator: moderator,
		deposits:  deposits,
		agent:     agent,
		settler:   settler,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
		clock:     time.Now,
	}
}

func (o *Orchestrator) lock(id uuid.UUID) func() {
	v, _ := o.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Open gates and creates a new negotiation session in pending status with
// the deposit requested. A concurrent duplicate open loses the insert race
// and is reported as AccessDenied(already-active).
func (o *Orchestrator) Open(ctx context.Context, actorID, listingID uuid.UUID) (*models.NegotiationSession, error) {
	listing, err := o.gate.CanOpen(ctx, actorID, listingID)
	if err != nil {
		return nil, err
	}

	now := o.clock()
	sess := &models.NegotiationSession{
		ID:            crypto.NewUUIDv7(),
		ListingID:     listingID,
		InitiatorID:   actorID,
		OwnerID:       listing.OwnerID,
		Status:        models.SessionPending,
		DepositAmount: ComputeDeposit(listing.Negotiation, listing.FundingGoal),
		DepositStatus: models.DepositPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := o.store.CreateSession(ctx, sess); err != nil {
		if errors.Is(err, store.ErrOpenSessionExists) {
			return nil, denied(DeniedAlreadyActive)
		}
		return nil, fmt.Errorf("create session: %w", err)
	}

	metrics.SessionsOpened.Inc()
	o.logger.Info().
		Str("session_id", sess.ID.String()).
		Str("listing_id", listingID.String()).
		Str("deposit", sess.DepositAmount.String()).
		Msg("negotiation opened")

	return sess, nil
}

// ConfirmDeposit moves a pending session to active: debits the deposit,
// marks it held and starts the negotiation window. Initiator only.
func (o *Orchestrator) ConfirmDeposit(ctx context.Context, sessionID, actorID uuid.UUID) (*models.NegotiationSession, error) {
	defer o.lock(sessionID)()

	sess, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if actorID != sess.InitiatorID {
		return nil, ErrNotParticipant
	}
	if sess.Status != models.SessionPending {
		return nil, fmt.Errorf("%w: confirm deposit from %s", ErrInvalidTransition, sess.Status)
	}

	if err := o.deposits.ConfirmHold(ctx, sess); err != nil {
		return nil, err
	}

	now := o.clock()
	windowEnd := now.Add(o.cfg.Window)
	sess.Status = models.SessionActive
	sess.WindowStart = &now
	sess.WindowEnd = &windowEnd
	sess.UpdatedAt = now

	if err := o.store.UpdateSession(ctx, sess); err != nil {
		// The debit went through but activation did not; unwind it.
		if cerr := o.deposits.Release(ctx, sess); cerr != nil {
			o.logger.Error().Err(cerr).
				Str("session_id", sess.ID.String()).
				Msg("failed to unwind deposit after activation failure")
		}
		return nil, fmt.Errorf("activate session: %w", err)
	}

	metrics.DepositsHeld.Inc()
	o.notifier.Publish(ctx, notify.Event{
		Type: notify.EventDepositHeld, SessionID: sess.ID,
		ListingID: sess.ListingID, UserID: sess.OwnerID, At: now,
	})

	return sess, nil
}

// PostMessage moderates and persists the sender's message and, for investor
// messages, obtains and persists the counterparty agent's reply. A session
// past its window is expired first and the message rejected. The returned
// reply is nil when the owner posted directly.
func (o *Orchestrator) PostMessage(ctx context.Context, sessionID, actorID uuid.UUID, text string) (*models.Message, error) {
	defer o.lock(sessionID)()

	sess, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsParticipant(actorID) {
		return nil, ErrNotParticipant
	}

	expired, err := o.expireLocked(ctx, sess)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, ErrNegotiationExpired
	}
	if sess.Status != models.SessionActive {
		return nil, fmt.Errorf("%w: post message in %s", ErrInvalidTransition, sess.Status)
	}

	role := models.RoleOwner
	if actorID == sess.InitiatorID {
		role = models.RoleInvestor
	}

	now := o.clock()
	if err := o.persistMessage(ctx, sess.ID, role, text, now); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	if role == models.RoleOwner {
		// The human owner spoke for themself; no agent turn.
		return nil, nil
	}

	listing, err := o.store.GetListing(ctx, sess.ListingID)
	if err != nil {
		return nil, fmt.Errorf("load listing: %w", err)
	}
	transcript, err := o.store.ListMessages(ctx, sess.ID, transcriptLimit)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}

	reply, err := o.respond(ctx, listing, transcript, text)
	if err != nil {
		// Degrade to the fixed fallback. The investor's message is
		// persisted; session state is otherwise untouched, so a retry
		// is safe.
		metrics.AgentFailures.Inc()
		o.logger.Warn().Err(err).
			Str("session_id", sess.ID.String()).
			Msg("counterparty agent unavailable, returning fallback")
		return &models.Message{
			SessionID: sess.ID,
			Sender:    models.RoleOwner,
			Content:   FallbackReply,
			CreatedAt: o.clock(),
		}, nil
	}

	if reply.ProposedTerms != nil {
		if perr := o.cfg.Bounds.Check(reply.ProposedTerms, listing.FundingGoal); perr != nil {
			metrics.PolicyViolations.Inc()
			o.logger.Warn().Err(perr).
				Str("session_id", sess.ID.String()).
				Msg("agent proposal outside policy bounds, dropped")
			reply.ProposedTerms = nil
			reply.AgreementReached = false
		} else {
			sess.ProposedTerms = reply.ProposedTerms
		}
	}

	replyMsg, err := o.persistReply(ctx, sess.ID, reply.ReplyText)
	if err != nil {
		return nil, fmt.Errorf("persist reply: %w", err)
	}

	if reply.AgreementReached && sess.ProposedTerms != nil {
		if err := o.recordAgreement(ctx, sess, listing); err != nil {
			return nil, err
		}
	} else {
		sess.UpdatedAt = o.clock()
		if err := o.store.UpdateSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("update session: %w", err)
		}
	}

	return replyMsg, nil
}

// Cancel terminates a pending or active session at either participant's
// request, releasing any held deposit.
func (o *Orchestrator) Cancel(ctx context.Context, sessionID, actorID uuid.UUID) (*models.NegotiationSession, error) {
	defer o.lock(sessionID)()

	sess, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsParticipant(actorID) {
		return nil, ErrNotParticipant
	}

	expired, err := o.expireLocked(ctx, sess)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, ErrNegotiationExpired
	}
	if !sess.Status.CanTransitionTo(models.SessionCancelled) {
		return nil, fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, sess.Status)
	}

	wasHeld := sess.DepositStatus == models.DepositHeld
	if err := o.deposits.Release(ctx, sess); err != nil {
		return nil, err
	}

	now := o.clock()
	sess.Status = models.SessionCancelled
	sess.UpdatedAt = now

	if err := o.store.UpdateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("cancel session: %w", err)
	}

	metrics.SessionsClosed.WithLabelValues("cancelled").Inc()
	if wasHeld {
		metrics.DepositsReleased.Inc()
	}
	o.notifier.Publish(ctx, notify.Event{
		Type: notify.EventSessionCancelled, SessionID: sess.ID,
		ListingID: sess.ListingID, UserID: o.counterpart(sess, actorID), At: now,
	})

	return sess, nil
}

// Finalize completes a session that reached agreement and runs settlement.
// Idempotent: finalizing an already-completed session issues nothing new.
func (o *Orchestrator) Finalize(ctx context.Context, sessionID uuid.UUID) ([]models.SettlementRecord, error) {
	defer o.lock(sessionID)()

	sess, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return o.finalizeLocked(ctx, sess)
}

// ExpireDue sweeps active sessions whose window has elapsed. Safe to run
// concurrently with live requests: each session is expired under the same
// per-session lock the request path takes.
func (o *Orchestrator) ExpireDue(ctx context.Context) (int, error) {
	ids, err := o.store.ListDueSessions(ctx, o.clock(), 100)
	if err != nil {
		return 0, fmt.Errorf("list due sessions: %w", err)
	}

	expired := 0
	for _, id := range ids {
		if err := o.expireOne(ctx, id); err != nil {
			o.logger.Error().Err(err).Str("session_id", id.String()).Msg("expiry sweep failed for session")
			continue
		}
		expired++
	}
	return expired, nil
}

// GetSession returns the session to one of its participants.
func (o *Orchestrator) GetSession(ctx context.Context, sessionID, actorID uuid.UUID) (*models.NegotiationSession, error) {
	sess, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsParticipant(actorID) {
		return nil, ErrNotParticipant
	}
	return sess, nil
}

// ListMessages returns the transcript to one of its participants.
func (o *Orchestrator) ListMessages(ctx context.Context, sessionID, actorID uuid.UUID, limit int) ([]models.Message, error) {
	sess, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsParticipant(actorID) {
		return nil, ErrNotParticipant
	}
	if limit <= 0 || limit > transcriptLimit {
		limit = transcriptLimit
	}
	return o.store.ListMessages(ctx, sessionID, limit)
}

// Stats returns session counts by status.
func (o *Orchestrator) Stats(ctx context.Context) (map[models.SessionStatus]int64, error) {
	return o.store.SessionStats(ctx)
}

func (o *Orchestrator) loadSession(ctx context.Context, id uuid.UUID) (*models.NegotiationSession, error) {
	sess, err := o.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

// expireLocked transitions an active session past its window to expired and
// releases the deposit. Caller holds the session lock.
func (o *Orchestrator) expireLocked(ctx context.Context, sess *models.NegotiationSession) (bool, error) {
	now := o.clock()
	if sess.Status != models.SessionActive || !sess.WindowElapsed(now) {
		return false, nil
	}

	if err := o.deposits.Release(ctx, sess); err != nil {
		return false, err
	}
	sess.Status = models.SessionExpired
	sess.UpdatedAt = now

	if err := o.store.UpdateSession(ctx, sess); err != nil {
		return false, fmt.Errorf("expire session: %w", err)
	}

	metrics.SessionsClosed.WithLabelValues("expired").Inc()
	metrics.DepositsReleased.Inc()
	o.notifier.Publish(ctx, notify.Event{
		Type: notify.EventSessionExpired, SessionID: sess.ID,
		ListingID: sess.ListingID, UserID: sess.InitiatorID, At: now,
	})

	return true, nil
}

func (o *Orchestrator) expireOne(ctx context.Context, id uuid.UUID) error {
	defer o.lock(id)()
	sess, err := o.loadSession(ctx, id)
	if err != nil {
		return err
	}
	_, err = o.expireLocked(ctx, sess)
	return err
}

// recordAgreement moves the session to agreement_reached and immediately
// finalizes it. Finalization failure is logged, not surfaced: the agreement
// stands and Finalize can be replayed.
func (o *Orchestrator) recordAgreement(ctx context.Context, sess *models.NegotiationSession, listing *models.ListingSummary) error {
	if !sess.Status.CanTransitionTo(models.SessionAgreementReached) {
		return fmt.Errorf("%w: agreement from %s", ErrInvalidTransition, sess.Status)
	}

	now := o.clock()
	agreed := *sess.ProposedTerms
	sess.Status = models.SessionAgreementReached
	sess.AgreementReached = true
	sess.AgreedTerms = &agreed
	sess.UpdatedAt = now

	if err := o.store.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("record agreement: %w", err)
	}

	o.notifier.Publish(ctx, notify.Event{
		Type: notify.EventAgreementReached, SessionID: sess.ID,
		ListingID: sess.ListingID, UserID: sess.InitiatorID, At: now,
	})
	o.logger.Info().
		Str("session_id", sess.ID.String()).
		Str("investment", agreed.InvestmentAmount.String()).
		Str("equity_pct", agreed.EquityPct.String()).
		Msg("agreement reached")

	if _, err := o.finalizeLocked(ctx, sess); err != nil {
		o.logger.Error().Err(err).
			Str("session_id", sess.ID.String()).
			Msg("auto-finalize failed, agreement retained for replay")
	}
	return nil
}

func (o *Orchestrator) finalizeLocked(ctx context.Context, sess *models.NegotiationSession) ([]models.SettlementRecord, error) {
	if sess.Status == models.SessionCompleted {
		return o.store.ListSettlements(ctx, sess.ID)
	}
	if !sess.Status.CanTransitionTo(models.SessionCompleted) {
		return nil, fmt.Errorf("%w: finalize from %s", ErrInvalidTransition, sess.Status)
	}

	listing, err := o.store.GetListing(ctx, sess.ListingID)
	if err != nil {
		return nil, fmt.Errorf("load listing: %w", err)
	}

	// The deposit is refundable: on a successful completion it goes back
	// to the investor, and the commission is settled separately.
	wasHeld := sess.DepositStatus == models.DepositHeld
	if err := o.deposits.Release(ctx, sess); err != nil {
		return nil, err
	}

	now := o.clock()
	sess.Status = models.SessionCompleted
	sess.UpdatedAt = now
	sess.CompletedAt = &now

	records, err := o.settler.Settle(ctx, sess, listing)
	if err != nil {
		return nil, err
	}

	metrics.SessionsClosed.WithLabelValues("completed").Inc()
	if wasHeld {
		metrics.DepositsReleased.Inc()
	}
	for _, r := range records {
		metrics.SettlementsIssued.WithLabelValues(string(r.Kind)).Inc()
	}
	o.notifier.Publish(ctx, notify.Event{
		Type: notify.EventSessionCompleted, SessionID: sess.ID,
		ListingID: sess.ListingID, UserID: sess.InitiatorID, At: now,
	})

	return records, nil
}

// respond runs the agent under its timeout and records latency.
func (o *Orchestrator) respond(ctx context.Context, listing *models.ListingSummary, transcript []models.Message, latest string) (*AgentReply, error) {
	agentCtx, cancel := context.WithTimeout(ctx, o.cfg.AgentTimeout)
	defer cancel()

	start := o.clock()
	reply, err := o.agent.Respond(agentCtx, listing, transcript, latest)
	metrics.AgentLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	return reply, nil
}

func (o *Orchestrator) persistMessage(ctx context.Context, sessionID uuid.UUID, role models.SenderRole, text string, at time.Time) error {
	flagged, reasons := o.moderator.Scan(text)
	msg := &models.Message{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Sender:    role,
		Content:   text,
		Flagged:   flagged,
		CreatedAt: at,
	}
	if err := o.store.AppendMessage(ctx, msg); err != nil {
		return err
	}
	metrics.MessagesPosted.WithLabelValues(string(role)).Inc()
	for _, reason := range reasons {
		metrics.MessagesFlagged.WithLabelValues(reason).Inc()
		o.logger.Warn().
			Str("session_id", sessionID.String()).
			Str("message_id", msg.ID).
			Str("reason", reason).
			Msg("message flagged for review")
	}
	return nil
}

func (o *Orchestrator) persistReply(ctx context.Context, sessionID uuid.UUID, text string) (*models.Message, error) {
	flagged, _ := o.moderator.Scan(text)
	msg := &models.Message{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Sender:    models.RoleOwner,
		Content:   text,
		Flagged:   flagged,
		CreatedAt: o.clock(),
	}
	if err := o.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	metrics.MessagesPosted.WithLabelValues(string(models.RoleOwner)).Inc()
	return msg, nil
}

func (o *Orchestrator) counterpart(sess *models.NegotiationSession, actorID uuid.UUID) uuid.UUID {
	if actorID == sess.InitiatorID {
		return sess.OwnerID
	}
	return sess.InitiatorID
}
