package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTransitionTable(t *testing.T) {
	all := []SessionStatus{
		SessionPending, SessionActive, SessionAgreementReached,
		SessionCompleted, SessionExpired, SessionCancelled,
	}

	allowed := map[SessionStatus]map[SessionStatus]bool{
		SessionPending:          {SessionActive: true, SessionCancelled: true},
		SessionActive:           {SessionAgreementReached: true, SessionExpired: true, SessionCancelled: true},
		SessionAgreementReached: {SessionCompleted: true},
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[from][to]
			if got := from.CanTransitionTo(to); got != want {
				t.Errorf("%s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := []SessionStatus{SessionCompleted, SessionExpired, SessionCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	open := []SessionStatus{SessionPending, SessionActive, SessionAgreementReached}
	for _, s := range open {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestIsParticipant(t *testing.T) {
	investor := uuid.New()
	owner := uuid.New()
	sess := &NegotiationSession{InitiatorID: investor, OwnerID: owner}

	if !sess.IsParticipant(investor) || !sess.IsParticipant(owner) {
		t.Fatal("both sides should be participants")
	}
	if sess.IsParticipant(uuid.New()) {
		t.Fatal("stranger should not be a participant")
	}
}

func TestWindowElapsed(t *testing.T) {
	now := time.Now()

	sess := &NegotiationSession{}
	if sess.WindowElapsed(now) {
		t.Fatal("session without a window should never elapse")
	}

	end := now.Add(-time.Minute)
	sess.WindowEnd = &end
	if !sess.WindowElapsed(now) {
		t.Fatal("past window end should elapse")
	}

	end = now.Add(time.Minute)
	if sess.WindowElapsed(now) {
		t.Fatal("future window end should not elapse")
	}
}
