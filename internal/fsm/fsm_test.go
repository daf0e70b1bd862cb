package fsm_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/jmerrifield20/certfsm/internal/fsm"
)

func TestStates_fullSet(t *testing.T) {
	want := []fsm.State{
		fsm.StateUnissued, fsm.StateRequesting, fsm.StateValidating,
		fsm.StateIssued, fsm.StateRenewing, fsm.StateRenewed,
		fsm.StateFailed, fsm.StateExpired, fsm.StateRevoked, fsm.StateInvalid,
	}
	got := fsm.States()
	if len(got) != len(want) {
		t.Fatalf("States() returned %d states, want %d", len(got), len(want))
	}
	for i, s := range want {
		if got[i] != s {
			t.Errorf("States()[%d] = %q, want %q", i, got[i], s)
		}
	}
}

func TestApply_exactMatches(t *testing.T) {
	cases := []struct {
		from    fsm.State
		trigger string
		to      fsm.State
	}{
		{fsm.StateUnissued, fsm.TriggerRequestCert, fsm.StateRequesting},
		{fsm.StateValidating, fsm.TriggerValidateOK, fsm.StateIssued},
		{fsm.StateIssued, fsm.TriggerRequestRenewal, fsm.StateRenewing},
		{fsm.StateRenewing, fsm.TriggerRenewSuccess, fsm.StateRenewed},
		{fsm.StateIssued, fsm.TriggerExpiredDetected, fsm.StateExpired},
		{fsm.StateRenewed, fsm.TriggerContinueCycle, fsm.StateIssued},
	}
	for _, c := range cases {
		got, err := fsm.Apply(c.from, c.trigger)
		if err != nil {
			t.Errorf("Apply(%q, %q): %v", c.from, c.trigger, err)
			continue
		}
		if got != c.to {
			t.Errorf("Apply(%q, %q) = %q, want %q", c.from, c.trigger, got, c.to)
		}
	}
}

func TestApply_wildcardFromAnyState(t *testing.T) {
	for _, s := range fsm.States() {
		got, err := fsm.Apply(s, fsm.TriggerManualRevoke)
		if err != nil {
			t.Errorf("manual_revoke from %q: %v", s, err)
			continue
		}
		if got != fsm.StateRevoked {
			t.Errorf("manual_revoke from %q = %q, want revoked", s, got)
		}

		got, err = fsm.Apply(s, fsm.TriggerInvalidate)
		if err != nil {
			t.Errorf("invalidate from %q: %v", s, err)
			continue
		}
		if got != fsm.StateInvalid {
			t.Errorf("invalidate from %q = %q, want invalid", s, got)
		}
	}
}

func TestApply_sourceMismatch(t *testing.T) {
	// validate_ok is declared from validating only.
	_, err := fsm.Apply(fsm.StateRequesting, fsm.TriggerValidateOK)
	if !errors.Is(err, fsm.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if !strings.Contains(err.Error(), "not allowed from state") {
		t.Errorf("source mismatch should name the state, got %q", err.Error())
	}
}

func TestApply_unknownTrigger(t *testing.T) {
	_, err := fsm.Apply(fsm.StateUnissued, "teleport")
	if !errors.Is(err, fsm.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if !strings.Contains(err.Error(), "unknown trigger") {
		t.Errorf("unknown trigger should be called out, got %q", err.Error())
	}
}

func TestApply_noOutgoingFromTerminalStates(t *testing.T) {
	// Nothing leaves revoked or invalid except the wildcard triggers.
	for _, s := range []fsm.State{fsm.StateRevoked, fsm.StateInvalid} {
		for _, trigger := range []string{
			fsm.TriggerRequestCert, fsm.TriggerValidateOK, fsm.TriggerRequestRenewal,
			fsm.TriggerRenewSuccess, fsm.TriggerExpiredDetected, fsm.TriggerContinueCycle,
		} {
			if _, err := fsm.Apply(s, trigger); !errors.Is(err, fsm.ErrInvalidTransition) {
				t.Errorf("Apply(%q, %q): expected rejection, got %v", s, trigger, err)
			}
		}
	}
}

func TestApply_destinationsAlwaysValidStates(t *testing.T) {
	for _, s := range fsm.States() {
		for _, tr := range fsm.Transitions() {
			next, err := fsm.Apply(s, tr.Trigger)
			if err != nil {
				continue
			}
			if !fsm.ValidState(next) {
				t.Errorf("Apply(%q, %q) produced undeclared state %q", s, tr.Trigger, next)
			}
		}
	}
}

func TestTransitions_wildcardRowsFlagged(t *testing.T) {
	wildcards := 0
	for _, tr := range fsm.Transitions() {
		if tr.AnySource {
			wildcards++
			if tr.Source != fsm.SourceAny {
				t.Errorf("wildcard row %q renders source %q, want %q", tr.Trigger, tr.Source, fsm.SourceAny)
			}
		}
	}
	if wildcards != 2 {
		t.Errorf("expected 2 wildcard transitions, got %d", wildcards)
	}
}

func TestAvailableFrom_issued(t *testing.T) {
	got, err := fsm.AvailableFrom(fsm.StateIssued)
	if err != nil {
		t.Fatalf("AvailableFrom: %v", err)
	}
	// request_renewal + expired_detected + both wildcards.
	want := map[string]fsm.State{
		fsm.TriggerRequestRenewal:  fsm.StateRenewing,
		fsm.TriggerExpiredDetected: fsm.StateExpired,
		fsm.TriggerManualRevoke:    fsm.StateRevoked,
		fsm.TriggerInvalidate:      fsm.StateInvalid,
	}
	if len(got) != len(want) {
		t.Fatalf("AvailableFrom(issued) returned %d transitions, want %d", len(got), len(want))
	}
	for _, at := range got {
		dest, ok := want[at.Trigger]
		if !ok {
			t.Errorf("unexpected trigger %q from issued", at.Trigger)
			continue
		}
		if at.Dest != dest {
			t.Errorf("trigger %q dest = %q, want %q", at.Trigger, at.Dest, dest)
		}
		if at.Description == "" {
			t.Errorf("trigger %q has empty description", at.Trigger)
		}
	}
}

func TestAvailableFrom_unknownState(t *testing.T) {
	if _, err := fsm.AvailableFrom("limbo"); !errors.Is(err, fsm.ErrUnknownState) {
		t.Errorf("expected ErrUnknownState, got %v", err)
	}
}

func TestDescribe_fallbackHumanizes(t *testing.T) {
	if got := fsm.Describe(fsm.TriggerManualRevoke); got != "Manually revoke certificate" {
		t.Errorf("Describe(manual_revoke) = %q", got)
	}
	if got := fsm.Describe("force_reissue"); got != "Force reissue" {
		t.Errorf("Describe fallback = %q, want %q", got, "Force reissue")
	}
}
