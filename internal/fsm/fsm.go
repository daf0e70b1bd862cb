// Package fsm defines the certificate lifecycle state machine: the set of
// legal states a domain's certificate can be in and the declarative
// transition table between them. The package is pure — it performs no I/O
// and holds no per-domain state.
package fsm

import (
	"errors"
	"fmt"
	"strings"
)

// State is a certificate lifecycle state.
type State string

// All certificate lifecycle states.
const (
	StateUnissued   State = "unissued"
	StateRequesting State = "requesting"
	StateValidating State = "validating"
	StateIssued     State = "issued"
	StateRenewing   State = "renewing"
	StateRenewed    State = "renewed"
	StateFailed     State = "failed"
	StateExpired    State = "expired"
	StateRevoked    State = "revoked"
	StateInvalid    State = "invalid"
)

// SourceAny is the wildcard source rendered in transition listings for
// transitions that may fire from any state.
const SourceAny State = "*"

// Triggers recognised by the transition table.
const (
	TriggerRequestCert     = "request_cert"
	TriggerValidateOK      = "validate_ok"
	TriggerRequestRenewal  = "request_renewal"
	TriggerRenewSuccess    = "renew_success"
	TriggerExpiredDetected = "expired_detected"
	TriggerManualRevoke    = "manual_revoke"
	TriggerInvalidate      = "invalidate"
	TriggerContinueCycle   = "continue_cycle"
)

// Transition is one row of the transition table. AnySource marks a
// wildcard row; such rows carry SourceAny as their Source and are only
// consulted after every exact-source row has failed to match.
type Transition struct {
	Trigger   string `json:"trigger"`
	Source    State  `json:"source"`
	Dest      State  `json:"dest"`
	AnySource bool   `json:"-"`
}

// AvailableTransition describes a transition that can fire from a given
// state, decorated for display.
type AvailableTransition struct {
	Trigger     string `json:"trigger"`
	Dest        State  `json:"dest"`
	Description string `json:"description"`
}

// ErrInvalidTransition is wrapped by every rejection from Apply: both a
// trigger the table does not know and a known trigger fired from a state
// it is not declared for.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrUnknownState is returned by AvailableFrom for a state outside the
// declared state set.
var ErrUnknownState = errors.New("unknown state")

var states = []State{
	StateUnissued,
	StateRequesting,
	StateValidating,
	StateIssued,
	StateRenewing,
	StateRenewed,
	StateFailed,
	StateExpired,
	StateRevoked,
	StateInvalid,
}

var transitions = []Transition{
	{Trigger: TriggerRequestCert, Source: StateUnissued, Dest: StateRequesting},
	{Trigger: TriggerValidateOK, Source: StateValidating, Dest: StateIssued},
	{Trigger: TriggerRequestRenewal, Source: StateIssued, Dest: StateRenewing},
	{Trigger: TriggerRenewSuccess, Source: StateRenewing, Dest: StateRenewed},
	{Trigger: TriggerExpiredDetected, Source: StateIssued, Dest: StateExpired},
	{Trigger: TriggerManualRevoke, Source: SourceAny, Dest: StateRevoked, AnySource: true},
	{Trigger: TriggerInvalidate, Source: SourceAny, Dest: StateInvalid, AnySource: true},
	{Trigger: TriggerContinueCycle, Source: StateRenewed, Dest: StateIssued},
}

var descriptions = map[string]string{
	TriggerRequestCert:     "Request a new certificate",
	TriggerValidateOK:      "Validation completed successfully",
	TriggerRequestRenewal:  "Request certificate renewal",
	TriggerRenewSuccess:    "Certificate renewed successfully",
	TriggerExpiredDetected: "Certificate has expired",
	TriggerManualRevoke:    "Manually revoke certificate",
	TriggerInvalidate:      "Mark certificate as invalid",
	TriggerContinueCycle:   "Continue to normal certificate lifecycle",
}

// States returns the full state set in declaration order.
func States() []State {
	out := make([]State, len(states))
	copy(out, states)
	return out
}

// Transitions returns the full transition table in declaration order.
func Transitions() []Transition {
	out := make([]Transition, len(transitions))
	copy(out, transitions)
	return out
}

// ValidState reports whether s is a member of the declared state set.
func ValidState(s State) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

// Apply resolves trigger against the transition table from the given
// current state and returns the destination state. Exact-source rows are
// matched before wildcard rows so the outcome is deterministic when both
// could apply. Rejections wrap ErrInvalidTransition and distinguish a
// trigger the table does not declare at all from one that is declared but
// not legal from the current state.
func Apply(current State, trigger string) (State, error) {
	known := false
	for _, t := range transitions {
		if t.Trigger != trigger {
			continue
		}
		known = true
		if !t.AnySource && t.Source == current {
			return t.Dest, nil
		}
	}
	for _, t := range transitions {
		if t.Trigger == trigger && t.AnySource {
			return t.Dest, nil
		}
	}
	if !known {
		return "", fmt.Errorf("%w: unknown trigger %q", ErrInvalidTransition, trigger)
	}
	return "", fmt.Errorf("%w: trigger %q is not allowed from state %q", ErrInvalidTransition, trigger, current)
}

// AvailableFrom returns the transitions that can fire from the given
// state: every row whose source matches exactly plus every wildcard row,
// each decorated with a human-readable description.
func AvailableFrom(state State) ([]AvailableTransition, error) {
	if !ValidState(state) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownState, state)
	}
	var out []AvailableTransition
	for _, t := range transitions {
		if t.AnySource || t.Source == state {
			out = append(out, AvailableTransition{
				Trigger:     t.Trigger,
				Dest:        t.Dest,
				Description: Describe(t.Trigger),
			})
		}
	}
	return out, nil
}

// Describe returns the human-readable description for a trigger, falling
// back to a humanized form of the trigger name for unmapped triggers.
func Describe(trigger string) string {
	if d, ok := descriptions[trigger]; ok {
		return d
	}
	human := strings.ReplaceAll(trigger, "_", " ")
	if human == "" {
		return human
	}
	return strings.ToUpper(human[:1]) + human[1:]
}
