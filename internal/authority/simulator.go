// Package authority implements the certificate authority simulator. It
// stands in for a real issuing service: operations succeed with a
// configurable probability after a configurable delay, and the simulator
// keeps its own per-domain record of what it has issued — a source of
// truth independent of the lifecycle state stored on the domain record.
package authority

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// certLifetime is how long a freshly issued certificate is valid,
	// and how much each successful renewal adds to the prior expiry.
	certLifetime = 90 * 24 * time.Hour

	// expiryWarningWindow is the horizon inside which Check reports
	// expiring_soon instead of valid.
	expiryWarningWindow = 30 * 24 * time.Hour
)

// Status is the simulator-local certificate status. It is deliberately a
// smaller vocabulary than the lifecycle states.
type Status string

const (
	StatusIssued  Status = "issued"
	StatusRevoked Status = "revoked"
)

// CheckStatus classifies the outcome of a Check call.
type CheckStatus string

const (
	CheckNotFound     CheckStatus = "not_found"
	CheckRevoked      CheckStatus = "revoked"
	CheckExpired      CheckStatus = "expired"
	CheckExpiringSoon CheckStatus = "expiring_soon"
	CheckValid        CheckStatus = "valid"
)

// Record is the simulator's view of one domain's certificate. Created on
// the first successful issuance and never deleted; revocation only flips
// Status.
type Record struct {
	Status    Status
	ExpiresAt time.Time
	IssuedAt  time.Time
	RenewedAt time.Time
	RevokedAt time.Time
}

// CheckResult is the outcome of a Check call. ExpiresAt is nil when the
// simulator has no expiry to report (not_found, revoked). Valid is true
// only for valid and expiring_soon.
type CheckResult struct {
	Status    CheckStatus
	Valid     bool
	ExpiresAt *time.Time
}

// ErrNoCertificate is returned by Renew and Revoke when the simulator has
// no record for the domain. These rejections are immediate: no simulated
// delay is consumed.
var ErrNoCertificate = errors.New("no certificate found")

// Simulator is a thread-safe certificate authority simulator keyed by
// domain. Randomness, wall clock, and the delay sleep are injectable so
// tests can run deterministically with zero latency.
type Simulator struct {
	successRate float64
	delay       time.Duration
	logger      *zap.Logger

	randFloat func() float64
	now       func() time.Time
	sleep     func(time.Duration)

	mu    sync.Mutex
	certs map[string]*Record
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithRand replaces the success-roll source. The function must return
// values in [0, 1); an operation succeeds when the roll is below the
// configured success rate.
func WithRand(fn func() float64) Option {
	return func(s *Simulator) { s.randFloat = fn }
}

// WithClock replaces the wall clock.
func WithClock(fn func() time.Time) Option {
	return func(s *Simulator) { s.now = fn }
}

// WithSleep replaces the function used to block for the configured delay.
func WithSleep(fn func(time.Duration)) Option {
	return func(s *Simulator) { s.sleep = fn }
}

// New creates a Simulator. successRate must be in [0, 1]; 1.0 makes every
// operation succeed and 0.0 makes every operation fail.
func New(successRate float64, delay time.Duration, logger *zap.Logger, opts ...Option) *Simulator {
	s := &Simulator{
		successRate: successRate,
		delay:       delay,
		logger:      logger,
		randFloat:   rand.Float64,
		now:         time.Now,
		sleep:       time.Sleep,
		certs:       make(map[string]*Record),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue simulates issuing a new certificate for domain. On success the
// simulator records a 90-day certificate (overwriting any prior record)
// and returns its expiry. On a failed roll no record is created and the
// returned error carries the failure message. The call blocks for the
// configured delay either way. Once started it runs to completion; ctx is
// accepted for interface symmetry but does not abort the operation.
func (s *Simulator) Issue(_ context.Context, domain string) (time.Time, error) {
	s.logger.Info("issuing certificate", zap.String("domain", domain))
	s.sleep(s.delay)

	if s.randFloat() >= s.successRate {
		err := fmt.Errorf("failed to complete challenge for %s", domain)
		s.logger.Error("certificate issuance failed", zap.String("domain", domain), zap.Error(err))
		return time.Time{}, err
	}

	now := s.now().UTC()
	expiry := now.Add(certLifetime)

	s.mu.Lock()
	s.certs[domain] = &Record{
		Status:    StatusIssued,
		ExpiresAt: expiry,
		IssuedAt:  now,
	}
	s.mu.Unlock()

	s.logger.Info("certificate issued",
		zap.String("domain", domain),
		zap.Time("expires_at", expiry),
	)
	return expiry, nil
}

// Renew simulates renewing domain's certificate. A successful renewal
// compounds: the new expiry is the previously stored expiry plus 90 days,
// not 90 days from now. Returns ErrNoCertificate immediately (no delay)
// when the simulator holds no record for the domain.
func (s *Simulator) Renew(_ context.Context, domain string) (time.Time, error) {
	s.logger.Info("renewing certificate", zap.String("domain", domain))

	s.mu.Lock()
	_, ok := s.certs[domain]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, fmt.Errorf("%w for %s", ErrNoCertificate, domain)
	}

	s.sleep(s.delay)

	if s.randFloat() >= s.successRate {
		err := fmt.Errorf("failed to renew certificate for %s", domain)
		s.logger.Error("certificate renewal failed", zap.String("domain", domain), zap.Error(err))
		return time.Time{}, err
	}

	s.mu.Lock()
	cert, ok := s.certs[domain]
	if !ok {
		s.mu.Unlock()
		return time.Time{}, fmt.Errorf("%w for %s", ErrNoCertificate, domain)
	}
	cert.ExpiresAt = cert.ExpiresAt.Add(certLifetime)
	cert.RenewedAt = s.now().UTC()
	newExpiry := cert.ExpiresAt
	s.mu.Unlock()

	s.logger.Info("certificate renewed",
		zap.String("domain", domain),
		zap.Time("expires_at", newExpiry),
	)
	return newExpiry, nil
}

// Revoke simulates revoking domain's certificate. On success the record's
// status flips to revoked; the record itself is never deleted. Returns
// ErrNoCertificate immediately (no delay) when no record exists.
func (s *Simulator) Revoke(_ context.Context, domain string) error {
	s.logger.Info("revoking certificate", zap.String("domain", domain))

	s.mu.Lock()
	_, ok := s.certs[domain]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w for %s", ErrNoCertificate, domain)
	}

	s.sleep(s.delay)

	if s.randFloat() >= s.successRate {
		err := fmt.Errorf("failed to revoke certificate for %s", domain)
		s.logger.Error("certificate revocation failed", zap.String("domain", domain), zap.Error(err))
		return err
	}

	s.mu.Lock()
	if cert, ok := s.certs[domain]; ok {
		cert.Status = StatusRevoked
		cert.RevokedAt = s.now().UTC()
	}
	s.mu.Unlock()

	s.logger.Info("certificate revoked", zap.String("domain", domain))
	return nil
}

// Check reports the simulator's view of domain's certificate. It involves
// no delay and no randomness: revoked beats everything, then the stored
// expiry is classified against the wall clock and the 30-day warning
// window.
func (s *Simulator) Check(_ context.Context, domain string) CheckResult {
	s.mu.Lock()
	cert, ok := s.certs[domain]
	var snapshot Record
	if ok {
		snapshot = *cert
	}
	s.mu.Unlock()

	if !ok {
		return CheckResult{Status: CheckNotFound}
	}
	if snapshot.Status == StatusRevoked {
		return CheckResult{Status: CheckRevoked}
	}

	expiresAt := snapshot.ExpiresAt
	now := s.now().UTC()
	switch {
	case expiresAt.Before(now):
		return CheckResult{Status: CheckExpired, ExpiresAt: &expiresAt}
	case expiresAt.Before(now.Add(expiryWarningWindow)):
		return CheckResult{Status: CheckExpiringSoon, Valid: true, ExpiresAt: &expiresAt}
	default:
		return CheckResult{Status: CheckValid, Valid: true, ExpiresAt: &expiresAt}
	}
}

// Record returns a copy of the simulator's record for domain, if any.
func (s *Simulator) Record(domain string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cert, ok := s.certs[domain]
	if !ok {
		return Record{}, false
	}
	return *cert, true
}
