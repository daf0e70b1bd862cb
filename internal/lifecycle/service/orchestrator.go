// Package service implements the lifecycle orchestrator: the
// precondition-gated workflows that drive certificate authority
// operations and reconcile their outcomes back into the durable
// per-domain state.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmerrifield20/certfsm/internal/authority"
	"github.com/jmerrifield20/certfsm/internal/fsm"
	"github.com/jmerrifield20/certfsm/internal/lifecycle/model"
	"github.com/jmerrifield20/certfsm/internal/lifecycle/repository"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// domainStore is the storage interface required by LifecycleService.
// *repository.DomainRepository and *repository.MemoryDomainRepository
// both satisfy it.
type domainStore interface {
	Create(ctx context.Context, rec *model.DomainRecord) error
	GetByDomain(ctx context.Context, domain string) (*model.DomainRecord, error)
	List(ctx context.Context) ([]*model.DomainRecord, error)
	Update(ctx context.Context, rec *model.DomainRecord) error
}

// certAuthority is the authority interface required by LifecycleService.
// *authority.Simulator satisfies it; tests substitute deterministic stubs.
type certAuthority interface {
	Issue(ctx context.Context, domain string) (time.Time, error)
	Renew(ctx context.Context, domain string) (time.Time, error)
	Revoke(ctx context.Context, domain string) error
	Check(ctx context.Context, domain string) authority.CheckResult
}

// Sentinel errors for the lifecycle service.
var (
	ErrDomainNotFound      = errors.New("domain not found")
	ErrDomainExists        = errors.New("domain already exists")
	ErrInvalidPrecondition = errors.New("operation not allowed")
)

// Orchestrated operations may only start from these states. These are
// business rules layered above the transition table and are deliberately
// not derived from it: issuance restarts from failed and expired even
// though the table declares no edge out of either.
var (
	issueAllowedFrom  = map[fsm.State]bool{fsm.StateUnissued: true, fsm.StateFailed: true, fsm.StateExpired: true}
	renewAllowedFrom  = map[fsm.State]bool{fsm.StateIssued: true}
	revokeAllowedFrom = map[fsm.State]bool{fsm.StateIssued: true, fsm.StateRenewed: true}
)

// StatusReport is the payload returned by a synchronous status check.
type StatusReport struct {
	Domain    string                `json:"domain"`
	IsValid   bool                  `json:"is_valid"`
	Status    authority.CheckStatus `json:"status"`
	ExpiresAt *time.Time            `json:"expires_at"`
	State     fsm.State             `json:"state"`
}

// LifecycleService coordinates domain record state with certificate
// authority operations. Issue, renewal, and revocation run as deferred
// work: the Start* methods validate the precondition synchronously,
// schedule the operation, and return immediately; the deferred operation
// persists its own intermediate and terminal states. All state-affecting
// work on a domain is serialized through a per-domain mutex so two
// deferred operations on the same domain cannot interleave.
type LifecycleService struct {
	store  domainStore
	ca     certAuthority
	logger *zap.Logger

	locks *xsync.MapOf[string, *sync.Mutex]
	wg    sync.WaitGroup
}

// NewLifecycleService creates a LifecycleService.
func NewLifecycleService(store domainStore, ca certAuthority, logger *zap.Logger) *LifecycleService {
	return &LifecycleService{
		store:  store,
		ca:     ca,
		logger: logger,
		locks:  xsync.NewMapOf[string, *sync.Mutex](),
	}
}

// lock acquires the mutex serializing state-affecting operations for a
// domain, creating it on first use. Locks are never removed; the registry
// grows with the domain table, which is bounded by design.
func (s *LifecycleService) lock(domain string) *sync.Mutex {
	mu, _ := s.locks.LoadOrCompute(domain, func() *sync.Mutex { return &sync.Mutex{} })
	mu.Lock()
	return mu
}

// Wait blocks until every scheduled deferred operation has completed.
// Called on shutdown to drain in-flight work, and by tests to observe
// terminal states.
func (s *LifecycleService) Wait() {
	s.wg.Wait()
}

// CreateDomain registers a new domain in the unissued state.
func (s *LifecycleService) CreateDomain(ctx context.Context, domain string) (*model.DomainRecord, error) {
	if domain == "" {
		return nil, fmt.Errorf("domain must not be empty")
	}

	rec := &model.DomainRecord{Domain: domain, State: fsm.StateUnissued}
	if err := s.store.Create(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrDomainExists) {
			return nil, ErrDomainExists
		}
		return nil, fmt.Errorf("create domain: %w", err)
	}

	s.logger.Info("domain registered", zap.String("domain", domain))
	return rec, nil
}

// GetDomain returns the record for a domain.
func (s *LifecycleService) GetDomain(ctx context.Context, domain string) (*model.DomainRecord, error) {
	rec, err := s.store.GetByDomain(ctx, domain)
	if err != nil {
		if errors.Is(err, repository.ErrDomainNotFound) {
			return nil, ErrDomainNotFound
		}
		return nil, fmt.Errorf("get domain: %w", err)
	}
	return rec, nil
}

// ListDomains returns all registered domain records.
func (s *LifecycleService) ListDomains(ctx context.Context) ([]*model.DomainRecord, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	return recs, nil
}

// ApplyTrigger fires a raw state machine trigger against a domain. This
// is a pure table-driven edge traversal: it drives no authority call and
// is intentionally independent of the orchestrated preconditions.
func (s *LifecycleService) ApplyTrigger(ctx context.Context, domain, trigger string) (*model.DomainRecord, error) {
	mu := s.lock(domain)
	defer mu.Unlock()

	rec, err := s.GetDomain(ctx, domain)
	if err != nil {
		return nil, err
	}

	next, err := fsm.Apply(rec.State, trigger)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec.State = next
	rec.LastChecked = &now
	rec.UpdatedAt = now
	if err := s.store.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist transition: %w", err)
	}

	s.logger.Info("transition applied",
		zap.String("domain", domain),
		zap.String("trigger", trigger),
		zap.String("new_state", string(next)),
	)
	return rec, nil
}

// StartIssue validates that issuance may begin for the domain and
// schedules the deferred issuance operation. It returns the domain's
// state at scheduling time. Issuance is allowed from unissued, failed,
// and expired.
func (s *LifecycleService) StartIssue(ctx context.Context, domain string) (fsm.State, error) {
	rec, err := s.GetDomain(ctx, domain)
	if err != nil {
		return "", err
	}
	if !issueAllowedFrom[rec.State] {
		return "", fmt.Errorf("%w: cannot issue certificate for domain in state %q", ErrInvalidPrecondition, rec.State)
	}

	s.schedule(domain, "issuance", s.performIssue)
	return rec.State, nil
}

// StartRenew validates that renewal may begin for the domain and
// schedules the deferred renewal operation. Renewal is allowed from
// issued only.
func (s *LifecycleService) StartRenew(ctx context.Context, domain string) (fsm.State, error) {
	rec, err := s.GetDomain(ctx, domain)
	if err != nil {
		return "", err
	}
	if !renewAllowedFrom[rec.State] {
		return "", fmt.Errorf("%w: cannot renew certificate for domain in state %q", ErrInvalidPrecondition, rec.State)
	}

	s.schedule(domain, "renewal", s.performRenew)
	return rec.State, nil
}

// StartRevoke validates that revocation may begin for the domain and
// schedules the deferred revocation operation. Revocation is allowed from
// issued and renewed.
func (s *LifecycleService) StartRevoke(ctx context.Context, domain string) (fsm.State, error) {
	rec, err := s.GetDomain(ctx, domain)
	if err != nil {
		return "", err
	}
	if !revokeAllowedFrom[rec.State] {
		return "", fmt.Errorf("%w: cannot revoke certificate for domain in state %q", ErrInvalidPrecondition, rec.State)
	}

	s.schedule(domain, "revocation", s.performRevoke)
	return rec.State, nil
}

// schedule runs op in its own goroutine, detached from the triggering
// request. Deferred work runs to completion: there is no cancellation
// path, so it gets a fresh background context rather than the request's.
func (s *LifecycleService) schedule(domain, name string, op func(ctx context.Context, domain string)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("starting certificate "+name, zap.String("domain", domain))
		op(context.Background(), domain)
	}()
}

// performIssue is the deferred issuance operation: transition to
// requesting, call the authority, then settle into issued or failed.
func (s *LifecycleService) performIssue(ctx context.Context, domain string) {
	mu := s.lock(domain)
	defer mu.Unlock()

	rec, err := s.store.GetByDomain(ctx, domain)
	if err != nil {
		s.logger.Error("issuance: load domain record", zap.String("domain", domain), zap.Error(err))
		return
	}

	rec.State = fsm.StateRequesting
	rec.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, rec); err != nil {
		s.logger.Error("issuance: persist requesting state", zap.String("domain", domain), zap.Error(err))
		return
	}

	expiry, issueErr := s.ca.Issue(ctx, domain)
	s.settle(ctx, rec, issueErr, func() {
		rec.State = fsm.StateIssued
		rec.ExpiresAt = &expiry
	})
}

// performRenew is the deferred renewal operation: transition to renewing,
// call the authority, then settle into renewed or failed.
func (s *LifecycleService) performRenew(ctx context.Context, domain string) {
	mu := s.lock(domain)
	defer mu.Unlock()

	rec, err := s.store.GetByDomain(ctx, domain)
	if err != nil {
		s.logger.Error("renewal: load domain record", zap.String("domain", domain), zap.Error(err))
		return
	}

	rec.State = fsm.StateRenewing
	rec.UpdatedAt = time.Now().UTC()
	if err := s.store.Update(ctx, rec); err != nil {
		s.logger.Error("renewal: persist renewing state", zap.String("domain", domain), zap.Error(err))
		return
	}

	expiry, renewErr := s.ca.Renew(ctx, domain)
	s.settle(ctx, rec, renewErr, func() {
		rec.State = fsm.StateRenewed
		rec.ExpiresAt = &expiry
	})
}

// performRevoke is the deferred revocation operation. Unlike issuance and
// renewal it writes no intermediate state before the authority call; the
// record stays in its prior state until the outcome lands.
func (s *LifecycleService) performRevoke(ctx context.Context, domain string) {
	mu := s.lock(domain)
	defer mu.Unlock()

	rec, err := s.store.GetByDomain(ctx, domain)
	if err != nil {
		s.logger.Error("revocation: load domain record", zap.String("domain", domain), zap.Error(err))
		return
	}

	revokeErr := s.ca.Revoke(ctx, domain)
	s.settle(ctx, rec, revokeErr, func() {
		rec.State = fsm.StateRevoked
	})
}

// settle applies the terminal state of a deferred operation and persists
// it. On authority success onSuccess mutates the record and the last
// error is cleared; on failure the record lands in failed with the error
// message recorded. Timestamps are refreshed either way.
func (s *LifecycleService) settle(ctx context.Context, rec *model.DomainRecord, opErr error, onSuccess func()) {
	if opErr == nil {
		onSuccess()
		rec.LastError = nil
	} else {
		msg := opErr.Error()
		rec.State = fsm.StateFailed
		rec.LastError = &msg
	}

	now := time.Now().UTC()
	rec.LastChecked = &now
	rec.UpdatedAt = now

	if err := s.store.Update(ctx, rec); err != nil {
		s.logger.Error("persist operation outcome", zap.String("domain", rec.Domain), zap.Error(err))
		return
	}

	s.logger.Info("certificate operation completed",
		zap.String("domain", rec.Domain),
		zap.String("state", string(rec.State)),
		zap.Error(opErr),
	)
}

// Check performs a synchronous status check against the authority and
// reconciles the expired case: a certificate the authority considers
// expired moves the record into the expired state unless it is already
// there. The authority-reported expiry and the last-checked timestamp are
// always refreshed. Other divergences between the authority's view and
// the record state are reported but not reconciled.
func (s *LifecycleService) Check(ctx context.Context, domain string) (*StatusReport, error) {
	mu := s.lock(domain)
	defer mu.Unlock()

	rec, err := s.GetDomain(ctx, domain)
	if err != nil {
		return nil, err
	}

	res := s.ca.Check(ctx, domain)

	now := time.Now().UTC()
	rec.LastChecked = &now
	if res.Status == authority.CheckExpired && rec.State != fsm.StateExpired {
		rec.State = fsm.StateExpired
		rec.UpdatedAt = now
	}
	if res.ExpiresAt != nil {
		rec.ExpiresAt = res.ExpiresAt
	}
	if err := s.store.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist status check: %w", err)
	}

	return &StatusReport{
		Domain:    domain,
		IsValid:   res.Valid,
		Status:    res.Status,
		ExpiresAt: res.ExpiresAt,
		State:     rec.State,
	}, nil
}

// CheckAll runs a status check over every registered domain. Used by the
// background expiry sweep so expired certificates are detected without a
// caller polling. Returns the number of domains checked.
func (s *LifecycleService) CheckAll(ctx context.Context) (int, error) {
	recs, err := s.ListDomains(ctx)
	if err != nil {
		return 0, err
	}
	checked := 0
	for _, rec := range recs {
		if _, err := s.Check(ctx, rec.Domain); err != nil {
			s.logger.Warn("sweep: status check failed",
				zap.String("domain", rec.Domain),
				zap.Error(err),
			)
			continue
		}
		checked++
	}
	return checked, nil
}
