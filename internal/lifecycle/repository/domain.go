package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/certfsm/internal/fsm"
	"github.com/jmerrifield20/certfsm/internal/lifecycle/model"
)

// ErrDomainNotFound is returned when no record exists for a domain.
var ErrDomainNotFound = errors.New("domain not found")

// ErrDomainExists is returned when creating a record for a domain that is
// already registered.
var ErrDomainExists = errors.New("domain already exists")

// DomainRepository provides persistence for domain lifecycle records
// against PostgreSQL.
type DomainRepository struct {
	db *pgxpool.Pool
}

// NewDomainRepository creates a new DomainRepository.
func NewDomainRepository(db *pgxpool.Pool) *DomainRepository {
	return &DomainRepository{db: db}
}

// Create inserts a new domain record in its initial state.
func (r *DomainRepository) Create(ctx context.Context, rec *model.DomainRecord) error {
	rec.ID = uuid.New()
	if rec.State == "" {
		rec.State = fsm.StateUnissued
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := r.db.Exec(ctx,
		`INSERT INTO cert_domains (id, domain, state, expires_at, last_error, last_checked, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.Domain, rec.State, rec.ExpiresAt, rec.LastError, rec.LastChecked, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDomainExists
		}
		return fmt.Errorf("insert domain record: %w", err)
	}
	return nil
}

// GetByDomain returns the record for the given domain.
func (r *DomainRepository) GetByDomain(ctx context.Context, domain string) (*model.DomainRecord, error) {
	rec := &model.DomainRecord{}
	err := r.db.QueryRow(ctx,
		`SELECT id, domain, state, expires_at, last_error, last_checked, created_at, updated_at
		 FROM cert_domains WHERE domain = $1`, domain,
	).Scan(&rec.ID, &rec.Domain, &rec.State, &rec.ExpiresAt, &rec.LastError, &rec.LastChecked, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDomainNotFound
		}
		return nil, fmt.Errorf("get domain record: %w", err)
	}
	return rec, nil
}

// List returns all domain records ordered by creation time.
func (r *DomainRepository) List(ctx context.Context) ([]*model.DomainRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, domain, state, expires_at, last_error, last_checked, created_at, updated_at
		 FROM cert_domains ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("list domain records: %w", err)
	}
	defer rows.Close()

	var out []*model.DomainRecord
	for rows.Next() {
		rec := &model.DomainRecord{}
		if err := rows.Scan(&rec.ID, &rec.Domain, &rec.State, &rec.ExpiresAt, &rec.LastError, &rec.LastChecked, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan domain record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domain records: %w", err)
	}
	return out, nil
}

// Update persists the mutable lifecycle fields of a record, keyed by
// domain. Domain and created_at never change after creation.
func (r *DomainRepository) Update(ctx context.Context, rec *model.DomainRecord) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE cert_domains
		 SET state = $2, expires_at = $3, last_error = $4, last_checked = $5, updated_at = $6
		 WHERE domain = $1`,
		rec.Domain, rec.State, rec.ExpiresAt, rec.LastError, rec.LastChecked, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update domain record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDomainNotFound
	}
	return nil
}
