package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/certfsm/internal/fsm"
)

// DomainRecord is the durable per-domain certificate lifecycle record.
// Domain is the unique key and is immutable after creation. ExpiresAt is
// the authoritative expiry as last observed from the certificate
// authority; it can lag behind the authority's own view until a status
// check reconciles them.
type DomainRecord struct {
	ID          uuid.UUID  `json:"id"`
	Domain      string     `json:"domain"`
	State       fsm.State  `json:"state"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastError   *string    `json:"last_error,omitempty"`
	LastChecked *time.Time `json:"last_checked,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
