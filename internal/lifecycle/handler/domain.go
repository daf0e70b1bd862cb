package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/certfsm/internal/fsm"
	"github.com/jmerrifield20/certfsm/internal/lifecycle/service"
	"go.uber.org/zap"
)

// DomainHandler handles domain registration, listing, and the raw FSM
// transition endpoint.
type DomainHandler struct {
	svc    *service.LifecycleService
	logger *zap.Logger
}

// NewDomainHandler creates a new DomainHandler.
func NewDomainHandler(svc *service.LifecycleService, logger *zap.Logger) *DomainHandler {
	return &DomainHandler{svc: svc, logger: logger}
}

// Register mounts the domain routes on the given router group.
func (h *DomainHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/domains/:domain", h.CreateDomain)
	rg.GET("/domains/", h.ListDomains)
	rg.POST("/domains/:domain/transition/:event", h.Transition)
}

// CreateDomain handles POST /domains/:domain — registers a new domain in
// the unissued state.
func (h *DomainHandler) CreateDomain(c *gin.Context) {
	domain := c.Param("domain")

	rec, err := h.svc.CreateDomain(c.Request.Context(), domain)
	if err != nil {
		if errors.Is(err, service.ErrDomainExists) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "domain already exists"})
			return
		}
		h.logger.Error("create domain", zap.String("domain", domain), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create domain"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"domain": rec.Domain, "state": rec.State})
}

// ListDomains handles GET /domains/ — lists every registered domain with
// its current lifecycle state.
func (h *DomainHandler) ListDomains(c *gin.Context) {
	recs, err := h.svc.ListDomains(c.Request.Context())
	if err != nil {
		h.logger.Error("list domains", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list domains"})
		return
	}

	out := make([]gin.H, 0, len(recs))
	for _, rec := range recs {
		out = append(out, gin.H{"domain": rec.Domain, "state": rec.State})
	}
	c.JSON(http.StatusOK, out)
}

// Transition handles POST /domains/:domain/transition/:event — fires a
// raw state machine trigger against the domain. Any trigger declared for
// the current state (or with a wildcard source) is accepted; the
// orchestrated preconditions do not apply here.
func (h *DomainHandler) Transition(c *gin.Context) {
	domain := c.Param("domain")
	event := c.Param("event")

	rec, err := h.svc.ApplyTrigger(c.Request.Context(), domain, event)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDomainNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "domain not found"})
		case errors.Is(err, fsm.ErrInvalidTransition):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("apply transition",
				zap.String("domain", domain),
				zap.String("event", event),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply transition"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"domain": rec.Domain, "new_state": rec.State})
}
