package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/certfsm/internal/fsm"
	"github.com/jmerrifield20/certfsm/internal/lifecycle/service"
	"go.uber.org/zap"
)

// CertbotHandler exposes the orchestrated certificate operations:
// issuance, renewal, revocation (all deferred), and the synchronous
// status check.
type CertbotHandler struct {
	svc    *service.LifecycleService
	logger *zap.Logger
}

// NewCertbotHandler creates a new CertbotHandler.
func NewCertbotHandler(svc *service.LifecycleService, logger *zap.Logger) *CertbotHandler {
	return &CertbotHandler{svc: svc, logger: logger}
}

// Register mounts the certbot routes on the given router group.
func (h *CertbotHandler) Register(rg *gin.RouterGroup) {
	cb := rg.Group("/certbot")
	{
		cb.POST("/issue/:domain", h.Issue)
		cb.POST("/renew/:domain", h.Renew)
		cb.POST("/revoke/:domain", h.Revoke)
		cb.GET("/status/:domain", h.Status)
	}
}

// Issue handles POST /certbot/issue/:domain — starts deferred issuance.
func (h *CertbotHandler) Issue(c *gin.Context) {
	h.start(c, "issuance", h.svc.StartIssue)
}

// Renew handles POST /certbot/renew/:domain — starts deferred renewal.
func (h *CertbotHandler) Renew(c *gin.Context) {
	h.start(c, "renewal", h.svc.StartRenew)
}

// Revoke handles POST /certbot/revoke/:domain — starts deferred
// revocation.
func (h *CertbotHandler) Revoke(c *gin.Context) {
	h.start(c, "revocation", h.svc.StartRevoke)
}

// start runs the shared schedule-and-acknowledge flow. The response only
// acknowledges scheduling; authority failures surface on the record, not
// here.
func (h *CertbotHandler) start(c *gin.Context, name string, fn func(ctx context.Context, domain string) (fsm.State, error)) {
	domain := c.Param("domain")

	prev, err := fn(c.Request.Context(), domain)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDomainNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "domain not found"})
		case errors.Is(err, service.ErrInvalidPrecondition):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("start certificate "+name, zap.String("domain", domain), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start " + name})
		}
		return
	}

	RecordOperationStarted(name)
	c.JSON(http.StatusOK, gin.H{
		"status":         "started",
		"message":        fmt.Sprintf("Certificate %s started for %s", name, domain),
		"previous_state": prev,
	})
}

// Status handles GET /certbot/status/:domain — synchronously checks the
// certificate against the authority and returns the reconciled view.
func (h *CertbotHandler) Status(c *gin.Context) {
	domain := c.Param("domain")

	report, err := h.svc.Check(c.Request.Context(), domain)
	if err != nil {
		if errors.Is(err, service.ErrDomainNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "domain not found"})
			return
		}
		h.logger.Error("check certificate status", zap.String("domain", domain), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to check status"})
		return
	}

	c.JSON(http.StatusOK, report)
}
