package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/certfsm/internal/fsm"
	"go.uber.org/zap"
)

// FSMHandler exposes the state machine's declared states and transition
// table. It is read-only and backed entirely by the pure fsm package.
type FSMHandler struct {
	logger *zap.Logger
}

// NewFSMHandler creates a new FSMHandler.
func NewFSMHandler(logger *zap.Logger) *FSMHandler {
	return &FSMHandler{logger: logger}
}

// Register mounts the FSM introspection routes on the given router group.
func (h *FSMHandler) Register(rg *gin.RouterGroup) {
	f := rg.Group("/fsm")
	{
		f.GET("/states", h.States)
		f.GET("/transitions", h.Transitions)
		f.GET("/transitions/:state", h.TransitionsFrom)
	}
}

// States handles GET /fsm/states — the full state set.
func (h *FSMHandler) States(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"states": fsm.States()})
}

// Transitions handles GET /fsm/transitions — the full transition table.
func (h *FSMHandler) Transitions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"transitions": fsm.Transitions()})
}

// TransitionsFrom handles GET /fsm/transitions/:state — the transitions
// that can fire from the given state, including wildcard-source rows.
func (h *FSMHandler) TransitionsFrom(c *gin.Context) {
	state := fsm.State(c.Param("state"))

	available, err := fsm.AvailableFrom(state)
	if err != nil {
		if errors.Is(err, fsm.ErrUnknownState) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("list transitions from state", zap.String("state", string(state)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list transitions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"state":                 state,
		"available_transitions": available,
	})
}
