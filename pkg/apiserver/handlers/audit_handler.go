package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/model"
	"github.com/courselab/courselab/pkg/store"
)

type AuditHandler struct {
	audit  store.AuditStore
	logger *zap.Logger
}

func NewAuditHandler(audit store.AuditStore, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

type auditEventResponse struct {
	EntityType string      `json:"entity_type"`
	EntityID   string      `json:"entity_id"`
	Action     string      `json:"action"`
	ActorID    string      `json:"actor_id,omitempty"`
	Details    model.JSONB `json:"details,omitempty"`
	CreatedAt  string      `json:"created_at"`
}

func (h *AuditHandler) Query(c *gin.Context) {
	query := store.AuditQuery{
		EntityType: strings.TrimSpace(c.Query("entity_type")),
		EntityID:   strings.TrimSpace(c.Query("entity_id")),
		Action:     strings.TrimSpace(c.Query("action")),
		Limit:      parseLimit(c.Query("limit"), 100),
	}

	if sinceValue := strings.TrimSpace(c.Query("since")); sinceValue != "" {
		since, err := time.Parse(timeRFC3339, sinceValue)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		query.Since = &since
	}
	if untilValue := strings.TrimSpace(c.Query("until")); untilValue != "" {
		until, err := time.Parse(timeRFC3339, untilValue)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid until"})
			return
		}
		query.Until = &until
	}

	events, err := h.audit.Query(c.Request.Context(), query)
	if err != nil {
		h.logger.Error("failed to query audit trail", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query audit trail"})
		return
	}

	response := make([]auditEventResponse, 0, len(events))
	for _, event := range events {
		response = append(response, auditEventResponse{
			EntityType: event.EntityType,
			EntityID:   event.EntityID,
			Action:     event.Action,
			ActorID:    event.ActorID,
			Details:    event.Details,
			CreatedAt:  event.CreatedAt.UTC().Format(timeRFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{"events": response, "total": len(response)})
}
