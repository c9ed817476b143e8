package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/model"
	"github.com/courselab/courselab/pkg/team"
)

type TeamHandler struct {
	service     *team.Service
	proposalTTL time.Duration
	logger      *zap.Logger
}

func NewTeamHandler(service *team.Service, proposalTTL time.Duration, logger *zap.Logger) *TeamHandler {
	return &TeamHandler{service: service, proposalTTL: proposalTTL, logger: logger}
}

type teamProposeRequest struct {
	Name      string   `json:"name" binding:"required"`
	MemberIDs []string `json:"member_ids" binding:"required"`
}

type teamResponse struct {
	ID         string   `json:"id"`
	CourseID   string   `json:"course_id"`
	Name       string   `json:"name"`
	Status     string   `json:"status"`
	ProposerID string   `json:"proposer_id"`
	MemberIDs  []string `json:"member_ids"`
	CreatedAt  string   `json:"created_at"`
}

func (h *TeamHandler) Propose(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}

	var req teamProposeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	proposed, err := h.service.Propose(c.Request.Context(), team.ProposeRequest{
		CourseID:   courseID,
		Name:       req.Name,
		MemberIDs:  req.MemberIDs,
		ProposerID: requesterID(c),
		ExpiresAt:  time.Now().Add(h.proposalTTL),
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, mapTeam(proposed))
}

func (h *TeamHandler) Confirm(c *gin.Context) {
	result, err := h.service.Confirm(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"team_id":   result.TeamID.String(),
		"activated": result.Activated,
	})
}

func (h *TeamHandler) Reject(c *gin.Context) {
	if err := h.service.Reject(c.Request.Context(), c.Param("token")); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

func (h *TeamHandler) Get(c *gin.Context) {
	teamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid team id"})
		return
	}

	found, err := h.service.GetTeam(c.Request.Context(), teamID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, mapTeam(found))
}

func (h *TeamHandler) ListForCourse(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}

	teams, err := h.service.ListTeamsForCourse(c.Request.Context(), courseID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response := make([]teamResponse, 0, len(teams))
	for i := range teams {
		response = append(response, mapTeam(&teams[i]))
	}

	c.JSON(http.StatusOK, gin.H{"teams": response, "total": len(response)})
}

func (h *TeamHandler) Members(c *gin.Context) {
	teamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid team id"})
		return
	}

	found, err := h.service.GetTeam(c.Request.Context(), teamID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"members": found.MemberIDs()})
}

// PendingProposals lists the proposals in the course that still await
// the requester's confirmation or that of a teammate.
func (h *TeamHandler) PendingProposals(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}

	teams, err := h.service.PendingProposalsFor(c.Request.Context(), courseID, requesterID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response := make([]teamResponse, 0, len(teams))
	for i := range teams {
		response = append(response, mapTeam(&teams[i]))
	}

	c.JSON(http.StatusOK, gin.H{"proposals": response, "total": len(response)})
}

// MyTeam returns the requester's own team in the course, pending or
// active.
func (h *TeamHandler) MyTeam(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}

	found, err := h.service.TeamForStudent(c.Request.Context(), courseID, requesterID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, mapTeam(found))
}

func mapTeam(t *model.Team) teamResponse {
	return teamResponse{
		ID:         t.ID.String(),
		CourseID:   t.CourseID.String(),
		Name:       t.Name,
		Status:     string(t.Status),
		ProposerID: t.ProposerID,
		MemberIDs:  t.MemberIDs(),
		CreatedAt:  t.CreatedAt.UTC().Format(timeRFC3339),
	}
}
