package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/model"
	"github.com/courselab/courselab/pkg/store"
	"github.com/courselab/courselab/pkg/vm"
)

type QuotaHandler struct {
	service *vm.Service
	quotas  vm.QuotaStore
	logger  *zap.Logger
}

func NewQuotaHandler(service *vm.Service, quotas vm.QuotaStore, logger *zap.Logger) *QuotaHandler {
	return &QuotaHandler{service: service, quotas: quotas, logger: logger}
}

type quotaUpdateRequest struct {
	CPULimit     int `json:"cpu_limit"`
	RAMLimitMB   int `json:"ram_limit_mb"`
	DiskLimitMB  int `json:"disk_limit_mb"`
	MaxActiveVMs int `json:"max_active_vms"`
	MaxTotalVMs  int `json:"max_total_vms"`
}

type quotaResponse struct {
	CourseID     string `json:"course_id"`
	CPULimit     int    `json:"cpu_limit"`
	RAMLimitMB   int    `json:"ram_limit_mb"`
	DiskLimitMB  int    `json:"disk_limit_mb"`
	MaxActiveVMs int    `json:"max_active_vms"`
	MaxTotalVMs  int    `json:"max_total_vms"`
}

func (h *QuotaHandler) Get(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}

	quota, err := h.quotas.ForCourse(c.Request.Context(), courseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no quota configured for this course"})
			return
		}
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, mapQuota(quota))
}

// Update rewrites the course budget. The admission controller refuses
// the change if any existing team would end up over the new limits.
func (h *QuotaHandler) Update(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}

	var req quotaUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	quota := &model.Quota{
		CourseID:     courseID,
		CPULimit:     req.CPULimit,
		RAMLimitMB:   req.RAMLimitMB,
		DiskLimitMB:  req.DiskLimitMB,
		MaxActiveVMs: req.MaxActiveVMs,
		MaxTotalVMs:  req.MaxTotalVMs,
	}
	if err := h.service.UpdateQuota(c.Request.Context(), courseID, requesterID(c), quota); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, mapQuota(quota))
}

func (h *QuotaHandler) GetUsage(c *gin.Context) {
	teamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid team id"})
		return
	}

	usage, err := h.service.UsageForTeam(c.Request.Context(), teamID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"team_id":    teamID.String(),
		"cpu":        usage.CPU,
		"ram_mb":     usage.RAMMB,
		"disk_mb":    usage.DiskMB,
		"active_vms": usage.ActiveVMs,
		"total_vms":  usage.TotalVMs,
	})
}

func mapQuota(quota *model.Quota) quotaResponse {
	return quotaResponse{
		CourseID:     quota.CourseID.String(),
		CPULimit:     quota.CPULimit,
		RAMLimitMB:   quota.RAMLimitMB,
		DiskLimitMB:  quota.DiskLimitMB,
		MaxActiveVMs: quota.MaxActiveVMs,
		MaxTotalVMs:  quota.MaxTotalVMs,
	}
}
