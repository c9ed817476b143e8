package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/model"
	"github.com/courselab/courselab/pkg/vm"
)

type VMHandler struct {
	service *vm.Service
	logger  *zap.Logger
}

func NewVMHandler(service *vm.Service, logger *zap.Logger) *VMHandler {
	return &VMHandler{service: service, logger: logger}
}

type vmCreateRequest struct {
	CPU    int `json:"cpu" binding:"required"`
	RAMMB  int `json:"ram_mb" binding:"required"`
	DiskMB int `json:"disk_mb" binding:"required"`
}

type vmManageRequest struct {
	CPU    int  `json:"cpu" binding:"required"`
	RAMMB  int  `json:"ram_mb" binding:"required"`
	DiskMB int  `json:"disk_mb" binding:"required"`
	Active bool `json:"active"`
}

type vmShareRequest struct {
	StudentIDs []string `json:"student_ids" binding:"required"`
}

type vmResponse struct {
	ID        string   `json:"id"`
	TeamID    string   `json:"team_id"`
	CPU       int      `json:"cpu"`
	RAMMB     int      `json:"ram_mb"`
	DiskMB    int      `json:"disk_mb"`
	Active    bool     `json:"active"`
	CreatorID string   `json:"creator_id"`
	OwnerIDs  []string `json:"owner_ids"`
	CreatedAt string   `json:"created_at"`
}

func (h *VMHandler) Create(c *gin.Context) {
	teamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid team id"})
		return
	}

	var req vmCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	created, err := h.service.Create(c.Request.Context(), vm.CreateRequest{
		TeamID:      teamID,
		RequesterID: requesterID(c),
		CPU:         req.CPU,
		RAMMB:       req.RAMMB,
		DiskMB:      req.DiskMB,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, mapVM(created))
}

func (h *VMHandler) Get(c *gin.Context) {
	vmID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vm id"})
		return
	}

	found, err := h.service.Get(c.Request.Context(), vmID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, mapVM(found))
}

func (h *VMHandler) Manage(c *gin.Context) {
	vmID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vm id"})
		return
	}

	var req vmManageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	updated, err := h.service.Manage(c.Request.Context(), vmID, requesterID(c), model.VMSpec{
		CPU:    req.CPU,
		RAMMB:  req.RAMMB,
		DiskMB: req.DiskMB,
		Active: req.Active,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, mapVM(updated))
}

func (h *VMHandler) Delete(c *gin.Context) {
	vmID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vm id"})
		return
	}

	if err := h.service.Delete(c.Request.Context(), vmID, requesterID(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *VMHandler) ShareOwnership(c *gin.Context) {
	vmID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vm id"})
		return
	}

	var req vmShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}

	updated, err := h.service.ShareOwnership(c.Request.Context(), vmID, requesterID(c), req.StudentIDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, mapVM(updated))
}

// Owners reports the current owner set and the teammates the machine
// could still be shared with.
func (h *VMHandler) Owners(c *gin.Context) {
	vmID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid vm id"})
		return
	}

	owners, err := h.service.OwnersOf(c.Request.Context(), vmID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	available, err := h.service.AvailableOwners(c.Request.Context(), vmID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"owners": owners, "available": available})
}

func (h *VMHandler) ListForTeam(c *gin.Context) {
	teamID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid team id"})
		return
	}

	vms, err := h.service.ListForTeam(c.Request.Context(), teamID, requesterID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response := make([]vmResponse, 0, len(vms))
	for i := range vms {
		response = append(response, mapVM(&vms[i]))
	}

	c.JSON(http.StatusOK, gin.H{"vms": response, "total": len(response)})
}

func mapVM(machine *model.VirtualMachine) vmResponse {
	return vmResponse{
		ID:        machine.ID.String(),
		TeamID:    machine.TeamID.String(),
		CPU:       machine.CPU,
		RAMMB:     machine.RAMMB,
		DiskMB:    machine.DiskMB,
		Active:    machine.Active,
		CreatorID: machine.CreatorID,
		OwnerIDs:  machine.OwnerIDs(),
		CreatedAt: machine.CreatedAt.UTC().Format(timeRFC3339),
	}
}
