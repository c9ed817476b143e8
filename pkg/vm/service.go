package vm

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/apperr"
	"github.com/courselab/courselab/pkg/eventbus"
	"github.com/courselab/courselab/pkg/locking"
	"github.com/courselab/courselab/pkg/metrics"
	"github.com/courselab/courselab/pkg/model"
	"github.com/courselab/courselab/pkg/store"
)

// VMStore persists virtual machines and their owner sets.
type VMStore interface {
	Create(ctx context.Context, vm *model.VirtualMachine) error
	Get(ctx context.Context, vmID uuid.UUID) (*model.VirtualMachine, error)
	UpdateSpec(ctx context.Context, vmID uuid.UUID, spec model.VMSpec) error
	Delete(ctx context.Context, vmID uuid.UUID) error
	ListForTeam(ctx context.Context, teamID uuid.UUID) ([]model.VirtualMachine, error)
	Usage(ctx context.Context, teamID uuid.UUID) (model.ResourceUsage, error)
	AddOwners(ctx context.Context, vmID uuid.UUID, studentIDs []string) error
}

// QuotaStore reads and rewrites per-course budgets.
type QuotaStore interface {
	ForCourse(ctx context.Context, courseID uuid.UUID) (*model.Quota, error)
	Update(ctx context.Context, courseID uuid.UUID, quota *model.Quota) error
	TeamIDsForCourse(ctx context.Context, courseID uuid.UUID) ([]uuid.UUID, error)
}

// TeamStore resolves the team a VM belongs to.
type TeamStore interface {
	Get(ctx context.Context, teamID uuid.UUID) (*model.Team, error)
}

// Directory answers who teaches which course.
type Directory interface {
	IsCourseTeacher(ctx context.Context, teacherID string, courseID uuid.UUID) (bool, error)
}

// Service is the admission controller: every create, resize, activate
// and quota change is checked against the course budget before any
// state moves.
type Service struct {
	vms    VMStore
	quotas QuotaStore
	teams  TeamStore
	dir    Directory
	audit  store.AuditStore
	bus    *eventbus.Bus
	logger *zap.Logger
	locks  *locking.KeyedRWMutex
}

func NewService(vms VMStore, quotas QuotaStore, teams TeamStore, dir Directory, audit store.AuditStore, bus *eventbus.Bus, logger *zap.Logger) *Service {
	return &Service{
		vms:    vms,
		quotas: quotas,
		teams:  teams,
		dir:    dir,
		audit:  audit,
		bus:    bus,
		logger: logger,
		locks:  locking.NewKeyedRWMutex(),
	}
}

type CreateRequest struct {
	TeamID      uuid.UUID
	RequesterID string
	CPU         int
	RAMMB       int
	DiskMB      int
}

// Create admits a new, inactive machine owned by its creator. The
// prospective footprint (current sums plus the request, total count
// plus one) must fit the course quota.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.VirtualMachine, error) {
	if req.CPU <= 0 || req.RAMMB <= 0 || req.DiskMB <= 0 {
		return nil, apperr.InvalidArgument("vm resources must be positive")
	}

	team, err := s.getTeam(ctx, req.TeamID)
	if err != nil {
		return nil, err
	}
	if team.Status != model.TeamActive {
		return nil, apperr.PreconditionFailed("team %s is not active", team.Name)
	}
	if !team.HasMember(req.RequesterID) {
		return nil, apperr.PreconditionFailed("student %s is not a member of team %s", req.RequesterID, team.Name)
	}

	courseKey := "course:" + team.CourseID.String()
	teamKey := "team:" + req.TeamID.String()
	s.locks.RLock(courseKey)
	defer s.locks.RUnlock(courseKey)
	s.locks.Lock(teamKey)
	defer s.locks.Unlock(teamKey)

	quota, err := s.getQuota(ctx, team.CourseID)
	if err != nil {
		return nil, err
	}
	usage, err := s.vms.Usage(ctx, req.TeamID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to compute team usage")
	}

	prospective := usage
	prospective.CPU += req.CPU
	prospective.RAMMB += req.RAMMB
	prospective.DiskMB += req.DiskMB
	prospective.TotalVMs++
	if !prospective.Fits(quota) {
		metrics.VMAdmissionsTotal.WithLabelValues("create", "denied").Inc()
		return nil, apperr.PreconditionFailed("requested machine exceeds the team quota")
	}

	vm := &model.VirtualMachine{
		ID:        uuid.New(),
		TeamID:    req.TeamID,
		CPU:       req.CPU,
		RAMMB:     req.RAMMB,
		DiskMB:    req.DiskMB,
		Active:    false,
		CreatorID: req.RequesterID,
		Owners:    []model.VMOwner{{StudentID: req.RequesterID}},
	}
	vm.Owners[0].VMID = vm.ID

	if err := s.vms.Create(ctx, vm); err != nil {
		metrics.VMAdmissionsTotal.WithLabelValues("create", "error").Inc()
		return nil, apperr.Internal(err, "failed to persist vm")
	}

	metrics.VMAdmissionsTotal.WithLabelValues("create", "admitted").Inc()
	s.updateUsageGauges(req.TeamID, prospective)
	s.recordAudit(ctx, vm.ID.String(), "created", req.RequesterID, model.JSONB{
		"cpu": req.CPU, "ram_mb": req.RAMMB, "disk_mb": req.DiskMB,
	})
	s.publishVMEvent(ctx, eventbus.EventVMCreated, vm)

	return vm, nil
}

// Manage applies a new spec to an existing machine: resize,
// activation, deactivation, or any combination the quota admits.
// Resources are frozen while the machine is active.
func (s *Service) Manage(ctx context.Context, vmID uuid.UUID, requesterID string, spec model.VMSpec) (*model.VirtualMachine, error) {
	if spec.CPU <= 0 || spec.RAMMB <= 0 || spec.DiskMB <= 0 {
		return nil, apperr.InvalidArgument("vm resources must be positive")
	}

	vm, err := s.getVM(ctx, vmID)
	if err != nil {
		return nil, err
	}
	team, err := s.getTeam(ctx, vm.TeamID)
	if err != nil {
		return nil, err
	}
	if !vm.OwnedBy(requesterID) {
		return nil, apperr.PreconditionFailed("student %s does not own this machine", requesterID)
	}
	if !team.HasMember(requesterID) {
		return nil, apperr.PreconditionFailed("student %s is not a member of team %s", requesterID, team.Name)
	}

	courseKey := "course:" + team.CourseID.String()
	teamKey := "team:" + vm.TeamID.String()
	s.locks.RLock(courseKey)
	defer s.locks.RUnlock(courseKey)
	s.locks.Lock(teamKey)
	defer s.locks.Unlock(teamKey)

	// Re-read under the team lock so the freeze check sees the
	// current power state.
	vm, err = s.getVM(ctx, vmID)
	if err != nil {
		return nil, err
	}

	resizing := !spec.SameResources(vm)
	if resizing && vm.Active {
		metrics.VMAdmissionsTotal.WithLabelValues("manage", "denied").Inc()
		return nil, apperr.PreconditionFailed("machine must be powered off before resizing")
	}

	quota, err := s.getQuota(ctx, team.CourseID)
	if err != nil {
		return nil, err
	}
	usage, err := s.vms.Usage(ctx, vm.TeamID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to compute team usage")
	}

	// Admission compares the team footprint with this machine's
	// current contribution swapped for the requested one.
	prospective := usage
	prospective.CPU += spec.CPU - vm.CPU
	prospective.RAMMB += spec.RAMMB - vm.RAMMB
	prospective.DiskMB += spec.DiskMB - vm.DiskMB
	if spec.Active && !vm.Active {
		prospective.ActiveVMs++
	}
	if !spec.Active && vm.Active {
		prospective.ActiveVMs--
	}
	if !prospective.Fits(quota) {
		metrics.VMAdmissionsTotal.WithLabelValues("manage", "denied").Inc()
		return nil, apperr.PreconditionFailed("requested change exceeds the team quota")
	}

	if err := s.vms.UpdateSpec(ctx, vmID, spec); err != nil {
		metrics.VMAdmissionsTotal.WithLabelValues("manage", "error").Inc()
		return nil, apperr.Internal(err, "failed to update vm")
	}

	vm.CPU, vm.RAMMB, vm.DiskMB, vm.Active = spec.CPU, spec.RAMMB, spec.DiskMB, spec.Active

	metrics.VMAdmissionsTotal.WithLabelValues("manage", "admitted").Inc()
	s.updateUsageGauges(vm.TeamID, prospective)
	s.recordAudit(ctx, vmID.String(), "updated", requesterID, model.JSONB{
		"cpu": spec.CPU, "ram_mb": spec.RAMMB, "disk_mb": spec.DiskMB, "active": spec.Active,
	})
	s.publishVMEvent(ctx, eventbus.EventVMUpdated, vm)

	return vm, nil
}

// Delete removes an inactive machine. Only owners may delete.
func (s *Service) Delete(ctx context.Context, vmID uuid.UUID, requesterID string) error {
	vm, err := s.getVM(ctx, vmID)
	if err != nil {
		return err
	}
	if !vm.OwnedBy(requesterID) {
		return apperr.PreconditionFailed("student %s does not own this machine", requesterID)
	}

	team, err := s.getTeam(ctx, vm.TeamID)
	if err != nil {
		return err
	}

	courseKey := "course:" + team.CourseID.String()
	teamKey := "team:" + vm.TeamID.String()
	s.locks.RLock(courseKey)
	defer s.locks.RUnlock(courseKey)
	s.locks.Lock(teamKey)
	defer s.locks.Unlock(teamKey)

	vm, err = s.getVM(ctx, vmID)
	if err != nil {
		return err
	}
	if vm.Active {
		return apperr.PreconditionFailed("machine must be powered off before deletion")
	}

	if err := s.vms.Delete(ctx, vmID); err != nil {
		metrics.VMAdmissionsTotal.WithLabelValues("delete", "error").Inc()
		return apperr.Internal(err, "failed to delete vm")
	}

	metrics.VMAdmissionsTotal.WithLabelValues("delete", "admitted").Inc()
	if usage, err := s.vms.Usage(ctx, vm.TeamID); err == nil {
		s.updateUsageGauges(vm.TeamID, usage)
	}
	s.recordAudit(ctx, vmID.String(), "deleted", requesterID, nil)
	s.publishVMEvent(ctx, eventbus.EventVMDeleted, vm)

	return nil
}

// ShareOwnership unions the given team members into the machine's
// owner set. Ownership never shrinks.
func (s *Service) ShareOwnership(ctx context.Context, vmID uuid.UUID, requesterID string, targetIDs []string) (*model.VirtualMachine, error) {
	if len(targetIDs) == 0 {
		return nil, apperr.InvalidArgument("at least one student is required")
	}

	vm, err := s.getVM(ctx, vmID)
	if err != nil {
		return nil, err
	}
	if !vm.OwnedBy(requesterID) {
		return nil, apperr.PreconditionFailed("student %s does not own this machine", requesterID)
	}

	team, err := s.getTeam(ctx, vm.TeamID)
	if err != nil {
		return nil, err
	}
	for _, targetID := range targetIDs {
		if !team.HasMember(targetID) {
			return nil, apperr.PreconditionFailed("student %s is not a member of team %s", targetID, team.Name)
		}
	}

	teamKey := "team:" + vm.TeamID.String()
	s.locks.Lock(teamKey)
	defer s.locks.Unlock(teamKey)

	if err := s.vms.AddOwners(ctx, vmID, targetIDs); err != nil {
		return nil, apperr.Internal(err, "failed to add owners")
	}

	s.recordAudit(ctx, vmID.String(), "ownership_shared", requesterID, model.JSONB{
		"students": targetIDs,
	})

	return s.getVM(ctx, vmID)
}

// UpdateQuota rewrites the course budget. The new limits must already
// hold for every team of the course; if any team would be over budget
// the change is refused and nothing is written.
func (s *Service) UpdateQuota(ctx context.Context, courseID uuid.UUID, requesterID string, quota *model.Quota) error {
	teaches, err := s.dir.IsCourseTeacher(ctx, requesterID, courseID)
	if err != nil {
		return apperr.Internal(err, "failed to check course teacher")
	}
	if !teaches {
		return apperr.PreconditionFailed("only a teacher of the course may change its quota")
	}
	if err := quota.Validate(); err != nil {
		return err
	}

	courseKey := "course:" + courseID.String()
	s.locks.Lock(courseKey)
	defer s.locks.Unlock(courseKey)

	if _, err := s.getQuota(ctx, courseID); err != nil {
		return err
	}

	teamIDs, err := s.quotas.TeamIDsForCourse(ctx, courseID)
	if err != nil {
		return apperr.Internal(err, "failed to list course teams")
	}
	for _, teamID := range teamIDs {
		usage, err := s.vms.Usage(ctx, teamID)
		if err != nil {
			return apperr.Internal(err, "failed to compute team usage")
		}
		if !usage.Fits(quota) {
			metrics.VMAdmissionsTotal.WithLabelValues("update_quota", "denied").Inc()
			return apperr.PreconditionFailed("team %s already exceeds the proposed quota", teamID)
		}
	}

	if err := s.quotas.Update(ctx, courseID, quota); err != nil {
		metrics.VMAdmissionsTotal.WithLabelValues("update_quota", "error").Inc()
		return apperr.Internal(err, "failed to update quota")
	}

	metrics.VMAdmissionsTotal.WithLabelValues("update_quota", "admitted").Inc()
	s.recordAudit(ctx, courseID.String(), "quota_updated", requesterID, model.JSONB{
		"cpu_limit":      quota.CPULimit,
		"ram_limit_mb":   quota.RAMLimitMB,
		"disk_limit_mb":  quota.DiskLimitMB,
		"max_active_vms": quota.MaxActiveVMs,
		"max_total_vms":  quota.MaxTotalVMs,
	})
	s.publishQuotaEvent(ctx, courseID)

	return nil
}

func (s *Service) Get(ctx context.Context, vmID uuid.UUID) (*model.VirtualMachine, error) {
	return s.getVM(ctx, vmID)
}

// ListForTeam is restricted to members of the team.
func (s *Service) ListForTeam(ctx context.Context, teamID uuid.UUID, requesterID string) ([]model.VirtualMachine, error) {
	team, err := s.getTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if !team.HasMember(requesterID) {
		return nil, apperr.PreconditionFailed("student %s is not a member of team %s", requesterID, team.Name)
	}
	vms, err := s.vms.ListForTeam(ctx, teamID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list vms")
	}
	return vms, nil
}

func (s *Service) OwnersOf(ctx context.Context, vmID uuid.UUID) ([]string, error) {
	vm, err := s.getVM(ctx, vmID)
	if err != nil {
		return nil, err
	}
	return vm.OwnerIDs(), nil
}

// AvailableOwners lists the team members the machine could still be
// shared with.
func (s *Service) AvailableOwners(ctx context.Context, vmID uuid.UUID) ([]string, error) {
	vm, err := s.getVM(ctx, vmID)
	if err != nil {
		return nil, err
	}
	team, err := s.getTeam(ctx, vm.TeamID)
	if err != nil {
		return nil, err
	}

	available := make([]string, 0, len(team.Members))
	for _, memberID := range team.MemberIDs() {
		if !vm.OwnedBy(memberID) {
			available = append(available, memberID)
		}
	}
	return available, nil
}

func (s *Service) UsageForTeam(ctx context.Context, teamID uuid.UUID) (model.ResourceUsage, error) {
	if _, err := s.getTeam(ctx, teamID); err != nil {
		return model.ResourceUsage{}, err
	}
	usage, err := s.vms.Usage(ctx, teamID)
	if err != nil {
		return model.ResourceUsage{}, apperr.Internal(err, "failed to compute team usage")
	}
	return usage, nil
}

func (s *Service) getVM(ctx context.Context, vmID uuid.UUID) (*model.VirtualMachine, error) {
	vm, err := s.vms.Get(ctx, vmID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("vm %s not found", vmID)
		}
		return nil, apperr.Internal(err, "failed to load vm")
	}
	return vm, nil
}

func (s *Service) getTeam(ctx context.Context, teamID uuid.UUID) (*model.Team, error) {
	team, err := s.teams.Get(ctx, teamID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("team %s not found", teamID)
		}
		return nil, apperr.Internal(err, "failed to load team")
	}
	return team, nil
}

func (s *Service) getQuota(ctx context.Context, courseID uuid.UUID) (*model.Quota, error) {
	quota, err := s.quotas.ForCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("no quota configured for course %s", courseID)
		}
		return nil, apperr.Internal(err, "failed to load quota")
	}
	return quota, nil
}

func (s *Service) updateUsageGauges(teamID uuid.UUID, usage model.ResourceUsage) {
	id := teamID.String()
	metrics.QuotaUsage.WithLabelValues(id, "cpu").Set(float64(usage.CPU))
	metrics.QuotaUsage.WithLabelValues(id, "ram_mb").Set(float64(usage.RAMMB))
	metrics.QuotaUsage.WithLabelValues(id, "disk_mb").Set(float64(usage.DiskMB))
	metrics.QuotaUsage.WithLabelValues(id, "active_vms").Set(float64(usage.ActiveVMs))
	metrics.QuotaUsage.WithLabelValues(id, "total_vms").Set(float64(usage.TotalVMs))
}

func (s *Service) recordAudit(ctx context.Context, entityID, action, actorID string, details model.JSONB) {
	if s.audit == nil {
		return
	}
	event := &model.AuditEvent{
		EntityType: "vm",
		EntityID:   entityID,
		Action:     action,
		ActorID:    actorID,
		Details:    details,
	}
	if action == "quota_updated" {
		event.EntityType = "quota"
	}
	if err := s.audit.Append(ctx, event); err != nil {
		s.logger.Warn("failed to append audit event", zap.Error(err), zap.String("action", action))
	}
}

func (s *Service) publishVMEvent(ctx context.Context, eventType string, vm *model.VirtualMachine) {
	if s.bus == nil {
		return
	}
	payload := eventbus.VMEvent{
		VMID:   vm.ID.String(),
		TeamID: vm.TeamID.String(),
		CPU:    vm.CPU,
		RAMMB:  vm.RAMMB,
		DiskMB: vm.DiskMB,
		Active: vm.Active,
	}
	if event, err := eventbus.NewEvent(eventType, payload); err == nil {
		_ = s.bus.Publish(ctx, eventbus.ChannelVM, event)
	}
}

func (s *Service) publishQuotaEvent(ctx context.Context, courseID uuid.UUID) {
	if s.bus == nil {
		return
	}
	if event, err := eventbus.NewEvent(eventbus.EventQuotaUpdated, eventbus.QuotaEvent{CourseID: courseID.String()}); err == nil {
		_ = s.bus.Publish(ctx, eventbus.ChannelQuota, event)
	}
}
