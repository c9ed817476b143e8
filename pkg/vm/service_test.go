package vm

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/courselab/courselab/pkg/apperr"
	"github.com/courselab/courselab/pkg/model"
	"github.com/courselab/courselab/pkg/store"
)

type fakeVMStore struct {
	mu  sync.Mutex
	vms map[uuid.UUID]*model.VirtualMachine
}

func newFakeVMStore() *fakeVMStore {
	return &fakeVMStore{vms: make(map[uuid.UUID]*model.VirtualMachine)}
}

func (f *fakeVMStore) Create(ctx context.Context, vm *model.VirtualMachine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *vm
	f.vms[vm.ID] = &copied
	return nil
}

func (f *fakeVMStore) Get(ctx context.Context, vmID uuid.UUID) (*model.VirtualMachine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vm, ok := f.vms[vmID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *vm
	return &copied, nil
}

func (f *fakeVMStore) UpdateSpec(ctx context.Context, vmID uuid.UUID, spec model.VMSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	vm, ok := f.vms[vmID]
	if !ok {
		return store.ErrNotFound
	}
	vm.CPU, vm.RAMMB, vm.DiskMB, vm.Active = spec.CPU, spec.RAMMB, spec.DiskMB, spec.Active
	return nil
}

func (f *fakeVMStore) Delete(ctx context.Context, vmID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.vms, vmID)
	return nil
}

func (f *fakeVMStore) ListForTeam(ctx context.Context, teamID uuid.UUID) ([]model.VirtualMachine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var vms []model.VirtualMachine
	for _, vm := range f.vms {
		if vm.TeamID == teamID {
			vms = append(vms, *vm)
		}
	}
	return vms, nil
}

func (f *fakeVMStore) Usage(ctx context.Context, teamID uuid.UUID) (model.ResourceUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var usage model.ResourceUsage
	for _, vm := range f.vms {
		if vm.TeamID != teamID {
			continue
		}
		usage.CPU += vm.CPU
		usage.RAMMB += vm.RAMMB
		usage.DiskMB += vm.DiskMB
		usage.TotalVMs++
		if vm.Active {
			usage.ActiveVMs++
		}
	}
	return usage, nil
}

func (f *fakeVMStore) AddOwners(ctx context.Context, vmID uuid.UUID, studentIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	vm, ok := f.vms[vmID]
	if !ok {
		return store.ErrNotFound
	}
	for _, id := range studentIDs {
		if !vm.OwnedBy(id) {
			vm.Owners = append(vm.Owners, model.VMOwner{VMID: vmID, StudentID: id})
		}
	}
	return nil
}

type fakeQuotaStore struct {
	mu     sync.Mutex
	quotas map[uuid.UUID]*model.Quota
	teams  map[uuid.UUID][]uuid.UUID
}

func (f *fakeQuotaStore) ForCourse(ctx context.Context, courseID uuid.UUID) (*model.Quota, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	quota, ok := f.quotas[courseID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *quota
	return &copied, nil
}

func (f *fakeQuotaStore) Update(ctx context.Context, courseID uuid.UUID, quota *model.Quota) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.quotas[courseID]; !ok {
		return store.ErrNotFound
	}
	copied := *quota
	f.quotas[courseID] = &copied
	return nil
}

func (f *fakeQuotaStore) TeamIDsForCourse(ctx context.Context, courseID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.teams[courseID], nil
}

type fakeTeamStore struct {
	teams map[uuid.UUID]*model.Team
}

func (f *fakeTeamStore) Get(ctx context.Context, teamID uuid.UUID) (*model.Team, error) {
	team, ok := f.teams[teamID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return team, nil
}

type fakeDirectory struct {
	teachers map[string]bool
}

func (f *fakeDirectory) IsCourseTeacher(ctx context.Context, teacherID string, courseID uuid.UUID) (bool, error) {
	return f.teachers[teacherID], nil
}

type fixture struct {
	service  *Service
	vms      *fakeVMStore
	quotas   *fakeQuotaStore
	courseID uuid.UUID
	teamID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	courseID := uuid.New()
	teamID := uuid.New()

	teams := &fakeTeamStore{teams: map[uuid.UUID]*model.Team{
		teamID: {
			ID:       teamID,
			CourseID: courseID,
			Name:     "kernel-hackers",
			Status:   model.TeamActive,
			Members: []model.TeamMember{
				{TeamID: teamID, StudentID: "alice"},
				{TeamID: teamID, StudentID: "bob"},
			},
		},
	}}
	quotas := &fakeQuotaStore{
		quotas: map[uuid.UUID]*model.Quota{
			courseID: {
				CourseID:     courseID,
				CPULimit:     4,
				RAMLimitMB:   8192,
				DiskLimitMB:  102400,
				MaxActiveVMs: 1,
				MaxTotalVMs:  3,
			},
		},
		teams: map[uuid.UUID][]uuid.UUID{courseID: {teamID}},
	}
	vms := newFakeVMStore()
	dir := &fakeDirectory{teachers: map[string]bool{"prof": true}}

	return &fixture{
		service:  NewService(vms, quotas, teams, dir, nil, nil, zap.NewNop()),
		vms:      vms,
		quotas:   quotas,
		courseID: courseID,
		teamID:   teamID,
	}
}

func (f *fixture) create(t *testing.T, cpu, ramMB, diskMB int) *model.VirtualMachine {
	t.Helper()
	vm, err := f.service.Create(context.Background(), CreateRequest{
		TeamID:      f.teamID,
		RequesterID: "alice",
		CPU:         cpu,
		RAMMB:       ramMB,
		DiskMB:      diskMB,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return vm
}

func TestCreateAdmitsWithinQuota(t *testing.T) {
	f := newFixture(t)

	vm := f.create(t, 2, 2048, 10240)

	if vm.Active {
		t.Fatal("new machines must start inactive")
	}
	if !vm.OwnedBy("alice") {
		t.Fatal("creator must own the machine")
	}
}

func TestCreateDeniedOverCPULimit(t *testing.T) {
	f := newFixture(t)
	f.create(t, 3, 2048, 10240)

	_, err := f.service.Create(context.Background(), CreateRequest{
		TeamID: f.teamID, RequesterID: "alice", CPU: 2, RAMMB: 1024, DiskMB: 1024,
	})
	if !apperr.IsCode(err, apperr.CodePreconditionFailed) {
		t.Fatalf("expected PRECONDITION_FAILED, got %v", err)
	}
}

func TestShrinkThenCreateSucceeds(t *testing.T) {
	f := newFixture(t)
	big := f.create(t, 3, 2048, 10240)

	// 3 of 4 CPUs used; a 2-CPU machine does not fit until the first
	// one shrinks.
	if _, err := f.service.Manage(context.Background(), big.ID, "alice", model.VMSpec{CPU: 1, RAMMB: 2048, DiskMB: 10240}); err != nil {
		t.Fatalf("shrink failed: %v", err)
	}
	if _, err := f.service.Create(context.Background(), CreateRequest{
		TeamID: f.teamID, RequesterID: "bob", CPU: 2, RAMMB: 1024, DiskMB: 1024,
	}); err != nil {
		t.Fatalf("create after shrink failed: %v", err)
	}
}

func TestCreateDeniedByNonMember(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(context.Background(), CreateRequest{
		TeamID: f.teamID, RequesterID: "mallory", CPU: 1, RAMMB: 1024, DiskMB: 1024,
	})
	if !apperr.IsCode(err, apperr.CodePreconditionFailed) {
		t.Fatalf("expected PRECONDITION_FAILED, got %v", err)
	}
}

func TestCreateDeniedOverTotalCount(t *testing.T) {
	f := newFixture(t)
	f.create(t, 1, 1024, 1024)
	f.create(t, 1, 1024, 1024)
	f.create(t, 1, 1024, 1024)

	_, err := f.service.Create(context.Background(), CreateRequest{
		TeamID: f.teamID, RequesterID: "alice", CPU: 1, RAMMB: 1024, DiskMB: 1024,
	})
	if !apperr.IsCode(err, apperr.CodePreconditionFailed) {
		t.Fatalf("expected PRECONDITION_FAILED, got %v", err)
	}
}

func TestActivationRespectsActiveCap(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, 1, 1024, 1024)
	second := f.create(t, 1, 1024, 1024)

	if _, err := f.service.Manage(context.Background(), first.ID, "alice", model.VMSpec{CPU: 1, RAMMB: 1024, DiskMB: 1024, Active: true}); err != nil {
		t.Fatalf("first activation failed: %v", err)
	}

	_, err := f.service.Manage(context.Background(), second.ID, "alice", model.VMSpec{CPU: 1, RAMMB: 1024, DiskMB: 1024, Active: true})
	if !apperr.IsCode(err, apperr.CodePreconditionFailed) {
		t.Fatalf("expected active cap violation, got %v", err)
	}

	// Deactivating the first frees the slot.
	if _, err := f.service.Manage(context.Background(), first.ID, "alice", model.VMSpec{CPU: 1, RAMMB: 1024, DiskMB: 1024, Active: false}); err != nil {
		t.Fatalf("deactivation failed: %v", err)
	}
	if _, err := f.service.Manage(context.Background(), second.ID, "alice", model.VMSpec{CPU: 1, RAMMB: 1024, DiskMB: 1024, Active: true}); err != nil {
		t.Fatalf("second activation failed: %v", err)
	}
}

func TestResizeFrozenWhileActive(t *testing.T) {
	f := newFixture(t)
	vm := f.create(t, 2, 1024, 1024)

	if _, err := f.service.Manage(context.Background(), vm.ID, "alice", model.VMSpec{CPU: 2, RAMMB: 1024, DiskMB: 1024, Active: true}); err != nil {
		t.Fatalf("activation failed: %v", err)
	}

	_, err := f.service.Manage(context.Background(), vm.ID, "alice", model.VMSpec{CPU: 1, RAMMB: 1024, DiskMB: 1024, Active: true})
	if !apperr.IsCode(err, apperr.CodePreconditionFailed) {
		t.Fatalf("expected resize freeze, got %v", err)
	}
}

func TestManageDeniedForNonOwner(t *testing.T) {
	f := newFixture(t)
	vm := f.create(t, 1, 1024, 1024)

	_, err := f.service.Manage(context.Background(), vm.ID, "bob", model.VMSpec{CPU: 1, RAMMB: 1024, DiskMB: 1024})
	if !apperr.IsCode(err, apperr.CodePreconditionFailed) {
		t.Fatalf("expected PRECONDITION_FAILED, got %v", err)
	}
}

func TestDeleteRequiresInactive(t *testing.T) {
	f := newFixture(t)
	vm := f.create(t, 1, 1024, 1024)

	if _, err := f.service.Manage(context.Background(), vm.ID, "alice", model.VMSpec{CPU: 1, RAMMB: 1024, DiskMB: 1024, Active: true}); err != nil {
		t.Fatalf("activation failed: %v", err)
	}

	err := f.service.Delete(context.Background(), vm.ID, "alice")
	if !apperr.IsCode(err, apperr.CodePreconditionFailed) {
		t.Fatalf("expected PRECONDITION_FAILED, got %v", err)
	}

	if _, err := f.service.Manage(context.Background(), vm.ID, "alice", model.VMSpec{CPU: 1, RAMMB: 1024, DiskMB: 1024, Active: false}); err != nil {
		t.Fatalf("deactivation failed: %v", err)
	}
	if err := f.service.Delete(context.Background(), vm.ID, "alice"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
}

func TestShareOwnershipIsMonotonicUnion(t *testing.T) {
	f := newFixture(t)
	vm := f.create(t, 1, 1024, 1024)

	shared, err := f.service.ShareOwnership(context.Background(), vm.ID, "alice", []string{"bob"})
	if err != nil {
		t.Fatalf("share failed: %v", err)
	}
	if !shared.OwnedBy("bob") {
		t.Fatal("expected bob to own the machine")
	}

	// Sharing again with the same student changes nothing.
	shared, err = f.service.ShareOwnership(context.Background(), vm.ID, "bob", []string{"bob", "alice"})
	if err != nil {
		t.Fatalf("repeated share failed: %v", err)
	}
	if len(shared.OwnerIDs()) != 2 {
		t.Fatalf("expected 2 owners, got %d", len(shared.OwnerIDs()))
	}
}

func TestAvailableOwnersShrinksAsOwnershipSpreads(t *testing.T) {
	f := newFixture(t)
	vm := f.create(t, 1, 1024, 1024)

	available, err := f.service.AvailableOwners(context.Background(), vm.ID)
	if err != nil {
		t.Fatalf("available owners failed: %v", err)
	}
	if len(available) != 1 || available[0] != "bob" {
		t.Fatalf("expected [bob], got %v", available)
	}

	if _, err := f.service.ShareOwnership(context.Background(), vm.ID, "alice", []string{"bob"}); err != nil {
		t.Fatalf("share failed: %v", err)
	}

	available, err = f.service.AvailableOwners(context.Background(), vm.ID)
	if err != nil {
		t.Fatalf("available owners failed: %v", err)
	}
	if len(available) != 0 {
		t.Fatalf("expected no available owners, got %v", available)
	}
}

func TestShareOwnershipDeniedForNonMembers(t *testing.T) {
	f := newFixture(t)
	vm := f.create(t, 1, 1024, 1024)

	_, err := f.service.ShareOwnership(context.Background(), vm.ID, "alice", []string{"mallory"})
	if !apperr.IsCode(err, apperr.CodePreconditionFailed) {
		t.Fatalf("expected PRECONDITION_FAILED, got %v", err)
	}
}

func TestUpdateQuotaAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.create(t, 3, 2048, 10240)

	// Shrinking the CPU budget below current usage is refused and the
	// stored quota stays untouched.
	err := f.service.UpdateQuota(context.Background(), f.courseID, "prof", &model.Quota{
		CourseID: f.courseID, CPULimit: 2, RAMLimitMB: 8192, DiskLimitMB: 102400, MaxActiveVMs: 1, MaxTotalVMs: 3,
	})
	if !apperr.IsCode(err, apperr.CodePreconditionFailed) {
		t.Fatalf("expected PRECONDITION_FAILED, got %v", err)
	}

	quota, _ := f.quotas.ForCourse(context.Background(), f.courseID)
	if quota.CPULimit != 4 {
		t.Fatalf("quota must stay unchanged after refusal, got cpu_limit=%d", quota.CPULimit)
	}

	// A roomier budget goes through.
	if err := f.service.UpdateQuota(context.Background(), f.courseID, "prof", &model.Quota{
		CourseID: f.courseID, CPULimit: 8, RAMLimitMB: 8192, DiskLimitMB: 102400, MaxActiveVMs: 2, MaxTotalVMs: 5,
	}); err != nil {
		t.Fatalf("quota update failed: %v", err)
	}
	quota, _ = f.quotas.ForCourse(context.Background(), f.courseID)
	if quota.CPULimit != 8 {
		t.Fatalf("expected cpu_limit=8, got %d", quota.CPULimit)
	}
}

func TestUpdateQuotaRequiresCourseTeacher(t *testing.T) {
	f := newFixture(t)

	err := f.service.UpdateQuota(context.Background(), f.courseID, "alice", &model.Quota{
		CourseID: f.courseID, CPULimit: 4, RAMLimitMB: 8192, DiskLimitMB: 102400, MaxActiveVMs: 1, MaxTotalVMs: 3,
	})
	if !apperr.IsCode(err, apperr.CodePreconditionFailed) {
		t.Fatalf("expected PRECONDITION_FAILED, got %v", err)
	}
}

func TestUpdateQuotaRejectsInvalidShape(t *testing.T) {
	f := newFixture(t)

	err := f.service.UpdateQuota(context.Background(), f.courseID, "prof", &model.Quota{
		CourseID: f.courseID, CPULimit: 4, RAMLimitMB: 8192, DiskLimitMB: 102400, MaxActiveVMs: 5, MaxTotalVMs: 3,
	})
	if !apperr.IsCode(err, apperr.CodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
}
