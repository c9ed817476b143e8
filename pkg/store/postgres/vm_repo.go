package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/courselab/courselab/pkg/model"
)

type VMRepository struct {
	db *gorm.DB
}

func NewVMRepository(db *gorm.DB) *VMRepository {
	return &VMRepository{db: db}
}

func (r *VMRepository) Create(ctx context.Context, vm *model.VirtualMachine) error {
	return r.db.WithContext(ctx).Create(vm).Error
}

func (r *VMRepository) Get(ctx context.Context, vmID uuid.UUID) (*model.VirtualMachine, error) {
	var vm model.VirtualMachine
	err := r.db.WithContext(ctx).
		Preload("Owners").
		First(&vm, "id = ?", vmID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &vm, nil
}

func (r *VMRepository) UpdateSpec(ctx context.Context, vmID uuid.UUID, spec model.VMSpec) error {
	return r.db.WithContext(ctx).Model(&model.VirtualMachine{}).
		Where("id = ?", vmID).
		Updates(map[string]interface{}{
			"cpu":        spec.CPU,
			"ram_mb":     spec.RAMMB,
			"disk_mb":    spec.DiskMB,
			"active":     spec.Active,
			"updated_at": time.Now(),
		}).Error
}

func (r *VMRepository) Delete(ctx context.Context, vmID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("vm_id = ?", vmID).Delete(&model.VMOwner{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", vmID).Delete(&model.VirtualMachine{}).Error
	})
}

func (r *VMRepository) ListForTeam(ctx context.Context, teamID uuid.UUID) ([]model.VirtualMachine, error) {
	var vms []model.VirtualMachine
	err := r.db.WithContext(ctx).
		Preload("Owners").
		Where("team_id = ?", teamID).
		Order("created_at").
		Find(&vms).Error
	return vms, err
}

// Usage sums the team's footprint over every VM, active or not.
func (r *VMRepository) Usage(ctx context.Context, teamID uuid.UUID) (model.ResourceUsage, error) {
	var usage model.ResourceUsage
	row := r.db.WithContext(ctx).Model(&model.VirtualMachine{}).
		Select(
			"COALESCE(SUM(cpu), 0)",
			"COALESCE(SUM(ram_mb), 0)",
			"COALESCE(SUM(disk_mb), 0)",
			"COALESCE(SUM(CASE WHEN active THEN 1 ELSE 0 END), 0)",
			"COUNT(*)",
		).
		Where("team_id = ?", teamID).
		Row()
	err := row.Scan(&usage.CPU, &usage.RAMMB, &usage.DiskMB, &usage.ActiveVMs, &usage.TotalVMs)
	return usage, err
}

// AddOwners unions the given students into the VM's owner set.
// Existing rows are left alone, so the call is idempotent.
func (r *VMRepository) AddOwners(ctx context.Context, vmID uuid.UUID, studentIDs []string) error {
	if len(studentIDs) == 0 {
		return nil
	}
	rows := make([]model.VMOwner, 0, len(studentIDs))
	for _, id := range studentIDs {
		rows = append(rows, model.VMOwner{VMID: vmID, StudentID: id})
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

type QuotaRepository struct {
	db *gorm.DB
}

func NewQuotaRepository(db *gorm.DB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

func (r *QuotaRepository) ForCourse(ctx context.Context, courseID uuid.UUID) (*model.Quota, error) {
	var quota model.Quota
	err := r.db.WithContext(ctx).First(&quota, "course_id = ?", courseID).Error
	if err != nil {
		return nil, translate(err)
	}
	return &quota, nil
}

func (r *QuotaRepository) Update(ctx context.Context, courseID uuid.UUID, quota *model.Quota) error {
	return r.db.WithContext(ctx).Model(&model.Quota{}).
		Where("course_id = ?", courseID).
		Updates(map[string]interface{}{
			"cpu_limit":      quota.CPULimit,
			"ram_limit_mb":   quota.RAMLimitMB,
			"disk_limit_mb":  quota.DiskLimitMB,
			"max_active_vms": quota.MaxActiveVMs,
			"max_total_vms":  quota.MaxTotalVMs,
			"updated_at":     time.Now(),
		}).Error
}

func (r *QuotaRepository) TeamIDsForCourse(ctx context.Context, courseID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&model.Team{}).
		Where("course_id = ?", courseID).
		Pluck("id", &ids).Error
	return ids, err
}
