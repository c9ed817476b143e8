package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/courselab/courselab/pkg/apperr"
)

// Quota is the per-course resource budget applied to each team
// individually. One row per course, edited in place by the course's
// teacher, removed together with the course.
type Quota struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	CourseID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	CPULimit     int       `gorm:"column:cpu_limit;default:4"`
	RAMLimitMB   int       `gorm:"column:ram_limit_mb;default:8192"`
	DiskLimitMB  int       `gorm:"column:disk_limit_mb;default:102400"`
	MaxActiveVMs int       `gorm:"column:max_active_vms;default:2"`
	MaxTotalVMs  int       `gorm:"column:max_total_vms;default:5"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (q *Quota) Validate() error {
	if q.CPULimit < 0 || q.RAMLimitMB < 0 || q.DiskLimitMB < 0 || q.MaxActiveVMs < 0 {
		return apperr.InvalidArgument("quota limits must be non-negative")
	}
	if q.MaxTotalVMs < 1 {
		return apperr.InvalidArgument("max total VMs must be at least 1")
	}
	if q.MaxActiveVMs > q.MaxTotalVMs {
		return apperr.InvalidArgument("max active VMs (%d) exceeds max total VMs (%d)", q.MaxActiveVMs, q.MaxTotalVMs)
	}
	return nil
}

// ResourceUsage aggregates a team's current VM footprint for
// admission checks.
type ResourceUsage struct {
	CPU       int
	RAMMB     int
	DiskMB    int
	ActiveVMs int
	TotalVMs  int
}

// Fits reports whether the usage stays inside the quota. Admission
// checks compare prospective usage, not current usage.
func (u ResourceUsage) Fits(q *Quota) bool {
	return u.CPU <= q.CPULimit &&
		u.RAMMB <= q.RAMLimitMB &&
		u.DiskMB <= q.DiskLimitMB &&
		u.ActiveVMs <= q.MaxActiveVMs &&
		u.TotalVMs <= q.MaxTotalVMs
}
