package model

import (
	"time"

	"github.com/google/uuid"
)

// VirtualMachine resources are frozen while Active; only inactive
// machines can be resized or deleted.
type VirtualMachine struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	TeamID    uuid.UUID `gorm:"type:uuid;not null;index"`
	CPU       int       `gorm:"column:cpu;not null"`
	RAMMB     int       `gorm:"column:ram_mb;not null"`
	DiskMB    int       `gorm:"column:disk_mb;not null"`
	Active    bool      `gorm:"default:false"`
	CreatorID string    `gorm:"not null"`
	Owners    []VMOwner `gorm:"foreignKey:VMID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VMOwner rows only ever accumulate: ownership sharing is monotonic.
type VMOwner struct {
	VMID      uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_vm_owner"`
	StudentID string    `gorm:"not null;uniqueIndex:idx_vm_owner;index"`
	CreatedAt time.Time
}

func (vm *VirtualMachine) OwnerIDs() []string {
	ids := make([]string, 0, len(vm.Owners))
	for _, o := range vm.Owners {
		ids = append(ids, o.StudentID)
	}
	return ids
}

func (vm *VirtualMachine) OwnedBy(studentID string) bool {
	for _, o := range vm.Owners {
		if o.StudentID == studentID {
			return true
		}
	}
	return false
}

// VMSpec is the requested resource shape for a create or manage call.
type VMSpec struct {
	CPU    int  `json:"cpu"`
	RAMMB  int  `json:"ram_mb"`
	DiskMB int  `json:"disk_mb"`
	Active bool `json:"active"`
}

func (s VMSpec) SameResources(vm *VirtualMachine) bool {
	return s.CPU == vm.CPU && s.RAMMB == vm.RAMMB && s.DiskMB == vm.DiskMB
}
