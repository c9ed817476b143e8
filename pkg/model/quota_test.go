package model

import "testing"

func validQuota() *Quota {
	return &Quota{
		CPULimit:     4,
		RAMLimitMB:   8192,
		DiskLimitMB:  102400,
		MaxActiveVMs: 2,
		MaxTotalVMs:  5,
	}
}

func TestQuotaValidate(t *testing.T) {
	if err := validQuota().Validate(); err != nil {
		t.Fatalf("expected valid quota, got %v", err)
	}

	negative := validQuota()
	negative.CPULimit = -1
	if err := negative.Validate(); err == nil {
		t.Fatal("expected negative limits to be rejected")
	}

	zeroTotal := validQuota()
	zeroTotal.MaxTotalVMs = 0
	if err := zeroTotal.Validate(); err == nil {
		t.Fatal("expected zero total to be rejected")
	}

	inverted := validQuota()
	inverted.MaxActiveVMs = 6
	if err := inverted.Validate(); err == nil {
		t.Fatal("expected active cap above total cap to be rejected")
	}
}

func TestResourceUsageFits(t *testing.T) {
	quota := validQuota()

	within := ResourceUsage{CPU: 4, RAMMB: 8192, DiskMB: 102400, ActiveVMs: 2, TotalVMs: 5}
	if !within.Fits(quota) {
		t.Fatal("usage at the limits must fit")
	}

	over := within
	over.CPU = 5
	if over.Fits(quota) {
		t.Fatal("usage over the cpu limit must not fit")
	}

	tooManyActive := within
	tooManyActive.ActiveVMs = 3
	if tooManyActive.Fits(quota) {
		t.Fatal("usage over the active cap must not fit")
	}
}
