package periods

import "time"

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
	PeriodStatusLocked PeriodStatus = "LOCKED"
)

// Period represents a fiscal period window within a tenant.
type Period struct {
	ID        int64
	TenantID  int64
	Code      string
	StartDate time.Time
	EndDate   time.Time
	Status    PeriodStatus
	ClosedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CycleStatus enumerates crop cycle states.
type CycleStatus string

const (
	CycleStatusOpen   CycleStatus = "OPEN"
	CycleStatusClosed CycleStatus = "CLOSED"
)

// CropCycle is a date-bounded costing window for a crop season. Cycle-scoped
// postings must fall inside [StartDate, EndDate] while the cycle is open.
type CropCycle struct {
	ID        int64
	TenantID  int64
	Name      string
	CropName  string
	StartDate time.Time
	EndDate   time.Time
	Status    CycleStatus
	ClosedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contains reports whether the date falls inside the period window.
func (p Period) Contains(date time.Time) bool {
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}

// Contains reports whether the date falls inside the cycle window.
func (c CropCycle) Contains(date time.Time) bool {
	return !date.Before(c.StartDate) && !date.After(c.EndDate)
}
