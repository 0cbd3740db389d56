package domain

import "time"

type MaintenanceStatus string

const (
	StatusUpcoming MaintenanceStatus = "Upcoming Maintenance"
	StatusDone     MaintenanceStatus = "Maintenance Done"
	StatusNotDone  MaintenanceStatus = "Maintenance Not Done"
)

func (s MaintenanceStatus) Valid() bool {
	switch s {
	case StatusUpcoming, StatusDone, StatusNotDone:
		return true
	}
	return false
}

// CanTransition reports whether a record may move from s to next. Only
// upcoming windows move; done and not-done are terminal.
func (s MaintenanceStatus) CanTransition(next MaintenanceStatus) bool {
	return s == StatusUpcoming && (next == StatusDone || next == StatusNotDone)
}

type MaintenanceRecord struct {
	ID             string            `json:"id"`
	DeviceID       string            `json:"deviceId"`
	Status         MaintenanceStatus `json:"status"`
	MaintainDate   time.Time         `json:"maintainDate"`
	EngineerName   *string           `json:"engineerName"`
	EngineerEmail  *string           `json:"engineerEmail"`
	ContactNumber  *string           `json:"contactNumber"`
	IsContactAdded bool              `json:"isContactAdded"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`

	// Populated by overview queries only.
	DeviceName   string `json:"deviceName,omitempty"`
	LocationName string `json:"locationName,omitempty"`
}

type MaintenanceFilter struct {
	DeviceID string
	From     time.Time
	To       time.Time
	Status   MaintenanceStatus
}

type MaintenanceOverview struct {
	Upcoming []MaintenanceRecord `json:"upcomingMaintenance"`
	Done     []MaintenanceRecord `json:"maintenanceDone"`
	Due      []MaintenanceRecord `json:"dueDate"`
}

func (o MaintenanceOverview) Empty() bool {
	return len(o.Upcoming) == 0 && len(o.Done) == 0 && len(o.Due) == 0
}
