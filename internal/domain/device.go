package domain

import (
	"fmt"
	"time"
)

// DeviceThresholds are the per-device warning temperatures, ascending
// differential <= warm <= hot.
type DeviceThresholds struct {
	Hot          float64 `json:"hot"`
	Warm         float64 `json:"warm"`
	Differential float64 `json:"differential"`
}

func (t DeviceThresholds) Validate() error {
	if t.Differential > t.Warm || t.Warm > t.Hot {
		return fmt.Errorf("%w: thresholds must ascend differential<=warm<=hot, got %.2f/%.2f/%.2f",
			ErrInvalidInput, t.Differential, t.Warm, t.Hot)
	}
	return nil
}

type NotifiedUser struct {
	UserName      string `json:"userName"`
	ContactNumber string `json:"contactNumber"`
	Email         string `json:"email"`
}

// RecipientKey names the user on the push channels.
func (u NotifiedUser) RecipientKey() string {
	if u.Email != "" {
		return u.Email
	}
	return u.UserName
}

// Device is a registry entry. Name is the key frames are tagged with.
type Device struct {
	ID                 string           `json:"id"`
	Name               string           `json:"deviceName"`
	SensorNumber       string           `json:"sensorNumber"`
	Thresholds         DeviceThresholds `json:"thresholds"`
	Active             bool             `json:"status"`
	DeployDate         time.Time        `json:"deployDate"`
	MaintenanceWindows int              `json:"maintainance"`
	Location           string           `json:"location"`
	Division           string           `json:"division"`
	Zone               string           `json:"zone"`
	NotifiedUsers      []NotifiedUser   `json:"notifiedUsers"`
}

// Context is the deployment metadata attached to warnings and summaries.
func (d *Device) Context() DeviceContext {
	return DeviceContext{
		DeviceKey: d.Name,
		Location:  d.Location,
		Division:  d.Division,
		Zone:      d.Zone,
	}
}

type DeviceContext struct {
	DeviceKey string `json:"deviceName"`
	Location  string `json:"location,omitempty"`
	Division  string `json:"division,omitempty"`
	Zone      string `json:"zone,omitempty"`
}
