package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error kinds surfaced by the core. Specific errors wrap one of these so
// callers can branch with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrPartialFailure      = errors.New("partial failure")
)

var (
	ErrInvalidDateRange = fmt.Errorf("%w: invalid date range", ErrInvalidInput)
	ErrMalformedFrame   = fmt.Errorf("%w: malformed frame", ErrInvalidInput)
	ErrRowShape         = fmt.Errorf("%w: malformed axle row", ErrInvalidInput)
	ErrInvalidStatus    = fmt.Errorf("%w: invalid maintenance status transition", ErrInvalidInput)
)

// DeviceError records a failure scoped to one device during a batch run.
type DeviceError struct {
	DeviceID string `json:"device_id"`
	Op       string `json:"op"`
	Err      error  `json:"-"`
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s: %s: %v", e.DeviceID, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

func (e *DeviceError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		DeviceID string `json:"device_id"`
		Op       string `json:"op"`
		Error    string `json:"error"`
	}{e.DeviceID, e.Op, msg})
}
