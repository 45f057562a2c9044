package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
)

type (
	Status string
	Action string
)

const (
	StatusAbsent     Status = "absent"
	StatusCheckedIn  Status = "checked_in"
	StatusCheckedOut Status = "checked_out"

	ActionAuto     Action = "auto"
	ActionCheckIn  Action = "check_in"
	ActionCheckOut Action = "check_out"
	ActionOverride Action = "override"
)

var (
	// errors
	ErrSessionNotFound       = errors.New("attendance session not found")
	ErrSessionInactive       = errors.New("attendance session expired or revoked")
	ErrRecordNotFound        = errors.New("attendance record not found")
	ErrInvalidTicket         = errors.New("invalid ticket code or email")
	ErrDeviceMismatch        = errors.New("this ticket is already bound to another device")
	ErrCodeMalformed         = errors.New("not an attendance code")
	ErrCodeInvalid           = errors.New("invalid attendance code")
	ErrCodeExpired           = errors.New("attendance code expired")
	ErrCodeReplayed          = errors.New("attendance code already scanned")
	ErrEventClosed           = errors.New("the event is not open for scanning")
	ErrWrongEvent            = errors.New("this ticket belongs to another event")
	ErrLocationRequired      = errors.New("location is required to scan at this event")
	ErrOutsideGeofence       = errors.New("scan location is outside the event venue")
	ErrRegistrationCancelled = errors.New("registration was cancelled")
	ErrTooSoon               = errors.New("scanned too soon after the previous scan")
	ErrAlreadyCheckedIn      = errors.New("already checked in")
	ErrNotCheckedIn          = errors.New("not checked in")
	ErrUnknownAction         = errors.New("unknown attendance action")
	ErrUnknownStatus         = errors.New("unknown attendance status")

	errIncompleteLocation = errors.New("both lat and lng are required")
)

// Session binds a confirmed registration to one attendee device.
// Its salt keys the signatures of the rotating codes the device displays.
type Session struct {
	ID             string     `json:"id"`
	EventID        string     `json:"event_id"`
	RegistrationID string     `json:"registration_id"`
	DeviceID       string     `json:"-"`
	Salt           []byte     `json:"-"`
	Remember       bool       `json:"remember"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
}

func (s Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

type SessionFilter struct {
	ID             string
	RegistrationID string
}

// Record is the attendance state of one registration at its Event.
type Record struct {
	ID              string     `json:"id"`
	EventID         string     `json:"event_id"`
	RegistrationID  string     `json:"registration_id"`
	Status          Status     `json:"status"`
	LastAction      Action     `json:"last_action,omitempty"`
	LastActionAt    *time.Time `json:"last_action_at,omitempty"`
	CheckInTime     *time.Time `json:"check_in_time,omitempty"` // first check-in
	LastCheckInTime *time.Time `json:"last_check_in_time,omitempty"`
	CheckOutTime    *time.Time `json:"check_out_time,omitempty"`
	Entries         int        `json:"entries"`
	PresenceSeconds int64      `json:"presence_seconds"`
	ScannedBy       string     `json:"scanned_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewRecord returns the state of a registration nobody scanned yet.
func NewRecord(eventID, registrationID string) Record {
	return Record{EventID: eventID, RegistrationID: registrationID, Status: StatusAbsent}
}

// Apply transitions the Record with a scan at `at`.
// ActionAuto checks out a checked in attendee, and checks in anybody else.
// Scans less than `cooldown` after the previous one are refused, unless it was an override.
func (r Record) Apply(action Action, at time.Time, cooldown time.Duration) (Record, Action, error) {
	if action == ActionAuto || action == "" {
		if r.Status == StatusCheckedIn {
			action = ActionCheckOut
		} else {
			action = ActionCheckIn
		}
	}

	if action != ActionCheckIn && action != ActionCheckOut {
		return r, action, ErrUnknownAction
	}
	if r.LastActionAt != nil && r.LastAction != ActionOverride && at.Sub(*r.LastActionAt) < cooldown {
		return r, action, ErrTooSoon
	}
	if action == ActionCheckIn && r.Status == StatusCheckedIn {
		return r, action, ErrAlreadyCheckedIn
	}
	if action == ActionCheckOut && r.Status != StatusCheckedIn {
		return r, action, ErrNotCheckedIn
	}

	if action == ActionCheckIn {
		r.checkIn(at)
	} else {
		r.checkOut(at)
	}
	r.LastAction = action
	r.LastActionAt = &at
	return r, action, nil
}

// Override forces the Record into `status`, as an admin correction.
func (r Record) Override(status Status, at time.Time) (Record, error) {
	switch status {
	case StatusAbsent:
		r = Record{
			ID:             r.ID,
			EventID:        r.EventID,
			RegistrationID: r.RegistrationID,
			Status:         StatusAbsent,
			CreatedAt:      r.CreatedAt,
		}
	case StatusCheckedIn:
		if r.Status != StatusCheckedIn {
			r.checkIn(at)
		}
	case StatusCheckedOut:
		if r.Status != StatusCheckedIn && r.CheckInTime == nil {
			r.checkIn(at)
		}
		if r.Status == StatusCheckedIn {
			r.checkOut(at)
		}
	default:
		return r, ErrUnknownStatus
	}
	r.LastAction = ActionOverride
	r.LastActionAt = &at
	return r, nil
}

func (r *Record) checkIn(at time.Time) {
	if r.CheckInTime == nil {
		r.CheckInTime = &at
	}
	r.LastCheckInTime = &at
	r.CheckOutTime = nil
	r.Entries++
	r.Status = StatusCheckedIn
}

func (r *Record) checkOut(at time.Time) {
	if r.LastCheckInTime != nil && at.After(*r.LastCheckInTime) {
		r.PresenceSeconds += int64(at.Sub(*r.LastCheckInTime) / time.Second)
	}
	r.CheckOutTime = &at
	r.Status = StatusCheckedOut
}

// NewSession is submitted by an attendee device to obtain its attendance token.
type NewSession struct {
	Email      string `json:"email" validate:"required,email"`
	TicketCode string `json:"ticket_code" validate:"required,max=32"`
	DeviceID   string `json:"device_id" validate:"required,deviceid"`
	Remember   bool   `json:"remember"`
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.TicketCode = core.CleanString(ns.TicketCode)
	ns.DeviceID = core.CleanString(ns.DeviceID)
	return validate.Struct(ns)
}

// ScanRequest is submitted by a scanner station for a QR code it read.
type ScanRequest struct {
	Payload string   `json:"payload" validate:"required,max=256"`
	Action  Action   `json:"action" validate:"omitempty,oneof=auto check_in check_out"`
	EventID string   `json:"event_id" validate:"omitempty,uuid"` // event the station is scanning for
	Lat     *float64 `json:"lat" validate:"omitempty,min=-90,max=90"`
	Lng     *float64 `json:"lng" validate:"omitempty,min=-180,max=180"`
}

func (sr *ScanRequest) Validate(validate *validator.Validate) error {
	sr.Payload = core.CleanString(sr.Payload)
	if sr.Action == "" {
		sr.Action = ActionAuto
	}
	if err := validate.Struct(sr); err != nil {
		return err
	}
	switch {
	case sr.Lat != nil && sr.Lng == nil:
		return core.NewFieldError("lng", errIncompleteLocation)
	case sr.Lat == nil && sr.Lng != nil:
		return core.NewFieldError("lat", errIncompleteLocation)
	}
	return nil
}

// RecordOverride is an admin correction of an attendance Record.
type RecordOverride struct {
	Status Status `json:"status" validate:"required,oneof=absent checked_in checked_out"`
}

func (ro *RecordOverride) Validate(validate *validator.Validate) error {
	return validate.Struct(ro)
}
