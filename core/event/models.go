package event

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/trezcool/rollcall/core"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

type Event struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Slug             string    `json:"slug"`
	Description      string    `json:"description"`
	Venue            string    `json:"venue"`
	Campus           string    `json:"campus"`
	StartsAt         time.Time `json:"starts_at"`
	EndsAt           time.Time `json:"ends_at"`
	Capacity         int       `json:"capacity"` // 0: unlimited
	RegistrationOpen bool      `json:"registration_open"`
	Geofence         *Geofence `json:"geofence,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Over is true once the Event ended more than `grace` ago.
func (e Event) Over(now time.Time, grace time.Duration) bool {
	return now.After(e.EndsAt.Add(grace))
}

// AcceptsRegistrations is true while registration is open and the Event has not ended.
func (e Event) AcceptsRegistrations(now time.Time) bool {
	return e.RegistrationOpen && now.Before(e.EndsAt)
}

// ScanOpen is true when attendance codes may be scanned: from `lead` before the start to `grace` after the end.
func (e Event) ScanOpen(now time.Time, lead, grace time.Duration) bool {
	return !now.Before(e.StartsAt.Add(-lead)) && !e.Over(now, grace)
}

// HasCapacity reports whether `registered` attendees leave room for one more.
func (e Event) HasCapacity(registered int) bool {
	return e.Capacity == 0 || registered < e.Capacity
}

// NewEvent contains information needed to create a new Event.
type NewEvent struct {
	Name             string    `json:"name" validate:"required,max=255"`
	Slug             string    `json:"slug" validate:"omitempty,max=100,slug"`
	Description      string    `json:"description"`
	Venue            string    `json:"venue" validate:"max=255"`
	Campus           string    `json:"campus" validate:"omitempty,campus"`
	StartsAt         time.Time `json:"starts_at" validate:"required"`
	EndsAt           time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
	Capacity         int       `json:"capacity" validate:"min=0"`
	RegistrationOpen *bool     `json:"registration_open"`
	Geofence         *Geofence `json:"geofence" validate:"omitempty"`
}

func (ne *NewEvent) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	ne.Name = core.CleanString(ne.Name)
	ne.Slug = core.CleanString(ne.Slug, true /* lower */)
	if ne.Slug == "" {
		ne.Slug = Slugify(ne.Name)
	}
	if ne.Slug == "" { // name without any latin letter or digit
		ne.Slug = "event-" + uuid.New().String()[:8]
	}
	ne.Venue = core.CleanString(ne.Venue)
	ne.Campus = core.CleanString(ne.Campus, true /* lower */)
	ne.Description = core.CleanString(ne.Description)

	if err := validate.Struct(ne); err != nil {
		return err
	}
	return svc.CheckSlugUniqueness(ctx, ne.Slug)
}

// UpdateEvent defines what information may be provided to modify an existing Event.
// Nil fields are left untouched.
type UpdateEvent struct {
	Name             *string    `json:"name" validate:"omitempty,min=1,max=255"`
	Slug             *string    `json:"slug" validate:"omitempty,max=100,slug"`
	Description      *string    `json:"description"`
	Venue            *string    `json:"venue" validate:"omitempty,max=255"`
	Campus           *string    `json:"campus" validate:"omitempty,campus"`
	StartsAt         *time.Time `json:"starts_at"`
	EndsAt           *time.Time `json:"ends_at"`
	Capacity         *int       `json:"capacity" validate:"omitempty,min=0"`
	RegistrationOpen *bool      `json:"registration_open"`
	Geofence         *Geofence  `json:"geofence" validate:"omitempty"`
	RemoveGeofence   bool       `json:"remove_geofence"`
}

var errEndsBeforeStart = core.NewValidationError(nil, core.FieldError{Field: "ends_at", Error: "must be after starts_at"})

// Validate checks the update and applies it on a copy of `orig`, which is returned.
func (ue *UpdateEvent) Validate(ctx context.Context, orig Event, validate *validator.Validate, svc Service) (Event, error) {
	clean := func(s *string, lower bool) *string {
		if s == nil {
			return nil
		}
		c := core.CleanString(*s, lower)
		return &c
	}
	ue.Name = clean(ue.Name, false)
	ue.Slug = clean(ue.Slug, true)
	ue.Venue = clean(ue.Venue, false)
	ue.Campus = clean(ue.Campus, true)
	ue.Description = clean(ue.Description, false)

	if err := validate.Struct(ue); err != nil {
		return Event{}, err
	}

	evt := orig
	if ue.Name != nil && *ue.Name != "" {
		evt.Name = *ue.Name
	}
	if ue.Slug != nil && *ue.Slug != "" && *ue.Slug != orig.Slug {
		if err := svc.CheckSlugUniqueness(ctx, *ue.Slug, orig.ID); err != nil {
			return Event{}, err
		}
		evt.Slug = *ue.Slug
	}
	if ue.Description != nil {
		evt.Description = *ue.Description
	}
	if ue.Venue != nil {
		evt.Venue = *ue.Venue
	}
	if ue.Campus != nil {
		evt.Campus = *ue.Campus
	}
	if ue.StartsAt != nil {
		evt.StartsAt = ue.StartsAt.UTC()
	}
	if ue.EndsAt != nil {
		evt.EndsAt = ue.EndsAt.UTC()
	}
	if !evt.EndsAt.After(evt.StartsAt) {
		return Event{}, errEndsBeforeStart
	}
	if ue.Capacity != nil {
		evt.Capacity = *ue.Capacity
	}
	if ue.RegistrationOpen != nil {
		evt.RegistrationOpen = *ue.RegistrationOpen
	}
	if ue.RemoveGeofence {
		evt.Geofence = nil
	} else if ue.Geofence != nil {
		gf := *ue.Geofence
		evt.Geofence = &gf
	}
	return evt, nil
}

type QueryFilter struct {
	Search           string    `query:"search"`
	Campus           string    `query:"campus"`
	EndsAfter        time.Time `query:"ends_after"`
	RegistrationOpen *bool     `query:"registration_open"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Campus = core.CleanString(qf.Campus, true /* lower */)
}

type GetFilter struct {
	ID   string
	Slug string
}

// Slugify turns `s` into a lowercase dash-separated slug.
func Slugify(s string) string {
	slug := strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(s), "-"), "-")
	if len(slug) > 100 {
		slug = strings.TrimRight(slug[:100], "-")
	}
	return slug
}
