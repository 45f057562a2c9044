package event

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
)

var (
	// errors
	ErrNotFound   = errors.New("event not found")
	ErrSlugExists = errors.New("an event with this slug already exists")
)

type (
	Repository interface {
		// CheckSlugUniqueness returns ErrSlugExists if another Event (not in excludedIDs) uses `slug`.
		CheckSlugUniqueness(ctx context.Context, slug string, excludedIDs []string, exec ...core.DBExecutor) error
		CreateEvent(ctx context.Context, evt Event, exec ...core.DBExecutor) (Event, error)
		QueryEvents(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Event, error)
		GetEvent(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Event, error)
		UpdateEvent(ctx context.Context, evt Event, exec ...core.DBExecutor) (Event, error)
		DeleteEvent(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	Service interface {
		CheckSlugUniqueness(ctx context.Context, slug string, excludedIDs ...string) error
		Create(ctx context.Context, ne NewEvent) (Event, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Event, error)
		GetByID(ctx context.Context, id string) (Event, error)
		GetBySlug(ctx context.Context, slug string) (Event, error)
		Update(ctx context.Context, evt Event) (Event, error)
		Delete(ctx context.Context, id string) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) CheckSlugUniqueness(ctx context.Context, slug string, excludedIDs ...string) error {
	if err := svc.repo.CheckSlugUniqueness(ctx, slug, excludedIDs); err != nil {
		if errors.Cause(err) == ErrSlugExists {
			return core.NewFieldError("slug", ErrSlugExists)
		}
		return errors.Wrap(err, "checking slug uniqueness")
	}
	return nil
}

func (svc *service) Create(ctx context.Context, ne NewEvent) (Event, error) {
	now := core.NowUTC()
	evt := Event{
		Name:             ne.Name,
		Slug:             ne.Slug,
		Description:      ne.Description,
		Venue:            ne.Venue,
		Campus:           ne.Campus,
		StartsAt:         ne.StartsAt.UTC(),
		EndsAt:           ne.EndsAt.UTC(),
		Capacity:         ne.Capacity,
		RegistrationOpen: true,
		Geofence:         ne.Geofence,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if ne.RegistrationOpen != nil {
		evt.RegistrationOpen = *ne.RegistrationOpen
	}
	return svc.repo.CreateEvent(ctx, evt)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Event, error) {
	return svc.repo.QueryEvents(ctx, filter, ordering)
}

func (svc *service) GetByID(ctx context.Context, id string) (Event, error) {
	return svc.repo.GetEvent(ctx, GetFilter{ID: id})
}

func (svc *service) GetBySlug(ctx context.Context, slug string) (Event, error) {
	return svc.repo.GetEvent(ctx, GetFilter{Slug: core.CleanString(slug, true /* lower */)})
}

// Update saves an Event previously validated with UpdateEvent.Validate.
func (svc *service) Update(ctx context.Context, evt Event) (Event, error) {
	evt.UpdatedAt = core.NowUTC()
	return svc.repo.UpdateEvent(ctx, evt)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteEvent(ctx, id)
}
