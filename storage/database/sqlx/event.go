package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/event"
)

const eventColumns = `id, name, slug, description, venue, campus, starts_at, ends_at, capacity, registration_open,
	geo_lat, geo_lng, geo_radius, created_at, updated_at`

var eventOrderings = map[string]string{
	"name":       "name",
	"starts_at":  "starts_at",
	"created_at": "created_at",
}

type eventRow struct {
	ID               string       `db:"id"`
	Name             string       `db:"name"`
	Slug             string       `db:"slug"`
	Description      string       `db:"description"`
	Venue            string       `db:"venue"`
	Campus           string       `db:"campus"`
	StartsAt         time.Time    `db:"starts_at"`
	EndsAt           time.Time    `db:"ends_at"`
	Capacity         int          `db:"capacity"`
	RegistrationOpen bool         `db:"registration_open"`
	GeoLat           null.Float64 `db:"geo_lat"`
	GeoLng           null.Float64 `db:"geo_lng"`
	GeoRadius        null.Float64 `db:"geo_radius"`
	CreatedAt        time.Time    `db:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at"`
}

type eventRepository struct {
	repo
}

var _ event.Repository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(db core.DB) event.Repository {
	return &eventRepository{repo{db: db}}
}

func (eventRepository) toRow(evt event.Event) eventRow {
	row := eventRow{
		ID:               evt.ID,
		Name:             evt.Name,
		Slug:             evt.Slug,
		Description:      evt.Description,
		Venue:            evt.Venue,
		Campus:           evt.Campus,
		StartsAt:         evt.StartsAt.UTC(),
		EndsAt:           evt.EndsAt.UTC(),
		Capacity:         evt.Capacity,
		RegistrationOpen: evt.RegistrationOpen,
		CreatedAt:        evt.CreatedAt.UTC(),
		UpdatedAt:        evt.UpdatedAt.UTC(),
	}
	if g := evt.Geofence; g != nil {
		row.GeoLat = null.Float64From(g.Lat)
		row.GeoLng = null.Float64From(g.Lng)
		row.GeoRadius = null.Float64From(g.RadiusMeters)
	}
	return row
}

func (eventRepository) fromRow(row eventRow) event.Event {
	evt := event.Event{
		ID:               row.ID,
		Name:             row.Name,
		Slug:             row.Slug,
		Description:      row.Description,
		Venue:            row.Venue,
		Campus:           row.Campus,
		StartsAt:         row.StartsAt.UTC(),
		EndsAt:           row.EndsAt.UTC(),
		Capacity:         row.Capacity,
		RegistrationOpen: row.RegistrationOpen,
		CreatedAt:        row.CreatedAt.UTC(),
		UpdatedAt:        row.UpdatedAt.UTC(),
	}
	if row.GeoLat.Valid && row.GeoLng.Valid && row.GeoRadius.Valid {
		evt.Geofence = &event.Geofence{
			Lat:          row.GeoLat.Float64,
			Lng:          row.GeoLng.Float64,
			RadiusMeters: row.GeoRadius.Float64,
		}
	}
	return evt
}

func (eventRepository) trapUniqueErr(err error, msg string) error {
	if c, ok := violatedConstraint(err); ok && c == "event_slug_key" {
		return event.ErrSlugExists
	}
	return errors.Wrap(err, msg)
}

func (r eventRepository) CheckSlugUniqueness(ctx context.Context, slug string, excludedIDs []string, exec ...core.DBExecutor) error {
	var w where
	w.add("slug = ?", slug)
	if len(excludedIDs) > 0 {
		if err := w.in("id NOT", excludedIDs); err != nil {
			return errors.Wrap(err, "checking slug uniqueness")
		}
	}

	exe := r.getExec(exec)
	var found bool
	q := exe.Rebind(`SELECT EXISTS (SELECT 1 FROM event` + w.String() + `)`)
	if err := exe.GetContext(ctx, &found, q, w.args...); err != nil {
		return errors.Wrap(err, "checking slug uniqueness")
	}
	if found {
		return event.ErrSlugExists
	}
	return nil
}

func (r eventRepository) CreateEvent(ctx context.Context, evt event.Event, exec ...core.DBExecutor) (event.Event, error) {
	evt.ID = uuid.New().String()
	row := r.toRow(evt)

	q := `INSERT INTO event (` + eventColumns + `)
		VALUES (:id, :name, :slug, :description, :venue, :campus, :starts_at, :ends_at, :capacity, :registration_open,
			:geo_lat, :geo_lng, :geo_radius, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.getExec(exec), q, row); err != nil {
		return event.Event{}, r.trapUniqueErr(err, "inserting event")
	}
	return r.fromRow(row), nil
}

func (r eventRepository) QueryEvents(ctx context.Context, filter *event.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]event.Event, error) {
	var w where
	if filter != nil {
		if filter.Search != "" {
			val := ilike(filter.Search)
			w.add("name ILIKE ? OR venue ILIKE ?", val, val)
		}
		if filter.Campus != "" {
			w.add("campus = ?", filter.Campus)
		}
		if !filter.EndsAfter.IsZero() {
			w.add("ends_at > ?", filter.EndsAfter.UTC())
		}
		if filter.RegistrationOpen != nil {
			w.add("registration_open = ?", *filter.RegistrationOpen)
		}
	}

	exe := r.getExec(exec)
	q := exe.Rebind(`SELECT ` + eventColumns + ` FROM event` + w.String() +
		core.OrderByClause(ordering, eventOrderings, "starts_at ASC"))
	var rows []eventRow
	if err := exe.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying events")
	}

	events := make([]event.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, r.fromRow(row))
	}
	return events, nil
}

func (r eventRepository) GetEvent(ctx context.Context, filter event.GetFilter, exec ...core.DBExecutor) (event.Event, error) {
	var w where
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return event.Event{}, event.ErrNotFound
		}
		w.add("id = ?", filter.ID)
	case filter.Slug != "":
		w.add("slug = ?", filter.Slug)
	default:
		return event.Event{}, event.ErrNotFound
	}

	exe := r.getExec(exec)
	var row eventRow
	q := exe.Rebind(`SELECT ` + eventColumns + ` FROM event` + w.String())
	if err := exe.GetContext(ctx, &row, q, w.args...); err != nil {
		return event.Event{}, trapNoRows(err, event.ErrNotFound, "finding event")
	}
	return r.fromRow(row), nil
}

func (r eventRepository) UpdateEvent(ctx context.Context, evt event.Event, exec ...core.DBExecutor) (event.Event, error) {
	row := r.toRow(evt)

	q := `UPDATE event SET
		name = :name, slug = :slug, description = :description, venue = :venue, campus = :campus,
		starts_at = :starts_at, ends_at = :ends_at, capacity = :capacity, registration_open = :registration_open,
		geo_lat = :geo_lat, geo_lng = :geo_lng, geo_radius = :geo_radius, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.getExec(exec), q, row)
	if err != nil {
		return event.Event{}, r.trapUniqueErr(err, "updating event")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return event.Event{}, event.ErrNotFound
	}
	return r.fromRow(row), nil
}

func (r eventRepository) DeleteEvent(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if _, err := uuid.Parse(id); err != nil {
		return event.ErrNotFound
	}

	exe := r.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind(`DELETE FROM event WHERE id = ?`), id)
	if err != nil {
		return errors.Wrap(err, "deleting event")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return event.ErrNotFound
	}
	return nil
}
