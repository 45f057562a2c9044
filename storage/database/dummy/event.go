package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/event"
)

type eventRepository struct {
	db *eventTable
}

var _ event.Repository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(db *DB) event.Repository {
	return &eventRepository{db: db.event}
}

func (repo *eventRepository) CheckSlugUniqueness(_ context.Context, slug string, excludedIDs []string, _ ...core.DBExecutor) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

outer:
	for _, evt := range repo.db.table {
		for _, id := range excludedIDs {
			if evt.ID == id {
				continue outer
			}
		}
		if evt.Slug == slug {
			return event.ErrSlugExists
		}
	}
	return nil
}

func (repo *eventRepository) CreateEvent(_ context.Context, evt event.Event, _ ...core.DBExecutor) (event.Event, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	evt.ID = uuid.New().String()
	repo.db.table[evt.ID] = &evt
	return evt, nil
}

func (repo *eventRepository) QueryEvents(_ context.Context, filter *event.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]event.Event, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	events := make([]event.Event, 0, len(repo.db.table))
	for _, evt := range repo.db.table {
		if filter != nil {
			if filter.Search != "" && !core.ContainsFold(evt.Name, filter.Search) && !core.ContainsFold(evt.Venue, filter.Search) {
				continue
			}
			if filter.Campus != "" && evt.Campus != filter.Campus {
				continue
			}
			if !filter.EndsAfter.IsZero() && !evt.EndsAt.After(filter.EndsAfter) {
				continue
			}
			if filter.RegistrationOpen != nil && evt.RegistrationOpen != *filter.RegistrationOpen {
				continue
			}
		}
		events = append(events, *evt)
	}

	sort.Slice(events, func(i, j int) bool {
		for _, ord := range ordering {
			switch ord.Field {
			case "name":
				if events[i].Name != events[j].Name {
					return (events[i].Name < events[j].Name) == ord.Ascending
				}
			case "starts_at":
				if !events[i].StartsAt.Equal(events[j].StartsAt) {
					return events[i].StartsAt.Before(events[j].StartsAt) == ord.Ascending
				}
			}
		}
		return events[i].StartsAt.Before(events[j].StartsAt)
	})
	return events, nil
}

func (repo *eventRepository) GetEvent(_ context.Context, filter event.GetFilter, _ ...core.DBExecutor) (event.Event, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if evt, ok := repo.db.table[filter.ID]; ok {
			return *evt, nil
		}
		return event.Event{}, event.ErrNotFound
	}
	for _, evt := range repo.db.table {
		if filter.Slug != "" && evt.Slug == filter.Slug {
			return *evt, nil
		}
	}
	return event.Event{}, event.ErrNotFound
}

func (repo *eventRepository) UpdateEvent(_ context.Context, evt event.Event, _ ...core.DBExecutor) (event.Event, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[evt.ID]; !ok {
		return event.Event{}, event.ErrNotFound
	}
	repo.db.table[evt.ID] = &evt
	return evt, nil
}

func (repo *eventRepository) DeleteEvent(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return event.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}
