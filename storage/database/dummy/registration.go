package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/registration"
)

type registrationRepository struct {
	db *registrationTable
}

var _ registration.Repository = (*registrationRepository)(nil) // interface compliance check

func NewRegistrationRepository(db *DB) registration.Repository {
	return &registrationRepository{db: db.registration}
}

func (repo *registrationRepository) SaveRegistration(_ context.Context, reg registration.Registration, capacity int, _ ...core.DBExecutor) (registration.Registration, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var confirmed int
	for _, r := range repo.db.table {
		if r.ID == reg.ID {
			continue
		}
		if r.TicketCode == reg.TicketCode {
			return registration.Registration{}, registration.ErrTicketExists
		}
		if r.EventID != reg.EventID || !r.Confirmed() {
			continue
		}
		if r.Email == reg.Email || r.RollNumber == reg.RollNumber {
			return registration.Registration{}, registration.ErrAlreadyRegistered
		}
		confirmed++
	}
	if capacity > 0 && confirmed >= capacity {
		return registration.Registration{}, registration.ErrEventFull
	}

	if reg.ID == "" {
		reg.ID = uuid.New().String()
	} else if _, ok := repo.db.table[reg.ID]; !ok {
		return registration.Registration{}, registration.ErrNotFound
	}
	repo.db.table[reg.ID] = &reg
	return reg, nil
}

func (repo *registrationRepository) UpdateRegistration(_ context.Context, reg registration.Registration, _ ...core.DBExecutor) (registration.Registration, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[reg.ID]; !ok {
		return registration.Registration{}, registration.ErrNotFound
	}
	repo.db.table[reg.ID] = &reg
	return reg, nil
}

func (repo *registrationRepository) GetRegistration(_ context.Context, filter registration.GetFilter, _ ...core.DBExecutor) (registration.Registration, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if reg, ok := repo.db.table[filter.ID]; ok {
			return *reg, nil
		}
		return registration.Registration{}, registration.ErrNotFound
	}
	for _, reg := range repo.db.table {
		if filter.TicketCode != "" && reg.TicketCode == filter.TicketCode {
			return *reg, nil
		}
	}
	return registration.Registration{}, registration.ErrNotFound
}

func (repo *registrationRepository) QueryRegistrations(_ context.Context, filter *registration.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]registration.Registration, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	regs := make([]registration.Registration, 0, len(repo.db.table))
	for _, reg := range repo.db.table {
		if filter.Matches(*reg) {
			regs = append(regs, *reg)
		}
	}

	sort.Slice(regs, func(i, j int) bool {
		for _, ord := range ordering {
			var a, b string
			switch ord.Field {
			case "name":
				a, b = regs[i].Name, regs[j].Name
			case "roll_number":
				a, b = regs[i].RollNumber, regs[j].RollNumber
			case "campus":
				a, b = regs[i].Campus, regs[j].Campus
			default:
				continue
			}
			if a != b {
				return (a < b) == ord.Ascending
			}
		}
		return regs[i].CreatedAt.Before(regs[j].CreatedAt)
	})
	return regs, nil
}

func (repo *registrationRepository) FindDuplicates(_ context.Context, eventID, email, rollNumber string, _ ...core.DBExecutor) ([]registration.Registration, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var dups []registration.Registration
	for _, reg := range repo.db.table {
		if reg.EventID == eventID && (reg.Email == email || reg.RollNumber == rollNumber) {
			dups = append(dups, *reg)
		}
	}
	return dups, nil
}

func (repo *registrationRepository) CountRegistrations(_ context.Context, eventID, status string, _ ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var cnt int
	for _, reg := range repo.db.table {
		if reg.EventID == eventID && (status == "" || reg.Status == status) {
			cnt++
		}
	}
	return cnt, nil
}
