// Package dummydb keeps the repositories in memory, for tests and `database.engine=memory` deployments.
package dummydb

import (
	"sync"

	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/event"
	"github.com/trezcool/rollcall/core/registration"
	"github.com/trezcool/rollcall/core/user"
)

type (
	DB struct {
		user         *userTable
		event        *eventTable
		registration *registrationTable
		attendance   *attendanceTables
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	eventTable struct {
		sync.RWMutex
		table map[string]*event.Event
	}

	registrationTable struct {
		sync.RWMutex
		table map[string]*registration.Registration
	}

	attendanceTables struct {
		sync.RWMutex
		sessions map[string]*attendance.Session
		records  map[recordKey]*attendance.Record
	}

	recordKey struct {
		eventID        string
		registrationID string
	}
)

func Open() *DB {
	return &DB{
		user:         &userTable{table: make(map[string]*user.User)},
		event:        &eventTable{table: make(map[string]*event.Event)},
		registration: &registrationTable{table: make(map[string]*registration.Registration)},
		attendance: &attendanceTables{
			sessions: make(map[string]*attendance.Session),
			records:  make(map[recordKey]*attendance.Record),
		},
	}
}
