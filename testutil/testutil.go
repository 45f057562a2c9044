// Package testutil creates fixtures in repositories for tests.
package testutil

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/event"
	"github.com/trezcool/rollcall/core/registration"
	"github.com/trezcool/rollcall/core/user"
	logsvc "github.com/trezcool/rollcall/services/logger"
)

// NewLogger returns a logger writing nowhere.
func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := core.NowUTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateEvent creates an open Event starting at `startsAt`; `opts` may adjust it before saving.
func CreateEvent(t *testing.T, repo event.Repository, name string, startsAt time.Time, duration time.Duration, opts ...func(*event.Event)) event.Event {
	t.Helper()

	now := core.NowUTC()
	evt := event.Event{
		Name:             name,
		Slug:             event.Slugify(name),
		Venue:            "Main Auditorium",
		StartsAt:         startsAt.UTC(),
		EndsAt:           startsAt.Add(duration).UTC(),
		RegistrationOpen: true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, opt := range opts {
		opt(&evt)
	}
	evt, err := repo.CreateEvent(context.Background(), evt)
	if err != nil {
		t.Fatalf("CreateEvent() failed: %v", err)
	}
	return evt
}

// CreateRegistration creates a confirmed registration of `name` to an Event.
func CreateRegistration(t *testing.T, repo registration.Repository, eventID, name, rollNumber, campus, domain string) registration.Registration {
	t.Helper()

	code, err := registration.NewTicketCode()
	if err != nil {
		t.Fatalf("CreateRegistration() failed: %v", err)
	}
	now := core.NowUTC()
	reg := registration.Registration{
		EventID:    eventID,
		Name:       name,
		Email:      strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@am.students.amrita.edu",
		RollNumber: rollNumber,
		Campus:     campus,
		Domain:     domain,
		TicketCode: code,
		Status:     registration.StatusConfirmed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	reg, err = repo.SaveRegistration(context.Background(), reg, 0)
	if err != nil {
		t.Fatalf("CreateRegistration() failed: %v", err)
	}
	return reg
}
