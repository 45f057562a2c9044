package attendance

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/registration"
)

// Attendee is a confirmed registration with its attendance.
type Attendee struct {
	registration.Registration
	Attendance Record `json:"attendance"`
}

type AttendeeFilter struct {
	Search string `query:"search"`
	Campus string `query:"campus"`
	Domain string `query:"domain"`
	Status Status `query:"status"`
}

func (af *AttendeeFilter) Clean() {
	af.Search = core.CleanString(af.Search)
	af.Campus = core.CleanString(af.Campus, true /* lower */)
	af.Domain = core.CleanString(af.Domain, true /* lower */)
	af.Status = Status(core.CleanString(string(af.Status), true /* lower */))
}

type Counts struct {
	Registered int `json:"registered"`
	Absent     int `json:"absent"`
	CheckedIn  int `json:"checked_in"`
	CheckedOut int `json:"checked_out"`
	Attended   int `json:"attended"` // checked in at least once
}

func (c *Counts) add(s Status) {
	c.Registered++
	switch s {
	case StatusCheckedIn:
		c.CheckedIn++
		c.Attended++
	case StatusCheckedOut:
		c.CheckedOut++
		c.Attended++
	default:
		c.Absent++
	}
}

type Stats struct {
	EventID string `json:"event_id"`
	Counts
	ByCampus map[string]*Counts `json:"by_campus"`
	ByDomain map[string]*Counts `json:"by_domain"`
}

var csvHeader = []string{
	"ticket_code", "name", "email", "roll_number", "campus", "domain",
	"status", "check_in_time", "check_out_time", "entries", "presence_minutes",
}

// Attendees lists the confirmed registrations of an Event, with their attendance.
func (svc *service) Attendees(ctx context.Context, eventID string, filter *AttendeeFilter) ([]Attendee, error) {
	if _, err := svc.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}

	regFilter := &registration.QueryFilter{EventID: eventID, Status: registration.StatusConfirmed}
	var status Status
	if filter != nil {
		regFilter.Search = filter.Search
		regFilter.Campus = filter.Campus
		regFilter.Domain = filter.Domain
		status = filter.Status
	}
	regs, err := svc.registrations.Query(ctx, regFilter, []core.DBOrdering{{Field: "name", Ascending: true}})
	if err != nil {
		return nil, errors.Wrap(err, "querying registrations")
	}

	recs, err := svc.repo.QueryRecords(ctx, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance records")
	}
	byReg := make(map[string]Record, len(recs))
	for _, rec := range recs {
		byReg[rec.RegistrationID] = rec
	}

	attendees := make([]Attendee, 0, len(regs))
	for _, reg := range regs {
		rec, ok := byReg[reg.ID]
		if !ok {
			rec = NewRecord(eventID, reg.ID)
		}
		if status != "" && rec.Status != status {
			continue
		}
		attendees = append(attendees, Attendee{Registration: reg, Attendance: rec})
	}
	return attendees, nil
}

// Stats counts the attendance of an Event, overall and per campus & domain.
func (svc *service) Stats(ctx context.Context, eventID string) (Stats, error) {
	attendees, err := svc.Attendees(ctx, eventID, nil)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		EventID:  eventID,
		ByCampus: make(map[string]*Counts),
		ByDomain: make(map[string]*Counts),
	}
	for _, a := range attendees {
		s := a.Attendance.Status
		stats.add(s)
		if _, ok := stats.ByCampus[a.Campus]; !ok {
			stats.ByCampus[a.Campus] = &Counts{}
		}
		stats.ByCampus[a.Campus].add(s)
		if _, ok := stats.ByDomain[a.Domain]; !ok {
			stats.ByDomain[a.Domain] = &Counts{}
		}
		stats.ByDomain[a.Domain].add(s)
	}
	return stats, nil
}

// ExportCSV writes the attendance of an Event as CSV.
func (svc *service) ExportCSV(ctx context.Context, eventID string, w io.Writer) error {
	attendees, err := svc.Attendees(ctx, eventID, nil)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	for _, a := range attendees {
		rec := a.Attendance
		row := []string{
			a.TicketCode,
			a.Name,
			a.Email,
			a.RollNumber,
			a.Campus,
			a.Domain,
			string(rec.Status),
			formatTime(rec.CheckInTime),
			formatTime(rec.CheckOutTime),
			strconv.Itoa(rec.Entries),
			strconv.FormatInt(rec.PresenceSeconds/60, 10),
		}
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "writing csv row")
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
