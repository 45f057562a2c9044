package echoapi_test

import (
	"encoding/csv"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/rollcall/core"
	"github.com/trezcool/rollcall/core/attendance"
	"github.com/trezcool/rollcall/core/event"
	"github.com/trezcool/rollcall/core/registration"
	"github.com/trezcool/rollcall/testutil"
)

func newRegistration(name, email, rollNumber string) map[string]string {
	return map[string]string{
		"name":        name,
		"email":       email,
		"roll_number": rollNumber,
		"campus":      "amritapuri",
		"domain":      "ai",
	}
}

func Test_eventApi_public(t *testing.T) {
	f := setup(t)
	now := time.Now().UTC()
	past := testutil.CreateEvent(t, f.evtRepo, "Orientation", now.Add(-48*time.Hour), 2*time.Hour)
	next := testutil.CreateEvent(t, f.evtRepo, "Hack Night", now.Add(24*time.Hour), 3*time.Hour)

	rec := f.do(t, request{path: "/v1/events"})
	require.Equal(t, http.StatusOK, rec.Code)
	var events []event.Event
	decode(t, rec, &events)
	require.Len(t, events, 2)
	assert.Equal(t, past.ID, events[0].ID, "ordered by start")

	rec = f.do(t, request{path: "/v1/events?ends_after=" + now.Format(time.RFC3339)})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &events)
	require.Len(t, events, 1)
	assert.Equal(t, next.ID, events[0].ID)

	t.Run("retrieve by id or slug", func(t *testing.T) {
		for _, key := range []string{next.ID, next.Slug} {
			rec := f.do(t, request{path: "/v1/events/" + key})
			require.Equal(t, http.StatusOK, rec.Code)
			var got event.Event
			decode(t, rec, &got)
			assert.Equal(t, next.ID, got.ID)
		}
		assert.Equal(t, http.StatusNotFound, f.do(t, request{path: "/v1/events/nope"}).Code)
	})
}

func Test_eventApi_admin(t *testing.T) {
	f := setup(t)
	_, adminToken := f.admin(t)
	_, scannerToken := f.scanner(t)
	starts := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)

	body := map[string]interface{}{
		"name":      "Hack Night",
		"campus":    "amritapuri",
		"starts_at": starts,
		"ends_at":   starts.Add(3 * time.Hour),
		"capacity":  100,
		"geofence":  map[string]float64{"lat": 9.0936, "lng": 76.4923, "radius_meters": 200},
	}

	assert.Equal(t, http.StatusUnauthorized, f.do(t, request{method: http.MethodPost, path: "/v1/events", body: body}).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, request{method: http.MethodPost, path: "/v1/events", token: scannerToken, body: body}).Code)

	rec := f.do(t, request{method: http.MethodPost, path: "/v1/events", token: adminToken, body: body})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var evt event.Event
	decode(t, rec, &evt)
	assert.Equal(t, "hack-night", evt.Slug)
	assert.True(t, evt.RegistrationOpen)
	require.NotNil(t, evt.Geofence)

	t.Run("slug taken", func(t *testing.T) {
		rec := f.do(t, request{method: http.MethodPost, path: "/v1/events", token: adminToken, body: body})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var fields map[string]string
		decode(t, rec, &fields)
		assert.Contains(t, fields, "slug")
	})

	t.Run("update", func(t *testing.T) {
		rec := f.do(t, request{
			method: http.MethodPut, path: "/v1/events/" + evt.ID, token: adminToken,
			body: map[string]interface{}{"name": "Hack Night II", "remove_geofence": true},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got event.Event
		decode(t, rec, &got)
		assert.Equal(t, "Hack Night II", got.Name)
		assert.Equal(t, evt.Slug, got.Slug)
		assert.Nil(t, got.Geofence)
	})

	t.Run("delete", func(t *testing.T) {
		rec := f.do(t, request{method: http.MethodDelete, path: "/v1/events/" + evt.ID, token: adminToken})
		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, http.StatusNotFound, f.do(t, request{path: "/v1/events/" + evt.ID}).Code)
	})
}

func Test_eventApi_registrations(t *testing.T) {
	f := setup(t)
	_, adminToken := f.admin(t)
	evt := testutil.CreateEvent(t, f.evtRepo, "Hack Night", time.Now().Add(24*time.Hour), 3*time.Hour)
	path := "/v1/events/" + evt.Slug + "/registrations"

	rec := f.do(t, request{method: http.MethodPost, path: path, body: newRegistration("Awe Some", " Awe@Students.test ", "am.en.u4cse21001")})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reg registration.Registration
	decode(t, rec, &reg)
	assert.Equal(t, "awe@students.test", reg.Email)
	assert.Equal(t, "AM.EN.U4CSE21001", reg.RollNumber)
	assert.NotEmpty(t, reg.TicketCode)
	require.Len(t, f.mailSvc.SentMessages(), 1, "ticket emailed")

	t.Run("invalid", func(t *testing.T) {
		body := newRegistration("", "nope", "AM!")
		body["campus"] = "mars"
		rec := f.do(t, request{method: http.MethodPost, path: path, body: body})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var fields map[string]string
		decode(t, rec, &fields)
		for _, fld := range []string{"name", "email", "roll_number", "campus"} {
			assert.Contains(t, fields, fld)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		rec := f.do(t, request{method: http.MethodPost, path: path, body: newRegistration("Awe Some", "awe@students.test", "AM.EN.U4CSE21002")})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var fields map[string]string
		decode(t, rec, &fields)
		assert.Equal(t, registration.ErrAlreadyRegistered.Error(), fields["email"])
	})

	t.Run("list (admin)", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, f.do(t, request{path: path}).Code)

		rec := f.do(t, request{path: path + "?search=awe", token: adminToken})
		require.Equal(t, http.StatusOK, rec.Code)
		var regs []registration.Registration
		decode(t, rec, &regs)
		require.Len(t, regs, 1)
		assert.Equal(t, reg.ID, regs[0].ID)
	})

	t.Run("cancel", func(t *testing.T) {
		rec := f.do(t, request{method: http.MethodDelete, path: path + "/" + reg.ID, token: adminToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got registration.Registration
		decode(t, rec, &got)
		assert.Equal(t, registration.StatusCancelled, got.Status)

		other := testutil.CreateEvent(t, f.evtRepo, "Other", time.Now().Add(24*time.Hour), time.Hour)
		rec = f.do(t, request{method: http.MethodDelete, path: "/v1/events/" + other.ID + "/registrations/" + reg.ID, token: adminToken})
		assert.Equal(t, http.StatusNotFound, rec.Code, "registration of another event")
	})
}

func Test_eventApi_registrationClosed(t *testing.T) {
	f := setup(t)
	full := testutil.CreateEvent(t, f.evtRepo, "Tiny Talk", time.Now().Add(24*time.Hour), time.Hour, func(e *event.Event) { e.Capacity = 1 })
	testutil.CreateRegistration(t, f.regRepo, full.ID, "First One", "AM1", "amritapuri", "ai")

	rec := f.do(t, request{method: http.MethodPost, path: "/v1/events/" + full.ID + "/registrations", body: newRegistration("Late Comer", "late@students.test", "AM2")})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, registration.ErrEventFull.Error(), errorOf(t, rec))
}

func Test_eventApi_rateLimit(t *testing.T) {
	f := setup(t, func(conf *core.Config) { conf.Server.AuthRateLimit = 2 })
	evt := testutil.CreateEvent(t, f.evtRepo, "Hack Night", time.Now().Add(24*time.Hour), time.Hour)
	path := "/v1/events/" + evt.ID + "/registrations"

	for i := 0; i < 2; i++ {
		rec := f.do(t, request{method: http.MethodPost, path: path, body: map[string]string{}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	rec := f.do(t, request{method: http.MethodPost, path: path, body: map[string]string{}})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// other routes are not limited
	assert.Equal(t, http.StatusOK, f.do(t, request{path: "/v1/events"}).Code)
}

func Test_eventApi_attendance(t *testing.T) {
	f := setup(t)
	admin, adminToken := f.admin(t)
	evt := testutil.CreateEvent(t, f.evtRepo, "Hack Night", time.Now().Add(-10*time.Minute), 3*time.Hour)
	awe := testutil.CreateRegistration(t, f.regRepo, evt.ID, "Awe Some", "AM1", "amritapuri", "ai")
	testutil.CreateRegistration(t, f.regRepo, evt.ID, "Bo Ring", "AM2", "bengaluru", "web")
	base := "/v1/events/" + evt.ID

	rec := f.do(t, request{
		method: http.MethodPut, path: base + "/attendance/" + awe.ID, token: adminToken,
		body: attendance.RecordOverride{Status: attendance.StatusCheckedIn},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var record attendance.Record
	decode(t, rec, &record)
	assert.Equal(t, attendance.StatusCheckedIn, record.Status)
	assert.Equal(t, admin.ID, record.ScannedBy)

	t.Run("override: unknown status", func(t *testing.T) {
		rec := f.do(t, request{method: http.MethodPut, path: base + "/attendance/" + awe.ID, token: adminToken, body: map[string]string{"status": "asleep"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("override: unknown registration", func(t *testing.T) {
		rec := f.do(t, request{method: http.MethodPut, path: base + "/attendance/nope", token: adminToken, body: attendance.RecordOverride{Status: attendance.StatusAbsent}})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("stats", func(t *testing.T) {
		rec := f.do(t, request{path: base + "/stats", token: adminToken})
		require.Equal(t, http.StatusOK, rec.Code)
		var stats attendance.Stats
		decode(t, rec, &stats)
		assert.Equal(t, 2, stats.Registered)
		assert.Equal(t, 1, stats.CheckedIn)
		assert.Equal(t, 1, stats.Absent)
		require.Contains(t, stats.ByCampus, "bengaluru")
		assert.Equal(t, 1, stats.ByCampus["bengaluru"].Absent)
	})

	t.Run("attendees", func(t *testing.T) {
		rec := f.do(t, request{path: base + "/attendance?status=checked_in", token: adminToken})
		require.Equal(t, http.StatusOK, rec.Code)
		var attendees []attendance.Attendee
		decode(t, rec, &attendees)
		require.Len(t, attendees, 1)
		assert.Equal(t, awe.ID, attendees[0].ID)
	})

	t.Run("csv", func(t *testing.T) {
		rec := f.do(t, request{path: base + "/attendance.csv", token: adminToken})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "hack-night-attendance.csv")

		rows, err := csv.NewReader(rec.Body).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "ticket_code", rows[0][0])
	})
}
