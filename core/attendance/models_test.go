package attendance

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/rollcall/core"
)

func TestRecord_Apply(t *testing.T) {
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	cooldown := 30 * time.Second

	t.Run("auto toggles", func(t *testing.T) {
		rec := NewRecord("evt", "reg")

		rec, action, err := rec.Apply(ActionAuto, t0, cooldown)
		require.NoError(t, err)
		assert.Equal(t, ActionCheckIn, action)
		assert.Equal(t, StatusCheckedIn, rec.Status)
		assert.Equal(t, 1, rec.Entries)
		assert.Equal(t, t0, *rec.CheckInTime)
		assert.Nil(t, rec.CheckOutTime)

		t1 := t0.Add(45 * time.Minute)
		rec, action, err = rec.Apply(ActionAuto, t1, cooldown)
		require.NoError(t, err)
		assert.Equal(t, ActionCheckOut, action)
		assert.Equal(t, StatusCheckedOut, rec.Status)
		assert.Equal(t, t1, *rec.CheckOutTime)
		assert.EqualValues(t, 45*60, rec.PresenceSeconds)

		t2 := t1.Add(10 * time.Minute)
		rec, action, err = rec.Apply(ActionAuto, t2, cooldown)
		require.NoError(t, err)
		assert.Equal(t, ActionCheckIn, action)
		assert.Equal(t, 2, rec.Entries)
		assert.Equal(t, t0, *rec.CheckInTime, "first check-in time is kept")
		assert.Equal(t, t2, *rec.LastCheckInTime)
		assert.Nil(t, rec.CheckOutTime)

		t3 := t2.Add(15 * time.Minute)
		rec, _, err = rec.Apply(ActionAuto, t3, cooldown)
		require.NoError(t, err)
		assert.EqualValues(t, 60*60, rec.PresenceSeconds)
		assert.Equal(t, ActionCheckOut, rec.LastAction)
		assert.Equal(t, t3, *rec.LastActionAt)
	})

	t.Run("cooldown", func(t *testing.T) {
		rec, _, err := NewRecord("evt", "reg").Apply(ActionCheckIn, t0, cooldown)
		require.NoError(t, err)

		same, action, err := rec.Apply(ActionAuto, t0.Add(10*time.Second), cooldown)
		assert.Equal(t, ErrTooSoon, err)
		assert.Equal(t, ActionCheckOut, action)
		assert.Equal(t, rec, same)

		// the cooldown is checked before the state
		_, _, err = rec.Apply(ActionCheckIn, t0.Add(10*time.Second), cooldown)
		assert.Equal(t, ErrTooSoon, err)

		_, _, err = rec.Apply(ActionAuto, t0.Add(cooldown), cooldown)
		assert.NoError(t, err)
	})

	t.Run("explicit actions", func(t *testing.T) {
		_, _, err := NewRecord("evt", "reg").Apply(ActionCheckOut, t0, cooldown)
		assert.Equal(t, ErrNotCheckedIn, err)

		rec, _, err := NewRecord("evt", "reg").Apply(ActionCheckIn, t0, cooldown)
		require.NoError(t, err)
		_, _, err = rec.Apply(ActionCheckIn, t0.Add(time.Hour), cooldown)
		assert.Equal(t, ErrAlreadyCheckedIn, err)

		_, _, err = rec.Apply("teleport", t0.Add(time.Hour), cooldown)
		assert.Equal(t, ErrUnknownAction, err)
	})
}

func TestRecord_Override(t *testing.T) {
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	t.Run("checked out without check-in", func(t *testing.T) {
		rec, err := NewRecord("evt", "reg").Override(StatusCheckedOut, t0)
		require.NoError(t, err)
		assert.Equal(t, StatusCheckedOut, rec.Status)
		assert.Equal(t, 1, rec.Entries)
		assert.Equal(t, t0, *rec.CheckInTime)
		assert.Equal(t, t0, *rec.CheckOutTime)
		assert.Zero(t, rec.PresenceSeconds)
		assert.Equal(t, ActionOverride, rec.LastAction)
	})

	t.Run("scans right after an override", func(t *testing.T) {
		rec, err := NewRecord("evt", "reg").Override(StatusCheckedIn, t0)
		require.NoError(t, err)
		rec, action, err := rec.Apply(ActionAuto, t0.Add(time.Second), 30*time.Second)
		require.NoError(t, err)
		assert.Equal(t, ActionCheckOut, action)
		assert.EqualValues(t, 1, rec.PresenceSeconds)
	})

	t.Run("absent resets", func(t *testing.T) {
		rec, _, err := NewRecord("evt", "reg").Apply(ActionCheckIn, t0, 0)
		require.NoError(t, err)
		rec.ID = "rec"

		rec, err = rec.Override(StatusAbsent, t0.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, "rec", rec.ID)
		assert.Equal(t, StatusAbsent, rec.Status)
		assert.Zero(t, rec.Entries)
		assert.Nil(t, rec.CheckInTime)
	})

	t.Run("checked in twice", func(t *testing.T) {
		rec, err := NewRecord("evt", "reg").Override(StatusCheckedIn, t0)
		require.NoError(t, err)
		rec, err = rec.Override(StatusCheckedIn, t0.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, rec.Entries)
	})

	t.Run("unknown status", func(t *testing.T) {
		_, err := NewRecord("evt", "reg").Override("lost", t0)
		assert.Equal(t, ErrUnknownStatus, err)
	})
}

func TestScanRequest_Validate(t *testing.T) {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	lat, lng := 9.0937, 76.4924
	tests := []struct {
		name    string
		req     ScanRequest
		wantErr bool
	}{
		{name: "payload only", req: ScanRequest{Payload: "RC1.x.y.z"}},
		{name: "with location", req: ScanRequest{Payload: "RC1.x.y.z", Lat: &lat, Lng: &lng}},
		{name: "missing payload", req: ScanRequest{}, wantErr: true},
		{name: "bad action", req: ScanRequest{Payload: "RC1.x.y.z", Action: "teleport"}, wantErr: true},
		{name: "half location", req: ScanRequest{Payload: "RC1.x.y.z", Lat: &lat}, wantErr: true},
		{name: "bad event", req: ScanRequest{Payload: "RC1.x.y.z", EventID: "nope"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate(validate)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, ActionAuto, tt.req.Action)
		})
	}
}

func TestNewSession_Validate(t *testing.T) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)

	ns := NewSession{Email: " Awe@Example.com ", TicketCode: "RC-ABCD-EFGH", DeviceID: "dev_0123456789abcdef"}
	require.NoError(t, ns.Validate(validate))
	assert.Equal(t, "awe@example.com", ns.Email)

	ns.DeviceID = "short"
	assert.Error(t, ns.Validate(validate))

	ns.DeviceID = "has spaces in it, 123456"
	assert.Error(t, ns.Validate(validate))
}
