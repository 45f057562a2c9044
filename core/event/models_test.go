package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "Hack Night 2026", want: "hack-night-2026"},
		{in: "  AI / ML -- Workshop!! ", want: "ai-ml-workshop"},
		{in: "Été", want: "t"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.in))
		})
	}
}

func TestEvent_Windows(t *testing.T) {
	start := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	evt := Event{StartsAt: start, EndsAt: start.Add(3 * time.Hour), RegistrationOpen: true, Capacity: 2}
	lead, grace := time.Hour, 2*time.Hour

	tests := []struct {
		name         string
		now          time.Time
		wantScanOpen bool
		wantOver     bool
		wantRegister bool
	}{
		{name: "long before", now: start.Add(-48 * time.Hour), wantRegister: true},
		{name: "lead", now: start.Add(-lead), wantScanOpen: true, wantRegister: true},
		{name: "ongoing", now: start.Add(time.Hour), wantScanOpen: true, wantRegister: true},
		{name: "ended, in grace", now: evt.EndsAt.Add(time.Hour), wantScanOpen: true},
		{name: "grace end", now: evt.EndsAt.Add(grace), wantScanOpen: true},
		{name: "over", now: evt.EndsAt.Add(grace + time.Second), wantOver: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantScanOpen, evt.ScanOpen(tt.now, lead, grace), "ScanOpen")
			assert.Equal(t, tt.wantOver, evt.Over(tt.now, grace), "Over")
			assert.Equal(t, tt.wantRegister, evt.AcceptsRegistrations(tt.now), "AcceptsRegistrations")
		})
	}

	assert.True(t, evt.HasCapacity(1))
	assert.False(t, evt.HasCapacity(2))
	evt.Capacity = 0
	assert.True(t, evt.HasCapacity(1000))
}
