package event

import (
	"math"
	"testing"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lng1, lat2, lng2 float64
		want                   float64 // meters
		tolerance              float64
	}{
		{name: "same point", lat1: 9.0937, lng1: 76.4916, lat2: 9.0937, lng2: 76.4916, want: 0, tolerance: 0.001},
		{name: "one degree of latitude", lat1: 0, lng1: 0, lat2: 1, lng2: 0, want: 111195, tolerance: 5},
		{name: "paris - london", lat1: 48.8566, lng1: 2.3522, lat2: 51.5074, lng2: -0.1278, want: 343560, tolerance: 500},
		{name: "antipodes", lat1: 0, lng1: 0, lat2: 0, lng2: 180, want: math.Pi * earthRadiusMeters, tolerance: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("Distance() = %.2f, want %.2f (+/- %.2f)", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestGeofence_Contains(t *testing.T) {
	gf := Geofence{Lat: 9.0937, Lng: 76.4916, RadiusMeters: 150}

	tests := []struct {
		name     string
		lat, lng float64
		want     bool
	}{
		{name: "center", lat: 9.0937, lng: 76.4916, want: true},
		{name: "~100m north", lat: 9.0946, lng: 76.4916, want: true},
		{name: "~200m north", lat: 9.0955, lng: 76.4916, want: false},
		{name: "far away", lat: 12.9716, lng: 77.5946, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gf.Contains(tt.lat, tt.lng); got != tt.want {
				t.Errorf("Contains() = %v, want %v", got, tt.want)
			}
		})
	}
}
