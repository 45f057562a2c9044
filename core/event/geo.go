package event

import "math"

const earthRadiusMeters = 6371000.0

// Distance returns the great-circle distance in meters between two points, using the haversine formula.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Geofence is a circular area around the venue of an Event.
type Geofence struct {
	Lat          float64 `json:"lat" validate:"min=-90,max=90"`
	Lng          float64 `json:"lng" validate:"min=-180,max=180"`
	RadiusMeters float64 `json:"radius_meters" validate:"min=10,max=5000"`
}

// Contains reports whether the point is inside the Geofence (border included).
func (g Geofence) Contains(lat, lng float64) bool {
	return Distance(g.Lat, g.Lng, lat, lng) <= g.RadiusMeters
}
