package model

import "time"

// Trip is a scheduled bus departure between two terminals.  The seat set
// is provisioned once at creation (positions 1..SeatCount) and is never
// resized while any hold or sale exists against it; administrative edits
// deliberately drop seat-count changes.
type Trip struct {
	ID              uint64    // trips.id
	Name            string    // trips.name (e.g. "Lagos Express AM")
	PickupCity      string    // trips.pickup_city
	PickupLocation  string    // trips.pickup_location (terminal)
	DropoffCity     string    // trips.dropoff_city
	DropoffLocation string    // trips.dropoff_location
	TravelDate      string    // trips.travel_date (YYYY-MM-DD)
	DepartureTime   string    // trips.departure_time (e.g. "07:30 AM")
	ArrivalTime     string    // trips.arrival_time
	PriceKobo       int64     // trips.price_kobo (unit price per seat, minor units)
	Vehicle         string    // trips.vehicle (bus descriptor)
	VehicleType     string    // trips.vehicle_type
	SeatCount       uint32    // trips.seat_count (immutable after creation)
	IsHireTrip      bool      // trips.is_hire_trip (full-bus hire only)
	CreatedAt       time.Time // trips.created_at
	UpdatedAt       time.Time // trips.updated_at
}

// City is an entry in the route directory used by the search form.
type City struct {
	ID        uint64    // cities.id
	Name      string    // cities.name
	CreatedAt time.Time // cities.created_at
}
