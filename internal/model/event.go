package model

import "time"

// Event represents a bookable happening at a venue with a fixed
// seat capacity.  The seats_available column is the authoritative
// seat count and is only ever changed inside a row-locked
// transaction.  The version column increases by one on every
// committed seat mutation so external observers can order states.
//
// Fields:
//  ID             – primary key identifier.
//  Name           – human readable event name.
//  Venue          – where the event takes place (optional).
//  StartAt        – when the event begins.
//  Capacity       – total number of seats that exist.
//  SeatsAvailable – seats still open for booking; never negative
//                   and never above Capacity.
//  Version        – monotonically increasing change counter.
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last update timestamp.
type Event struct {
    ID             uint64    // events.id
    Name           string    // events.name
    Venue          *string   // events.venue (nullable)
    StartAt        time.Time // events.start_at
    Capacity       uint32    // events.capacity
    SeatsAvailable uint32    // events.seats_available
    Version        uint64    // events.version
    CreatedAt      time.Time // events.created_at
    UpdatedAt      time.Time // events.updated_at
}
