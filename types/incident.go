package types

import "time"

// Incident is a flood or weather related report ("ocorrência") submitted
// by a citizen for a given location.
type Incident struct {
	// ID is the unique identifier of the incident.
	ID int `json:"id" db:"id"`

	// AuthorID references the user who submitted the report. It becomes
	// nil when the author account is deleted. Ownership checks use it.
	AuthorID *int `json:"author_id" db:"user_id"`

	// Description is the free-form account of what happened.
	Description string `json:"description" db:"description"`

	// Latitude and Longitude locate the incident in decimal degrees.
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`

	// City is matched verbatim when counting historical incidents.
	City string `json:"city" db:"city"`

	// PhotoKey is the object storage key of the attached photo, if any.
	PhotoKey *string `json:"-" db:"photo_key"`

	// OccurredAt is the timestamp the report was registered.
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`
}

// Author is the public projection of a user embedded in incident listings.
type Author struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Location groups the coordinates and city of an incident.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	City      string  `json:"city"`
}

// IncidentView is an incident joined with its author, as returned by listings.
type IncidentView struct {
	ID          int       `json:"id"`
	Description string    `json:"description"`
	Location    Location  `json:"location"`
	OccurredAt  time.Time `json:"occurred_at"`
	PhotoKey    *string   `json:"-"`
	PhotoURL    *string   `json:"photo_url"`
	Author      *Author   `json:"author"`
}
