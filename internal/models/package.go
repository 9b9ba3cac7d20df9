package models

import "time"

// Status is a package's position in the lifecycle state machine of
// spec.md 4.8.
type Status string

const (
	StatusRegistered     Status = "registered"
	StatusAwaitingPickup Status = "awaiting_pickup"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusReturned       Status = "returned"
)

// allowedTransitions enumerates every legal status -> status edge. A
// status absent from this map (delivered, returned) is terminal.
var allowedTransitions = map[Status]map[Status]bool{
	StatusRegistered: {
		StatusAwaitingPickup: true,
		StatusOutForDelivery: true,
		StatusReturned:       true,
	},
	StatusAwaitingPickup: {
		StatusOutForDelivery: true,
		StatusDelivered:      true,
		StatusReturned:       true,
	},
	StatusOutForDelivery: {
		StatusDelivered: true,
		StatusReturned:  true,
	},
}

// CanTransition reports whether from -> to is a legal package status
// transition.
func CanTransition(from, to Status) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false // from is terminal or unknown
	}
	return next[to]
}

// IsTerminal reports whether no further transitions are possible from s.
func IsTerminal(s Status) bool {
	_, ok := allowedTransitions[s]
	return !ok
}

// Package is a tracked mailroom item.
type Package struct {
	ID          string    `json:"id" db:"id"`
	TrackingNo  string    `json:"tracking_no" db:"tracking_no"`
	Carrier     string    `json:"carrier" db:"carrier"`
	RecipientID string    `json:"recipient_id" db:"recipient_id"`
	Status      Status    `json:"status" db:"status"`
	Notes       string    `json:"notes" db:"notes"`
	CreatedBy   string    `json:"created_by" db:"created_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// MaxNotesLength is the hard cap on Package.Notes (spec.md 3).
const MaxNotesLength = 500

// PackageEvent is an immutable entry in a package's status timeline.
// OldStatus is nil for the registration event.
type PackageEvent struct {
	ID        string    `json:"id" db:"id"`
	PackageID string    `json:"package_id" db:"package_id"`
	OldStatus *Status   `json:"old_status" db:"old_status"`
	NewStatus Status    `json:"new_status" db:"new_status"`
	Notes     string    `json:"notes,omitempty" db:"notes"`
	Actor     string    `json:"actor" db:"actor"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Attachment is an uploaded file (typically a delivery photo) linked to a
// package. MIME is determined from content bytes, never from the
// filename extension (spec.md 4.8.1).
type Attachment struct {
	ID               string    `json:"id" db:"id"`
	PackageID        string    `json:"package_id" db:"package_id"`
	OriginalFilename string    `json:"original_filename" db:"original_filename"`
	StoredPath       string    `json:"-" db:"stored_path"`
	MIMEType         string    `json:"mime_type" db:"mime_type"`
	ByteSize         int64     `json:"byte_size" db:"byte_size"`
	UploadedBy       string    `json:"uploaded_by" db:"uploaded_by"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// RegisterPackageRequest is the "register new package" form payload.
type RegisterPackageRequest struct {
	TrackingNo  string `json:"tracking_no" validate:"required"`
	Carrier     string `json:"carrier" validate:"required"`
	RecipientID string `json:"recipient_id" validate:"required"`
	Notes       string `json:"notes" validate:"max=500"`
}

// UpdateStatusRequest is the "transition package status" form payload.
type UpdateStatusRequest struct {
	NewStatus Status `json:"new_status" validate:"required,oneof=registered awaiting_pickup out_for_delivery delivered returned"`
	Notes     string `json:"notes" validate:"max=500"`
}

// SearchQuery is the input to PackageCore's search projection
// (spec.md 4.8.3).
type SearchQuery struct {
	Text       string
	Status     *Status
	Department *string
	From       *time.Time
	To         *time.Time
	Page       int
	Limit      int
}

// MaxSearchLimit bounds SearchQuery.Limit (spec.md 4.8.3: L_max).
const MaxSearchLimit = 100

// SearchResult is one row of a search projection response, denormalized
// with the fields a listing view needs without a second query per row.
type SearchResult struct {
	Package        Package `json:"package"`
	RecipientName  string  `json:"recipient_name"`
	RecipientDept  string  `json:"recipient_department"`
}
