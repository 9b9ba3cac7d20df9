package models

import "time"

// Recipient is a directory entry a package can be addressed to. Department
// is mandatory at the service layer (spec.md 3) even though the column
// allows NULL for rows written before the "Unassigned" backfill migration.
type Recipient struct {
	ID         string    `json:"id" db:"id"`
	EmployeeID string    `json:"employee_id" db:"employee_id"`
	Name       string    `json:"name" db:"name"`
	Email      string    `json:"email" db:"email"`
	Department string    `json:"department" db:"department"`
	Phone      *string   `json:"phone,omitempty" db:"phone"`
	Location   *string   `json:"location,omitempty" db:"location"`
	Active     bool      `json:"active" db:"active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// UnassignedDepartment is the literal backfill value for rows that
// predate the mandatory-department migration.
const UnassignedDepartment = "Unassigned"

// CreateRecipientRequest is the admin "new recipient" form payload.
type CreateRecipientRequest struct {
	EmployeeID string  `json:"employee_id" validate:"required"`
	Name       string  `json:"name" validate:"required"`
	Email      string  `json:"email" validate:"required,email"`
	Department string  `json:"department" validate:"required"`
	Phone      *string `json:"phone"`
	Location   *string `json:"location"`
}

// UpdateRecipientRequest is the admin "edit recipient" form payload.
// EmployeeID is intentionally absent: it is immutable after creation.
type UpdateRecipientRequest struct {
	Name       *string `json:"name"`
	Email      *string `json:"email" validate:"omitempty,email"`
	Department *string `json:"department"`
	Phone      *string `json:"phone"`
	Location   *string `json:"location"`
}

// RecipientImportRow is one row of a bulk CSV import, already parsed by
// the (out-of-scope) CSV reader into fields.
type RecipientImportRow struct {
	EmployeeID string
	Name       string
	Email      string
	Department string
	Phone      string
	Location   string
}

// ImportRowError describes why a single import row was rejected.
type ImportRowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ImportReport is returned from a bulk recipient import: how many rows
// were inserted/updated/skipped, and why any row was skipped.
type ImportReport struct {
	Inserted int              `json:"inserted"`
	Updated  int              `json:"updated"`
	Skipped  int              `json:"skipped"`
	Errors   []ImportRowError `json:"errors,omitempty"`
	Chunks   int              `json:"chunks"`
}
