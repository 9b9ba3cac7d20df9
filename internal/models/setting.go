package models

import "time"

// Setting is one row of the tolerant-of-absence key/value settings
// table (spec.md 4.10). Reads of an unset key are not an error; callers
// receive the documented default instead.
type Setting struct {
	Key       string    `json:"key" db:"key"`
	Value     string    `json:"value" db:"value"`
	UpdatedBy string    `json:"updated_by" db:"updated_by"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SettingBaseURLKey is the well-known key for the externally printed
// base URL (used to build links in notifications/exports).
const SettingBaseURLKey = "base_url"

// UpdateSettingRequest is the super-admin "change a setting" form
// payload.
type UpdateSettingRequest struct {
	Key   string `json:"key" validate:"required"`
	Value string `json:"value" validate:"required"`
}
