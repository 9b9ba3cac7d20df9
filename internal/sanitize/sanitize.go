// Package sanitize strips HTML/script content from free-text fields
// before they reach internal/store. It is a narrowed form of the
// teacher's JSON-wide input validator: here it is applied only to the
// specific fields PackageCore and the recipient directory persist as
// free text (package notes, recipient names), not to every
// request body.
package sanitize

import "github.com/microcosm-cc/bluemonday"

// policy is thread-safe and shared across all callers.
var policy = bluemonday.StrictPolicy()

// Text strips all HTML tags and attributes from input, returning plain
// text. Used on package notes and recipient names before persistence.
func Text(input string) string {
	return policy.Sanitize(input)
}
