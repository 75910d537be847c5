// Package pageview provides the shared PageView model for Eliksir Analytics.
// This package is used by ingest, store, app and api packages.
package pageview

import "time"

// PageView is one recorded visit to one page by one visitor.
// Rows are append-only: once stored, no field changes.
type PageView struct {
	ID               int64     `json:"id"`
	Path             string    `json:"path"`
	VisitorID        string    `json:"visitorId"`
	UserAgent        *string   `json:"userAgent"`
	Referrer         *string   `json:"referrer"`
	ScreenResolution *string   `json:"screenResolution"`
	TimeOnPage       int64     `json:"timeOnPage"` // seconds
	CreatedAt        time.Time `json:"createdAt"`
}

// StringPtr returns a pointer to the given string.
// Useful for setting optional fields.
func StringPtr(s string) *string {
	return &s
}

// Validate checks the invariants every stored page view must satisfy.
// Returns a *ValidationError naming the first offending field.
func (p *PageView) Validate() error {
	if isBlank(p.Path) {
		return &ValidationError{Field: "path", Reason: "is required"}
	}
	if isBlank(p.VisitorID) {
		return &ValidationError{Field: "visitorId", Reason: "is required"}
	}
	if p.TimeOnPage < 0 {
		return &ValidationError{Field: "timeOnPage", Reason: "must not be negative"}
	}
	for _, f := range []struct {
		name string
		val  *string
	}{
		{"userAgent", p.UserAgent},
		{"referrer", p.Referrer},
		{"screenResolution", p.ScreenResolution},
	} {
		if f.val != nil && *f.val == "" {
			return &ValidationError{Field: f.name, Reason: "must be null or non-empty"}
		}
	}
	return nil
}

func isBlank(s string) bool {
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\v', '\f':
		default:
			return false
		}
	}
	return true
}
