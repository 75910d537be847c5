// Package ingest accepts page view beacons from the public site, validates
// them and appends them to storage.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/eliksir-bar/eliksir-analytics/internal/pageview"
)

// maxTimeOnPage bounds timeOnPage to something a browser tab could plausibly report.
const maxTimeOnPage = 1 << 40

// Payload is one decoded tracking beacon.
// Path and VisitorID are nil when the client omitted them or sent null.
type Payload struct {
	Path             *string
	VisitorID        *string
	UserAgent        *string
	Referrer         *string
	ScreenResolution *string
	TimeOnPage       int64
}

// DecodePayload reads a single JSON object from r.
// Syntax and type problems are reported as *pageview.ValidationError;
// read failures (for example an exceeded body limit) are returned wrapped.
func DecodePayload(r io.Reader) (Payload, error) {
	var raw map[string]json.RawMessage

	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		var (
			syntaxErr *json.SyntaxError
			typeErr   *json.UnmarshalTypeError
		)
		switch {
		case errors.Is(err, io.EOF):
			return Payload{}, &pageview.ValidationError{Field: "body", Reason: "is empty"}
		case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
			return Payload{}, &pageview.ValidationError{Field: "body", Reason: "is not valid JSON"}
		case errors.As(err, &typeErr):
			return Payload{}, &pageview.ValidationError{Field: "body", Reason: "must be a JSON object"}
		}
		return Payload{}, fmt.Errorf("read payload: %w", err)
	}
	if raw == nil {
		return Payload{}, &pageview.ValidationError{Field: "body", Reason: "must be a JSON object"}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Payload{}, &pageview.ValidationError{Field: "body", Reason: "must contain a single JSON object"}
	}

	var (
		p   Payload
		err error
	)
	if p.Path, err = stringField(raw, "path"); err != nil {
		return Payload{}, err
	}
	if p.VisitorID, err = stringField(raw, "visitorId"); err != nil {
		return Payload{}, err
	}
	if p.VisitorID == nil {
		// The site's tracking hook calls it sessionId.
		if p.VisitorID, err = stringField(raw, "sessionId"); err != nil {
			return Payload{}, err
		}
	}
	if p.UserAgent, err = stringField(raw, "userAgent"); err != nil {
		return Payload{}, err
	}
	if p.Referrer, err = stringField(raw, "referrer"); err != nil {
		return Payload{}, err
	}
	if p.ScreenResolution, err = stringField(raw, "screenResolution"); err != nil {
		return Payload{}, err
	}
	if p.TimeOnPage, err = secondsField(raw, "timeOnPage"); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// PageView converts the payload into a storable page view.
// Missing or blank required fields are rejected; empty optional strings become nil.
func (p Payload) PageView() (*pageview.PageView, error) {
	pv := &pageview.PageView{
		UserAgent:        emptyToNil(p.UserAgent),
		Referrer:         emptyToNil(p.Referrer),
		ScreenResolution: emptyToNil(p.ScreenResolution),
		TimeOnPage:       p.TimeOnPage,
	}
	if p.Path != nil {
		pv.Path = *p.Path
	}
	if p.VisitorID != nil {
		pv.VisitorID = *p.VisitorID
	}
	if err := pv.Validate(); err != nil {
		return nil, err
	}
	return pv, nil
}

func stringField(raw map[string]json.RawMessage, name string) (*string, error) {
	v, ok := raw[name]
	if !ok || isNull(v) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, &pageview.ValidationError{Field: name, Reason: "must be a string"}
	}
	return &s, nil
}

// secondsField accepts a JSON number or a numeric string, rounded to whole seconds.
// Absent, null and empty-string values mean zero.
func secondsField(raw map[string]json.RawMessage, name string) (int64, error) {
	v, ok := raw[name]
	if !ok || isNull(v) {
		return 0, nil
	}

	var text string
	switch v[0] {
	case '"':
		if err := json.Unmarshal(v, &text); err != nil {
			return 0, &pageview.ValidationError{Field: name, Reason: "must be a number"}
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return 0, nil
		}
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		text = string(v)
	default:
		return 0, &pageview.ValidationError{Field: name, Reason: "must be a number"}
	}

	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return checkSeconds(name, float64(n))
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &pageview.ValidationError{Field: name, Reason: "must be a number"}
	}
	return checkSeconds(name, math.Round(f))
}

// checkSeconds range-checks an already rounded value, so -0.4 is accepted as 0.
func checkSeconds(name string, f float64) (int64, error) {
	if f < 0 {
		return 0, &pageview.ValidationError{Field: name, Reason: "must not be negative"}
	}
	if f > maxTimeOnPage {
		return 0, &pageview.ValidationError{Field: name, Reason: "is out of range"}
	}
	return int64(f), nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
