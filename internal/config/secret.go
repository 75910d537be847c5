package config

import "encoding/json"

const redacted = "[REDACTED]"

// Secret is a string type that masks its value when printed, logged or
// serialised. Use Value() to get the actual string value.
type Secret string

// String returns a masked value for logging safety.
func (s Secret) String() string {
	return redacted
}

// GoString returns a masked value for %#v formatting.
func (s Secret) GoString() string {
	return redacted
}

// MarshalJSON masks non-empty secrets; empty ones serialise as "".
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte(`""`), nil
	}
	return json.Marshal(redacted)
}

// Value returns the actual secret value.
func (s Secret) Value() string {
	return string(s)
}

// IsEmpty returns true if the secret is empty.
func (s Secret) IsEmpty() bool {
	return s == ""
}
