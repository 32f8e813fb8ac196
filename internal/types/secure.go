package types

import "log/slog"

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds a credential (database URL, admin key hash, storefront
// token) and renders as a redacted placeholder through fmt and encoding/json.
// Use Unmask to read the raw value where it is genuinely needed.
type SecretString string

// String returns the redacted placeholder.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// LogValue keeps slog from printing the raw secret when a SecretString is
// passed as an attribute value.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redactedPlaceholder)
}

// Unmask returns the raw plaintext value.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsEmpty reports whether no secret was configured.
func (s SecretString) IsEmpty() bool {
	return s == ""
}
