// Package domain holds typed identifiers shared across packages so a request
// ID can never be confused with an entity ID at a call site.
package domain

import "github.com/google/uuid"

// RequestID identifies one verification request end to end. It appears on
// every audit record and log line produced while serving the request.
type RequestID uuid.UUID

// NewRequestID generates a fresh request identifier.
func NewRequestID() RequestID { return RequestID(uuid.New()) }

func (r RequestID) String() string { return uuid.UUID(r).String() }

// IsZero reports whether the ID is unset.
func (r RequestID) IsZero() bool { return uuid.UUID(r) == uuid.Nil }

// MarshalText renders the canonical string form for JSON and logs.
func (r RequestID) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText parses the canonical string form.
func (r *RequestID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*r = RequestID(u)
	return nil
}

// ParseRequestID parses the canonical string form.
func ParseRequestID(s string) (RequestID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RequestID{}, err
	}
	return RequestID(u), nil
}

// AuditRecordID identifies a single appended audit record.
type AuditRecordID uuid.UUID

// NewAuditRecordID generates a fresh audit record identifier.
func NewAuditRecordID() AuditRecordID { return AuditRecordID(uuid.New()) }

func (a AuditRecordID) String() string { return uuid.UUID(a).String() }

// MarshalText renders the canonical string form for JSON and logs.
func (a AuditRecordID) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText parses the canonical string form.
func (a *AuditRecordID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*a = AuditRecordID(u)
	return nil
}
