package ticket

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a ticket.
//
// The zero value is StatusCreated so a freshly built Record is valid for
// Save without further setup.
type Status int8

const (
	// StatusCreated is set at issuance.
	StatusCreated Status = 0
	// StatusScanned means a scanner opened the QR artifact.
	StatusScanned Status = 1
	// StatusConfirmed means an authenticated actor approved the login and
	// bound their identity.
	StatusConfirmed Status = 2
	// StatusConsumed means the requester received the identity.
	StatusConsumed Status = 3
	// StatusInvalid is synthesized for missing or expired tickets. It is
	// never persisted.
	StatusInvalid Status = -1
)

// String returns the wire name of the status.
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusScanned:
		return "SCANNED"
	case StatusConfirmed:
		return "CONFIRMED"
	case StatusConsumed:
		return "CONSUMED"
	case StatusInvalid:
		return "INVALID"
	default:
		return fmt.Sprintf("Status(%d)", int8(s))
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	switch s {
	case StatusCreated, StatusScanned, StatusConfirmed, StatusConsumed, StatusInvalid:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("ticket: unknown status %d", int8(s))
	}
}

// ParseStatus is the inverse of String.
func ParseStatus(name string) (Status, error) {
	switch name {
	case "CREATED":
		return StatusCreated, nil
	case "SCANNED":
		return StatusScanned, nil
	case "CONFIRMED":
		return StatusConfirmed, nil
	case "CONSUMED":
		return StatusConsumed, nil
	case "INVALID":
		return StatusInvalid, nil
	default:
		return StatusInvalid, fmt.Errorf("ticket: unknown status %q", name)
	}
}

// Next returns the only status s may move to. ok is false for terminal
// statuses.
func (s Status) Next() (next Status, ok bool) {
	switch s {
	case StatusCreated:
		return StatusScanned, true
	case StatusScanned:
		return StatusConfirmed, true
	case StatusConfirmed:
		return StatusConsumed, true
	case StatusConsumed:
		return StatusInvalid, false
	case StatusInvalid:
		return StatusInvalid, false
	default:
		return StatusInvalid, false
	}
}

// Persisted reports whether s may be written to the store.
func (s Status) Persisted() bool {
	switch s {
	case StatusCreated, StatusScanned, StatusConfirmed, StatusConsumed:
		return true
	case StatusInvalid:
		return false
	default:
		return false
	}
}

// Record is one in-progress QR login attempt.
type Record struct {
	ID          string
	ResourceURL string
	Status      Status
	CreatedAt   time.Time
	ScannedAt   time.Time
	ConfirmedAt time.Time
	ConsumedAt  time.Time
	// UserID is the confirmer's local user id. Empty until CONFIRMED.
	UserID string
}

// Invalid returns the synthetic record answered for unknown tickets.
func Invalid() *Record {
	return &Record{Status: StatusInvalid}
}
