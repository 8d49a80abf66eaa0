package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
)

const ticketIDLength = 32

// NewTicketID returns a random UUIDv4 rendered as 32 lowercase hex digits.
func NewTicketID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

// ValidTicketID reports whether id has the shape produced by NewTicketID.
// Callers use it to reject garbage before touching the store.
func ValidTicketID(id string) bool {
	if len(id) != ticketIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// ParseTicketID accepts both the compact and the dashed UUID form and
// returns the compact form.
func ParseTicketID(raw string) (string, error) {
	if ValidTicketID(raw) {
		return raw, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", errors.New("invalid ticket id")
	}
	return strings.ReplaceAll(id.String(), "-", ""), nil
}

// RedactCode hashes a one-time code for logs so the plaintext never leaves
// the process.
func RedactCode(code string) string {
	if code == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:4])
}
