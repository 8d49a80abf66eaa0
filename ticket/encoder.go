package ticket

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

const recordVersion1 = "1"

const (
	fieldVersion     = "v"
	fieldStatus      = "st"
	fieldURL         = "url"
	fieldCreatedAt   = "ca"
	fieldScannedAt   = "sa"
	fieldConfirmedAt = "fa"
	fieldConsumedAt  = "ua"
	fieldUserID      = "uid"
)

// ErrCorruptRecord is returned when a stored hash does not decode.
var ErrCorruptRecord = errors.New("ticket record corrupt")

// timestampField maps a status to the hash field holding the time the
// ticket entered it.
func timestampField(s Status) (string, bool) {
	switch s {
	case StatusCreated:
		return fieldCreatedAt, true
	case StatusScanned:
		return fieldScannedAt, true
	case StatusConfirmed:
		return fieldConfirmedAt, true
	case StatusConsumed:
		return fieldConsumedAt, true
	case StatusInvalid:
		return "", false
	default:
		return "", false
	}
}

func encodeFields(r *Record) ([]interface{}, error) {
	if r == nil {
		return nil, errors.New("nil ticket record")
	}
	if !r.Status.Persisted() {
		return nil, fmt.Errorf("ticket status %s cannot be persisted", r.Status)
	}
	return []interface{}{
		fieldVersion, recordVersion1,
		fieldStatus, strconv.Itoa(int(r.Status)),
		fieldURL, r.ResourceURL,
		fieldCreatedAt, encodeMillis(r.CreatedAt),
		fieldScannedAt, encodeMillis(r.ScannedAt),
		fieldConfirmedAt, encodeMillis(r.ConfirmedAt),
		fieldConsumedAt, encodeMillis(r.ConsumedAt),
		fieldUserID, r.UserID,
	}, nil
}

func decodeFields(id string, fields map[string]string) (*Record, error) {
	if fields[fieldVersion] != recordVersion1 {
		return nil, ErrCorruptRecord
	}
	code, err := strconv.Atoi(fields[fieldStatus])
	if err != nil {
		return nil, ErrCorruptRecord
	}
	status := Status(code)
	if !status.Persisted() {
		return nil, ErrCorruptRecord
	}

	r := &Record{
		ID:          id,
		ResourceURL: fields[fieldURL],
		Status:      status,
		UserID:      fields[fieldUserID],
	}
	if r.CreatedAt, err = decodeMillis(fields[fieldCreatedAt]); err != nil {
		return nil, err
	}
	if r.ScannedAt, err = decodeMillis(fields[fieldScannedAt]); err != nil {
		return nil, err
	}
	if r.ConfirmedAt, err = decodeMillis(fields[fieldConfirmedAt]); err != nil {
		return nil, err
	}
	if r.ConsumedAt, err = decodeMillis(fields[fieldConsumedAt]); err != nil {
		return nil, err
	}
	return r, nil
}

// pairsToMap converts a flat HGETALL-style reply into a field map.
func pairsToMap(pairs []interface{}) (map[string]string, error) {
	if len(pairs)%2 != 0 {
		return nil, ErrCorruptRecord
	}
	out := make(map[string]string, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		k, ok := pairs[i].(string)
		if !ok {
			return nil, ErrCorruptRecord
		}
		v, ok := pairs[i+1].(string)
		if !ok {
			return nil, ErrCorruptRecord
		}
		out[k] = v
	}
	return out, nil
}

func encodeMillis(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func decodeMillis(s string) (time.Time, error) {
	if s == "" || s == "0" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms < 0 {
		return time.Time{}, ErrCorruptRecord
	}
	return time.UnixMilli(ms), nil
}
