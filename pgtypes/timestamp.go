package pgtypes

import (
	"encoding/binary"
	"fmt"
	"time"
)

// pgEpoch is PostgreSQL's reference point for both timestamp and
// timestamptz binary values: microseconds since 2000-01-01 00:00:00 UTC.
// timestamptz values always arrive converted to UTC by the server, and
// timestamp (no time zone) values are treated as already being in UTC --
// this driver never negotiates a session time zone.
var pgEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

func encodeTimestamp(value any) ([]byte, error) {
	t, ok := value.(time.Time)
	if !ok {
		return nil, typeMismatch("timestamp_out", value)
	}
	micros := t.UTC().Sub(pgEpoch).Microseconds()
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(micros))
	return buf, nil
}

func decodeTimestamp(raw []byte) (any, error) {
	if len(raw) != 8 {
		return nil, fmt.Errorf("pgtypes: timestamp wire value must be 8 bytes, got %d", len(raw))
	}
	micros := int64(binary.BigEndian.Uint64(raw))
	return pgEpoch.Add(time.Duration(micros) * time.Microsecond), nil
}
