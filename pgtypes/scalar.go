package pgtypes

import (
	"encoding/binary"
	"fmt"
)

func encodeBool(value any) ([]byte, error) {
	b, ok := value.(bool)
	if !ok {
		return nil, typeMismatch("boolout", value)
	}
	if b {
		return []byte{1}, nil
	}
	return []byte{0}, nil
}

func decodeBool(raw []byte) (any, error) {
	if len(raw) != 1 {
		return nil, fmt.Errorf("pgtypes: bool wire value must be 1 byte, got %d", len(raw))
	}
	return raw[0] != 0, nil
}

func encodeInt2(value any) ([]byte, error) {
	n, ok := toInt64(value)
	if !ok {
		return nil, typeMismatch("int2out", value)
	}
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(int16(n)))
	return b, nil
}

func decodeInt2(raw []byte) (any, error) {
	if len(raw) != 2 {
		return nil, fmt.Errorf("pgtypes: int2 wire value must be 2 bytes, got %d", len(raw))
	}
	return int16(binary.BigEndian.Uint16(raw)), nil
}

func encodeInt4(value any) ([]byte, error) {
	n, ok := toInt64(value)
	if !ok {
		return nil, typeMismatch("int4out", value)
	}
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(int32(n)))
	return b, nil
}

func decodeInt4(raw []byte) (any, error) {
	if len(raw) != 4 {
		return nil, fmt.Errorf("pgtypes: int4 wire value must be 4 bytes, got %d", len(raw))
	}
	return int32(binary.BigEndian.Uint32(raw)), nil
}

func encodeInt8(value any) ([]byte, error) {
	n, ok := toInt64(value)
	if !ok {
		return nil, typeMismatch("int8out", value)
	}
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(n))
	return b, nil
}

func decodeInt8(raw []byte) (any, error) {
	if len(raw) != 8 {
		return nil, fmt.Errorf("pgtypes: int8 wire value must be 8 bytes, got %d", len(raw))
	}
	return int64(binary.BigEndian.Uint64(raw)), nil
}

// toInt64 accepts any of Go's signed/unsigned integer kinds so callers
// don't have to match the exact width of the target column.
func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	default:
		return 0, false
	}
}

func encodeText(value any) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, typeMismatch("textout", value)
	}
}

func decodeText(raw []byte) (any, error) {
	return string(raw), nil
}
