package pgtypes

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	rows := []testTypeRow{
		{16, "bool", "boolout"},
		{20, "int8", "int8out"},
		{21, "int2", "int2out"},
		{23, "int4", "int4out"},
		{25, "text", "textout"},
		{1043, "varchar", "varcharout"},
		{1700, "numeric", "numeric_out"},
		{1114, "timestamp", "timestamp_out"},
		{1184, "timestamptz", "timestamptz_out"},
	}
	r := &Registry{byOID: make(map[uint32]typeEntry, len(rows))}
	for _, row := range rows {
		r.byOID[row.oid] = typeEntry{oid: row.oid, name: row.name, sender: row.sender}
	}
	return r
}

type testTypeRow struct {
	oid    uint32
	name   string
	sender string
}

func TestRegistry_OidToType(t *testing.T) {
	r := newTestRegistry(t)

	name, sender, ok := r.OidToType(23)
	if !ok || name != "int4" || sender != "int4out" {
		t.Errorf("OidToType(23) = (%q, %q, %v), want (int4, int4out, true)", name, sender, ok)
	}

	if _, _, ok := r.OidToType(999999); ok {
		t.Error("OidToType(unknown) = ok, want not found")
	}
}

func TestRegistry_CanDecode(t *testing.T) {
	r := newTestRegistry(t)
	if !r.CanDecode(23) {
		t.Error("CanDecode(int4) = false, want true")
	}
	if r.CanDecode(999999) {
		t.Error("CanDecode(unknown oid) = true, want false")
	}
}

func TestRoundtrip_Bool(t *testing.T) {
	for _, want := range []bool{true, false} {
		data, ok, err := encodeBoolFor(t, want)
		if err != nil || !ok {
			t.Fatalf("encode(%v): ok=%v err=%v", want, ok, err)
		}
		got, err := decodeBool(data)
		if err != nil || got != want {
			t.Errorf("roundtrip bool(%v) = %v, %v", want, got, err)
		}
	}
}

func encodeBoolFor(t *testing.T, v bool) ([]byte, bool, error) {
	t.Helper()
	data, err := encodeBool(v)
	return data, err == nil, err
}

func TestRoundtrip_Integers(t *testing.T) {
	cases := []struct {
		name   string
		encode func(any) ([]byte, error)
		decode func([]byte) (any, error)
		value  int64
	}{
		{"int2", encodeInt2, decodeInt2, -1234},
		{"int4", encodeInt4, decodeInt4, -123456789},
		{"int8", encodeInt8, decodeInt8, 1234567890123},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			data, err := c.encode(c.value)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := c.decode(data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			switch v := got.(type) {
			case int16:
				if int64(v) != c.value {
					t.Errorf("got %d, want %d", v, c.value)
				}
			case int32:
				if int64(v) != c.value {
					t.Errorf("got %d, want %d", v, c.value)
				}
			case int64:
				if v != c.value {
					t.Errorf("got %d, want %d", v, c.value)
				}
			}
		})
	}
}

func TestRoundtrip_Text(t *testing.T) {
	data, err := encodeText("hello, world")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeText(data)
	if err != nil || got != "hello, world" {
		t.Errorf("roundtrip text = %v, %v", got, err)
	}
}

func TestRoundtrip_Numeric(t *testing.T) {
	cases := []string{"0", "123", "-123.45", "0.0001", "999999999999.999999", "-0.5"}
	for _, lit := range cases {
		t.Run(lit, func(t *testing.T) {
			want := decimal.RequireFromString(lit)
			data, err := encodeNumeric(want)
			if err != nil {
				t.Fatalf("encode(%s): %v", lit, err)
			}
			got, err := decodeNumeric(data)
			if err != nil {
				t.Fatalf("decode(%s): %v", lit, err)
			}
			d, ok := got.(decimal.Decimal)
			if !ok || !d.Equal(want) {
				t.Errorf("roundtrip numeric(%s) = %v, want %v", lit, got, want)
			}
		})
	}
}

func TestRoundtrip_Timestamp(t *testing.T) {
	want := time.Date(2024, 3, 15, 13, 45, 30, 123000, time.UTC)
	data, err := encodeTimestamp(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeTimestamp(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	tgot, ok := got.(time.Time)
	if !ok || !tgot.Equal(want) {
		t.Errorf("roundtrip timestamp = %v, want %v", got, want)
	}
}

func TestRegistry_EncodeDecode(t *testing.T) {
	r := newTestRegistry(t)

	data, ok, err := r.Encode("int4out", int32(42), 23)
	if err != nil || !ok {
		t.Fatalf("Encode: ok=%v err=%v", ok, err)
	}
	got, err := r.Decode("int4out", data)
	if err != nil || got.(int32) != 42 {
		t.Errorf("Decode = %v, %v, want 42", got, err)
	}

	if _, ok, _ := r.Encode("unknown_out", 42, 999999); ok {
		t.Error("Encode(unknown sender) = ok, want not ok")
	}
}
