// Package pgtypes is a reference implementation of postgres.Types and
// postgres.Registry: a small, self-contained codec for the handful of
// built-in types a typical client needs (booleans, integers, text, decimal
// numerics and timestamps), using PostgreSQL's binary wire formats.
//
// A caller is never required to use this package -- postgres.ConnectOptions
// only depends on the postgres.Types interface -- but it is what
// cmd/pgactor-demo wires up by default.
package pgtypes

import (
	"fmt"

	"github.com/mevdschee/pgactor/postgres"
)

// Well-known built-in OIDs this registry knows how to codec. Anything else
// bootstraps into the byOID map (so OidToType still resolves it) but CanDecode
// reports false and values round-trip as raw bytes.
const (
	oidBool        = 16
	oidInt8        = 20
	oidInt2        = 21
	oidInt4        = 23
	oidText        = 25
	oidVarchar     = 1043
	oidNumeric     = 1700
	oidTimestamp   = 1114
	oidTimestampTZ = 1184
)

type typeEntry struct {
	oid    uint32
	name   string
	sender string
}

// Types is the postgres.Types implementation: it runs the bootstrap query
// and hands the resulting rows to NewRegistry.
type Types struct{}

// BootstrapQuery joins pg_type to pg_proc through typoutput to recover each
// type's output-function name, used here as the "sender" discriminant --
// the same join postgrex-style drivers use to build their type registry.
func (Types) BootstrapQuery() string {
	return `SELECT t.oid, t.typname, p.proname
FROM pg_type t
JOIN pg_proc p ON p.oid = t.typoutput
WHERE t.typtype = 'b'`
}

// BuildTypes constructs a Registry from the bootstrap query's rows.
func (Types) BuildTypes(rows []postgres.TypeRow) (postgres.Registry, error) {
	r := &Registry{
		byOID: make(map[uint32]typeEntry, len(rows)),
	}
	for _, row := range rows {
		r.byOID[row.OID] = typeEntry{oid: row.OID, name: row.Name, sender: row.Sender}
	}
	return r, nil
}

// Registry is the per-session codec built from one connection's bootstrap
// query result. It is safe for concurrent reads (never mutated after
// BuildTypes returns).
type Registry struct {
	byOID map[uint32]typeEntry
}

func (r *Registry) OidToType(oid uint32) (typeName, sender string, ok bool) {
	e, ok := r.byOID[oid]
	if !ok {
		return "", "", false
	}
	return e.name, e.sender, true
}

func (r *Registry) CanDecode(oid uint32) bool {
	e, ok := r.byOID[oid]
	if !ok {
		return false
	}
	_, known := codecs[e.sender]
	return known
}

func (r *Registry) Encode(sender string, value any, oid uint32) (data []byte, ok bool, err error) {
	c, known := codecs[sender]
	if !known {
		return nil, false, nil
	}
	data, err = c.encode(value)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (r *Registry) Decode(sender string, raw []byte) (any, error) {
	c, known := codecs[sender]
	if !known {
		return raw, nil
	}
	return c.decode(raw)
}

type codec struct {
	encode func(value any) ([]byte, error)
	decode func(raw []byte) (any, error)
}

var codecs = map[string]codec{
	"boolout":         {encodeBool, decodeBool},
	"int2out":         {encodeInt2, decodeInt2},
	"int4out":         {encodeInt4, decodeInt4},
	"int8out":         {encodeInt8, decodeInt8},
	"textout":         {encodeText, decodeText},
	"varcharout":      {encodeText, decodeText},
	"numeric_out":     {encodeNumeric, decodeNumeric},
	"timestamp_out":   {encodeTimestamp, decodeTimestamp},
	"timestamptz_out": {encodeTimestamp, decodeTimestamp},
}

func typeMismatch(sender string, value any) error {
	return fmt.Errorf("pgtypes: cannot encode %T as %s", value, sender)
}
