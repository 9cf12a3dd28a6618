package postgres

// TypeRow is the decoded shape of a single row returned by the bootstrap
// query -- one pg_type entry the registry needs to know about.
type TypeRow struct {
	OID    uint32
	Name   string // pg_type.typname
	Sender string // the output-function-derived dispatch discriminant
}

// Types is the external collaborator that owns the bootstrap SQL text and
// knows how to turn the rows that query returns into a Registry, and a
// Registry in turn knows how to encode/decode values for the OIDs it was
// built with. The postgres package depends only on these two interfaces --
// never on a concrete codec -- so different Types implementations (the
// pgtypes package's reference one, or a caller's own) are interchangeable
// without touching the protocol engine.
type Types interface {
	// BootstrapQuery returns the SQL text run once per session, immediately
	// after the first ReadyForQuery, to discover the server's type catalog.
	BootstrapQuery() string
	// BuildTypes consumes the bootstrap query's result rows and returns a
	// session-scoped Registry. Called exactly once per connection.
	BuildTypes(rows []TypeRow) (Registry, error)
}

// Registry is the per-session, read-only-after-bootstrap type catalog.
// It is never promoted to package scope: two
// sessions against two different servers may disagree about what a given
// OID means, so every *Conn owns its own Registry built from its own
// bootstrap.
type Registry interface {
	// OidToType resolves an OID to its pg_type name and sender discriminant.
	OidToType(oid uint32) (typeName, sender string, ok bool)
	// CanDecode reports whether this registry has a codec for oid at all.
	CanDecode(oid uint32) bool
	// Encode turns a host value into wire bytes for a parameter of the
	// given oid/sender. ok is false when the registry declines to encode
	// this oid (the value coder then falls through its own precedence
	// chain -- see codec.go).
	Encode(sender string, value any, oid uint32) (data []byte, ok bool, err error)
	// Decode turns wire bytes for the given sender back into a host value.
	Decode(sender string, raw []byte) (any, error)
}
