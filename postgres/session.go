package postgres

import (
	"net"
	"sync/atomic"
)

// phase is the protocol engine's current state.
type phase int

const (
	phaseReady phase = iota
	phaseAuth
	phaseInit
	phaseParsing
	phaseDescribing
	phaseBinding
	phaseExecuting
)

func (p phase) String() string {
	switch p {
	case phaseReady:
		return "ready"
	case phaseAuth:
		return "auth"
	case phaseInit:
		return "init"
	case phaseParsing:
		return "parsing"
	case phaseDescribing:
		return "describing"
	case phaseBinding:
		return "binding"
	case phaseExecuting:
		return "executing"
	default:
		return "unknown"
	}
}

// colInfo is one positional entry of a statement's row_info, as described
// by the type registry once bootstrap has resolved the column's OID.
type colInfo struct {
	typeName  string
	sender    string
	oid       uint32
	canDecode bool
}

// statementDesc is the per-query "statement" descriptor.
type statementDesc struct {
	columns []string
	rowInfo []colInfo
}

// portalDesc is the per-query "portal" descriptor.
type portalDesc struct {
	paramOIDs []uint32
}

// session is the connection state machine's process-wide state: one per
// *Conn, created at connect and destroyed at terminate. It is only ever
// touched from the single actor goroutine in actor.go -- there are no
// locks here because there is exactly one logical thread of execution.
type session struct {
	phase phase
	conn  net.Conn
	reass reassembler

	opts  ConnectOptions
	hooks hooks

	pending *request // the in-flight caller request; cleared when its reply is sent, which can precede the return to ready

	parameters map[string]string
	// paramsSnapshot is an atomic copy-on-write mirror of parameters, so
	// Conn.Parameters can be read from any goroutine without a lock.
	paramsSnapshot atomic.Value // map[string]string

	backendPID    int32
	backendSecret int32

	rows      [][]fieldValue
	statement *statementDesc
	portal    *portalDesc
	qparams   []any
	bindSent  bool // set once sendBindBatch actually sends Bind/Execute/Sync

	bootstrap bool
	types     Registry

	transactions int

	terminal bool // set by a fatal error; run() exits once the current dispatch returns

	chunks  chan []byte
	readErr chan error
}

func newSession(opts ConnectOptions) *session {
	s := &session{
		phase:      phaseReady,
		opts:       opts,
		hooks:      hooks{encoder: opts.Encoder, decoder: opts.Decoder, decodeFormatter: opts.DecodeFormatter},
		parameters: make(map[string]string),
	}
	s.paramsSnapshot.Store(map[string]string{})
	return s
}

// setParameter updates both the live map (actor-only) and the published
// snapshot other goroutines read through Conn.Parameters.
func (s *session) setParameter(name, value string) {
	s.parameters[name] = value
	snapshot := make(map[string]string, len(s.parameters))
	for k, v := range s.parameters {
		snapshot[k] = v
	}
	s.paramsSnapshot.Store(snapshot)
}

func (s *session) send(data []byte) error {
	if _, err := s.conn.Write(data); err != nil {
		return &TransportError{Reason: "write failed", Err: err}
	}
	return nil
}

func (s *session) resetRequestState() {
	s.rows = nil
	s.statement = nil
	s.portal = nil
	s.qparams = nil
	s.bindSent = false
}
