package postgres

import (
	"context"
	"net"
	"strconv"
	"time"
)

// ConnectOptions configures a new connection. Types is
// required; Encoder, Decoder and DecodeFormatter are optional value-coder
// overrides.
type ConnectOptions struct {
	Hostname string
	Port     int // 0 means 5432
	Username string
	Password string
	Database string

	// Parameters are additional startup parameters sent verbatim, e.g.
	// {"application_name": "pgactor"}.
	Parameters map[string]string

	Types           Types
	Encoder         Encoder
	Decoder         Decoder
	DecodeFormatter DecodeFormatter

	DialTimeout time.Duration
}

// Result is a single query's outcome: for a query, Command/NumRows come
// from the CommandComplete tag (an empty query yields a zero Result, and a
// commit or rollback answered without SQL carries only its Command);
// Rows/Columns are nil for statements that return no row set (e.g. INSERT
// without RETURNING).
type Result struct {
	Command string
	NumRows uint32
	Columns []string
	Rows    [][]any
}

// requestKind distinguishes the actor's internal bookkeeping requests from
// caller-issued queries; both flow through the same request/reply channel
// pair so the run loop has a single admission rule.
type requestKind int

const (
	requestConnect requestKind = iota
	requestQuery
	requestTxControl
	requestClose
)

// request is one unit of work handed to the actor goroutine. reply is
// single-consumption: exactly one of reply<-(result,nil) or
// reply<-(nil,err) is sent, exactly once, per request.
type request struct {
	kind   requestKind
	sql    string
	params []any
	reply  chan requestReply
}

type requestReply struct {
	result *Result
	err    error
}

// reply delivers result and err to the currently pending request, if any,
// and clears it. It does not change phase; only ReadyForQuery (via
// reachReady) returns the session to phaseReady.
func (s *session) reply(result *Result, err error) {
	if s.pending == nil {
		return
	}
	s.pending.reply <- requestReply{result: result, err: err}
	s.pending = nil
}

func (s *session) replyError(err error) {
	s.reply(nil, err)
}

// Conn is a single, serialized connection to a PostgreSQL backend. All
// methods are safe to call from any goroutine; requests are funneled
// through a channel into the single actor goroutine that owns the
// session's mutable state -- no locks anywhere in this type.
type Conn struct {
	requests chan *request
	done     chan struct{}
	s        *session
}

// Connect dials hostname:port, runs the startup/authentication handshake
// and the type-registry bootstrap query, and returns a ready connection.
func Connect(ctx context.Context, opts ConnectOptions) (*Conn, error) {
	dialer := net.Dialer{Timeout: opts.DialTimeout}
	port := opts.Port
	if port == 0 {
		port = 5432
	}
	addr := net.JoinHostPort(opts.Hostname, strconv.Itoa(port))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &TransportError{Reason: "dial failed", Err: err}
	}

	s := newSession(opts)
	s.conn = conn
	s.chunks = make(chan []byte, 16)
	s.readErr = make(chan error, 1)
	// Set before the actor goroutine starts: phase is only ever read or
	// written from that goroutine once it's running, so this field must
	// reach its startup value before run() takes over.
	s.phase = phaseAuth

	c := &Conn{
		requests: make(chan *request),
		done:     make(chan struct{}),
		s:        s,
	}

	go readLoop(conn, s.chunks, s.readErr)
	go s.run(c)

	startup := map[string]string{"user": opts.Username}
	if opts.Database != "" {
		startup["database"] = opts.Database
	}
	for k, v := range opts.Parameters {
		startup[k] = v
	}
	if err := s.send(encodeStartup(startup)); err != nil {
		return nil, err
	}

	return c, c.doRequest(ctx, &request{kind: requestConnect})
}

// readLoop is the reader goroutine: it only moves bytes off the socket and
// never touches session state, keeping the actor the single owner of all
// protocol state.
func readLoop(conn net.Conn, chunks chan<- []byte, readErr chan<- error) {
	buf := make([]byte, 64*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			chunks <- chunk
		}
		if err != nil {
			readErr <- err
			return
		}
	}
}

// run is the actor's event loop. It only accepts new caller requests while
// phase == ready (the admission rule); at all other times it
// exclusively drains the socket, since at most one request is ever in
// flight. Incoming bytes are fed through the reassembler, which can yield
// zero or more complete frames for one read.
func (s *session) run(c *Conn) {
	defer close(c.done)
	defer s.conn.Close()

	// Connect's own "connect" request is submitted while the session is
	// still in phaseAuth, before the ready-only admission rule below would
	// ever accept it; take it unconditionally as the first thing the actor
	// does; any bytes that arrived first (auth challenges racing ahead of
	// the request send) are simply still sitting in s.chunks; at most one
	// of the two can arrive before the other is also waited on.
	select {
	case req := <-c.requests:
		s.pending = req
	case chunk := <-s.chunks:
		if err := s.handleChunk(chunk); err != nil {
			s.failPending(err)
			return
		}
		req := <-c.requests
		s.pending = req
	case err := <-s.readErr:
		s.failPending(&TransportError{Reason: "connection closed", Err: err})
		return
	}

	for {
		if s.terminal {
			return
		}

		if s.phase == phaseReady && s.pending == nil {
			select {
			case req := <-c.requests:
				if !s.admit(req) {
					continue
				}
			case chunk := <-s.chunks:
				if err := s.handleChunk(chunk); err != nil {
					s.failPending(err)
					return
				}
			case err := <-s.readErr:
				s.failPending(&TransportError{Reason: "connection closed", Err: err})
				return
			}
			continue
		}

		select {
		case chunk := <-s.chunks:
			if err := s.handleChunk(chunk); err != nil {
				s.failPending(err)
				return
			}
		case err := <-s.readErr:
			s.failPending(&TransportError{Reason: "connection closed", Err: err})
			return
		}
	}
}

// admit accepts a request arriving while ready -- a new caller request is
// only ever accepted in the ready phase. It returns false (and has already
// replied) for Close and for a request whose first send failed. A
// transaction-control request answered without any SQL returns true, with
// its reply already sent.
func (s *session) admit(req *request) bool {
	switch req.kind {
	case requestConnect:
		// The very first request: no phase change here, the handshake is
		// already underway from Connect's explicit startup send. Just
		// remember who to reply to once init finishes.
		s.pending = req
		return true
	case requestQuery:
		s.pending = req
		if err := s.startQuery(req.sql, req.params); err != nil {
			s.replyError(err)
			return false
		}
		return true
	case requestTxControl:
		s.pending = req
		if err := s.runTxControl(req.sql); err != nil {
			s.replyError(err)
			return false
		}
		return true
	case requestClose:
		s.pending = req
		if err := s.send(encodeTerminate()); err != nil {
			s.replyError(err)
		} else {
			s.reply(&Result{}, nil)
		}
		s.terminal = true
		return false
	default:
		return false
	}
}

func (s *session) handleChunk(chunk []byte) error {
	frames, err := s.reass.Feed(chunk)
	if err != nil {
		return err
	}
	for _, f := range frames {
		msg, err := decodeBackend(f.tag, f.payload)
		if err != nil {
			return err
		}
		if err := s.dispatch(msg); err != nil {
			return err
		}
		if s.terminal {
			return nil
		}
	}
	return nil
}

func (s *session) failPending(err error) {
	s.terminal = true
	if s.pending != nil {
		s.replyError(err)
	}
}

// doRequest submits req to the actor and waits for its single reply,
// honoring ctx cancellation and the connection's closed state.
func (c *Conn) doRequest(ctx context.Context, req *request) error {
	if req.reply == nil {
		req.reply = make(chan requestReply, 1)
	}
	select {
	case c.requests <- req:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case rep := <-req.reply:
		return rep.err
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// doQuery is like doRequest but also returns the successful *Result.
func (c *Conn) doQuery(ctx context.Context, req *request) (*Result, error) {
	if req.reply == nil {
		req.reply = make(chan requestReply, 1)
	}
	select {
	case c.requests <- req:
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case rep := <-req.reply:
		return rep.result, rep.err
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Query runs sql as an extended-query request with the given positional
// parameters and returns its result.
func (c *Conn) Query(ctx context.Context, sql string, params ...any) (*Result, error) {
	return c.doQuery(ctx, &request{kind: requestQuery, sql: sql, params: params})
}

// Close sends Terminate and releases the connection. Close is idempotent;
// calling it on an already-closed Conn returns ErrClosed.
func (c *Conn) Close(ctx context.Context) error {
	return c.doRequest(ctx, &request{kind: requestClose})
}

// Parameters returns the most recent snapshot of server run-time
// parameters, safe to call concurrently with queries in
// flight.
func (c *Conn) Parameters() map[string]string {
	return c.s.paramsSnapshot.Load().(map[string]string)
}
