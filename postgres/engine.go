package postgres

import (
	"fmt"
	"strconv"
	"strings"
)

// dispatch is the protocol engine's phase x tag match. ParameterStatus and
// NoticeResponse are phase-independent and are peeled off before the phase
// switch; ErrorResponse is also phase-independent in its reply behavior but
// its fatality depends on phase, so it still needs to know what phase it
// arrived in.
func (s *session) dispatch(msg message) error {
	switch m := msg.(type) {
	case parameterStatus:
		s.setParameter(m.name, m.value)
		return nil
	case noticeResponse:
		return nil
	case errorResponse:
		return s.handleError(m)
	}

	switch s.phase {
	case phaseAuth:
		return s.dispatchAuth(msg)
	case phaseInit:
		return s.dispatchInit(msg)
	case phaseParsing:
		return s.dispatchParsing(msg)
	case phaseDescribing:
		return s.dispatchDescribing(msg)
	case phaseBinding:
		return s.dispatchBinding(msg)
	case phaseExecuting:
		return s.dispatchExecuting(msg)
	default:
		return &ProtocolError{Reason: fmt.Sprintf("unexpected message %T while ready", msg)}
	}
}

// handleError implements the severity split: fatal during auth/init
// (the session is reset to terminate), non-fatal everywhere else (reply the
// postgres error and wait for the ReadyForQuery that is always coming).
// It never touches phase or per-request state itself -- whatever batch was
// in flight is abandoned, and the ReadyForQuery that the server's Sync
// processing always eventually produces is what drives reachReady and
// returns the session to ready.
func (s *session) handleError(m errorResponse) error {
	pgErr := &PostgresError{Fields: m.fields}
	switch s.phase {
	case phaseAuth, phaseInit:
		s.replyError(pgErr)
		s.terminal = true
		return nil
	default:
		// A reply may already have been delivered for this request (e.g. a
		// codec error during Bind); do not overwrite it.
		if s.pending != nil {
			s.replyError(pgErr)
		}
		return nil
	}
}

// reachReady resets per-request scratch state and returns the engine to
// ready. Reached whenever a Sync's ReadyForQuery arrives with nothing
// further expected for the request it closes out: the normal query's final
// batch, or an earlier batch abandoned after a non-fatal server error
// handleError already replied, or after sendBindBatch abandoned its own
// portal on an encode error.
func (s *session) reachReady() {
	s.resetRequestState()
	s.phase = phaseReady
}

func (s *session) dispatchAuth(msg message) error {
	switch m := msg.(type) {
	case authenticationOK:
		s.phase = phaseInit
		return nil
	case authenticationCleartext:
		return s.send(encodePassword(s.opts.Password))
	case authenticationMD5:
		return s.send(encodePassword(md5Password(s.opts.Username, s.opts.Password, m.salt)))
	case authenticationOther:
		return &ProtocolError{Reason: fmt.Sprintf("unsupported authentication method %d", m.kind)}
	default:
		return &ProtocolError{Reason: fmt.Sprintf("unexpected message %T in auth phase", msg)}
	}
}

func (s *session) dispatchInit(msg message) error {
	switch bk := msg.(type) {
	case backendKeyData:
		s.backendPID = bk.pid
		s.backendSecret = bk.secret
		return nil
	case readyForQuery:
		s.bootstrap = true
		return s.startQuery(s.opts.Types.BootstrapQuery(), nil)
	default:
		return &ProtocolError{Reason: fmt.Sprintf("unexpected message %T in init phase", msg)}
	}
}

func (s *session) dispatchParsing(msg message) error {
	switch msg.(type) {
	case parseComplete:
		s.phase = phaseDescribing
		return nil
	case readyForQuery:
		// Parse itself failed: handleError already replied, and since
		// sendBindBatch was never reached, this is the only Sync ack
		// coming for this request.
		s.reachReady()
		return nil
	default:
		return &ProtocolError{Reason: fmt.Sprintf("unexpected message %T in parsing phase", msg)}
	}
}

func (s *session) dispatchDescribing(msg message) error {
	switch m := msg.(type) {
	case parameterDescription:
		s.portal.paramOIDs = m.oids
		return nil
	case rowDescription:
		s.buildStatement(m.fields)
		return s.sendBindBatch()
	case noData:
		s.statement = &statementDesc{}
		return s.sendBindBatch()
	case readyForQuery:
		// This acks the describe batch's own Sync. Only move on to binding
		// if sendBindBatch actually sent a Bind/Execute/Sync batch behind
		// it; otherwise Describe itself failed (handleError already
		// replied) or sendBindBatch abandoned the portal on an encode
		// error, and this is the only Sync ack coming.
		if s.bindSent {
			s.phase = phaseBinding
		} else {
			s.reachReady()
		}
		return nil
	default:
		return &ProtocolError{Reason: fmt.Sprintf("unexpected message %T in describing phase", msg)}
	}
}

func (s *session) dispatchBinding(msg message) error {
	switch msg.(type) {
	case bindComplete:
		s.phase = phaseExecuting
		return nil
	case readyForQuery:
		// Bind itself failed: handleError already replied, and this was
		// the last Sync ack outstanding for the request.
		s.reachReady()
		return nil
	default:
		return &ProtocolError{Reason: fmt.Sprintf("unexpected message %T in binding phase", msg)}
	}
}

func (s *session) dispatchExecuting(msg message) error {
	switch m := msg.(type) {
	case dataRow:
		s.rows = append(s.rows, m.values)
		return nil
	case portalSuspended:
		// Execute(max_rows = 0) is hard-wired, so this never legitimately
		// arrives; accept and ignore for forward compatibility.
		return nil
	case commandComplete:
		if s.bootstrap {
			return s.finishBootstrap()
		}
		return s.finishQuery(m.tag)
	case emptyQueryResponse:
		s.resetRequestState()
		s.reply(&Result{}, nil)
		return nil
	case readyForQuery:
		s.reachReady()
		return nil
	default:
		return &ProtocolError{Reason: fmt.Sprintf("unexpected message %T in executing phase", msg)}
	}
}

// startQuery sends the first batch of the extended-query sub-protocol
// (Parse, Describe(statement), Sync) under the unnamed statement and
// unnamed portal -- prepared-statement caching across requests is an
// explicit non-goal, so every query is parsed afresh.
func (s *session) startQuery(sql string, params []any) error {
	s.resetRequestState()
	s.qparams = params
	s.portal = &portalDesc{}

	if err := s.send(encodeParse("", sql, nil)); err != nil {
		return err
	}
	if err := s.send(encodeDescribe(DescribeStatement, "")); err != nil {
		return err
	}
	if err := s.send(encodeSync()); err != nil {
		return err
	}
	s.phase = phaseParsing
	return nil
}

func (s *session) buildStatement(fields []rowField) {
	st := &statementDesc{
		columns: make([]string, len(fields)),
		rowInfo: make([]colInfo, len(fields)),
	}
	for i, f := range fields {
		typeName, sender, ok := "", "", false
		if s.types != nil {
			typeName, sender, ok = s.types.OidToType(f.typeOID)
		}
		st.columns[i] = f.name
		st.rowInfo[i] = colInfo{
			typeName:  typeName,
			sender:    sender,
			oid:       f.typeOID,
			canDecode: ok && s.types.CanDecode(f.typeOID),
		}
	}
	s.statement = st
}

// sendBindBatch sends the second batch (Bind, Execute(max_rows=0), Sync)
// once the describe step has told us what the query's parameters and
// result columns look like.
func (s *session) sendBindBatch() error {
	typeNames := make([]string, len(s.portal.paramOIDs))
	senders := make([]string, len(s.portal.paramOIDs))
	for i, oid := range s.portal.paramOIDs {
		if s.types != nil {
			if name, sender, ok := s.types.OidToType(oid); ok {
				typeNames[i] = name
				senders[i] = sender
			}
		}
	}

	bound, err := encodeParams(s.types, s.hooks, s.portal.paramOIDs, typeNames, senders, s.qparams)
	if err != nil {
		s.reply(nil, err)
		// Abandon this portal instead of binding with values we couldn't
		// encode: send a lone Sync so the server still returns to idle,
		// without a Bind/Execute. bindSent stays false, so the describing
		// phase's own ReadyForQuery (the ack for this Sync) routes straight
		// back to ready instead of expecting a BindComplete that is never
		// coming.
		return s.send(encodeSync())
	}

	resultFormats := make([]FieldFormat, len(s.statement.rowInfo))
	for i, col := range s.statement.rowInfo {
		resultFormats[i] = resultFormat(s.types, s.hooks, col.typeName, col.sender, col.oid)
	}

	s.bindSent = true
	if err := s.send(encodeBind("", "", bound, resultFormats)); err != nil {
		return err
	}
	if err := s.send(encodeExecute("", 0)); err != nil {
		return err
	}
	return s.send(encodeSync())
}

func (s *session) finishBootstrap() error {
	var rows []TypeRow
	for _, values := range s.rows {
		row, err := decodeBootstrapRow(values)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	registry, err := s.opts.Types.BuildTypes(rows)
	if err != nil {
		return &TransportError{Reason: "type registry bootstrap failed", Err: err}
	}
	s.types = registry
	s.bootstrap = false
	s.resetRequestState()
	s.reply(&Result{Command: "connect"}, nil)
	return nil
}

func (s *session) finishQuery(tag string) error {
	result, err := s.decodeResult(tag)
	s.resetRequestState()
	if err != nil {
		s.reply(nil, err)
		return nil
	}
	s.reply(result, nil)
	return nil
}

func (s *session) decodeResult(tag string) (*Result, error) {
	command, numRows := decodeTag(tag)

	var columns []string
	var rows [][]any
	if s.statement != nil && len(s.statement.columns) > 0 {
		columns = s.statement.columns
		rows = make([][]any, len(s.rows))
		for i, values := range s.rows {
			row := make([]any, len(values))
			for j, fv := range values {
				col := s.statement.rowInfo[j]
				v, err := decodeField(s.types, s.hooks, col.typeName, col.sender, col.oid, col.canDecode, fv)
				if err != nil {
					return nil, err
				}
				row[j] = v
			}
			rows[i] = row
		}
	}

	return &Result{
		Command: command,
		NumRows: numRows,
		Rows:    rows,
		Columns: columns,
	}, nil
}

// decodeBootstrapRow interprets one bootstrap-query DataRow as (oid,
// typname, sender), all sent as text (the registry that would otherwise
// drive binary decoding doesn't exist yet). Types.BootstrapQuery is
// required to select exactly these three columns in this order.
func decodeBootstrapRow(values []fieldValue) (TypeRow, error) {
	if len(values) < 3 {
		return TypeRow{}, &ProtocolError{Reason: "bootstrap query row has fewer than 3 columns"}
	}
	if values[0].length < 0 || values[1].length < 0 || values[2].length < 0 {
		return TypeRow{}, &ProtocolError{Reason: "bootstrap query row has a NULL in a required column"}
	}
	oid, err := strconv.ParseUint(string(values[0].bytes), 10, 32)
	if err != nil {
		return TypeRow{}, &ProtocolError{Reason: "bootstrap query oid column is not numeric"}
	}
	return TypeRow{
		OID:    uint32(oid),
		Name:   string(values[1].bytes),
		Sender: string(values[2].bytes),
	}, nil
}

// decodeTag splits a CommandComplete tag into (command_atom, num_rows):
// split on spaces, lowercase non-numeric words, join with "_".
// "INSERT 0 3" -> ("insert", 3); "SELECT 2" -> ("select", 2).
func decodeTag(tag string) (command string, numRows uint32) {
	fields := strings.Fields(tag)
	if len(fields) == 0 {
		return "", 0
	}

	var words []string
	for _, f := range fields {
		if n, err := strconv.ParseUint(f, 10, 32); err == nil {
			numRows = uint32(n)
			continue
		}
		words = append(words, strings.ToLower(f))
	}
	return strings.Join(words, "_"), numRows
}
