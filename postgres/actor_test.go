package postgres

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"
)

// stubTypes is a minimal postgres.Types used by the integration tests: its
// bootstrap query is never actually sent to a real server (the fake
// backend below ignores the SQL text), it just needs to round-trip the two
// rows the fake backend sends back.
type stubTypes struct{}

func (stubTypes) BootstrapQuery() string { return "SELECT oid, typname, sender FROM test_types" }

func (stubTypes) BuildTypes(rows []TypeRow) (Registry, error) {
	byOID := make(map[uint32]struct{ name, sender string })
	for _, r := range rows {
		byOID[r.OID] = struct{ name, sender string }{r.Name, r.Sender}
	}
	return &stubRegistry{byOID: byOID}, nil
}

type stubRegistry struct {
	byOID map[uint32]struct{ name, sender string }
}

func (r *stubRegistry) OidToType(oid uint32) (string, string, bool) {
	e, ok := r.byOID[oid]
	return e.name, e.sender, ok
}

func (r *stubRegistry) CanDecode(oid uint32) bool {
	_, ok := r.byOID[oid]
	return ok && r.byOID[oid].sender == "int4out"
}

func (r *stubRegistry) Encode(sender string, value any, oid uint32) ([]byte, bool, error) {
	if sender != "int4out" {
		return nil, false, nil
	}
	n, _ := value.(int32)
	return i32(n), true, nil
}

func (r *stubRegistry) Decode(sender string, raw []byte) (any, error) {
	if sender != "int4out" || len(raw) != 4 {
		return raw, nil
	}
	return int32(uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3])), nil
}

// frameReader peels whole [tag][length][payload] frames off a net.Conn
// using the package's own reassembler, the same framing the client uses.
type frameReader struct {
	conn net.Conn
	r    reassembler
	buf  []byte
}

func newFrameReader(conn net.Conn) *frameReader {
	return &frameReader{conn: conn, buf: make([]byte, 4096)}
}

func (f *frameReader) readN(t *testing.T, n int) []rawFrame {
	t.Helper()
	var frames []rawFrame
	for len(frames) < n {
		k, err := f.conn.Read(f.buf)
		if err != nil {
			t.Fatalf("fake backend read: %v", err)
		}
		more, err := f.r.Feed(f.buf[:k])
		if err != nil {
			t.Fatalf("fake backend reassemble: %v", err)
		}
		frames = append(frames, more...)
	}
	return frames
}

// readStartup consumes the untagged startup packet (length-prefixed, no tag
// byte) that Connect sends first.
func readStartup(t *testing.T, conn net.Conn) {
	t.Helper()
	var hdr [4]byte
	if _, err := readFull(conn, hdr[:]); err != nil {
		t.Fatalf("read startup length: %v", err)
	}
	length := int(hdr[0])<<24 | int(hdr[1])<<16 | int(hdr[2])<<8 | int(hdr[3])
	body := make([]byte, length-4)
	if _, err := readFull(conn, body); err != nil {
		t.Fatalf("read startup body: %v", err)
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// runFakeBackend drives the server side of the happy-path conversation:
// auth, bootstrap (2 type rows), then one query returning a single int4
// row, then accepts Terminate.
func runFakeBackend(t *testing.T, conn net.Conn) {
	t.Helper()
	readStartup(t, conn)

	var out bytes.Buffer
	out.Write(frame(tagAuthentication, u32(authOK)))
	out.Write(frame(tagParameterStatus, append(append([]byte("server_version"), 0), append([]byte("16.0"), 0)...)))
	out.Write(frame(tagBackendKeyData, append(u32(1234), u32(5678)...)))
	out.Write(frame(tagReadyForQuery, []byte{'I'}))
	if _, err := conn.Write(out.Bytes()); err != nil {
		t.Fatalf("write auth/init: %v", err)
	}

	fr := newFrameReader(conn)
	fr.readN(t, 3) // bootstrap Parse, Describe, Sync

	boot := bootstrapRowDescription()
	row1 := textDataRow("16", "bool", "boolout")
	row2 := textDataRow("23", "int4", "int4out")

	out.Reset()
	out.Write(frame(tagParseComplete, nil))
	out.Write(frame(tagRowDescription, boot))
	out.Write(frame(tagReadyForQuery, []byte{'I'}))
	if _, err := conn.Write(out.Bytes()); err != nil {
		t.Fatalf("write parse/describe reply: %v", err)
	}

	fr.readN(t, 3) // bootstrap Bind, Execute, Sync

	out.Reset()
	out.Write(frame(tagBindComplete, nil))
	out.Write(frame(tagDataRow, row1))
	out.Write(frame(tagDataRow, row2))
	out.Write(frame(tagCommandComplete, append([]byte("SELECT 2"), 0)))
	out.Write(frame(tagReadyForQuery, []byte{'I'}))
	if _, err := conn.Write(out.Bytes()); err != nil {
		t.Fatalf("write bootstrap result: %v", err)
	}

	fr.readN(t, 3) // query Parse, Describe, Sync

	queryRowDesc := rowDescriptionBytes([]rowField{
		{name: "one", typeOID: 23, format: FormatBinary},
	})

	out.Reset()
	out.Write(frame(tagParseComplete, nil))
	out.Write(frame(tagRowDescription, queryRowDesc))
	out.Write(frame(tagReadyForQuery, []byte{'I'}))
	if _, err := conn.Write(out.Bytes()); err != nil {
		t.Fatalf("write query describe reply: %v", err)
	}

	fr.readN(t, 3) // query Bind, Execute, Sync

	var dataPayload bytes.Buffer
	dataPayload.Write(u16(1))
	dataPayload.Write(u32(4))
	dataPayload.Write(i32(1))

	out.Reset()
	out.Write(frame(tagBindComplete, nil))
	out.Write(frame(tagDataRow, dataPayload.Bytes()))
	out.Write(frame(tagCommandComplete, append([]byte("SELECT 1"), 0)))
	out.Write(frame(tagReadyForQuery, []byte{'I'}))
	if _, err := conn.Write(out.Bytes()); err != nil {
		t.Fatalf("write query result: %v", err)
	}

	fr.readN(t, 1) // Terminate
}

func bootstrapRowDescription() []byte {
	return rowDescriptionBytes([]rowField{
		{name: "oid", typeOID: 25, format: FormatText},
		{name: "typname", typeOID: 25, format: FormatText},
		{name: "sender", typeOID: 25, format: FormatText},
	})
}

func rowDescriptionBytes(fields []rowField) []byte {
	var buf bytes.Buffer
	buf.Write(u16(uint16(len(fields))))
	for _, f := range fields {
		buf.WriteString(f.name)
		buf.WriteByte(0)
		buf.Write(u32(f.tableOID))
		buf.Write(u16(uint16(f.columnAttr)))
		buf.Write(u32(f.typeOID))
		buf.Write(u16(uint16(f.typeSize)))
		buf.Write(i32(f.typeMod))
		buf.Write(u16(uint16(f.format)))
	}
	return buf.Bytes()
}

func textDataRow(values ...string) []byte {
	var buf bytes.Buffer
	buf.Write(u16(uint16(len(values))))
	for _, v := range values {
		buf.Write(u32(uint32(len(v))))
		buf.WriteString(v)
	}
	return buf.Bytes()
}

func TestConnect_BootstrapAndQuery(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		runFakeBackend(t, server)
	}()

	// Connect dials with net.Dialer, which a net.Pipe half can't satisfy
	// directly, so drive the session machinery through the lower-level
	// constructor the way Connect itself would, pointed at the pipe.
	opts := ConnectOptions{
		Username: "alice",
		Database: "postgres",
		Types:    stubTypes{},
	}
	s := newSession(opts)
	s.conn = client
	s.chunks = make(chan []byte, 16)
	s.readErr = make(chan error, 1)
	s.phase = phaseAuth

	c := &Conn{requests: make(chan *request), done: make(chan struct{}), s: s}
	go readLoop(client, s.chunks, s.readErr)
	go s.run(c)

	if err := s.send(encodeStartup(map[string]string{"user": "alice", "database": "postgres"})); err != nil {
		t.Fatalf("send startup: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.doRequest(ctx, &request{kind: requestConnect}); err != nil {
		t.Fatalf("connect handshake: %v", err)
	}

	if got := c.Parameters()["server_version"]; got != "16.0" {
		t.Errorf("Parameters()[server_version] = %q, want 16.0", got)
	}

	result, err := c.Query(ctx, "SELECT 1 AS one")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if result.Command != "select" || result.NumRows != 1 {
		t.Errorf("result = %+v", result)
	}
	if len(result.Rows) != 1 || result.Rows[0][0].(int32) != 1 {
		t.Errorf("rows = %+v, want [[1]]", result.Rows)
	}

	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	<-done
}
