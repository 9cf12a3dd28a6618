// Package postgres implements a client driver for PostgreSQL's
// frontend/backend wire protocol v3: authentication, catalog bootstrap, and
// the extended-query sub-protocol (Parse/Describe/Bind/Execute/Sync).
package postgres

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Frontend message tags.
const (
	tagPassword  = 'p'
	tagParse     = 'P'
	tagBind      = 'B'
	tagDescribe  = 'D'
	tagExecute   = 'E'
	tagSync      = 'S'
	tagTerminate = 'X'
	tagClose     = 'C'
)

// Backend message tags.
const (
	tagAuthentication       = 'R'
	tagBackendKeyData       = 'K'
	tagParameterStatus      = 'S'
	tagParseComplete        = '1'
	tagBindComplete         = '2'
	tagCloseComplete        = '3'
	tagParameterDescription = 't'
	tagRowDescription       = 'T'
	tagDataRow              = 'D'
	tagNoData               = 'n'
	tagCommandComplete      = 'C'
	tagEmptyQueryResponse   = 'I'
	tagReadyForQuery        = 'Z'
	tagErrorResponse        = 'E'
	tagNoticeResponse       = 'N'
	tagPortalSuspended      = 's'
)

// Authentication sub-kinds, as carried in the int32 following the 'R' tag.
const (
	authOK            = 0
	authCleartext     = 3
	authMD5           = 5
	startupProtocolV3 = 0x00030000
)

// DescribeKind selects whether a Describe message targets a prepared
// statement or a bound portal.
type DescribeKind byte

const (
	DescribeStatement DescribeKind = 'S'
	DescribePortal    DescribeKind = 'P'
)

// FieldFormat is the wire format of a parameter or result column.
type FieldFormat int16

const (
	FormatText   FieldFormat = 0
	FormatBinary FieldFormat = 1
)

// message is the closed tagged-variant marker for every decoded backend
// message. Keeping this a closed set (rather than an open interface any
// struct can satisfy) is deliberate: the engine's phase x tag dispatch in
// engine.go depends on an exhaustive type switch, and an open interface
// would let that switch silently stop being exhaustive.
type message interface {
	backendTag() byte
}

type authenticationOK struct{}

func (authenticationOK) backendTag() byte { return tagAuthentication }

type authenticationCleartext struct{}

func (authenticationCleartext) backendTag() byte { return tagAuthentication }

type authenticationMD5 struct{ salt [4]byte }

func (authenticationMD5) backendTag() byte { return tagAuthentication }

type authenticationOther struct{ kind int32 }

func (authenticationOther) backendTag() byte { return tagAuthentication }

type backendKeyData struct {
	pid    int32
	secret int32
}

func (backendKeyData) backendTag() byte { return tagBackendKeyData }

type parameterStatus struct{ name, value string }

func (parameterStatus) backendTag() byte { return tagParameterStatus }

type parseComplete struct{}

func (parseComplete) backendTag() byte { return tagParseComplete }

type bindComplete struct{}

func (bindComplete) backendTag() byte { return tagBindComplete }

type closeComplete struct{}

func (closeComplete) backendTag() byte { return tagCloseComplete }

type parameterDescription struct{ oids []uint32 }

func (parameterDescription) backendTag() byte { return tagParameterDescription }

type rowField struct {
	name       string
	tableOID   uint32
	columnAttr int16
	typeOID    uint32
	typeSize   int16
	typeMod    int32
	format     FieldFormat
}

type rowDescription struct{ fields []rowField }

func (rowDescription) backendTag() byte { return tagRowDescription }

type fieldValue struct {
	length int32 // -1 means SQL NULL
	bytes  []byte
}

type dataRow struct{ values []fieldValue }

func (dataRow) backendTag() byte { return tagDataRow }

type noData struct{}

func (noData) backendTag() byte { return tagNoData }

type commandComplete struct{ tag string }

func (commandComplete) backendTag() byte { return tagCommandComplete }

type emptyQueryResponse struct{}

func (emptyQueryResponse) backendTag() byte { return tagEmptyQueryResponse }

type readyForQuery struct{ status byte }

func (readyForQuery) backendTag() byte { return tagReadyForQuery }

type errorResponse struct{ fields map[byte]string }

func (errorResponse) backendTag() byte { return tagErrorResponse }

type noticeResponse struct{ fields map[byte]string }

func (noticeResponse) backendTag() byte { return tagNoticeResponse }

type portalSuspended struct{}

func (portalSuspended) backendTag() byte { return tagPortalSuspended }

// decodeBackend dispatches on the leading tag byte exactly once; every
// backend message the protocol requires the codec to handle is decoded here.
// Unknown tags or truncated bodies are protocol errors, never silently
// dropped.
func decodeBackend(tag byte, payload []byte) (message, error) {
	switch tag {
	case tagAuthentication:
		return decodeAuthentication(payload)
	case tagBackendKeyData:
		if len(payload) < 8 {
			return nil, &ProtocolError{Reason: "truncated BackendKeyData"}
		}
		return backendKeyData{
			pid:    int32(binary.BigEndian.Uint32(payload[0:4])),
			secret: int32(binary.BigEndian.Uint32(payload[4:8])),
		}, nil
	case tagParameterStatus:
		name, rest, err := readCString(payload)
		if err != nil {
			return nil, err
		}
		value, _, err := readCString(rest)
		if err != nil {
			return nil, err
		}
		return parameterStatus{name: name, value: value}, nil
	case tagParseComplete:
		return parseComplete{}, nil
	case tagBindComplete:
		return bindComplete{}, nil
	case tagCloseComplete:
		return closeComplete{}, nil
	case tagParameterDescription:
		return decodeParameterDescription(payload)
	case tagRowDescription:
		return decodeRowDescription(payload)
	case tagDataRow:
		return decodeDataRow(payload)
	case tagNoData:
		return noData{}, nil
	case tagCommandComplete:
		text, _, err := readCString(payload)
		if err != nil {
			return nil, err
		}
		return commandComplete{tag: text}, nil
	case tagEmptyQueryResponse:
		return emptyQueryResponse{}, nil
	case tagReadyForQuery:
		if len(payload) < 1 {
			return nil, &ProtocolError{Reason: "truncated ReadyForQuery"}
		}
		return readyForQuery{status: payload[0]}, nil
	case tagErrorResponse:
		fields, err := decodeFieldMap(payload)
		if err != nil {
			return nil, err
		}
		return errorResponse{fields: fields}, nil
	case tagNoticeResponse:
		fields, err := decodeFieldMap(payload)
		if err != nil {
			return nil, err
		}
		return noticeResponse{fields: fields}, nil
	case tagPortalSuspended:
		return portalSuspended{}, nil
	default:
		return nil, &ProtocolError{Reason: fmt.Sprintf("unknown backend message tag %q", string(tag))}
	}
}

func decodeAuthentication(payload []byte) (message, error) {
	if len(payload) < 4 {
		return nil, &ProtocolError{Reason: "truncated Authentication"}
	}
	kind := int32(binary.BigEndian.Uint32(payload[0:4]))
	switch kind {
	case authOK:
		return authenticationOK{}, nil
	case authCleartext:
		return authenticationCleartext{}, nil
	case authMD5:
		if len(payload) < 8 {
			return nil, &ProtocolError{Reason: "truncated AuthenticationMD5Password salt"}
		}
		var salt [4]byte
		copy(salt[:], payload[4:8])
		return authenticationMD5{salt: salt}, nil
	default:
		return authenticationOther{kind: kind}, nil
	}
}

func decodeParameterDescription(payload []byte) (message, error) {
	if len(payload) < 2 {
		return nil, &ProtocolError{Reason: "truncated ParameterDescription"}
	}
	n := int(binary.BigEndian.Uint16(payload[0:2]))
	if len(payload) < 2+n*4 {
		return nil, &ProtocolError{Reason: "truncated ParameterDescription oid list"}
	}
	oids := make([]uint32, n)
	for i := 0; i < n; i++ {
		off := 2 + i*4
		oids[i] = binary.BigEndian.Uint32(payload[off : off+4])
	}
	return parameterDescription{oids: oids}, nil
}

func decodeRowDescription(payload []byte) (message, error) {
	if len(payload) < 2 {
		return nil, &ProtocolError{Reason: "truncated RowDescription"}
	}
	n := int(binary.BigEndian.Uint16(payload[0:2]))
	rest := payload[2:]
	fields := make([]rowField, 0, n)
	for i := 0; i < n; i++ {
		name, tail, err := readCString(rest)
		if err != nil {
			return nil, err
		}
		if len(tail) < 18 {
			return nil, &ProtocolError{Reason: "truncated RowDescription field"}
		}
		f := rowField{
			name:       name,
			tableOID:   binary.BigEndian.Uint32(tail[0:4]),
			columnAttr: int16(binary.BigEndian.Uint16(tail[4:6])),
			typeOID:    binary.BigEndian.Uint32(tail[6:10]),
			typeSize:   int16(binary.BigEndian.Uint16(tail[10:12])),
			typeMod:    int32(binary.BigEndian.Uint32(tail[12:16])),
			format:     FieldFormat(int16(binary.BigEndian.Uint16(tail[16:18]))),
		}
		fields = append(fields, f)
		rest = tail[18:]
	}
	return rowDescription{fields: fields}, nil
}

func decodeDataRow(payload []byte) (message, error) {
	if len(payload) < 2 {
		return nil, &ProtocolError{Reason: "truncated DataRow"}
	}
	n := int(binary.BigEndian.Uint16(payload[0:2]))
	rest := payload[2:]
	values := make([]fieldValue, 0, n)
	for i := 0; i < n; i++ {
		if len(rest) < 4 {
			return nil, &ProtocolError{Reason: "truncated DataRow field length"}
		}
		length := int32(binary.BigEndian.Uint32(rest[0:4]))
		rest = rest[4:]
		if length < 0 {
			values = append(values, fieldValue{length: -1})
			continue
		}
		if int32(len(rest)) < length {
			return nil, &ProtocolError{Reason: "truncated DataRow field value"}
		}
		values = append(values, fieldValue{length: length, bytes: rest[:length]})
		rest = rest[length:]
	}
	return dataRow{values: values}, nil
}

// decodeFieldMap decodes the single-byte-code -> C-string mapping shared by
// ErrorResponse and NoticeResponse, terminated by a zero byte.
func decodeFieldMap(payload []byte) (map[byte]string, error) {
	fields := make(map[byte]string)
	for len(payload) > 0 {
		code := payload[0]
		if code == 0 {
			return fields, nil
		}
		value, rest, err := readCString(payload[1:])
		if err != nil {
			return nil, err
		}
		fields[code] = value
		payload = rest
	}
	return nil, &ProtocolError{Reason: "unterminated field map"}
}

func readCString(b []byte) (string, []byte, error) {
	idx := bytes.IndexByte(b, 0)
	if idx < 0 {
		return "", nil, &ProtocolError{Reason: "missing C-string terminator"}
	}
	return string(b[:idx]), b[idx+1:], nil
}

// --- Frontend message encoders ---
// Every encoder produces the exact wire bytes: [tag][length incl. itself][payload],
// except encodeStartup, whose message has no leading tag byte at all.

func encodeStartup(params map[string]string) []byte {
	var body bytes.Buffer
	body.Write(u32(startupProtocolV3))
	for k, v := range params {
		body.WriteString(k)
		body.WriteByte(0)
		body.WriteString(v)
		body.WriteByte(0)
	}
	body.WriteByte(0)

	var out bytes.Buffer
	out.Write(u32(uint32(body.Len() + 4)))
	out.Write(body.Bytes())
	return out.Bytes()
}

func encodePassword(password string) []byte {
	var body bytes.Buffer
	body.WriteString(password)
	body.WriteByte(0)
	return frame(tagPassword, body.Bytes())
}

func encodeParse(name, query string, paramOIDHints []uint32) []byte {
	var body bytes.Buffer
	body.WriteString(name)
	body.WriteByte(0)
	body.WriteString(query)
	body.WriteByte(0)
	body.Write(u16(uint16(len(paramOIDHints))))
	for _, oid := range paramOIDHints {
		body.Write(u32(oid))
	}
	return frame(tagParse, body.Bytes())
}

// boundParam is a single Bind parameter: its chosen wire format and bytes
// (nil bytes with isNull = true encodes SQL NULL).
type boundParam struct {
	format FieldFormat
	isNull bool
	bytes  []byte
}

func encodeBind(portalName, stmtName string, params []boundParam, resultFormats []FieldFormat) []byte {
	var body bytes.Buffer
	body.WriteString(portalName)
	body.WriteByte(0)
	body.WriteString(stmtName)
	body.WriteByte(0)

	body.Write(u16(uint16(len(params))))
	for _, p := range params {
		body.Write(u16(uint16(p.format)))
	}

	body.Write(u16(uint16(len(params))))
	for _, p := range params {
		if p.isNull {
			body.Write(i32(-1))
			continue
		}
		body.Write(u32(uint32(len(p.bytes))))
		body.Write(p.bytes)
	}

	body.Write(u16(uint16(len(resultFormats))))
	for _, f := range resultFormats {
		body.Write(u16(uint16(f)))
	}
	return frame(tagBind, body.Bytes())
}

func encodeDescribe(kind DescribeKind, name string) []byte {
	var body bytes.Buffer
	body.WriteByte(byte(kind))
	body.WriteString(name)
	body.WriteByte(0)
	return frame(tagDescribe, body.Bytes())
}

func encodeExecute(portalName string, maxRows int32) []byte {
	var body bytes.Buffer
	body.WriteString(portalName)
	body.WriteByte(0)
	body.Write(i32(maxRows))
	return frame(tagExecute, body.Bytes())
}

func encodeClose(kind DescribeKind, name string) []byte {
	var body bytes.Buffer
	body.WriteByte(byte(kind))
	body.WriteString(name)
	body.WriteByte(0)
	return frame(tagClose, body.Bytes())
}

func encodeSync() []byte {
	return frame(tagSync, nil)
}

func encodeTerminate() []byte {
	return frame(tagTerminate, nil)
}

func frame(tag byte, payload []byte) []byte {
	out := make([]byte, 0, 5+len(payload))
	out = append(out, tag)
	out = append(out, u32(uint32(len(payload)+4))...)
	out = append(out, payload...)
	return out
}

func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func i32(v int32) []byte { return u32(uint32(v)) }
