package postgres

import "fmt"

// EncodeFunc is the "default encoder" handed to a user Encoder override so
// it can fall back to registry behavior for values it doesn't want to
// special-case.
type EncodeFunc func(value any) (data []byte, ok bool, err error)

// DecodeFunc is the analogous default-decoder fallback handed to a user
// Decoder override.
type DecodeFunc func(raw []byte) (any, error)

// Encoder lets a caller override how a single parameter gets encoded,
// regardless of what the registry would otherwise do. Modeled as an
// explicit strategy object passed in at connect time ("user
// hooks"), not as any kind of runtime monkey-patching.
type Encoder func(typeName, sender string, oid uint32, fallback EncodeFunc, value any) (data []byte, ok bool, err error)

// Decoder is the row-value analogue of Encoder.
type Decoder func(typeName, sender string, oid uint32, fallback DecodeFunc, raw []byte) (any, error)

// DecodeFormatter lets a caller override the result format requested for a
// column, instead of the can-decode-implies-binary default.
type DecodeFormatter func(typeName, sender string, oid uint32) FieldFormat

// hooks bundles the three optional strategy objects a Conn was configured
// with. A zero value means "no override for any of these" and codec.go
// falls straight through to registry/raw-byte behavior.
type hooks struct {
	encoder         Encoder
	decoder         Decoder
	decodeFormatter DecodeFormatter
}

// isNullValue reports whether a caller-supplied parameter should be
// encoded as SQL NULL. nil is the only null-equivalent value the core
// recognizes; a Types implementation is free to also treat its own sentinel
// values as null inside its own Encode, which still runs after this check.
func isNullValue(v any) bool { return v == nil }

// encodeParam encodes a single (oid, param) pair per the
// four-branch precedence: null, then a user encoder override, then the
// registry, then raw bytes, then failure.
func encodeParam(reg Registry, h hooks, typeName, sender string, oid uint32, param any) (boundParam, error) {
	if isNullValue(param) {
		return boundParam{format: FormatBinary, isNull: true}, nil
	}

	fallback := func(value any) ([]byte, bool, error) {
		if reg != nil && reg.CanDecode(oid) {
			data, ok, err := reg.Encode(sender, value, oid)
			if err != nil {
				return nil, false, err
			}
			if ok {
				return data, true, nil
			}
		}
		return nil, false, nil
	}

	if h.encoder != nil {
		data, ok, err := h.encoder(typeName, sender, oid, fallback, param)
		if err != nil {
			return boundParam{}, &CodecError{Reason: err.Error()}
		}
		if ok {
			return boundParam{format: FormatBinary, bytes: data}, nil
		}
	} else if reg != nil && reg.CanDecode(oid) {
		data, ok, err := reg.Encode(sender, param, oid)
		if err != nil {
			return boundParam{}, &CodecError{Reason: err.Error()}
		}
		if ok {
			return boundParam{format: FormatBinary, bytes: data}, nil
		}
	}

	if raw, ok := param.([]byte); ok {
		return boundParam{format: FormatText, bytes: raw}, nil
	}

	return boundParam{}, &CodecError{
		Reason: fmt.Sprintf("unable to encode value %v as type %s", param, typeName),
	}
}

// encodeParams encodes every caller-supplied parameter in order, returning
// the bound params ready for encodeBind and matching the
// "param_formats[] mirrors the per-parameter chosen format" rule (the
// format lives inside each boundParam already).
func encodeParams(reg Registry, h hooks, oids []uint32, typeNames, senders []string, params []any) ([]boundParam, error) {
	bound := make([]boundParam, len(params))
	for i, param := range params {
		var oid uint32
		var typeName, sender string
		if i < len(oids) {
			oid = oids[i]
		}
		if i < len(typeNames) {
			typeName = typeNames[i]
		}
		if i < len(senders) {
			sender = senders[i]
		}
		bp, err := encodeParam(reg, h, typeName, sender, oid, param)
		if err != nil {
			return nil, err
		}
		bound[i] = bp
	}
	return bound, nil
}

// decodeField decodes one row's one column: null length
// becomes host nil, otherwise a user decoder override (if any) wins, else
// the registry decodes if it can, else the raw bytes are surfaced verbatim.
func decodeField(reg Registry, h hooks, typeName, sender string, oid uint32, canDecode bool, fv fieldValue) (any, error) {
	if fv.length < 0 {
		return nil, nil
	}

	fallback := func(raw []byte) (any, error) {
		if reg != nil && canDecode {
			return reg.Decode(sender, raw)
		}
		return raw, nil
	}

	if h.decoder != nil {
		v, err := h.decoder(typeName, sender, oid, fallback, fv.bytes)
		if err != nil {
			return nil, &CodecError{Reason: err.Error()}
		}
		return v, nil
	}

	if reg != nil && canDecode {
		v, err := reg.Decode(sender, fv.bytes)
		if err != nil {
			return nil, &CodecError{Reason: err.Error()}
		}
		return v, nil
	}

	return fv.bytes, nil
}

// resultFormat picks the wire format requested for a described column:
// the decode_formatter hook if configured, else binary when the registry
// can decode the OID, else text.
func resultFormat(reg Registry, h hooks, typeName, sender string, oid uint32) FieldFormat {
	if h.decodeFormatter != nil {
		return h.decodeFormatter(typeName, sender, oid)
	}
	if reg != nil && reg.CanDecode(oid) {
		return FormatBinary
	}
	return FormatText
}
