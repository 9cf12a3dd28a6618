package postgres

import "encoding/binary"

// rawFrame is one undecoded [tag][payload] pair peeled off the byte stream.
type rawFrame struct {
	tag     byte
	payload []byte
}

// reassembler splits an unaligned inbound byte stream into whole frames.
// It makes no assumption that message boundaries align with socket reads:
// Feed may be called with as little as one byte at a time, or with many
// whole messages concatenated together, and must produce the identical
// frame sequence either way.
//
// A server reading a client's bytes can get away with one blocking
// io.ReadFull per message, since it owns the connection and can simply wait
// until a whole message has arrived. A client driver instead has to cope
// with whatever the kernel handed back from one Read, which may be less
// than a full frame or several frames at once, so reassembler keeps its own
// tail buffer across calls.
type reassembler struct {
	tail []byte
}

// Feed appends chunk to the held tail and peels off every complete frame
// now available, returning them in arrival order. Any unconsumed suffix
// (a partial tag+length header, or a frame whose payload hasn't fully
// arrived yet) is retained as the new tail -- it is always a strict prefix
// of some valid frame.
func (r *reassembler) Feed(chunk []byte) ([]rawFrame, error) {
	if len(chunk) > 0 {
		r.tail = append(r.tail, chunk...)
	}

	var frames []rawFrame
	for {
		if len(r.tail) < 5 {
			break
		}
		length := binary.BigEndian.Uint32(r.tail[1:5])
		if length < 4 {
			return nil, &ProtocolError{Reason: "advertised frame length smaller than the length field itself"}
		}
		total := 1 + int(length)
		if len(r.tail) < total {
			break
		}
		frames = append(frames, rawFrame{
			tag:     r.tail[0],
			payload: append([]byte(nil), r.tail[5:total]...),
		})
		r.tail = r.tail[total:]
	}

	// Keep the tail buffer from growing unboundedly across many small Feed
	// calls once its prefix has been fully consumed.
	if len(r.tail) == 0 {
		r.tail = nil
	}
	return frames, nil
}
