package postgres

import (
	"bytes"
	"testing"
)

func buildFrames(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(frame('1', nil))
	buf.Write(frame('Z', []byte{'I'}))
	buf.Write(frame('T', []byte("hello")))
	return buf.Bytes()
}

func TestReassembler_WholeStream(t *testing.T) {
	var r reassembler
	frames, err := r.Feed(buildFrames(t))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	if frames[0].tag != '1' || frames[1].tag != 'Z' || frames[2].tag != 'T' {
		t.Errorf("frames = %+v", frames)
	}
	if string(frames[2].payload) != "hello" {
		t.Errorf("payload = %q, want hello", frames[2].payload)
	}
}

// TestReassembler_ByteAtATime feeds the identical byte stream one byte at a
// time and checks the resulting frame sequence is exactly the same as
// feeding it all at once -- frame reassembly must be deterministic
// regardless of how the underlying socket happened to chunk its reads.
func TestReassembler_ByteAtATime(t *testing.T) {
	whole := buildFrames(t)

	var r reassembler
	var got []rawFrame
	for _, b := range whole {
		frames, err := r.Feed([]byte{b})
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		got = append(got, frames...)
	}

	var want reassembler
	wantFrames, err := want.Feed(whole)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}

	if len(got) != len(wantFrames) {
		t.Fatalf("got %d frames, want %d", len(got), len(wantFrames))
	}
	for i := range got {
		if got[i].tag != wantFrames[i].tag || !bytes.Equal(got[i].payload, wantFrames[i].payload) {
			t.Errorf("frame %d = %+v, want %+v", i, got[i], wantFrames[i])
		}
	}
}

func TestReassembler_ArbitrarySplit(t *testing.T) {
	whole := buildFrames(t)
	splits := [][]int{{3, 7, 2}, {1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, {len(whole)}}

	for _, sizes := range splits {
		var r reassembler
		var got []rawFrame
		pos := 0
		for _, sz := range sizes {
			if pos >= len(whole) {
				break
			}
			end := pos + sz
			if end > len(whole) {
				end = len(whole)
			}
			frames, err := r.Feed(whole[pos:end])
			if err != nil {
				t.Fatalf("Feed: %v", err)
			}
			got = append(got, frames...)
			pos = end
		}
		// Whatever the listed sizes did not cover arrives as one final chunk.
		if pos < len(whole) {
			frames, err := r.Feed(whole[pos:])
			if err != nil {
				t.Fatalf("Feed: %v", err)
			}
			got = append(got, frames...)
		}
		if len(got) != 3 {
			t.Errorf("split %v: got %d frames, want 3", sizes, len(got))
		}
	}
}

func TestReassembler_TruncatedLength(t *testing.T) {
	var r reassembler
	// length field (3) smaller than its own 4 bytes is never valid.
	bad := append([]byte{'Q'}, u32(3)...)
	if _, err := r.Feed(bad); err == nil {
		t.Error("expected an error for an advertised length smaller than 4")
	}
}
