package transcoder

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeFrame(i int) []byte {
	body := bytes.Repeat([]byte{byte(0x10 + i)}, 50+i*7)
	// a lone 0xFF inside the body is not a marker
	body[3] = 0xFF
	f := append([]byte{0xFF, 0xD8}, body...)
	return append(f, EOI...)
}

func TestSplitterWholeFramesInOneChunk(t *testing.T) {
	var s FrameSplitter
	in := append(makeFrame(1), makeFrame(2)...)

	out := s.Feed(in)

	require.Len(t, out, 2)
	assert.Equal(t, makeFrame(1), out[0])
	assert.Equal(t, makeFrame(2), out[1])
	assert.Zero(t, s.Pending())
}

func TestSplitterMarkerSplitAcrossChunks(t *testing.T) {
	var s FrameSplitter
	frame := makeFrame(3)

	assert.Empty(t, s.Feed(frame[:len(frame)-1]))
	out := s.Feed(frame[len(frame)-1:])

	require.Len(t, out, 1)
	assert.Equal(t, frame, out[0])
}

func TestSplitterKeepsRemainder(t *testing.T) {
	var s FrameSplitter
	frame := makeFrame(4)
	next := makeFrame(5)

	out := s.Feed(append(append([]byte{}, frame...), next[:10]...))
	require.Len(t, out, 1)
	assert.Equal(t, 10, s.Pending())

	out = s.Feed(next[10:])
	require.Len(t, out, 1)
	assert.Equal(t, next, out[0])
}

func TestSplitterArbitraryChunking(t *testing.T) {
	const k = 25
	var stream []byte
	var want [][]byte
	for i := 0; i < k; i++ {
		f := makeFrame(i)
		want = append(want, f)
		stream = append(stream, f...)
	}

	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		var s FrameSplitter
		var got [][]byte
		for off := 0; off < len(stream); {
			n := 1 + rng.Intn(40)
			if off+n > len(stream) {
				n = len(stream) - off
			}
			got = append(got, s.Feed(stream[off:off+n])...)
			off += n
		}
		require.Len(t, got, k)
		for i := range want {
			assert.Equal(t, want[i], got[i], "frame %d round %d", i, round)
		}
		assert.Zero(t, s.Pending())
	}
}

func TestSplitterByteAtATime(t *testing.T) {
	var s FrameSplitter
	frame := makeFrame(6)
	var got [][]byte
	for i := range frame {
		got = append(got, s.Feed(frame[i:i+1])...)
	}
	require.Len(t, got, 1)
	assert.Equal(t, frame, got[0])
}
