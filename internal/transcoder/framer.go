package transcoder

import "bytes"

// EOI is the JPEG end-of-image marker terminating every frame on the pipe.
var EOI = []byte{0xFF, 0xD9}

// FrameSplitter cuts a concatenated MJPEG byte stream into frames. It keeps
// partial data between calls, so frames and the marker itself may span reads.
type FrameSplitter struct {
	buf  []byte
	scan int // offset already searched without finding a marker
}

// Feed appends chunk and returns every frame completed by it, in order.
// Returned slices are owned by the caller.
func (f *FrameSplitter) Feed(chunk []byte) [][]byte {
	f.buf = append(f.buf, chunk...)
	var frames [][]byte
	for {
		// back up one byte: the marker may straddle the previous chunk
		from := f.scan - (len(EOI) - 1)
		if from < 0 {
			from = 0
		}
		i := bytes.Index(f.buf[from:], EOI)
		if i < 0 {
			f.scan = len(f.buf)
			break
		}
		end := from + i + len(EOI)
		frame := make([]byte, end)
		copy(frame, f.buf[:end])
		frames = append(frames, frame)

		n := copy(f.buf, f.buf[end:])
		f.buf = f.buf[:n]
		f.scan = 0
	}
	return frames
}

// Pending returns the number of buffered bytes not yet part of a frame.
func (f *FrameSplitter) Pending() int { return len(f.buf) }
