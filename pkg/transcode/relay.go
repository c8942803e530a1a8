package transcode

import (
	"context"
	"errors"
	"io"
	"net/http"
)

const (
	// readBufferSize bounds a single relayed chunk
	readBufferSize = 32 * 1024
	// inspectQueueSize is the number of chunks the decoder may lag behind the client
	inspectQueueSize = 16
)

// errRelayAborted is seen by the decoder when the relay stops before the upstream body ended
var errRelayAborted = errors.New("relay aborted")

// Result describes a finished relay
type Result struct {
	// Written is the number of bytes delivered to the client
	Written int64
	// InspectErr is set when the decoded copy could not be produced. The
	// client stream is unaffected by it.
	InspectErr error
}

// Relay copies src to dst byte for byte, flushing after every chunk so the
// client sees data as soon as the upstream produces it. The same chunks are
// decoded according to enc and written to inspect. A decoding failure only
// stops the inspection; the raw relay continues to the end of src.
//
// Relay returns when src is exhausted, a write to dst fails, or ctx is done.
// In the latter two cases the inspection is cut short and never sees the
// rest of the stream.
func Relay(ctx context.Context, dst io.Writer, src io.Reader, enc Encoding, inspect io.Writer) (Result, error) {
	var result Result

	insp := startInspection(enc, inspect)
	flusher, canFlush := dst.(http.Flusher)
	buf := make([]byte, readBufferSize)

	for {
		if err := ctx.Err(); err != nil {
			result.InspectErr = insp.abort()
			return result, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			written, writeErr := dst.Write(buf[:n])
			result.Written += int64(written)
			if writeErr != nil {
				result.InspectErr = insp.abort()
				return result, writeErr
			}
			if canFlush {
				flusher.Flush()
			}
			insp.feed(buf[:n])
		}

		if readErr == io.EOF {
			result.InspectErr = insp.finish()
			return result, nil
		}
		if readErr != nil {
			result.InspectErr = insp.abort()
			return result, readErr
		}
	}
}

// inspection decodes relayed chunks on its own goroutine
type inspection struct {
	chunks  chan []byte
	abortc  chan struct{}
	stopped chan struct{}
	err     error
}

func startInspection(enc Encoding, sink io.Writer) *inspection {
	insp := &inspection{
		chunks:  make(chan []byte, inspectQueueSize),
		abortc:  make(chan struct{}),
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(insp.stopped)

		dec, err := NewReader(&chunkReader{chunks: insp.chunks, abort: insp.abortc}, enc)
		if err != nil {
			insp.err = err
			return
		}
		defer func() { _ = dec.Close() }()

		if _, err := io.Copy(sink, dec); err != nil {
			insp.err = err
		}
	}()

	return insp
}

// feed hands a copy of chunk to the decoder. Once the decoder has stopped,
// chunks are dropped.
func (i *inspection) feed(chunk []byte) {
	c := make([]byte, len(chunk))
	copy(c, chunk)

	select {
	case i.chunks <- c:
	case <-i.stopped:
	}
}

// finish signals the end of the stream and waits for the decoder
func (i *inspection) finish() error {
	close(i.chunks)
	<-i.stopped
	return i.err
}

// abort stops the decoder without letting it see an end of stream
func (i *inspection) abort() error {
	close(i.abortc)
	<-i.stopped
	if i.err == nil {
		return errRelayAborted
	}
	return i.err
}

// chunkReader adapts the chunk queue to an io.Reader
type chunkReader struct {
	chunks  <-chan []byte
	abort   <-chan struct{}
	pending []byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		select {
		case chunk, ok := <-r.chunks:
			if !ok {
				return 0, io.EOF
			}
			r.pending = chunk
		case <-r.abort:
			return 0, errRelayAborted
		}
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
