package proxy

import (
	"bytes"

	"github.com/tidwall/gjson"
)

const (
	conversationMetadataType = "conversation_detail_metadata"
	// maxEventLineSize caps a buffered event line; longer lines are skipped
	maxEventLineSize = 1 << 20
)

var (
	metadataMarker = []byte(`"` + conversationMetadataType + `"`)
	eventPrefix    = []byte("data:")
)

// conversationDetector scans a decoded event stream line by line and reports
// the conversation ID of every complete metadata line. A trailing line
// without a newline is only considered once Close is called.
type conversationDetector struct {
	line     []byte
	overflow bool
	seen     map[string]struct{}
	found    func(conversationID string)
}

func newConversationDetector(found func(conversationID string)) *conversationDetector {
	return &conversationDetector{
		seen:  make(map[string]struct{}),
		found: found,
	}
}

// Write implements io.Writer
func (d *conversationDetector) Write(p []byte) (int, error) {
	n := len(p)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			d.buffer(p)
			break
		}
		d.buffer(p[:i])
		d.endLine()
		p = p[i+1:]
	}
	return n, nil
}

// Close treats buffered data as a final complete line
func (d *conversationDetector) Close() error {
	if len(d.line) > 0 || d.overflow {
		d.endLine()
	}
	return nil
}

func (d *conversationDetector) buffer(p []byte) {
	if d.overflow {
		return
	}
	if len(d.line)+len(p) > maxEventLineSize {
		d.overflow = true
		d.line = d.line[:0]
		return
	}
	d.line = append(d.line, p...)
}

func (d *conversationDetector) endLine() {
	if !d.overflow {
		if id := conversationIDFromLine(d.line); id != "" {
			if _, ok := d.seen[id]; !ok {
				d.seen[id] = struct{}{}
				d.found(id)
			}
		}
	}
	d.line = d.line[:0]
	d.overflow = false
}

// conversationIDFromLine returns the conversation_id of a metadata event
// line, or "" when the line is not one
func conversationIDFromLine(line []byte) string {
	line = bytes.TrimSpace(line)
	line = bytes.TrimSpace(bytes.TrimPrefix(line, eventPrefix))

	at := bytes.Index(line, metadataMarker)
	if at < 0 {
		return ""
	}
	// The event is either the whole line or an object embedded right before the marker.
	for _, start := range []int{bytes.IndexByte(line, '{'), bytes.LastIndexByte(line[:at], '{')} {
		if start < 0 || start > at {
			continue
		}
		event := line[start:]
		if gjson.GetBytes(event, "type").String() == conversationMetadataType {
			return gjson.GetBytes(event, "conversation_id").String()
		}
	}
	return ""
}
