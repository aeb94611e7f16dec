package transcoder

import (
	"net/url"
	"strings"
	"sync"
)

// failurePatterns mark a transcoder stderr line as a dead connection.
var failurePatterns = []string{
	"connection refused",
	"404 not found",
	"401 unauthorized",
	"403 forbidden",
	"i/o error",
	"input/output error",
	"timed out",
	"no route to host",
	"invalid data found",
	"server returned",
	"could not find codec parameters",
}

// matchFailure returns the pattern found in line, or "".
func matchFailure(line string) string {
	l := strings.ToLower(line)
	for _, p := range failurePatterns {
		if strings.Contains(l, p) {
			return p
		}
	}
	return ""
}

// tail keeps the last n stderr lines for error reports.
type tail struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func newTail(n int) *tail { return &tail{n: n} }

func (t *tail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, " | ")
}

// redact hides the password of a stream URL for logs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
