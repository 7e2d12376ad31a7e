package agent

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	progressFlushChars    = 500
	progressFlushInterval = 900 * time.Millisecond
	progressSnippetChars  = 400
)

// progressTracker turns streamed child output into progress reports. It
// flushes on a newline, once more than progressFlushChars are pending, or
// when progressFlushInterval has passed since the last flush. A report is
// the last progressSnippetChars characters of the output so far.
type progressTracker struct {
	mu        sync.Mutex
	pending   int
	tail      string
	lastFlush time.Time
	report    func(string)
	now       func() time.Time
}

func newProgressTracker(report func(string)) *progressTracker {
	t := &progressTracker{report: report, now: time.Now}
	t.lastFlush = t.now()
	return t
}

func (t *progressTracker) Write(chunk string) {
	if chunk == "" {
		return
	}
	t.mu.Lock()
	t.tail = tailChars(t.tail+chunk, progressSnippetChars)
	t.pending += utf8.RuneCountInString(chunk)
	due := strings.Contains(chunk, "\n") ||
		t.pending > progressFlushChars ||
		t.now().Sub(t.lastFlush) >= progressFlushInterval
	msg := t.takeLocked(due)
	t.mu.Unlock()

	if msg != "" {
		t.report(msg)
	}
}

// Flush reports whatever is pending
func (t *progressTracker) Flush() {
	t.mu.Lock()
	msg := t.takeLocked(true)
	t.mu.Unlock()

	if msg != "" {
		t.report(msg)
	}
}

func (t *progressTracker) takeLocked(due bool) string {
	if !due || t.pending == 0 {
		return ""
	}
	t.pending = 0
	t.lastFlush = t.now()
	return strings.TrimSpace(t.tail)
}

func tailChars(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[len(r)-n:])
}
