package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Terminal serializes everything written to the screen. The primary
// conversation and background agent events both write through it, and the
// spinner line is cleared before any other output.
type Terminal struct {
	mu     sync.Mutex
	in     *bufio.Reader
	out    io.Writer
	frames []string

	// spinner state, guarded by mu
	spinning bool
	message  string
	drawn    bool
	stop     chan struct{}
	stopped  chan struct{}
}

// NewTerminal reads from in and writes to out (stdin and stdout when nil)
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &Terminal{
		in:     bufio.NewReader(in),
		out:    out,
		frames: []string{"◐", "◓", "◑", "◒"},
	}
}

// Write clears a drawn spinner line and writes p. The spinner redraws on
// its next frame.
func (t *Terminal) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearLocked()
	return t.out.Write(p)
}

func (t *Terminal) Printf(format string, args ...any) {
	fmt.Fprintf(t, format, args...)
}

// ReadLine reads one trimmed line of input
func (t *Terminal) ReadLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (t *Terminal) clearLocked() {
	if t.drawn {
		io.WriteString(t.out, "\r\033[K")
		t.drawn = false
	}
}

// Spin shows message next to an animated frame until StopSpin. A running
// spinner only changes its message.
func (t *Terminal) Spin(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.message = message
	if t.spinning {
		return
	}
	t.spinning = true
	t.stop = make(chan struct{})
	t.stopped = make(chan struct{})
	go t.animate(t.stop, t.stopped)
}

func (t *Terminal) animate(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	for i := 0; ; i++ {
		t.mu.Lock()
		fmt.Fprintf(t.out, "\r%s%s%s %s\033[K", ColorGray, t.frames[i%len(t.frames)], ColorReset, t.message)
		t.drawn = true
		t.mu.Unlock()

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

func (t *Terminal) StopSpin() {
	t.mu.Lock()
	if !t.spinning {
		t.mu.Unlock()
		return
	}
	t.spinning = false
	stop, stopped := t.stop, t.stopped
	t.mu.Unlock()

	close(stop)
	<-stopped

	t.mu.Lock()
	t.clearLocked()
	t.mu.Unlock()
}
