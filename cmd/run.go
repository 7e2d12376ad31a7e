package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"conductor/config"
	"conductor/wsbridge"
)

var (
	runConfigPath string
	runVerbose    bool
	runTask       string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an orchestrated session",
	Long: `Start an interactive conversation with the primary profile. The
conversation can delegate tasks to background agents; their results are
collected into End Results and a continuation once every agent of a round
has finished.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		logger := newLogger()

		cfg, err := config.LoadAndValidate(runConfigPath)
		if err != nil {
			fail("%v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := newSession(ctx, cfg, logger, sessionOptions{verbose: runVerbose})
		if err != nil {
			fail("%v", err)
		}

		err = s.run(ctx, runTask)
		s.Close(err)
		if err != nil {
			fail("%v", err)
		}
	},
}

// run drives the session until the user leaves or ctx ends. User input and
// composed rounds are handled one at a time on this goroutine.
func (s *session) run(ctx context.Context, firstInput string) error {
	if err := s.rt.Start(ctx); err != nil {
		return err
	}

	if s.relay != nil {
		if err := s.relay.Connect(); err != nil {
			s.logger.Warn("relay unavailable", "url", s.cfg.Relay.URL, "error", err)
			if !s.cfg.Relay.AutoReconnect {
				s.relay.Close()
				s.relay = nil
			}
		}
	}

	s.chat.Welcome(s.profile.Name, s.model)

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	if s.relay != nil {
		g.Go(func() error {
			err := s.relay.Run(ctx)
			if errors.Is(err, wsbridge.ErrConnectionClosed) {
				s.logger.Warn("relay connection closed; continuing without relay")
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		defer cancel()
		return s.loop(ctx, firstInput)
	})

	return g.Wait()
}

func (s *session) loop(ctx context.Context, firstInput string) error {
	in := newInputReader(s.chat)

	if firstInput != "" {
		s.turn(ctx, firstInput)
	}
	in.request()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-s.rt.ContinuationReady():
			s.continueRound(ctx)
			in.request()

		case line, ok := <-in.lines:
			if !ok {
				s.chat.Goodbye()
				return nil
			}
			in.received()

			switch line {
			case "":
			case "exit", "quit":
				s.chat.Goodbye()
				return nil
			default:
				s.turn(ctx, line)
			}
			in.request()
		}
	}
}

// inputReader reads stdin on its own goroutine, one line per request, so
// the prompt is only shown when the session is ready for input
type inputReader struct {
	chat interface {
		AwaitClientAnswer() (string, error)
	}
	ready   chan struct{}
	lines   chan string
	waiting bool
}

func newInputReader(chat interface{ AwaitClientAnswer() (string, error) }) *inputReader {
	r := &inputReader{
		chat:  chat,
		ready: make(chan struct{}, 1),
		lines: make(chan string),
	}
	go r.read()
	return r
}

func (r *inputReader) read() {
	defer close(r.lines)
	for range r.ready {
		line, err := r.chat.AwaitClientAnswer()
		if err != nil {
			return
		}
		r.lines <- line
	}
}

// request shows the prompt unless it is already showing
func (r *inputReader) request() {
	if r.waiting {
		return
	}
	r.waiting = true
	r.ready <- struct{}{}
}

func (r *inputReader) received() {
	r.waiting = false
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", ".", "Path to config file or directory")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Show agent progress as it streams")
	runCmd.Flags().StringVarP(&runTask, "task", "t", "", "First message to send before reading input")
}
