package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jackc/pgx/v5/pgxpool"

	"conductor/config"
	"conductor/orchestrator"
	"conductor/store"
)

// postgresDSNEnv enables the postgres backend tests when set
const postgresDSNEnv = "CONDUCTOR_TEST_POSTGRES_DSN"

var _ = Describe("Bundle", func() {
	runBundleTests := func(newBundle func() (*store.Bundle, func())) {
		var (
			ctx     context.Context
			bundle  *store.Bundle
			cleanup func()
		)

		BeforeEach(func() {
			ctx = context.Background()
			bundle, cleanup = newBundle()
		})

		AfterEach(func() {
			cleanup()
		})

		Describe("sessions", func() {
			It("creates and completes a session", func() {
				id, err := bundle.Sessions.CreateSession(ctx, "primary", "claude-sonnet")
				Expect(err).NotTo(HaveOccurred())

				info, err := bundle.Sessions.GetSession(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(info.Profile).To(Equal("primary"))
				Expect(info.Model).To(Equal("claude-sonnet"))
				Expect(info.Status).To(Equal(store.SessionRunning))
				Expect(info.FinishedAt).To(BeNil())

				Expect(bundle.Sessions.CompleteSession(ctx, id, errors.New("provider went away"))).To(Succeed())

				info, err = bundle.Sessions.GetSession(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(info.Status).To(Equal(store.SessionFailed))
				Expect(info.Error).To(Equal("provider went away"))
				Expect(info.FinishedAt).NotTo(BeNil())
			})

			It("returns ErrNotFound for unknown sessions", func() {
				_, err := bundle.Sessions.GetSession(ctx, "missing")
				Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())

				err = bundle.Sessions.CompleteSession(ctx, "missing", nil)
				Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
			})

			It("lists sessions newest first and honors the limit", func() {
				var ids []string
				for i := 0; i < 3; i++ {
					id, err := bundle.Sessions.CreateSession(ctx, "primary", "")
					Expect(err).NotTo(HaveOccurred())
					ids = append(ids, id)
					time.Sleep(5 * time.Millisecond)
				}

				all, err := bundle.Sessions.ListSessions(ctx, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(all).To(HaveLen(3))
				Expect(all[0].ID).To(Equal(ids[2]))
				Expect(all[2].ID).To(Equal(ids[0]))

				limited, err := bundle.Sessions.ListSessions(ctx, 2)
				Expect(err).NotTo(HaveOccurred())
				Expect(limited).To(HaveLen(2))
				Expect(limited[0].ID).To(Equal(ids[2]))
			})

			It("keeps messages in order", func() {
				id, err := bundle.Sessions.CreateSession(ctx, "primary", "")
				Expect(err).NotTo(HaveOccurred())

				Expect(bundle.Sessions.AppendMessage(ctx, id, "user", "split the migration")).To(Succeed())
				Expect(bundle.Sessions.AppendMessage(ctx, id, "assistant", "spawning two agents")).To(Succeed())

				msgs, err := bundle.Sessions.GetMessages(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(msgs).To(HaveLen(2))
				Expect(msgs[0].Role).To(Equal("user"))
				Expect(msgs[1].Content).To(Equal("spawning two agents"))
			})

			It("upserts agents and lists them in registration order", func() {
				id, err := bundle.Sessions.CreateSession(ctx, "primary", "")
				Expect(err).NotTo(HaveOccurred())

				a := orchestrator.AgentRecord{AgentID: "agent-a", DisplayName: "A", Status: orchestrator.StatusRunning, Checklist: []string{"schema"}}
				b := orchestrator.AgentRecord{AgentID: "agent-b", DisplayName: "B", Status: orchestrator.StatusRunning}
				Expect(bundle.Sessions.UpsertAgent(ctx, id, a)).To(Succeed())
				Expect(bundle.Sessions.UpsertAgent(ctx, id, b)).To(Succeed())

				a.Status = orchestrator.StatusCompleted
				a.Metrics.ToolCalls = 4
				Expect(bundle.Sessions.UpsertAgent(ctx, id, a)).To(Succeed())

				agents, err := bundle.Sessions.ListAgents(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(agents).To(HaveLen(2))
				Expect(agents[0].AgentID).To(Equal("agent-a"))
				Expect(agents[0].Status).To(Equal(orchestrator.StatusCompleted))
				Expect(agents[0].Metrics.ToolCalls).To(Equal(4))
				Expect(agents[0].Checklist).To(Equal([]string{"schema"}))
				Expect(agents[1].AgentID).To(Equal("agent-b"))
			})
		})

		Describe("runs", func() {
			It("round-trips run records ordered by round", func() {
				composed := time.Now()
				for _, round := range []int{2, 1} {
					run := orchestrator.RunRecord{
						SessionID: "sess-1",
						Round:     round,
						EndResults: orchestrator.EndResults{
							Round: round,
							Sections: []orchestrator.ResultSection{{
								AgentID:     "agent-a",
								DisplayName: "A",
								Status:      orchestrator.StatusCompleted,
								Badge:       orchestrator.BadgeSuccess,
								Body:        "done",
							}},
						},
						Continuation: orchestrator.Continuation{Round: round, Markdown: "next steps"},
						ComposedAt:   composed,
					}
					Expect(bundle.Runs.SaveRun(ctx, run)).To(Succeed())
				}

				runs, err := bundle.Runs.ListRuns(ctx, "sess-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(runs).To(HaveLen(2))
				Expect(runs[0].Round).To(Equal(1))
				Expect(runs[1].Round).To(Equal(2))
				Expect(runs[0].EndResults.Sections[0].Badge).To(Equal(orchestrator.BadgeSuccess))
				Expect(runs[0].Continuation.Markdown).To(Equal("next steps"))
				Expect(runs[0].ComposedAt).To(BeTemporally("~", composed, time.Millisecond))
			})

			It("replaces a round saved twice", func() {
				run := orchestrator.RunRecord{SessionID: "sess-1", Round: 1, ComposedAt: time.Now()}
				Expect(bundle.Runs.SaveRun(ctx, run)).To(Succeed())
				run.Continuation.Markdown = "second"
				Expect(bundle.Runs.SaveRun(ctx, run)).To(Succeed())

				runs, err := bundle.Runs.ListRuns(ctx, "sess-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(runs).To(HaveLen(1))
				Expect(runs[0].Continuation.Markdown).To(Equal("second"))
			})
		})

		Describe("archive", func() {
			It("returns the latest transcript for an agent", func() {
				ref, err := bundle.Archive.PutTranscript(ctx, "agent-a", "0123456789abcdef0123", "first log")
				Expect(err).NotTo(HaveOccurred())
				Expect(ref).To(Equal("transcript/agent-a/0123456789abcdef"))

				_, err = bundle.Archive.PutTranscript(ctx, "agent-a", "fedcba", "second log")
				Expect(err).NotTo(HaveOccurred())

				got, err := bundle.Archive.GetTranscript(ctx, "agent-a")
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal("second log"))
			})

			It("returns ErrNotFound for agents without transcripts", func() {
				_, err := bundle.Archive.GetTranscript(ctx, "agent-z")
				Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
			})
		})

		Describe("summaries", func() {
			It("misses without error", func() {
				sum, err := bundle.Summaries.GetSummary(ctx, "nope")
				Expect(err).NotTo(HaveOccurred())
				Expect(sum).To(BeNil())
			})

			It("caches by checksum", func() {
				Expect(bundle.Summaries.PutSummary(ctx, orchestrator.Summary{
					AgentID:    "agent-a",
					Body:       "## Findings\n- two call sites",
					Checksum:   "abc",
					ArchiveRef: "transcript/agent-a/abc",
					CreatedAt:  time.Now(),
				})).To(Succeed())

				sum, err := bundle.Summaries.GetSummary(ctx, "abc")
				Expect(err).NotTo(HaveOccurred())
				Expect(sum).NotTo(BeNil())
				Expect(sum.AgentID).To(Equal("agent-a"))
				Expect(sum.Body).To(ContainSubstring("two call sites"))
				Expect(sum.ArchiveRef).To(Equal("transcript/agent-a/abc"))
			})
		})

		Describe("events", func() {
			It("pages events in insertion order", func() {
				for i, kind := range []orchestrator.EventKind{
					orchestrator.EventAgentSpawned,
					orchestrator.EventAgentProgress,
					orchestrator.EventAgentCompleted,
				} {
					Expect(bundle.Events.StoreEvent(ctx, orchestrator.Event{
						Kind:      kind,
						SessionID: "sess-1",
						Round:     1,
						Body:      string(kind),
						Metadata:  orchestrator.EventMetadata{AgentID: "agent-a", ContentType: orchestrator.ContentTypeMarkdown},
						At:        time.Now().Add(time.Duration(i) * time.Millisecond),
					})).To(Succeed())
				}
				Expect(bundle.Events.StoreEvent(ctx, orchestrator.Event{Kind: orchestrator.EventAgentSpawned, SessionID: "sess-2", At: time.Now()})).To(Succeed())

				all, err := bundle.Events.ListEvents(ctx, "sess-1", 0, 0)
				Expect(err).NotTo(HaveOccurred())
				Expect(all).To(HaveLen(3))
				Expect(all[0].Kind).To(Equal(orchestrator.EventAgentSpawned))
				Expect(all[2].Metadata.AgentID).To(Equal("agent-a"))

				page, err := bundle.Events.ListEvents(ctx, "sess-1", 1, 1)
				Expect(err).NotTo(HaveOccurred())
				Expect(page).To(HaveLen(1))
				Expect(page[0].Kind).To(Equal(orchestrator.EventAgentProgress))
			})
		})
	}

	Context("memory", func() {
		runBundleTests(func() (*store.Bundle, func()) {
			b := store.NewMemoryBundle()
			return b, func() { b.Close() }
		})
	})

	Context("sqlite", func() {
		runBundleTests(func() (*store.Bundle, func()) {
			dir, err := os.MkdirTemp("", "conductor-store-*")
			Expect(err).NotTo(HaveOccurred())
			b, err := store.NewSQLiteBundle(filepath.Join(dir, "store.db"))
			Expect(err).NotTo(HaveOccurred())
			return b, func() {
				b.Close()
				os.RemoveAll(dir)
			}
		})
	})

	Context("postgres", func() {
		runBundleTests(func() (*store.Bundle, func()) {
			dsn := os.Getenv(postgresDSNEnv)
			if dsn == "" {
				Skip(postgresDSNEnv + " not set")
			}
			b, err := store.NewPostgresBundle(context.Background(), dsn)
			Expect(err).NotTo(HaveOccurred())
			return b, func() {
				b.Close()
				truncatePostgres(dsn)
			}
		})
	})
})

func truncatePostgres(dsn string) {
	pool, err := pgxpool.New(context.Background(), dsn)
	Expect(err).NotTo(HaveOccurred())
	defer pool.Close()
	_, err = pool.Exec(context.Background(),
		`TRUNCATE sessions, session_messages, agents, runs, transcripts, summaries, events RESTART IDENTITY`)
	Expect(err).NotTo(HaveOccurred())
}

var _ = Describe("NewBundle", func() {
	It("defaults to memory without a storage block", func() {
		b, err := store.NewBundle(context.Background(), nil)
		Expect(err).NotTo(HaveOccurred())
		defer b.Close()
		_, ok := b.Sessions.(*store.MemorySessionStore)
		Expect(ok).To(BeTrue())
	})

	It("creates the sqlite directory", func() {
		dir, err := os.MkdirTemp("", "conductor-factory-*")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(dir)

		path := filepath.Join(dir, "nested", "store.db")
		b, err := store.NewBundle(context.Background(), &config.StorageConfig{Backend: config.BackendSQLite, Path: path})
		Expect(err).NotTo(HaveOccurred())
		defer b.Close()
		Expect(path).To(BeAnExistingFile())
	})

	It("rejects unknown backends", func() {
		_, err := store.NewBundle(context.Background(), &config.StorageConfig{Backend: "redis"})
		Expect(err).To(MatchError(ContainSubstring("unknown storage backend")))
	})
})
