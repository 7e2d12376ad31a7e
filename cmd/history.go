package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"conductor/config"
	"conductor/orchestrator"
	"conductor/store"
)

var (
	historyConfigPath string
	historyLimit      int
	historyEvents     bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect stored sessions",
	Long:  `Browse sessions, delegated agents and composed rounds kept by the configured storage backend.`,
}

var historySessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent sessions",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		stores := openHistoryStores(ctx)
		defer stores.Close()

		sessions, err := stores.Sessions.ListSessions(ctx, historyLimit)
		if err != nil {
			fail("%v", err)
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions recorded.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPROFILE\tSTATUS\tSTARTED\tDURATION")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				s.ID, s.Profile, s.Status, s.StartedAt.Local().Format(time.DateTime), sessionDuration(s))
		}
		w.Flush()
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session with its agents and rounds",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		stores := openHistoryStores(ctx)
		defer stores.Close()

		info, err := stores.Sessions.GetSession(ctx, args[0])
		if err != nil {
			fail("session '%s': %v", args[0], err)
		}

		fmt.Printf("Session %s\n", info.ID)
		fmt.Printf("  Profile: %s", info.Profile)
		if info.Model != "" {
			fmt.Printf(" (%s)", info.Model)
		}
		fmt.Printf("\n  Status:  %s\n", info.Status)
		if info.Error != "" {
			fmt.Printf("  Error:   %s\n", info.Error)
		}
		fmt.Printf("  Started: %s\n", info.StartedAt.Local().Format(time.DateTime))
		if info.FinishedAt != nil {
			fmt.Printf("  Ran for: %s\n", sessionDuration(*info))
		}

		messages, err := stores.Sessions.GetMessages(ctx, info.ID)
		if err != nil {
			fail("%v", err)
		}
		if len(messages) > 0 {
			fmt.Println("\nMessages:")
			for _, m := range messages {
				if m.Role == "continuation" {
					continue
				}
				fmt.Printf("  [%s] %s\n", m.Role, firstLine(m.Content, 100))
			}
		}

		agents, err := stores.Sessions.ListAgents(ctx, info.ID)
		if err != nil {
			fail("%v", err)
		}
		if len(agents) > 0 {
			fmt.Println("\nAgents:")
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, a := range agents {
				fmt.Fprintf(w, "  %s\t%s\t%s\tround %d\t%s\n",
					orchestrator.ShortID(a.AgentID), a.DisplayName, a.Status, a.Round, agentDetail(a))
			}
			w.Flush()
		}

		runs, err := stores.Runs.ListRuns(ctx, info.ID)
		if err != nil {
			fail("%v", err)
		}
		renderer, _ := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		for _, run := range runs {
			fmt.Println(renderMarkdown(renderer, run.EndResults.Markdown()))
			fmt.Println(renderMarkdown(renderer, run.Continuation.Markdown))
		}

		if historyEvents {
			events, err := stores.Events.ListEvents(ctx, info.ID, historyLimit, 0)
			if err != nil {
				fail("%v", err)
			}
			fmt.Println("\nEvents:")
			for _, e := range events {
				fmt.Printf("  %s %-22s %s\n", e.At.Local().Format(time.TimeOnly), e.Kind, firstLine(e.Body, 80))
			}
		}
	},
}

func openHistoryStores(ctx context.Context) *store.Bundle {
	cfg, err := config.LoadAndValidate(historyConfigPath)
	if err != nil {
		fail("%v", err)
	}
	if cfg.Storage == nil {
		fail("no storage block in config; sessions are only kept in memory")
	}
	stores, err := store.NewBundle(ctx, cfg.Storage)
	if err != nil {
		fail("opening store: %v", err)
	}
	return stores
}

func sessionDuration(s store.SessionInfo) string {
	if s.FinishedAt == nil {
		return "-"
	}
	return s.FinishedAt.Sub(s.StartedAt).Round(time.Second).String()
}

func agentDetail(a orchestrator.AgentRecord) string {
	if a.Detail != "" {
		return firstLine(a.Detail, 60)
	}
	return firstLine(a.LatestProgress, 60)
}

func firstLine(s string, max int) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}

func renderMarkdown(r *glamour.TermRenderer, markdown string) string {
	if r == nil {
		return markdown
	}
	out, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historySessionsCmd)
	historyCmd.AddCommand(historyShowCmd)

	historyCmd.PersistentFlags().StringVarP(&historyConfigPath, "config", "c", ".", "Path to config file or directory")
	historyCmd.PersistentFlags().IntVar(&historyLimit, "limit", 20, "Maximum number of sessions or events to list")
	historyShowCmd.Flags().BoolVar(&historyEvents, "events", false, "Also list stored events")
}
