package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"conductor/orchestrator"
	"conductor/plugin"
)

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Plugin engine commands",
	Long:  `Commands for building and testing plugin agent engines.`,
}

var pluginRunCmd = &cobra.Command{
	Use:   "run <plugin-path>",
	Short: "Run one task on a plugin engine",
	Long: `Launch a single agent task on a plugin engine and print its progress
and outcome. Useful for testing a plugin before referencing it from a profile.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		prompt, _ := cmd.Flags().GetString("prompt")
		checklist, _ := cmd.Flags().GetStringSlice("checklist")

		spec := orchestrator.TaskSpec{
			DisplayName: name,
			Prompt:      prompt,
			Checklist:   checklist,
		}
		if err := spec.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		manager := plugin.NewManager(newLogger())
		defer manager.Close()

		engine, err := manager.Engine(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to load plugin: %w", err)
		}

		conv, err := engine.Launch(ctx, orchestrator.LaunchRequest{
			AgentID: uuid.New().String(),
			Spec:    spec,
			Progress: func(message string) {
				fmt.Printf("  │ %s\n", message)
			},
			Usage: func(used, limit int) {
				if limit > 0 {
					fmt.Printf("  │ context %d/%d\n", used, limit)
				}
			},
		})
		if err != nil {
			return err
		}

		select {
		case <-conv.Done():
		case <-ctx.Done():
			conv.Cancel()
			<-conv.Done()
		}

		out := conv.Outcome()
		fmt.Printf("Status: %s\n", out.Status)
		if out.Error != "" {
			fmt.Printf("Error: %s\n", out.Error)
		}
		if out.Output != "" {
			fmt.Printf("\n%s\n", out.Output)
		}
		if len(checklist) > 0 {
			report := orchestrator.EvaluateChecklist(checklist, out.Output)
			fmt.Printf("\nChecklist: %d/%d\n", report.Completed, report.Total)
			for _, item := range report.Incomplete {
				fmt.Printf("  - [ ] %s\n", item)
			}
		}
		return nil
	},
}

var pluginBuildCmd = &cobra.Command{
	Use:   "build <source-path> <output-path>",
	Short: "Build a plugin engine from source",
	Long:  `Build a plugin engine from a Go source directory with go build.`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		absSourcePath, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve source path: %w", err)
		}
		if _, err := os.Stat(absSourcePath); os.IsNotExist(err) {
			return fmt.Errorf("source path does not exist: %s", absSourcePath)
		}

		outputPath, err := filepath.Abs(args[1])
		if err != nil {
			return fmt.Errorf("failed to resolve output path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		fmt.Printf("Building plugin...\n")
		fmt.Printf("  Source: %s\n", absSourcePath)
		fmt.Printf("  Output: %s\n", outputPath)

		buildCmd := exec.Command("go", "build", "-o", outputPath, absSourcePath)
		buildCmd.Stdout = os.Stdout
		buildCmd.Stderr = os.Stderr

		if err := buildCmd.Run(); err != nil {
			return fmt.Errorf("build failed: %w", err)
		}

		fmt.Printf("Plugin built at %s\n", outputPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pluginCmd)
	pluginCmd.AddCommand(pluginRunCmd)
	pluginCmd.AddCommand(pluginBuildCmd)

	pluginRunCmd.Flags().StringP("name", "n", "plugin test", "Display name of the task")
	pluginRunCmd.Flags().StringP("prompt", "p", "", "Task prompt")
	pluginRunCmd.Flags().StringSliceP("checklist", "l", nil, "Checklist items (repeatable)")
	_ = pluginRunCmd.MarkFlagRequired("prompt")
}
