package cmd

import (
	"fmt"

	"conductor/agent"
	"conductor/config"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify that the configuration is valid",
	Long:  `Verify parses and validates the HCL configuration files. Path can be a file or directory.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadAndValidate(args[0])
		if err != nil {
			fail("%v", err)
		}

		var warnings []string

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Found %d model(s)\n", len(cfg.Models))
		for _, m := range cfg.Models {
			fmt.Printf("  - %s (provider: %s, models: %v)\n", m.Name, m.Provider, m.AllowedModels)
			if m.APIKey == "" {
				warnings = append(warnings, fmt.Sprintf("model '%s' has no api_key", m.Name))
			}
		}

		fmt.Printf("Found %d variable(s)\n", len(cfg.Variables))
		for _, v := range cfg.Variables {
			resolved, _ := config.ResolveVariableValue(&v)
			if resolved == "" {
				warnings = append(warnings, fmt.Sprintf("variable '%s' has no default and no value set", v.Name))
			}
			if v.Secret {
				if resolved != "" {
					fmt.Printf("  - %s (secret, set)\n", v.Name)
				} else {
					fmt.Printf("  - %s (secret, not set)\n", v.Name)
				}
			} else {
				fmt.Printf("  - %s = %q\n", v.Name, resolved)
			}
		}

		fmt.Printf("Found %d profile(s)\n", len(cfg.Profiles))
		for _, p := range cfg.Profiles {
			if p.UsesPlugin() {
				fmt.Printf("  - %s (plugin: %s)\n", p.Name, p.Plugin)
				continue
			}
			toolInfo := "no tools"
			if len(p.Tools) > 0 {
				toolInfo = fmt.Sprintf("tools: %v", p.Tools)
			}
			fmt.Printf("  - %s (model: %s, context: %d, max steps: %d, %s)\n",
				p.Name, p.Model, p.EffectiveContextWindow(cfg.Models), p.GetMaxSteps(), toolInfo)
			if _, err := agent.BuildTools(p.Tools); err != nil {
				warnings = append(warnings, fmt.Sprintf("profile '%s': %v", p.Name, err))
			}
		}

		if o := cfg.Orchestrator; o != nil {
			initial, max, ceiling, _ := o.WatchPolicy()
			grace, _ := o.GetCancelGrace()
			fmt.Printf("Orchestrator\n")
			fmt.Printf("  - primary: %s\n", o.PrimaryProfile)
			fmt.Printf("  - agents: %v (default: %s)\n", o.AgentProfiles, o.AgentProfiles[0])
			fmt.Printf("  - summarize at %.0f%% of the smallest context window (%s summarizer)\n", o.SummarizeAt*100, o.Summarizer)
			fmt.Printf("  - output limit: %d tokens, cancel grace: %s\n", o.OutputTokenLimit, grace)
			fmt.Printf("  - watch: %s doubling to %s, ceiling %s\n", initial, max, ceiling)
			if p := cfg.GetProfile(o.PrimaryProfile); p != nil && p.UsesPlugin() {
				warnings = append(warnings, fmt.Sprintf("primary profile '%s' is a plugin profile; the primary conversation needs a model", p.Name))
			}
		} else {
			warnings = append(warnings, "no orchestrator block; 'conductor run' requires one")
		}

		if s := cfg.Storage; s != nil {
			switch s.Backend {
			case config.BackendSQLite:
				fmt.Printf("Storage: sqlite (%s)\n", s.Path)
			default:
				fmt.Printf("Storage: %s\n", s.Backend)
			}
		} else {
			fmt.Printf("Storage: memory (history is not kept)\n")
		}

		if r := cfg.Relay; r != nil {
			fmt.Printf("Relay: %s (instance: %s, auto reconnect: %v)\n", r.URL, r.InstanceName, r.AutoReconnect)
		}

		if len(warnings) > 0 {
			fmt.Printf("\nWarnings:\n")
			for _, w := range warnings {
				fmt.Printf("  - %s\n", w)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
