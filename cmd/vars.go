package cmd

import (
	"fmt"
	"os"
	"strings"

	"conductor/config"

	"github.com/spf13/cobra"
)

var varsCmd = &cobra.Command{
	Use:   "vars",
	Short: "Manage variables",
	Long:  `Manage variables stored in ~/.conductor/vars.txt (override with ` + config.VarsFileEnv + `)`,
}

var varsListConfig string

var varsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all variables",
	Long: `List the variables in the vars file. With --config, variables declared in
the configuration are listed too, with where their value comes from.`,
	Run: func(cmd *cobra.Command, args []string) {
		vars, err := config.LoadVarsFromFile()
		if err != nil {
			fail("%v", err)
		}
		names, err := config.ListVars()
		if err != nil {
			fail("%v", err)
		}

		secret := make(map[string]bool)
		var declared []config.Variable
		if varsListConfig != "" {
			cfg, err := config.Load(varsListConfig)
			if err != nil {
				fail("%v", err)
			}
			declared = cfg.Variables
			for _, v := range declared {
				secret[v.Name] = v.Secret
			}
		}

		if len(names) == 0 && len(declared) == 0 {
			fmt.Println("No variables set")
			return
		}
		for _, name := range names {
			fmt.Printf("%s=%s\n", name, displayValue(name, vars[name], secret[name]))
		}
		for _, v := range declared {
			if _, inFile := vars[v.Name]; inFile {
				continue
			}
			value, source := "", "unset"
			if env, ok := os.LookupEnv(v.EnvName()); ok {
				value, source = env, v.EnvName()
			} else if v.Default != "" {
				value, source = v.Default, "default"
			}
			fmt.Printf("%s=%s (%s)\n", v.Name, displayValue(v.Name, value, v.Secret), source)
		}
	},
}

func displayValue(name, value string, secret bool) string {
	if value != "" && (secret || isSecretName(name)) {
		return "********"
	}
	return value
}

func isSecretName(name string) bool {
	for _, suffix := range []string{"_key", "_token", "_secret", "_password", "_dsn"} {
		if strings.HasSuffix(strings.ToLower(name), suffix) {
			return true
		}
	}
	return false
}

var varsGetCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Get a variable value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		value, err := config.GetVar(args[0])
		if err != nil {
			fail("%v", err)
		}
		fmt.Println(value)
	},
}

var varsSetCmd = &cobra.Command{
	Use:   "set [name] [value]",
	Short: "Set a variable value",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := config.SetVar(args[0], args[1]); err != nil {
			fail("%v", err)
		}
		fmt.Printf("Variable '%s' set\n", args[0])
	},
}

var varsDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a variable",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := config.DeleteVar(args[0]); err != nil {
			fail("%v", err)
		}
		fmt.Printf("Variable '%s' deleted\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(varsCmd)
	varsCmd.AddCommand(varsListCmd)
	varsCmd.AddCommand(varsGetCmd)
	varsCmd.AddCommand(varsSetCmd)
	varsCmd.AddCommand(varsDeleteCmd)

	varsListCmd.Flags().StringVarP(&varsListConfig, "config", "c", "", "Also list variables declared in this config")
}
