package prompts

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"conductor/aitools"
	"conductor/orchestrator"
)

//go:embed primary.md
var primaryPromptTemplate string

//go:embed child.md
var childPromptTemplate string

// GetPrimaryPrompt returns the primary system prompt with tools and agent
// profiles injected
func GetPrimaryPrompt(tools map[string]aitools.Tool, profiles []string) string {
	prompt := primaryPromptTemplate
	prompt = strings.Replace(prompt, "{{TOOLS}}", formatTools(tools), 1)

	profileList := "none configured"
	if len(profiles) > 0 {
		quoted := make([]string, len(profiles))
		for i, p := range profiles {
			quoted[i] = "`" + p + "`"
		}
		profileList = strings.Join(quoted, ", ") + " (the first is the default)"
	}
	prompt = strings.Replace(prompt, "{{PROFILES}}", profileList, 1)
	return prompt
}

// GetChildPrompt returns the system prompt of a delegated agent
func GetChildPrompt(tools map[string]aitools.Tool, spec orchestrator.TaskSpec) string {
	purpose := ""
	if spec.Purpose != "" {
		purpose = "**Purpose:** " + spec.Purpose
	}

	r := strings.NewReplacer(
		"{{NAME}}", spec.DisplayName,
		"{{PURPOSE}}", purpose,
		"{{PROMPT}}", spec.Prompt,
		"{{CHECKLIST}}", formatChecklist(spec.Checklist),
		"{{TOOLS}}", formatTools(tools),
	)
	return r.Replace(childPromptTemplate)
}

func formatChecklist(items []string) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Checklist\n\n")
	sb.WriteString("Your final result must contain this list as a markdown task list, with `[x]` for every item you completed:\n\n")
	for _, item := range items {
		sb.WriteString(fmt.Sprintf("- [ ] %s\n", item))
	}
	return sb.String()
}

// formatTools formats the tools map into a readable string for the prompt
func formatTools(tools map[string]aitools.Tool) string {
	if len(tools) == 0 {
		return "NO TOOLS AVAILABLE"
	}

	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		tool := tools[name]
		sb.WriteString(fmt.Sprintf("### %s\n\n", name))
		sb.WriteString(fmt.Sprintf("%s\n\n", tool.ToolDescription()))
		sb.WriteString(fmt.Sprintf("**Input Schema:**\n```json\n%s\n```\n\n", tool.ToolPayloadSchema().String()))
	}
	return sb.String()
}
