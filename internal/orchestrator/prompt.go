package orchestrator

import "strings"

// toolUsePreamble is the fixed header every assembled system prompt opens
// with: it states the contract, it never describes a specific tool.
const toolUsePreamble = "You have access to tools. When a tool can accomplish part of the " +
	"task, invoke it directly through a tool call — never describe what a tool " +
	"call would do in prose instead of making it."

// buildSystemPrompt assembles the sections the contract names, each under
// a labelled header, in the contract's fixed order, skipping empty
// sections so observers still get a clean provenance trail.
func buildSystemPrompt(agentPrompt string, req Request) string {
	var b strings.Builder
	section := func(title, body string) {
		body = strings.TrimSpace(body)
		if body == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## ")
		b.WriteString(title)
		b.WriteString("\n")
		b.WriteString(body)
	}

	section("Tool use", toolUsePreamble)
	section("Project context", req.ProjectContext)
	if len(req.SkillSummaries) > 0 {
		section("Available skills", strings.Join(req.SkillSummaries, "\n"))
	}
	section("Agent instructions", agentPrompt)
	section("Additional instructions", req.ExtraInstructions)

	return b.String()
}
