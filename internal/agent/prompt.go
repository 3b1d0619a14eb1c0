package agent

import (
	"fmt"
	"strings"
)

func (o *Orchestrator) systemPrompt(jobName string) string {
	var sb strings.Builder
	sb.WriteString("You are a software assistant with access to the user's indexed codebase")
	if o.jenkins != nil {
		sb.WriteString(" and a Jenkins server")
	}
	sb.WriteString(".\n\nAvailable tools:\n")
	for _, t := range o.tools() {
		fmt.Fprintf(&sb, "- %s: %s\n", t, toolDocs[t])
	}
	if o.jenkins != nil {
		fmt.Fprintf(&sb, "\nThe default Jenkins job is %q; omit \"job\" to use it.\n", jobName)
	}
	sb.WriteString(`
To use a tool, reply with only a JSON object: {"tool": "<name>", "arguments": {...}}
Call one tool at a time and wait for its result. When you have enough
information, reply with the final answer in plain text, not JSON.`)
	return sb.String()
}
