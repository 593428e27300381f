package schemagen

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a JSON Schema designer for a web data extraction service. The user describes, in plain language, the data they want pulled out of web pages. Your output must be ONLY a single valid JSON object: a JSON Schema (draft 2020-12) describing that data. Do not include any other text, prose, or markdown.

Rules:
- The root schema must have "type": "object".
- Give every property a "type" and a short "description".
- Use "array" with an "items" schema for repeated records (lists of products, people, prices).
- Prefer "number" for prices and quantities, "string" for dates, and "boolean" for flags.
- List the properties a useful answer cannot do without in "required".
- Keep property names in snake_case.`

// BuildPrompt returns the system and user prompts for a schema request.
func BuildPrompt(query string) (system, user string) {
	var sb strings.Builder
	sb.WriteString("Design a JSON Schema for this extraction request:\n\n")
	fmt.Fprintf(&sb, "%s\n", strings.TrimSpace(query))
	return systemPrompt, sb.String()
}
