package scrape

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const systemPrompt = `You are a data extraction engine. You receive the text of one or more web pages and a JSON Schema. Your output must be ONLY a single valid JSON value that conforms to the schema. Do not include any other text, prose, or markdown.

Rules:
- Use only facts stated in the pages. Never invent values.
- When a required value is not present in any page, use null if the schema allows it, otherwise the closest faithful value from the pages.
- Copy numbers without units or thousands separators unless the schema asks for a string.
- When pages disagree, prefer the most recent or most specific source.`

// BuildPrompt returns the system and user prompts for one extraction call.
func BuildPrompt(query string, schema json.RawMessage, pages []Page) (system, user string) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[Request]\n%s\n\n", strings.TrimSpace(query))
	if len(schema) > 0 {
		fmt.Fprintf(&sb, "[Schema]\n%s\n", schema)
	}
	for i, p := range pages {
		fmt.Fprintf(&sb, "\n[Source %d] %s\n", i+1, p.URL)
		if p.Title != "" {
			fmt.Fprintf(&sb, "Title: %s\n", p.Title)
		}
		sb.WriteString(truncate(p.Markdown, maxPageChars))
		sb.WriteString("\n")
	}
	return systemPrompt, sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "\n[truncated]"
}
