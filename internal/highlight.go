package internal

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
)

// FormatPayload renders a structured payload as indented JSON. With color
// set the output is highlighted with ANSI escapes; on any highlighting
// failure the plain text is returned.
func FormatPayload(payload any, color bool) string {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	if !color {
		return string(data)
	}
	return highlightCode(string(data), "json")
}

func highlightCode(code, language string) string {
	var buffer strings.Builder
	if err := quick.Highlight(&buffer, code, language, "terminal256", "monokai"); err != nil {
		return code
	}
	return buffer.String()
}
