package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// TransferMarker prefixes the function names the backend uses for agent
// hand-offs.
const TransferMarker = "transfer_to_"

// FactKind identifies the canonical shape of a normalized fact
type FactKind int

const (
	FactText FactKind = iota
	FactTransferStart
	FactTransferComplete
	FactStructuredResult
)

func (k FactKind) String() string {
	switch k {
	case FactText:
		return "text"
	case FactTransferStart:
		return "transfer_start"
	case FactTransferComplete:
		return "transfer_complete"
	case FactStructuredResult:
		return "structured_result"
	default:
		return fmt.Sprintf("fact(%d)", int(k))
	}
}

// Fact is one canonical unit extracted from a response record. Payload
// is nil when no structured data could be recovered.
type Fact struct {
	Kind      FactKind
	Author    string
	Timestamp time.Time
	Content   string // Text only
	Agent     string // transfer target (start) or source (complete)
	Tool      string // function name for TransferStart
	Payload   any
}

var (
	markdownOnce   sync.Once
	markdownParser goldmark.Markdown
)

func getMarkdownParser() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownParser = goldmark.New()
	})
	return markdownParser
}

// Normalizer converts backend response records into facts. It holds no
// state and is safe for concurrent use.
type Normalizer struct{}

// NewNormalizer creates a new Normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize classifies every part of one record, in part order. Malformed
// JSON never fails the record; it only drops the structured payload.
func (n *Normalizer) Normalize(record ResponseRecord) []Fact {
	parts := record.Parts()
	if len(parts) == 0 {
		return nil
	}

	facts := make([]Fact, 0, len(parts))
	ts := record.Time()
	for _, part := range parts {
		fact, ok := n.normalizePart(part)
		if !ok {
			continue
		}
		fact.Author = record.Author
		fact.Timestamp = ts
		facts = append(facts, fact)
	}
	return facts
}

// NormalizeAll normalizes records in stream order.
func (n *Normalizer) NormalizeAll(records []ResponseRecord) []Fact {
	var facts []Fact
	for _, record := range records {
		facts = append(facts, n.Normalize(record)...)
	}
	return facts
}

func (n *Normalizer) normalizePart(part Part) (Fact, bool) {
	if part.Text != "" {
		if block, found := extractJSONBlock(part.Text); found {
			return Fact{Kind: FactText, Content: part.Text, Payload: parseJSONTree(block)}, true
		}
	}

	if call := part.FunctionCall; call != nil && call.Name != "" {
		target := call.Name
		if name, ok := call.Args["agent_name"].(string); ok && name != "" {
			target = name
		}
		return Fact{Kind: FactTransferStart, Agent: target, Tool: call.Name}, true
	}

	if resp := part.FunctionResponse; resp != nil {
		if strings.HasPrefix(resp.Name, TransferMarker) {
			return Fact{Kind: FactTransferComplete, Agent: strings.TrimPrefix(resp.Name, TransferMarker)}, true
		}
		if result, ok := resp.ResultString(); ok && strings.HasPrefix(result, "[") {
			return Fact{Kind: FactStructuredResult, Payload: parseJSONTree(result)}, true
		}
		if resp.Response != nil {
			return Fact{Kind: FactStructuredResult, Payload: resp.Response}, true
		}
		return Fact{Kind: FactStructuredResult, Payload: part.Tree()}, true
	}

	if part.Text != "" {
		return Fact{Kind: FactText, Content: part.Text}, true
	}

	if part.IsEmpty() {
		return Fact{}, false
	}
	return Fact{Kind: FactStructuredResult, Payload: part.Tree()}, true
}

// extractJSONBlock returns the body of the first fenced code block whose
// info string is "json".
func extractJSONBlock(input string) (string, bool) {
	if !strings.Contains(input, "```") && !strings.Contains(input, "~~~") {
		return "", false
	}

	source := []byte(input)
	document := getMarkdownParser().Parser().Parse(text.NewReader(source))

	var body bytes.Buffer
	found := false
	_ = ast.Walk(document, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fenced, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		if !strings.EqualFold(string(fenced.Language(source)), "json") {
			return ast.WalkSkipChildren, nil
		}
		lines := fenced.Lines()
		for i := 0; i < lines.Len(); i++ {
			segment := lines.At(i)
			body.Write(segment.Value(source))
		}
		found = true
		return ast.WalkStop, nil
	})
	return body.String(), found
}

// parseJSONTree decodes s into a generic tree, or nil if it is not JSON.
func parseJSONTree(s string) any {
	var tree any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &tree); err != nil {
		LogDebug("discarding malformed structured payload: %v", err)
		return nil
	}
	return tree
}
