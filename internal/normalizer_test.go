package internal

import (
	"reflect"
	"testing"
)

func record(author string, parts ...Part) ResponseRecord {
	return ResponseRecord{Author: author, Timestamp: 1700000000, Content: &Content{Role: "model", Parts: parts}}
}

func TestNormalize_FencedJSON(t *testing.T) {
	n := NewNormalizer()
	text := "```json\n{\"total_error_logs\":5}\n```"

	facts := n.Normalize(record("detector", Part{Text: text}))
	if len(facts) != 1 {
		t.Fatalf("Normalize() returned %d facts, want 1", len(facts))
	}
	f := facts[0]
	if f.Kind != FactText {
		t.Errorf("Kind = %v, want text", f.Kind)
	}
	if f.Content != text {
		t.Errorf("Content = %q, want the full text", f.Content)
	}
	want := map[string]any{"total_error_logs": float64(5)}
	if !reflect.DeepEqual(f.Payload, want) {
		t.Errorf("Payload = %#v, want %#v", f.Payload, want)
	}
	if f.Author != "detector" {
		t.Errorf("Author = %q, want detector", f.Author)
	}
}

func TestNormalize_FencedJSONRoundTrip(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		name        string
		text        string
		wantPayload any
	}{
		{
			name:        "nested object with prose",
			text:        "Analysis done.\n\n```json\n{\"summary\":{\"critical_services_detected\":[\"api\"]},\"ok\":true}\n```\nThanks.",
			wantPayload: map[string]any{"summary": map[string]any{"critical_services_detected": []any{"api"}}, "ok": true},
		},
		{
			name:        "array payload",
			text:        "```json\n[1, 2, 3]\n```",
			wantPayload: []any{float64(1), float64(2), float64(3)},
		},
		{
			name:        "invalid block",
			text:        "```json\n{not valid\n```",
			wantPayload: nil,
		},
		{
			name:        "first json block wins over other languages",
			text:        "```go\nfmt.Println()\n```\n```json\n{\"a\":1}\n```",
			wantPayload: map[string]any{"a": float64(1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facts := n.Normalize(record("planner", Part{Text: tt.text}))
			if len(facts) != 1 {
				t.Fatalf("Normalize() returned %d facts, want 1", len(facts))
			}
			if facts[0].Content != tt.text {
				t.Errorf("Content changed: %q", facts[0].Content)
			}
			if !reflect.DeepEqual(facts[0].Payload, tt.wantPayload) {
				t.Errorf("Payload = %#v, want %#v", facts[0].Payload, tt.wantPayload)
			}
		})
	}
}

func TestNormalize_TransferStart(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		name       string
		call       FunctionCall
		wantTarget string
	}{
		{"agent_name argument", FunctionCall{Name: "transfer_to_fixer", Args: map[string]any{"agent_name": "fixer"}}, "fixer"},
		{"falls back to call name", FunctionCall{Name: "lookup_logs"}, "lookup_logs"},
		{"non-string agent_name ignored", FunctionCall{Name: "transfer_to_agent", Args: map[string]any{"agent_name": 7}}, "transfer_to_agent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := tt.call
			facts := n.Normalize(record("planner", Part{FunctionCall: &call}))
			if len(facts) != 1 || facts[0].Kind != FactTransferStart {
				t.Fatalf("Normalize() = %+v, want one transfer start", facts)
			}
			if facts[0].Agent != tt.wantTarget {
				t.Errorf("Agent = %q, want %q", facts[0].Agent, tt.wantTarget)
			}
			if facts[0].Tool != tt.call.Name {
				t.Errorf("Tool = %q, want %q", facts[0].Tool, tt.call.Name)
			}
		})
	}
}

func TestNormalize_FunctionResponses(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		name        string
		resp        FunctionResponse
		wantKind    FactKind
		wantAgent   string
		wantPayload any
	}{
		{
			name:      "transfer complete",
			resp:      FunctionResponse{Name: "transfer_to_planner"},
			wantKind:  FactTransferComplete,
			wantAgent: "planner",
		},
		{
			name:        "bracketed result parsed",
			resp:        FunctionResponse{Name: "query_logs", Response: map[string]any{"result": `[{"id":1}]`}},
			wantKind:    FactStructuredResult,
			wantPayload: []any{map[string]any{"id": float64(1)}},
		},
		{
			name:        "bracketed result malformed",
			resp:        FunctionResponse{Name: "query_logs", Response: map[string]any{"result": "[oops"}},
			wantKind:    FactStructuredResult,
			wantPayload: nil,
		},
		{
			name:        "other response forwarded",
			resp:        FunctionResponse{Name: "get_status", Response: map[string]any{"status": "ok"}},
			wantKind:    FactStructuredResult,
			wantPayload: map[string]any{"status": "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tt.resp
			facts := n.Normalize(record("fixer", Part{FunctionResponse: &resp}))
			if len(facts) != 1 {
				t.Fatalf("Normalize() returned %d facts, want 1", len(facts))
			}
			if facts[0].Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", facts[0].Kind, tt.wantKind)
			}
			if facts[0].Agent != tt.wantAgent {
				t.Errorf("Agent = %q, want %q", facts[0].Agent, tt.wantAgent)
			}
			if !reflect.DeepEqual(facts[0].Payload, tt.wantPayload) {
				t.Errorf("Payload = %#v, want %#v", facts[0].Payload, tt.wantPayload)
			}
		})
	}
}

func TestNormalize_PlainAndEmptyParts(t *testing.T) {
	n := NewNormalizer()

	if facts := n.Normalize(ResponseRecord{Author: "detector"}); len(facts) != 0 {
		t.Errorf("record without content produced %d facts", len(facts))
	}
	if facts := n.Normalize(record("detector")); len(facts) != 0 {
		t.Errorf("empty part list produced %d facts", len(facts))
	}
	if facts := n.Normalize(record("detector", Part{})); len(facts) != 0 {
		t.Errorf("empty part produced %d facts", len(facts))
	}

	facts := n.Normalize(record("detector", Part{Text: "plain words"}))
	if len(facts) != 1 || facts[0].Kind != FactText || facts[0].Payload != nil {
		t.Errorf("plain text = %+v, want one text fact without payload", facts)
	}

	var p Part
	if err := p.UnmarshalJSON([]byte(`{"executableCode":{"code":"ls"}}`)); err != nil {
		t.Fatal(err)
	}
	facts = n.Normalize(record("detector", p))
	want := map[string]any{"executableCode": map[string]any{"code": "ls"}}
	if len(facts) != 1 || facts[0].Kind != FactStructuredResult || !reflect.DeepEqual(facts[0].Payload, want) {
		t.Errorf("plain object part = %+v, want structured result with the part", facts)
	}
}

func TestNormalizeAll_PreservesOrder(t *testing.T) {
	n := NewNormalizer()
	call := FunctionCall{Name: "transfer_to_agent", Args: map[string]any{"agent_name": "planner"}}
	done := FunctionResponse{Name: "transfer_to_agent"}

	records := []ResponseRecord{
		record("detector", Part{Text: "one"}, Part{Text: "two"}),
		record("detector", Part{FunctionCall: &call}),
		record("planner", Part{FunctionResponse: &done}, Part{Text: "three"}),
	}

	facts := n.NormalizeAll(records)
	wantKinds := []FactKind{FactText, FactText, FactTransferStart, FactTransferComplete, FactText}
	if len(facts) != len(wantKinds) {
		t.Fatalf("NormalizeAll() returned %d facts, want %d", len(facts), len(wantKinds))
	}
	for i, kind := range wantKinds {
		if facts[i].Kind != kind {
			t.Errorf("facts[%d].Kind = %v, want %v", i, facts[i].Kind, kind)
		}
	}
	if facts[0].Content != "one" || facts[1].Content != "two" || facts[4].Content != "three" {
		t.Error("NormalizeAll() reordered text facts")
	}
	if facts[4].Author != "planner" {
		t.Errorf("facts[4].Author = %q, want planner", facts[4].Author)
	}
}
