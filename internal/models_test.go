package internal

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPart_UnmarshalKeepsUnknownFields(t *testing.T) {
	var p Part
	if err := json.Unmarshal([]byte(`{"inlineData":{"mimeType":"text/plain"},"thought":true}`), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if p.IsEmpty() {
		t.Fatal("IsEmpty() = true for a part with unknown fields")
	}
	if len(p.Extra) != 2 {
		t.Errorf("len(Extra) = %d, want 2", len(p.Extra))
	}

	tree, ok := p.Tree().(map[string]any)
	if !ok {
		t.Fatalf("Tree() = %T, want map", p.Tree())
	}
	if tree["thought"] != true {
		t.Errorf("Tree()[thought] = %v, want true", tree["thought"])
	}
}

func TestPart_IsEmpty(t *testing.T) {
	var p Part
	if err := json.Unmarshal([]byte(`{}`), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !p.IsEmpty() {
		t.Error("IsEmpty() = false for {}")
	}
}

func TestFunctionResponse_ResultString(t *testing.T) {
	tests := []struct {
		name   string
		resp   *FunctionResponse
		want   string
		wantOK bool
	}{
		{"nil", nil, "", false},
		{"no response", &FunctionResponse{Name: "x"}, "", false},
		{"string", &FunctionResponse{Response: map[string]any{"result": "[1]"}}, "[1]", true},
		{"object", &FunctionResponse{Response: map[string]any{"result": map[string]any{}}}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.resp.ResultString()
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ResultString() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestResponseRecord_Time(t *testing.T) {
	r := ResponseRecord{Timestamp: 1700000000.5}
	want := time.UnixMilli(1700000000500)
	if !r.Time().Equal(want) {
		t.Errorf("Time() = %v, want %v", r.Time(), want)
	}
	if !(ResponseRecord{}).Time().IsZero() {
		t.Error("Time() of zero timestamp should be zero")
	}
}

func TestParseResponseRecords(t *testing.T) {
	arr := `[{"author":"detector","timestamp":1,"content":{"parts":[{"text":"hi"}]}},{"author":"planner","timestamp":2}]`
	records, err := ParseResponseRecords([]byte(arr))
	if err != nil {
		t.Fatalf("ParseResponseRecords() error = %v", err)
	}
	if len(records) != 2 || records[1].Author != "planner" {
		t.Errorf("ParseResponseRecords() = %+v", records)
	}
	if records[1].Parts() != nil {
		t.Error("Parts() should be nil when content is missing")
	}

	single, err := ParseResponseRecords([]byte(`{"author":"fixer","timestamp":3}`))
	if err != nil || len(single) != 1 || single[0].Author != "fixer" {
		t.Errorf("ParseResponseRecords(single) = %+v, %v", single, err)
	}

	if _, err := ParseResponseRecords([]byte(`not json`)); err == nil {
		t.Error("ParseResponseRecords() expected error for invalid input")
	}
}
