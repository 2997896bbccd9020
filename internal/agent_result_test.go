package internal

import (
	"strings"
	"testing"

	"github.com/chaospilot/incident-console/testutil"
)

func TestParseAgentResult(t *testing.T) {
	tests := []struct {
		name     string
		agent    string
		data     any
		wantKind string
	}{
		{"detector", "detector", map[string]any{"total_error_logs": float64(3)}, "detector"},
		{"detector alias", "enhanced_detector", map[string]any{"anomalies": []any{"x"}}, "detector"},
		{"planner", "planner", map[string]any{"summary": map[string]any{"total_error_events": float64(2)}}, "planner"},
		{"recommender", "action_recommender", map[string]any{"recovery_tasks": []any{}}, "action_recommender"},
		{"wrong shape for agent", "planner", map[string]any{"anomalies": []any{"x"}}, "unrecognized"},
		{"unknown agent", "notifier", map[string]any{"sent": true}, "unrecognized"},
		{"non-object payload", "detector", []any{float64(1)}, "unrecognized"},
		{"mistyped field is skipped", "detector", map[string]any{"total_error_logs": "many", "anomalies": []any{"x"}}, "detector"},
		{"planner with boolean summary flags", "planner", map[string]any{"summary": map[string]any{"critical_services_detected": false}}, "planner"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseAgentResult(tt.agent, tt.data)
			if got.Kind() != tt.wantKind {
				t.Errorf("ParseAgentResult() kind = %q, want %q", got.Kind(), tt.wantKind)
			}
		})
	}
}

func TestParseAgentResult_Fields(t *testing.T) {
	data := map[string]any{
		"total_error_logs":           float64(12),
		"errors_grouped_by_severity": map[string]any{"critical": float64(2), "error": float64(10)},
		"recent_errors":              []any{map[string]any{"failure_type": "timeout", "severity": "critical", "region": "us-east-1"}},
		"anomalies":                  []any{"spike"},
		"confidence_score":           0.92,
	}

	r, ok := ParseAgentResult("detector", data).(DetectorResult)
	if !ok {
		t.Fatal("ParseAgentResult() did not return DetectorResult")
	}
	if r.TotalErrorLogs != 12 || len(r.Anomalies) != 1 || r.RecentErrors[0].Region != "us-east-1" {
		t.Errorf("DetectorResult = %+v", r)
	}
	if r.ConfidenceScore == nil || *r.ConfidenceScore != 0.92 {
		t.Errorf("ConfidenceScore = %v, want 0.92", r.ConfidenceScore)
	}

	summary := SummarizeResult(r)
	for _, want := range []string{"12 error logs", "critical: 2", "timeout (critical) in us-east-1", "anomalies: 1", "confidence: 92%"} {
		if !strings.Contains(summary, want) {
			t.Errorf("SummarizeResult() missing %q in %q", want, summary)
		}
	}
}

func TestSummarizeResult_PlannerAndRecommender(t *testing.T) {
	plan := PlannerResult{
		Summary:                  PlanSummary{CriticalServicesDetected: true, TotalErrorEvents: 4, RegionsImpacted: []string{"us-east1", "eu-west1"}},
		ImmediateRecoveryActions: []RecoveryAction{{Action: "Restart api", Urgency: "high"}},
	}
	if got := SummarizeResult(plan); !strings.Contains(got, "critical services affected") ||
		!strings.Contains(got, "us-east1, eu-west1") || !strings.Contains(got, "Restart api [high]") {
		t.Errorf("SummarizeResult(plan) = %q", got)
	}

	rec := RecommenderResult{RecoveryTasks: []RecoveryTask{{Description: "Roll back", Priority: "high", EstimatedTimeMinutes: 15}}}
	if got := SummarizeResult(rec); !strings.Contains(got, "Roll back [high, ~15 min]") {
		t.Errorf("SummarizeResult(rec) = %q", got)
	}
}

func TestParseAgentResult_BackendReports(t *testing.T) {
	payload := func(raw string) any {
		var v any
		testutil.JSONUnmarshal(t, []byte(raw), &v)
		return v
	}

	detector, ok := ParseAgentResult("detector", payload(testutil.DetectorReport)).(DetectorResult)
	if !ok {
		t.Fatal("detector report did not parse as DetectorResult")
	}
	if detector.TotalErrorLogs != 3 || len(detector.RecentErrors) != 2 || len(detector.Anomalies) != 1 {
		t.Errorf("DetectorResult = %+v", detector)
	}
	if detector.RecentErrors[1].PotentialRootCause != nil {
		t.Error("null root cause should stay nil")
	}

	plan, ok := ParseAgentResult("planner", payload(testutil.PlannerReport)).(PlannerResult)
	if !ok {
		t.Fatal("planner report did not parse as PlannerResult")
	}
	if plan.Summary.CriticalServicesDetected || !plan.Summary.ErrorServicesDetected || plan.Summary.TotalErrorEvents != 1 {
		t.Errorf("PlanSummary = %+v", plan.Summary)
	}
	if !plan.HasActions() || plan.ImmediateRecoveryActions[0].Urgency != "high" {
		t.Errorf("plan actions = %+v", plan.ImmediateRecoveryActions)
	}

	rec, ok := ParseAgentResult("action_recommender", payload(testutil.RecommenderReport)).(RecommenderResult)
	if !ok {
		t.Fatal("recommender report did not parse as RecommenderResult")
	}
	if len(rec.RecoveryTasks) != 2 || rec.RecoveryTasks[0].EstimatedTimeMinutes != 30 {
		t.Errorf("RecommenderResult = %+v", rec)
	}
	if !rec.HasAutomation() {
		t.Error("a task with an automation script should count as automation")
	}
	if (RecommenderResult{RecoveryTasks: rec.RecoveryTasks[1:]}).HasAutomation() {
		t.Error("a manual task alone is not automation")
	}
}

func TestParseAgentResult_MistypedFieldsKeepTheRest(t *testing.T) {
	data := map[string]any{
		"total_error_logs": "3",
		"anomalies":        []any{"latency spike"},
		"severity":         "critical",
	}

	r, ok := ParseAgentResult("detector", data).(DetectorResult)
	if !ok {
		t.Fatalf("ParseAgentResult() = %T, want DetectorResult", ParseAgentResult("detector", data))
	}
	if r.TotalErrorLogs != 0 || len(r.Anomalies) != 1 || r.Severity != "critical" {
		t.Errorf("DetectorResult = %+v", r)
	}
}
