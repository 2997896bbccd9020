package internal

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// AgentResult is the typed view of an agent's structured payload. The
// concrete type is one of DetectorResult, PlannerResult,
// RecommenderResult or Unrecognized.
type AgentResult interface {
	Kind() string
}

// RecentError is one entry in a detector's recent error list
type RecentError struct {
	ExperimentID       string   `json:"experiment_id,omitempty"`
	FailureType        string   `json:"failure_type"`
	Severity           string   `json:"severity"`
	ImpactLevel        string   `json:"impact_level,omitempty"`
	Region             string   `json:"region"`
	Message            string   `json:"message,omitempty"`
	ConfidenceScore    *float64 `json:"confidence_score,omitempty"`
	PotentialRootCause *string  `json:"potential_root_cause,omitempty"`
}

// DetectorResult is the log analyzer's output
type DetectorResult struct {
	TotalErrorLogs          int            `json:"total_error_logs"`
	ErrorsGroupedBySeverity map[string]int `json:"errors_grouped_by_severity,omitempty"`
	RecentErrors            []RecentError  `json:"recent_errors,omitempty"`
	Anomalies               []any          `json:"anomalies,omitempty"`
	ConfidenceScore         *float64       `json:"confidence_score,omitempty"`
	Severity                string         `json:"severity,omitempty"`
	Ambiguous               bool           `json:"ambiguous,omitempty"`
}

// PlanSummary is the summary block of a planner result
type PlanSummary struct {
	CriticalServicesDetected bool     `json:"critical_services_detected"`
	ErrorServicesDetected    bool     `json:"error_services_detected"`
	TotalErrorEvents         int      `json:"total_error_events"`
	RegionsImpacted          []string `json:"regions_impacted,omitempty"`
	FailureTypes             []string `json:"failure_types,omitempty"`
}

// RecoveryAction is one immediate action proposed by the planner
type RecoveryAction struct {
	Action          string   `json:"action"`
	Urgency         string   `json:"urgency"`
	RiskAssessment  string   `json:"risk_assessment,omitempty"`
	ConfidenceScore *float64 `json:"confidence_score,omitempty"`
}

// PlannerResult is the response planner's output
type PlannerResult struct {
	Summary                  PlanSummary      `json:"summary"`
	ImmediateRecoveryActions []RecoveryAction `json:"immediate_recovery_actions,omitempty"`
	RecommendedActions       []any            `json:"recommended_actions,omitempty"`
	Priority                 string           `json:"priority,omitempty"`
	ConfidenceScore          *float64         `json:"confidence_score,omitempty"`
}

// HasActions reports whether the plan proposes anything to execute.
// Plans list them as recommended_actions or immediate_recovery_actions.
func (r PlannerResult) HasActions() bool {
	return len(r.RecommendedActions) > 0 || len(r.ImmediateRecoveryActions) > 0
}

// RecoveryTask is one task proposed by the fix recommender
type RecoveryTask struct {
	TaskID               string  `json:"task_id,omitempty"`
	Description          string  `json:"description"`
	Priority             string  `json:"priority"`
	AutomationScript     *string `json:"automation_script,omitempty"`
	AssignedTeam         string  `json:"assigned_team,omitempty"`
	EstimatedTimeMinutes float64 `json:"estimated_time_minutes"`
}

// RecommenderResult is the fix recommender's output
type RecommenderResult struct {
	RecoveryTasks    []RecoveryTask `json:"recovery_tasks,omitempty"`
	AutomatedActions []any          `json:"automated_actions,omitempty"`
}

// HasAutomation reports whether any remediation can run unattended:
// explicit automated_actions, or a recovery task with a script.
func (r RecommenderResult) HasAutomation() bool {
	if len(r.AutomatedActions) > 0 {
		return true
	}
	for _, task := range r.RecoveryTasks {
		if task.AutomationScript != nil && *task.AutomationScript != "" {
			return true
		}
	}
	return false
}

// Unrecognized wraps a payload that matched no known shape for its agent.
type Unrecognized struct {
	Agent string
	Data  any
}

func (DetectorResult) Kind() string    { return "detector" }
func (PlannerResult) Kind() string     { return "planner" }
func (RecommenderResult) Kind() string { return "action_recommender" }
func (Unrecognized) Kind() string      { return "unrecognized" }

var resultSignatures = map[string][]string{
	"detector":           {"total_error_logs", "errors_grouped_by_severity", "recent_errors", "anomalies"},
	"planner":            {"summary", "immediate_recovery_actions", "recommended_actions"},
	"action_recommender": {"recovery_tasks", "automated_actions"},
}

// ParseAgentResult decodes data according to the authoring agent. The
// payload must be an object carrying at least one field of that agent's
// signature; anything else yields Unrecognized. A top-level field whose
// type does not fit is left at its zero value rather than failing the
// whole result.
func ParseAgentResult(agent string, data any) AgentResult {
	kind := canonicalAgent(agent)
	obj, ok := data.(map[string]any)
	if !ok || !hasAnyField(obj, resultSignatures[kind]) {
		return Unrecognized{Agent: agent, Data: data}
	}

	var target AgentResult
	var dropped []string
	switch kind {
	case "detector":
		var r DetectorResult
		dropped = decodeLenient(obj, &r)
		target = r
	case "planner":
		var r PlannerResult
		dropped = decodeLenient(obj, &r)
		target = r
	case "action_recommender":
		var r RecommenderResult
		dropped = decodeLenient(obj, &r)
		target = r
	default:
		return Unrecognized{Agent: agent, Data: data}
	}
	if len(dropped) > 0 {
		LogDebug("payload from %s: ignored mistyped field(s) %s", agent, strings.Join(dropped, ", "))
	}
	return target
}

// canonicalAgent folds agent aliases onto the ids that own a result shape.
func canonicalAgent(agent string) string {
	switch agent {
	case "detector", "enhanced_detector", "log_analyzer":
		return "detector"
	case "planner", "response_planner":
		return "planner"
	case "action_recommender", "fix_recommender":
		return "action_recommender"
	default:
		return agent
	}
}

func hasAnyField(obj map[string]any, fields []string) bool {
	for _, f := range fields {
		if _, ok := obj[f]; ok {
			return true
		}
	}
	return false
}

// decodeLenient decodes obj into out, skipping top-level fields that do
// not decode on their own. It returns the skipped field names.
func decodeLenient(obj map[string]any, out any) []string {
	if remarshal(obj, out) == nil {
		return nil
	}

	kept := make(map[string]any, len(obj))
	var dropped []string
	for key, value := range obj {
		trial := reflect.New(reflect.TypeOf(out).Elem()).Interface()
		if remarshal(map[string]any{key: value}, trial) != nil {
			dropped = append(dropped, key)
			continue
		}
		kept[key] = value
	}
	sort.Strings(dropped)

	reflect.ValueOf(out).Elem().SetZero()
	_ = remarshal(kept, out)
	return dropped
}

func remarshal(in any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// SummarizeResult renders a short human-readable digest of a result.
func SummarizeResult(result AgentResult) string {
	var b strings.Builder
	switch r := result.(type) {
	case DetectorResult:
		fmt.Fprintf(&b, "Log analysis: %d error logs", r.TotalErrorLogs)
		if len(r.ErrorsGroupedBySeverity) > 0 {
			severities := make([]string, 0, len(r.ErrorsGroupedBySeverity))
			for s := range r.ErrorsGroupedBySeverity {
				severities = append(severities, s)
			}
			sort.Strings(severities)
			for _, s := range severities {
				fmt.Fprintf(&b, "\n  %s: %d", s, r.ErrorsGroupedBySeverity[s])
			}
		}
		for _, e := range r.RecentErrors {
			fmt.Fprintf(&b, "\n  - %s (%s) in %s", e.FailureType, e.Severity, e.Region)
		}
		if len(r.Anomalies) > 0 {
			fmt.Fprintf(&b, "\n  anomalies: %d", len(r.Anomalies))
		}
		if r.ConfidenceScore != nil {
			fmt.Fprintf(&b, "\n  confidence: %.0f%%", *r.ConfidenceScore*100)
		}
	case PlannerResult:
		fmt.Fprintf(&b, "Response plan: %d error events", r.Summary.TotalErrorEvents)
		if r.Summary.CriticalServicesDetected {
			b.WriteString("\n  critical services affected")
		}
		if len(r.Summary.RegionsImpacted) > 0 {
			fmt.Fprintf(&b, "\n  regions: %s", strings.Join(r.Summary.RegionsImpacted, ", "))
		}
		for _, a := range r.ImmediateRecoveryActions {
			fmt.Fprintf(&b, "\n  - %s [%s]", a.Action, a.Urgency)
		}
	case RecommenderResult:
		fmt.Fprintf(&b, "Recovery tasks: %d", len(r.RecoveryTasks))
		for _, task := range r.RecoveryTasks {
			fmt.Fprintf(&b, "\n  - %s [%s, ~%.0f min]", task.Description, task.Priority, task.EstimatedTimeMinutes)
		}
		if len(r.AutomatedActions) > 0 {
			fmt.Fprintf(&b, "\n  automated actions: %d", len(r.AutomatedActions))
		}
	case Unrecognized:
		b.WriteString("Structured result")
	}
	return b.String()
}
