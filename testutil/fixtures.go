package testutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// Record fixtures in the agent server's wire shape.
const (
	// DetectorRecords is a detector turn: a transfer, then a text part
	// carrying a fenced json payload with anomalies.
	DetectorRecords = `[
  {"id":"evt-1","invocationId":"inv-1","author":"agent_manager","timestamp":1700000000.0,
   "content":{"role":"model","parts":[{"functionCall":{"id":"call-1","name":"transfer_to_detector","args":{"agent_name":"detector"}}}]}},
  {"id":"evt-2","invocationId":"inv-1","author":"agent_manager","timestamp":1700000000.5,
   "content":{"role":"user","parts":[{"functionResponse":{"id":"call-1","name":"transfer_to_detector","response":{"result":null}}}]}},
  {"id":"evt-3","invocationId":"inv-1","author":"detector","timestamp":1700000001.25,
   "content":{"role":"model","parts":[{"text":"Analysis complete.\n` + "```json" + `\n{\"total_error_logs\": 12, \"anomalies\": [\"latency spike\"], \"confidence_score\": 0.9, \"severity\": \"high\"}\n` + "```" + `"}]}}
]`

	// PlannerRecords is a single planner reply with a plain-text part.
	PlannerRecords = `[
  {"id":"evt-4","invocationId":"inv-2","author":"planner","timestamp":1700000010.0,
   "content":{"role":"model","parts":[{"text":"Drafting a recovery plan."}]}}
]`
)

// Agent reports in the shape the backend agents emit them.
const (
	// DetectorReport is a log analysis with grouped errors and anomalies.
	DetectorReport = `{
  "report_generated_at": "2025-06-20T10:15:00Z",
  "total_error_logs": 3,
  "environments_considered": ["prod"],
  "errors_grouped_by_region": {"us-central1": {"CRITICAL": 2, "ERROR": 1}},
  "errors_grouped_by_severity": {"CRITICAL": 2, "ERROR": 1},
  "recent_errors": [
    {"experiment_id": "exp4851", "failure_type": "database crash", "severity": "CRITICAL", "impact_level": "high",
     "region": "us-central1", "timestamp": "2025-06-20T01:14:59.147Z", "confidence_score": 0.95,
     "potential_root_cause": "Database connection timeout"},
    {"experiment_id": "exp4851", "failure_type": "out of memory", "severity": "ERROR", "impact_level": "medium",
     "region": "us-central1", "timestamp": "2025-06-20T00:12:45.983Z", "confidence_score": 0.80,
     "potential_root_cause": null}
  ],
  "anomalies": [{"failure_type": "database crash", "region": "us-central1", "count": 2}],
  "trend_analysis": {"error_rate_change": "+15%", "comparison_period": "previous_24h"},
  "severity": "critical",
  "ambiguous": false
}`

	// PlannerReport is a response plan. Its summary flags are booleans and
	// its actions are immediate_recovery_actions.
	PlannerReport = `{
  "plan_generated_at": "2025-06-18T22:20:00Z",
  "summary": {
    "critical_services_detected": false,
    "error_services_detected": true,
    "total_error_events": 1,
    "regions_impacted": ["us-central1"],
    "failure_types": ["disk_stall"]
  },
  "immediate_recovery_actions": [
    {"action": "Restart disk subsystem or shift workloads to healthy zone in us-central1",
     "applicable_regions": ["us-central1"], "impact_scope": "infrastructure", "urgency": "high",
     "dependencies": [], "risk_assessment": "medium", "confidence_score": 0.87,
     "fallback_plan": "Escalate to SRE if disk restart fails."}
  ],
  "confidence_score": 0.87,
  "priority": "high"
}`

	// RecommenderReport lists recovery tasks; the first has an automation
	// script, the second is manual.
	RecommenderReport = `{
  "recovery_tasks": [
    {"task_id": "task-001", "description": "Restart the affected disk subsystem in us-central1",
     "region": "us-central1", "urgency": "high", "priority": "high",
     "steps": ["Identify nodes experiencing disk I/O stall", "Restart disk subsystem"],
     "required_permissions": ["infrastructure_admin"], "automation_script": "restart_disk_subsystem.sh",
     "assigned_team": "infrastructure_team", "estimated_time_minutes": 30},
    {"task_id": "task-002", "description": "Shift workloads from affected zone to healthy zone in us-central1",
     "region": "us-central1", "urgency": "high", "priority": "high",
     "automation_script": null, "assigned_team": "site_reliability_engineering", "estimated_time_minutes": 45}
  ],
  "notes": ["Tasks derived from planner's immediate recovery actions."],
  "ambiguous": false
}`
)

// CreateSQLiteFixture creates an on-disk SQLite database with the kv table
// and a current session id
func CreateSQLiteFixture(t *testing.T, dbPath string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		t.Fatalf("Failed to create fixture directory: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT
	)`
	if _, err := db.Exec(createTableSQL); err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	if _, err := db.Exec("INSERT INTO kv (key, value) VALUES (?, ?)", "adk_session_id", "sess-fixture"); err != nil {
		t.Fatalf("Failed to insert session id: %v", err)
	}
}

// CreateDataDirFixture lays out a data directory with a config file and an
// empty transcripts directory, returning its path
func CreateDataDirFixture(t *testing.T, config string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "transcripts"), 0755); err != nil {
		t.Fatalf("Failed to create transcripts directory: %v", err)
	}
	if config != "" {
		WriteFile(t, dir, "config.yaml", []byte(config))
	}
	return dir
}
