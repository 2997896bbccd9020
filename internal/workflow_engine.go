package internal

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaospilot/incident-console/internal/clock"
	"github.com/google/uuid"
)

// WorkflowStatus is the lifecycle state of an autonomous workflow
type WorkflowStatus string

const (
	WorkflowMonitoring WorkflowStatus = "monitoring"
	WorkflowDetected   WorkflowStatus = "detected"
	WorkflowAnalyzing  WorkflowStatus = "analyzing"
	WorkflowActing     WorkflowStatus = "acting"
	WorkflowResolved   WorkflowStatus = "resolved"
)

// rank orders statuses; monitoring and detected are both entry states.
func (s WorkflowStatus) rank() int {
	switch s {
	case WorkflowMonitoring, WorkflowDetected:
		return 0
	case WorkflowAnalyzing:
		return 1
	case WorkflowActing:
		return 2
	case WorkflowResolved:
		return 3
	default:
		return -1
	}
}

// Priority of a workflow
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ActionType decides whether an action may run without approval
type ActionType string

const (
	ActionAutomated     ActionType = "automated"
	ActionSemiAutomated ActionType = "semi_automated"
	ActionManual        ActionType = "manual"
)

// ActionStatus is the lifecycle state of an action
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionExecuting ActionStatus = "executing"
	ActionCompleted ActionStatus = "completed"
	ActionFailed    ActionStatus = "failed"
)

// AutonomousAction is one step of a workflow. It belongs to exactly one
// workflow and is only mutated by that workflow's walk.
type AutonomousAction struct {
	ID                 string         `json:"id" yaml:"id"`
	Name               string         `json:"name" yaml:"name"`
	Type               ActionType     `json:"type" yaml:"type"`
	Status             ActionStatus   `json:"status" yaml:"status"`
	Description        string         `json:"description" yaml:"description"`
	Reasoning          string         `json:"reasoning" yaml:"reasoning"`
	SuccessProbability float64        `json:"successProbability" yaml:"successProbability"`
	EstimatedTime      string         `json:"estimatedTime" yaml:"estimatedTime"`
	ExecutedAt         *time.Time     `json:"executedAt,omitempty" yaml:"executedAt,omitempty"`
	Result             map[string]any `json:"result,omitempty" yaml:"result,omitempty"`
}

// StatusTransition records when a workflow entered a status
type StatusTransition struct {
	Status WorkflowStatus `json:"status" yaml:"status"`
	At     time.Time      `json:"at" yaml:"at"`
}

// AutonomousWorkflow is a long-lived reaction to an agent result
type AutonomousWorkflow struct {
	ID          string             `json:"id" yaml:"id"`
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	Agent       string             `json:"agent,omitempty" yaml:"agent,omitempty"`
	Status      WorkflowStatus     `json:"status" yaml:"status"`
	Priority    Priority           `json:"priority" yaml:"priority"`
	Confidence  float64            `json:"confidence" yaml:"confidence"`
	DetectedAt  time.Time          `json:"detectedAt" yaml:"detectedAt"`
	ResolvedAt  *time.Time         `json:"resolvedAt,omitempty" yaml:"resolvedAt,omitempty"`
	Actions     []AutonomousAction `json:"actions" yaml:"actions"`
	Reasoning   string             `json:"reasoning" yaml:"reasoning"`
	Transitions []StatusTransition `json:"transitions,omitempty" yaml:"transitions,omitempty"`
}

// PendingApprovals counts non-automated actions still waiting.
func (w AutonomousWorkflow) PendingApprovals() int {
	n := 0
	for _, a := range w.Actions {
		if a.Type != ActionAutomated && a.Status == ActionPending {
			n++
		}
	}
	return n
}

// WorkflowEngineOptions tunes the engine
type WorkflowEngineOptions struct {
	// ExecutionScale is the simulated delay per estimated minute.
	ExecutionScale time.Duration
	// RequireTerminalActions keeps a workflow unresolved while any of its
	// actions is still pending approval.
	RequireTerminalActions bool
}

const (
	defaultExecutionScale = time.Second
	defaultActionMinutes  = 5
	defaultConfidence     = 0.8
)

// WorkflowEngine owns all autonomous workflows. Each triggered workflow
// walks its actions in its own goroutine; walks of different workflows
// never share state.
type WorkflowEngine struct {
	mu        sync.Mutex
	workflows []*AutonomousWorkflow // newest first
	clock     clock.Clock
	opts      WorkflowEngineOptions
	enabled   atomic.Bool
	walks     sync.WaitGroup
	feed      *Feed[[]AutonomousWorkflow]
}

// NewWorkflowEngine creates an enabled engine with no workflows
func NewWorkflowEngine(clk clock.Clock, opts WorkflowEngineOptions) *WorkflowEngine {
	if clk == nil {
		clk = clock.Real()
	}
	if opts.ExecutionScale <= 0 {
		opts.ExecutionScale = defaultExecutionScale
	}
	e := &WorkflowEngine{clock: clk, opts: opts, feed: NewFeed[[]AutonomousWorkflow]()}
	e.enabled.Store(true)
	return e
}

// SetEnabled toggles whether new triggers create workflows. Walks
// already in flight are not interrupted.
func (e *WorkflowEngine) SetEnabled(enabled bool) {
	e.enabled.Store(enabled)
}

// Enabled reports whether triggers are accepted.
func (e *WorkflowEngine) Enabled() bool {
	return e.enabled.Load()
}

// SeedMonitoring adds the two standing monitoring workflows.
func (e *WorkflowEngine) SeedMonitoring() {
	now := e.clock.Now()
	seeds := []*AutonomousWorkflow{
		{
			ID:          "auto-monitoring-001",
			Name:        "Proactive System Monitoring",
			Description: "Continuous monitoring of system health and performance",
			Status:      WorkflowMonitoring,
			Priority:    PriorityMedium,
			Confidence:  0.95,
			DetectedAt:  now,
			Reasoning:   "Standing workflow that watches for degradations before they become incidents",
		},
		{
			ID:          "auto-security-001",
			Name:        "Security Threat Detection",
			Description: "Watch access patterns for signs of intrusion",
			Status:      WorkflowMonitoring,
			Priority:    PriorityHigh,
			Confidence:  0.90,
			DetectedAt:  now,
			Reasoning:   "Standing workflow that correlates security signals across services",
		},
	}

	e.mu.Lock()
	for _, w := range seeds {
		w.Actions = []AutonomousAction{}
		w.Transitions = []StatusTransition{{Status: WorkflowMonitoring, At: now}}
		e.workflows = append(e.workflows, w)
	}
	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	e.feed.Publish(snapshot)
}

// Trigger creates a workflow for a completed agent state carrying data
// and starts executing its automated actions. It returns false when the
// engine is disabled or the state does not qualify.
func (e *WorkflowEngine) Trigger(state AgentState) (AutonomousWorkflow, bool) {
	if !e.enabled.Load() {
		return AutonomousWorkflow{}, false
	}
	if state.Status != AgentCompleted || state.Data == nil {
		return AutonomousWorkflow{}, false
	}

	now := e.clock.Now()
	name := AgentDisplayName(state.ID)
	confidence := defaultConfidence
	if state.Confidence != nil {
		confidence = *state.Confidence
	}

	w := &AutonomousWorkflow{
		ID:          fmt.Sprintf("auto-%s-%s", state.ID, shortID()),
		Name:        fmt.Sprintf("Autonomous %s Response", name),
		Description: fmt.Sprintf("Automated response to %s analysis", name),
		Agent:       state.ID,
		Status:      WorkflowDetected,
		Priority:    priorityFromData(state.Data),
		Confidence:  confidence,
		DetectedAt:  now,
		Actions:     synthesizeActions(ParseAgentResult(state.ID, state.Data)),
		Reasoning:   fmt.Sprintf("Automatically triggered based on %s analysis results", name),
		Transitions: []StatusTransition{{Status: WorkflowDetected, At: now}},
	}

	e.mu.Lock()
	e.workflows = append([]*AutonomousWorkflow{w}, e.workflows...)
	created := copyWorkflow(w)
	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	LogInfo("[workflow] %s created with %d action(s), priority %s", w.ID, len(w.Actions), w.Priority)
	e.feed.Publish(snapshot)

	e.walks.Add(1)
	go e.walk(w.ID)
	return created, true
}

// walk runs a workflow's actions in list order, one at a time. Only
// automated actions execute; the rest are skipped and stay pending.
func (e *WorkflowEngine) walk(id string) {
	defer e.walks.Done()

	if !e.advance(id, WorkflowAnalyzing) {
		return
	}

	e.mu.Lock()
	w := e.findLocked(id)
	if w == nil {
		e.mu.Unlock()
		return
	}
	count := len(w.Actions)
	e.mu.Unlock()

	for i := 0; i < count; i++ {
		delay, ok := e.startAction(id, i)
		if !ok {
			continue
		}
		<-e.clock.After(delay)
		e.finishAction(id, i)
	}

	e.resolve(id)
}

func (e *WorkflowEngine) startAction(id string, i int) (time.Duration, bool) {
	e.mu.Lock()
	w := e.findLocked(id)
	if w == nil || w.Actions[i].Type != ActionAutomated {
		e.mu.Unlock()
		return 0, false
	}
	action := &w.Actions[i]
	action.Status = ActionExecuting
	e.setStatusLocked(w, WorkflowActing)
	delay := time.Duration(estimatedMinutes(action.EstimatedTime)) * e.opts.ExecutionScale
	name := action.Name
	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	LogDebug("[workflow] %s executing %q for %s", id, name, delay)
	e.feed.Publish(snapshot)
	return delay, true
}

func (e *WorkflowEngine) finishAction(id string, i int) {
	e.mu.Lock()
	w := e.findLocked(id)
	if w == nil {
		e.mu.Unlock()
		return
	}
	now := e.clock.Now()
	action := &w.Actions[i]
	action.Status = ActionCompleted
	action.ExecutedAt = &now
	action.Result = map[string]any{
		"success": true,
		"message": "Action executed successfully",
	}
	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	e.feed.Publish(snapshot)
}

func (e *WorkflowEngine) resolve(id string) {
	e.mu.Lock()
	w := e.findLocked(id)
	if w == nil {
		e.mu.Unlock()
		return
	}
	if e.opts.RequireTerminalActions && w.PendingApprovals() > 0 {
		pending := w.PendingApprovals()
		e.mu.Unlock()
		LogInfo("[workflow] %s waiting on %d action(s) pending approval", id, pending)
		return
	}
	now := e.clock.Now()
	e.setStatusLocked(w, WorkflowResolved)
	w.ResolvedAt = &now
	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	LogInfo("[workflow] %s resolved", id)
	e.feed.Publish(snapshot)
}

func (e *WorkflowEngine) advance(id string, status WorkflowStatus) bool {
	e.mu.Lock()
	w := e.findLocked(id)
	if w == nil {
		e.mu.Unlock()
		return false
	}
	e.setStatusLocked(w, status)
	snapshot := e.snapshotLocked()
	e.mu.Unlock()

	e.feed.Publish(snapshot)
	return true
}

// setStatusLocked moves w forward; backwards or repeated moves are ignored.
func (e *WorkflowEngine) setStatusLocked(w *AutonomousWorkflow, status WorkflowStatus) {
	if status.rank() <= w.Status.rank() {
		return
	}
	w.Status = status
	w.Transitions = append(w.Transitions, StatusTransition{Status: status, At: e.clock.Now()})
}

func (e *WorkflowEngine) findLocked(id string) *AutonomousWorkflow {
	for _, w := range e.workflows {
		if w.ID == id {
			return w
		}
	}
	return nil
}

// Get returns a copy of one workflow.
func (e *WorkflowEngine) Get(id string) (AutonomousWorkflow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w := e.findLocked(id)
	if w == nil {
		return AutonomousWorkflow{}, false
	}
	return copyWorkflow(w), true
}

// Workflows returns copies of all workflows, newest first.
func (e *WorkflowEngine) Workflows() []AutonomousWorkflow {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Clear drops every workflow. Walks in flight find their workflow gone
// and stop.
func (e *WorkflowEngine) Clear() {
	e.mu.Lock()
	e.workflows = nil
	e.mu.Unlock()
	e.feed.Publish([]AutonomousWorkflow{})
}

// Wait blocks until every running walk has finished.
func (e *WorkflowEngine) Wait() {
	e.walks.Wait()
}

// Subscribe streams the workflow list after every change.
func (e *WorkflowEngine) Subscribe() (<-chan []AutonomousWorkflow, func()) {
	return e.feed.Subscribe(e.Workflows())
}

func (e *WorkflowEngine) snapshotLocked() []AutonomousWorkflow {
	out := make([]AutonomousWorkflow, len(e.workflows))
	for i, w := range e.workflows {
		out[i] = copyWorkflow(w)
	}
	return out
}

func copyWorkflow(w *AutonomousWorkflow) AutonomousWorkflow {
	c := *w
	if w.ResolvedAt != nil {
		t := *w.ResolvedAt
		c.ResolvedAt = &t
	}
	c.Actions = make([]AutonomousAction, len(w.Actions))
	for i, a := range w.Actions {
		if a.ExecutedAt != nil {
			t := *a.ExecutedAt
			a.ExecutedAt = &t
		}
		if a.Result != nil {
			result := make(map[string]any, len(a.Result))
			for k, v := range a.Result {
				result[k] = v
			}
			a.Result = result
		}
		c.Actions[i] = a
	}
	c.Transitions = append([]StatusTransition(nil), w.Transitions...)
	return c
}

// synthesizeActions maps an agent result to the actions it warrants.
func synthesizeActions(result AgentResult) []AutonomousAction {
	actions := []AutonomousAction{}
	switch r := result.(type) {
	case DetectorResult:
		if len(r.Anomalies) > 0 {
			actions = append(actions, newAction(
				"Investigate Anomalies", ActionAutomated,
				"Automatically investigate detected anomalies",
				"Anomalies detected require immediate investigation",
				0.85, "5 minutes"))
		}
	case PlannerResult:
		if r.HasActions() {
			actions = append(actions, newAction(
				"Execute High-Priority Actions", ActionSemiAutomated,
				"Execute recommended high-priority actions",
				"High-priority actions identified by planner",
				0.90, "10 minutes"))
		}
	case RecommenderResult:
		if r.HasAutomation() {
			actions = append(actions, newAction(
				"Execute Automated Remediation", ActionAutomated,
				"Execute automated remediation actions",
				"Safe automated actions available for immediate execution",
				0.95, "3 minutes"))
		}
	}
	return actions
}

func newAction(name string, typ ActionType, description, reasoning string, probability float64, estimate string) AutonomousAction {
	return AutonomousAction{
		ID:                 "action-" + shortID(),
		Name:               name,
		Type:               typ,
		Status:             ActionPending,
		Description:        description,
		Reasoning:          reasoning,
		SuccessProbability: probability,
		EstimatedTime:      estimate,
	}
}

// priorityFromData reads "severity" then "priority" from an object payload.
func priorityFromData(data any) Priority {
	obj, ok := data.(map[string]any)
	if !ok {
		return PriorityMedium
	}
	for _, key := range []string{"severity", "priority"} {
		s, ok := obj[key].(string)
		if !ok {
			continue
		}
		switch strings.ToLower(s) {
		case "critical":
			return PriorityCritical
		case "high", "error":
			return PriorityHigh
		case "medium", "warning":
			return PriorityMedium
		case "low", "info":
			return PriorityLow
		}
	}
	return PriorityMedium
}

// estimatedMinutes parses the leading integer of "5 minutes".
func estimatedMinutes(estimate string) int {
	s := strings.TrimSpace(estimate)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n <= 0 {
		return defaultActionMinutes
	}
	return n
}

func shortID() string {
	return uuid.NewString()[:8]
}
