package internal

import "sync"

// PhaseID identifies one of the six workflow phases
type PhaseID string

const (
	PhaseAnalyze   PhaseID = "analyze"
	PhaseClassify  PhaseID = "classify"
	PhasePlan      PhaseID = "plan"
	PhaseRecommend PhaseID = "recommend"
	PhaseExecute   PhaseID = "execute"
	PhaseNotify    PhaseID = "notify"
)

// PhaseStatus is the display state of a phase
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseActive    PhaseStatus = "active"
	PhaseCompleted PhaseStatus = "completed"
)

// WorkflowPhase is one step of the incident pipeline
type WorkflowPhase struct {
	ID          PhaseID     `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description" yaml:"description"`
	Number      int         `json:"number" yaml:"number"`
	Status      PhaseStatus `json:"status" yaml:"status"`
}

var phaseTable = []WorkflowPhase{
	{ID: PhaseAnalyze, Name: "Analyze", Description: "AI analyzes error, warning, and critical logs", Number: 1},
	{ID: PhaseClassify, Name: "Classify", Description: "Classify incidents by severity and impact", Number: 2},
	{ID: PhasePlan, Name: "Plan", Description: "Generate response strategies and action plans", Number: 3},
	{ID: PhaseRecommend, Name: "Recommend", Description: "Suggest specific fixes and solutions", Number: 4},
	{ID: PhaseExecute, Name: "Execute", Description: "Apply fixes with safety checks", Number: 5},
	{ID: PhaseNotify, Name: "Notify", Description: "Alert teams and stakeholders", Number: 6},
}

var agentPhases = map[string]PhaseID{
	"detector":            PhaseAnalyze,
	"enhanced_detector":   PhaseAnalyze,
	"log_analyzer":        PhaseAnalyze,
	"classifier":          PhaseClassify,
	"incident_classifier": PhaseClassify,
	"planner":             PhasePlan,
	"response_planner":    PhasePlan,
	"action_recommender":  PhaseRecommend,
	"fix_recommender":     PhaseRecommend,
	"fixer":               PhaseExecute,
	"auto_fixer":          PhaseExecute,
	"notifier":            PhaseNotify,
	"alert_manager":       PhaseNotify,
}

// PhaseForAgent looks up the phase an agent drives.
func PhaseForAgent(agent string) (PhaseID, bool) {
	id, ok := agentPhases[agent]
	return id, ok
}

// DefaultPhases returns the six phases, all pending.
func DefaultPhases() []WorkflowPhase {
	phases := make([]WorkflowPhase, len(phaseTable))
	copy(phases, phaseTable)
	for i := range phases {
		phases[i].Status = PhasePending
	}
	return phases
}

// ComputePhases derives phase status from the full message list using
// sequential activation with backfill:
//
//   - messages are walked in order; authors with no phase are ignored
//   - when the active phase changes, the previous one becomes completed
//   - on activation, every lower phase still pending becomes completed
//
// so a phase is never active while an earlier phase is pending. The
// result depends only on messages.
func ComputePhases(messages []Message) []WorkflowPhase {
	phases := DefaultPhases()
	index := make(map[PhaseID]int, len(phases))
	for i, p := range phases {
		index[p.ID] = i
	}

	active := -1
	for _, msg := range messages {
		if msg.Agent == "" {
			continue
		}
		id, ok := agentPhases[msg.Agent]
		if !ok {
			continue
		}
		next := index[id]
		if next == active {
			continue
		}
		if active >= 0 {
			phases[active].Status = PhaseCompleted
		}
		for i := 0; i < next; i++ {
			if phases[i].Status == PhasePending {
				phases[i].Status = PhaseCompleted
			}
		}
		phases[next].Status = PhaseActive
		active = next
	}
	return phases
}

// PhaseTracker holds the last computed phase list and publishes changes.
type PhaseTracker struct {
	mu     sync.Mutex
	phases []WorkflowPhase
	feed   *Feed[[]WorkflowPhase]
}

// NewPhaseTracker creates a tracker with every phase pending
func NewPhaseTracker() *PhaseTracker {
	return &PhaseTracker{phases: DefaultPhases(), feed: NewFeed[[]WorkflowPhase]()}
}

// Recompute replaces the phase state with ComputePhases(messages).
func (t *PhaseTracker) Recompute(messages []Message) []WorkflowPhase {
	phases := ComputePhases(messages)

	t.mu.Lock()
	t.phases = phases
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	t.feed.Publish(snapshot)
	return snapshot
}

// Reset returns every phase to pending.
func (t *PhaseTracker) Reset() {
	t.Recompute(nil)
}

// Phases returns a copy of the current phase list.
func (t *PhaseTracker) Phases() []WorkflowPhase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Active returns the active phase, if any.
func (t *PhaseTracker) Active() (WorkflowPhase, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.phases {
		if p.Status == PhaseActive {
			return p, true
		}
	}
	return WorkflowPhase{}, false
}

// Subscribe streams the phase list after every recomputation.
func (t *PhaseTracker) Subscribe() (<-chan []WorkflowPhase, func()) {
	return t.feed.Subscribe(t.Phases())
}

func (t *PhaseTracker) snapshotLocked() []WorkflowPhase {
	out := make([]WorkflowPhase, len(t.phases))
	copy(out, t.phases)
	return out
}
