package internal

import (
	"math/rand"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaospilot/incident-console/internal/clock"
)

// AgentStatus is the lifecycle state of an agent
type AgentStatus string

const (
	AgentIdle      AgentStatus = "idle"
	AgentThinking  AgentStatus = "thinking"
	AgentWorking   AgentStatus = "working"
	AgentCompleted AgentStatus = "completed"
	AgentError     AgentStatus = "error"
)

// AgentState is the latest known state of one agent
type AgentState struct {
	ID          string      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Status      AgentStatus `json:"status" yaml:"status"`
	Progress    int         `json:"progress" yaml:"progress"`
	Message     string      `json:"message" yaml:"message"`
	Data        any         `json:"data,omitempty" yaml:"data,omitempty"`
	Confidence  *float64    `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Reasoning   string      `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	NextActions []string    `json:"nextActions,omitempty" yaml:"nextActions,omitempty"`
	Autonomous  bool        `json:"autonomous" yaml:"autonomous"`
	Timestamp   time.Time   `json:"timestamp" yaml:"timestamp"`
}

// AgentChange describes one update: the state before and after it.
type AgentChange struct {
	Previous    AgentState
	Current     AgentState
	DataChanged bool
}

// BecameCompletedWithData reports whether this change should trigger an
// autonomous workflow: the agent is completed with data, and either it
// just completed or its data is new.
func (c AgentChange) BecameCompletedWithData() bool {
	if c.Current.Status != AgentCompleted || c.Current.Data == nil {
		return false
	}
	return c.Previous.Status != AgentCompleted || c.DataChanged
}

var agentDisplayNames = map[string]string{
	"detector":           "Intelligent Detector",
	"enhanced_detector":  "Intelligent Detector",
	"classifier":         "Incident Classifier",
	"planner":            "Strategic Planner",
	"action_recommender": "Action Recommender",
	"fixer":              "Automated Fixer",
	"notifier":           "Smart Notifier",
}

// AgentDisplayName returns the human name of an agent id.
func AgentDisplayName(id string) string {
	if name, ok := agentDisplayNames[id]; ok {
		return name
	}
	words := strings.Fields(strings.ReplaceAll(id, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

var reasoningTemplates = map[string][]string{
	"detector": {
		"Scanning recent error, warning, and critical logs for correlated failures",
		"Comparing current error rates against the recent baseline",
		"Grouping log events by service and region to find the blast radius",
	},
	"classifier": {
		"Scoring incidents by severity and customer impact",
		"Separating root-cause failures from downstream symptoms",
	},
	"planner": {
		"Weighing recovery options against service criticality",
		"Sequencing recovery steps to keep user impact low",
	},
	"action_recommender": {
		"Matching detected failure types to known remediations",
		"Estimating time and risk for each candidate fix",
	},
	"fixer": {
		"Checking safety preconditions before applying fixes",
		"Preparing rollback points for each change",
	},
	"notifier": {
		"Selecting stakeholders based on affected services",
		"Drafting a status update for the incident channel",
	},
}

var predictedActions = map[string][]string{
	"detector":           {"Classify detected incidents", "Escalate critical errors to planning"},
	"classifier":         {"Hand severity ranking to the planner", "Flag customer-facing incidents"},
	"planner":            {"Send plan to the fix recommender", "Prioritize immediate recovery actions"},
	"action_recommender": {"Queue automated remediation", "Request approval for manual fixes"},
	"fixer":              {"Verify service health after the fix", "Notify stakeholders"},
	"notifier":           {"Close the incident", "Schedule a post-incident review"},
}

// AgentStateStore owns the per-agent state map. Updates are
// last-write-wins; readers receive copies.
type AgentStateStore struct {
	mu     sync.RWMutex
	states map[string]*AgentState
	clock  clock.Clock
	rng    *rand.Rand

	autonomous atomic.Bool
	feed       *Feed[[]AgentState]
}

// NewAgentStateStore creates an empty store
func NewAgentStateStore(clk clock.Clock, rng *rand.Rand) *AgentStateStore {
	if clk == nil {
		clk = clock.Real()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &AgentStateStore{
		states:   make(map[string]*AgentState),
		clock:    clk,
		rng:      rng,
		feed:     NewFeed[[]AgentState](),
	}
}

// SetAutonomous toggles reasoning generation for thinking agents.
func (s *AgentStateStore) SetAutonomous(enabled bool) {
	s.autonomous.Store(enabled)
}

// Autonomous reports whether autonomous mode is on.
func (s *AgentStateStore) Autonomous() bool {
	return s.autonomous.Load()
}

// Update applies mutate to the agent's state (creating a default idle
// state for unseen agents), stamps the timestamp and publishes the list.
func (s *AgentStateStore) Update(id string, mutate func(*AgentState)) AgentState {
	return s.Apply(id, mutate).Current
}

// Apply is Update returning the whole change, so the caller can react to
// the transition in the same goroutine that made it.
func (s *AgentStateStore) Apply(id string, mutate func(*AgentState)) AgentChange {
	s.mu.Lock()
	prev := s.defaultStateLocked(id)
	if existing, ok := s.states[id]; ok {
		prev = copyAgentState(*existing)
	}

	next := copyAgentState(prev)
	mutate(&next)
	next.ID = id
	next.Timestamp = s.clock.Now()
	next.Autonomous = s.autonomous.Load()
	if next.Status == AgentThinking && next.Autonomous {
		next.Reasoning = s.reasoningLocked(id)
		next.NextActions = predictedActions[id]
	}

	stored := copyAgentState(next)
	s.states[id] = &stored
	current := copyAgentState(stored)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.feed.Publish(snapshot)
	return AgentChange{
		Previous:    prev,
		Current:     current,
		DataChanged: !reflect.DeepEqual(prev.Data, current.Data),
	}
}

// Get returns a copy of one agent's state.
func (s *AgentStateStore) Get(id string) (AgentState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[id]
	if !ok {
		return AgentState{}, false
	}
	return copyAgentState(*st), true
}

// All returns every agent in pipeline order, unknown agents last by id.
func (s *AgentStateStore) All() []AgentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Len returns the number of known agents.
func (s *AgentStateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// CountByStatus counts agents currently in any of the given statuses.
func (s *AgentStateStore) CountByStatus(statuses ...AgentStatus) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, st := range s.states {
		for _, want := range statuses {
			if st.Status == want {
				count++
				break
			}
		}
	}
	return count
}

// WorkingCount returns how many agents are working.
func (s *AgentStateStore) WorkingCount() int {
	return s.CountByStatus(AgentWorking)
}

// Reset forgets every agent.
func (s *AgentStateStore) Reset() {
	s.mu.Lock()
	s.states = make(map[string]*AgentState)
	s.mu.Unlock()
	s.feed.Publish([]AgentState{})
}

// Subscribe streams the full agent list after every update.
func (s *AgentStateStore) Subscribe() (<-chan []AgentState, func()) {
	return s.feed.Subscribe(s.All())
}

func (s *AgentStateStore) defaultStateLocked(id string) AgentState {
	return AgentState{
		ID:      id,
		Name:    AgentDisplayName(id),
		Status:  AgentIdle,
		Message: "Ready for analysis",
	}
}

func (s *AgentStateStore) reasoningLocked(id string) string {
	templates, ok := reasoningTemplates[id]
	if !ok {
		return "Evaluating the latest pipeline output"
	}
	return templates[s.rng.Intn(len(templates))]
}

func (s *AgentStateStore) snapshotLocked() []AgentState {
	out := make([]AgentState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, copyAgentState(*st))
	}
	sort.Slice(out, func(i, j int) bool {
		pi, iok := agentPhases[out[i].ID]
		pj, jok := agentPhases[out[j].ID]
		if iok != jok {
			return iok
		}
		if iok && pi != pj {
			return phaseNumber(pi) < phaseNumber(pj)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func phaseNumber(id PhaseID) int {
	for _, p := range phaseTable {
		if p.ID == id {
			return p.Number
		}
	}
	return 0
}

func copyAgentState(st AgentState) AgentState {
	st.Data = cloneTree(st.Data)
	if st.NextActions != nil {
		st.NextActions = append([]string(nil), st.NextActions...)
	}
	if st.Confidence != nil {
		c := *st.Confidence
		st.Confidence = &c
	}
	return st
}
