package internal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/chaospilot/incident-console/internal/clock"
)

// Transport is the backend session and messaging collaborator
type Transport interface {
	// CreateOrResumeSession creates the session, or returns the existing
	// one when the backend already has it.
	CreateOrResumeSession(ctx context.Context, sessionID string, state map[string]any) (*Session, error)
	SendMessage(ctx context.Context, sessionID string, content Content) ([]ResponseRecord, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Metrics summarizes engine state for dashboards
type Metrics struct {
	ActiveWorkflows     int                 `json:"activeWorkflows"`
	ResolvedWorkflows   int                 `json:"resolvedWorkflows"`
	MonitoringWorkflows int                 `json:"monitoringWorkflows"`
	SuccessRate         int                 `json:"successRate"` // resolved / triggered, percent
	TotalInsights       int                 `json:"totalInsights"`
	CriticalInsights    int                 `json:"criticalInsights"`
	ActionableInsights  int                 `json:"actionableInsights"`
	InsightsByType      map[InsightType]int `json:"insightsByType"`
	ActiveAgents        int                 `json:"activeAgents"`
	CompletedAgents     int                 `json:"completedAgents"`
	AgentEfficiency     int                 `json:"agentEfficiency"` // completed / known, percent
	PendingApprovals    int                 `json:"pendingApprovals"`
}

// DashboardSnapshot is a consistent-enough copy of every store for display
type DashboardSnapshot struct {
	SessionID  string               `json:"sessionId"`
	Autonomous bool                 `json:"autonomous"`
	Monitoring bool                 `json:"monitoring"`
	Messages   []Message            `json:"messages"`
	Phases     []WorkflowPhase      `json:"phases"`
	Agents     []AgentState         `json:"agents"`
	Workflows  []AutonomousWorkflow `json:"workflows"`
	Insights   []Insight            `json:"insights"`
	Metrics    Metrics              `json:"metrics"`
	TakenAt    time.Time            `json:"takenAt"`
}

// ComputeMetrics derives dashboard metrics from store snapshots
func ComputeMetrics(workflows []AutonomousWorkflow, insights []Insight, agents []AgentState) Metrics {
	m := Metrics{InsightsByType: make(map[InsightType]int)}

	triggered := 0
	for _, w := range workflows {
		switch w.Status {
		case WorkflowMonitoring:
			m.MonitoringWorkflows++
		case WorkflowResolved:
			m.ResolvedWorkflows++
			triggered++
		default:
			m.ActiveWorkflows++
			triggered++
		}
		m.PendingApprovals += w.PendingApprovals()
	}
	m.SuccessRate = percent(m.ResolvedWorkflows, triggered)

	m.TotalInsights = len(insights)
	for _, in := range insights {
		if in.Severity == SeverityCritical || in.Severity == SeverityError {
			m.CriticalInsights++
		}
		if in.Actionable {
			m.ActionableInsights++
		}
		m.InsightsByType[in.Type]++
	}

	for _, a := range agents {
		switch a.Status {
		case AgentThinking, AgentWorking:
			m.ActiveAgents++
		case AgentCompleted:
			m.CompletedAgents++
		}
	}
	m.AgentEfficiency = percent(m.CompletedAgents, len(agents))

	return m
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

// routingRules map operator keywords to the agent likely to answer first
var routingRules = []struct {
	keywords []string
	agent    string
}{
	{[]string{"plan", "strategy"}, "planner"},
	{[]string{"fix", "recommend"}, "action_recommender"},
	{[]string{"execute", "apply"}, "fixer"},
	{[]string{"notify", "alert"}, "notifier"},
}

// RouteMessage guesses which agent an operator message is aimed at
func RouteMessage(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range routingRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.agent
			}
		}
	}
	return "detector"
}

// ConsoleOptions injects the console's time and randomness sources
type ConsoleOptions struct {
	Clock   clock.Clock
	Rand    *rand.Rand
	Sampler SignalSampler
}

// Console owns one instance of each engine store and drives them from
// backend exchanges
type Console struct {
	cfg        Config
	transport  Transport
	sessions   *SessionStore
	clock      clock.Clock
	normalizer *Normalizer

	log      *ConversationLog
	phases   *PhaseTracker
	agents   *AgentStateStore
	engine   *WorkflowEngine
	insights *InsightGenerator

	sendMu sync.Mutex

	stateMu   sync.RWMutex
	sessionID string
	started   bool
}

// NewConsole wires the stores together. sessions may be nil, in which case
// nothing is persisted locally.
func NewConsole(cfg Config, transport Transport, sessions *SessionStore, opts ConsoleOptions) *Console {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}

	agents := NewAgentStateStore(clk, opts.Rand)
	c := &Console{
		cfg:        cfg,
		transport:  transport,
		sessions:   sessions,
		clock:      clk,
		normalizer: NewNormalizer(),
		log:        NewConversationLog(clk),
		phases:     NewPhaseTracker(),
		agents:     agents,
		engine:     NewWorkflowEngine(clk, cfg.EngineOptions()),
		insights:   NewInsightGenerator(NewInsightLog(InsightLogCapacity), opts.Sampler, agents, clk, cfg.InsightOptions()),
	}

	c.engine.SeedMonitoring()
	c.insights.SeedDefaults()
	c.SetAutonomous(cfg.Autonomous)
	c.SetMonitoring(cfg.Monitoring)
	return c
}

// Start launches both insight loops. They stop when ctx is cancelled.
// Calling Start twice is a no-op.
func (c *Console) Start(ctx context.Context) {
	c.stateMu.Lock()
	if c.started {
		c.stateMu.Unlock()
		return
	}
	c.started = true
	c.stateMu.Unlock()

	c.insights.Start(ctx)
}

// SessionID returns the active backend session id
func (c *Console) SessionID() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.sessionID
}

func (c *Console) setSessionID(id string) {
	c.stateMu.Lock()
	c.sessionID = id
	c.stateMu.Unlock()
}

// SendMessage posts an operator message and ingests the reply. Calls are
// serialized. Transport failures are not returned; they are appended to
// the conversation as one error message. The returned slice holds every
// message appended during the call.
func (c *Console) SendMessage(ctx context.Context, text string) []Message {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	before := c.log.Len()
	c.log.AppendUser(text)

	routed := RouteMessage(text)
	c.agents.Update(routed, func(a *AgentState) {
		a.Status = AgentThinking
		a.Progress = 10
		a.Message = "Analyzing request..."
	})
	c.phases.Recompute(c.log.Messages())

	if err := c.exchange(ctx, text); err != nil {
		LogError("[console] send failed: %v", err)
		c.log.AppendError(err)
		c.agents.Update(routed, func(a *AgentState) {
			a.Status = AgentError
			a.Progress = 0
			a.Message = "Request failed"
		})
	}

	return c.log.Messages()[before:]
}

func (c *Console) exchange(ctx context.Context, text string) error {
	if c.transport == nil {
		return errors.New("no backend transport configured")
	}

	id, err := c.ensureSessionID()
	if err != nil {
		return err
	}

	session, err := c.transport.CreateOrResumeSession(ctx, id, nil)
	if err != nil {
		return fmt.Errorf("failed to open session %s: %w", id, err)
	}

	records, err := c.transport.SendMessage(ctx, session.ID, NewTextContent(text))
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	c.Ingest(records)

	session.Events = nil
	session.LastUpdateTime = float64(c.clock.Now().UnixMilli()) / 1000
	c.remember(*session)
	return nil
}

// ensureSessionID returns the active session id, restoring it from the
// local store or generating a new one
func (c *Console) ensureSessionID() (string, error) {
	if id := c.SessionID(); id != "" {
		return id, nil
	}

	var id string
	if c.sessions != nil {
		stored, err := c.sessions.EnsureSessionID()
		if err != nil {
			return "", fmt.Errorf("failed to load session id: %w", err)
		}
		id = stored
	} else {
		id = NewSessionID()
	}
	c.setSessionID(id)
	return id, nil
}

func (c *Console) remember(session Session) {
	if c.sessions == nil {
		return
	}
	if err := c.sessions.SetCurrentSessionID(session.ID); err != nil {
		LogWarn("[console] failed to store session id: %v", err)
	}
	if err := c.sessions.Remember(session); err != nil {
		LogWarn("[console] failed to remember session: %v", err)
	}
}

// Ingest appends the facts of a batch of records, updates agent states
// and recomputes the phases. Agents still working at the end of the batch
// are marked completed; agents left thinking go back to idle. Every agent
// that completes with new data triggers a workflow before Ingest returns.
func (c *Console) Ingest(records []ResponseRecord) {
	c.ingest(records, true)
}

// updateAgent applies one agent update. With trigger set, a completion
// carrying new data goes straight to the workflow engine.
func (c *Console) updateAgent(id string, trigger bool, mutate func(*AgentState)) {
	change := c.agents.Apply(id, mutate)
	if !trigger || !change.BecameCompletedWithData() {
		return
	}
	if wf, ok := c.engine.Trigger(change.Current); ok {
		LogDebug("[console] %s completion triggered %s", id, wf.ID)
	}
}

func (c *Console) ingest(records []ResponseRecord, trigger bool) {
	touched := make(map[string]bool)
	var order []string
	touch := func(agent string) {
		if !touched[agent] {
			touched[agent] = true
			order = append(order, agent)
		}
	}

	replayRecords(c.normalizer, c.log, records, func(author string, fact Fact) {
		switch fact.Kind {
		case FactTransferStart:
			if fact.Agent == "" {
				return
			}
			touch(fact.Agent)
			c.updateAgent(fact.Agent, trigger, func(a *AgentState) {
				a.Status = AgentThinking
				a.Progress = 25
				a.Message = fmt.Sprintf("Receiving handoff from %s", AgentDisplayName(author))
			})
		case FactText, FactStructuredResult:
			if author == "" {
				return
			}
			touch(author)
			if fact.Payload != nil {
				confidence := payloadConfidence(fact.Payload)
				c.updateAgent(author, trigger, func(a *AgentState) {
					a.Status = AgentCompleted
					a.Progress = 100
					a.Message = SummarizeResult(ParseAgentResult(author, fact.Payload))
					a.Data = fact.Payload
					if confidence != nil {
						a.Confidence = confidence
					}
				})
				return
			}
			c.updateAgent(author, trigger, func(a *AgentState) {
				if a.Status == AgentCompleted {
					return
				}
				a.Status = AgentWorking
				a.Progress = 60
				a.Message = "Working..."
			})
		}
	})

	for _, id := range c.thinkingOrWorking(order) {
		c.updateAgent(id, trigger, func(a *AgentState) {
			switch a.Status {
			case AgentWorking:
				a.Status = AgentCompleted
				a.Progress = 100
				a.Message = "Analysis complete"
			case AgentThinking:
				a.Status = AgentIdle
				a.Progress = 0
				a.Message = "Ready for analysis"
			}
		})
	}

	c.phases.Recompute(c.log.Messages())
}

// thinkingOrWorking returns every agent left mid-flight after a round:
// those touched by it, plus any still marked from the routing step.
func (c *Console) thinkingOrWorking(touched []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		if st, ok := c.agents.Get(id); ok && (st.Status == AgentThinking || st.Status == AgentWorking) {
			out = append(out, id)
		}
	}
	for _, id := range touched {
		add(id)
	}
	for _, st := range c.agents.All() {
		add(st.ID)
	}
	return out
}

// Resume switches to an existing backend session and rebuilds the
// conversation and agent states from its history. Completions in the
// history do not trigger workflows; they were acted on when they happened.
func (c *Console) Resume(ctx context.Context, sessionID string) error {
	if c.transport == nil {
		return errors.New("no backend transport configured")
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	session, err := c.transport.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	c.resetConversation()
	c.setSessionID(session.ID)
	c.ingest(session.Events, false)

	if c.sessions != nil {
		if err := c.sessions.SetCurrentSessionID(session.ID); err != nil {
			LogWarn("[console] failed to store session id: %v", err)
		}
	}
	LogInfo("[console] resumed session %s with %d event(s)", session.ID, len(session.Events))
	return nil
}

// Replay ingests recorded events under sessionID, triggering a workflow
// for every completion with data, and waits until all walks are done.
func (c *Console) Replay(sessionID string, records []ResponseRecord) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.resetConversation()
	c.setSessionID(sessionID)
	c.ingest(records, true)
	c.engine.Wait()
	return nil
}

// NewSession starts a fresh conversation under a new session id
func (c *Console) NewSession() (string, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	id := NewSessionID()
	if c.sessions != nil {
		if err := c.sessions.SetCurrentSessionID(id); err != nil {
			return "", err
		}
	}
	c.resetConversation()
	c.setSessionID(id)
	return id, nil
}

// EndSession deletes the active session from the backend and forgets it
// locally. The conversation is cleared.
func (c *Console) EndSession(ctx context.Context) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	id := c.SessionID()
	if id == "" {
		return nil
	}

	if c.transport != nil {
		if err := c.transport.DeleteSession(ctx, id); err != nil {
			return fmt.Errorf("failed to delete session %s: %w", id, err)
		}
	}
	if c.sessions != nil {
		if err := c.sessions.Forget(id); err != nil {
			LogWarn("[console] failed to forget session: %v", err)
		}
		if err := c.sessions.ClearCurrentSession(); err != nil {
			LogWarn("[console] failed to clear session id: %v", err)
		}
	}

	c.resetConversation()
	c.setSessionID("")
	return nil
}

// ClearConversation empties the conversation, phases and agent states.
// Workflows and insights are kept.
func (c *Console) ClearConversation() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.resetConversation()
}

func (c *Console) resetConversation() {
	c.log.Clear()
	c.phases.Reset()
	c.agents.Reset()
}

// SetAutonomous toggles autonomous mode: agent reasoning, workflow
// triggering and the pattern loop
func (c *Console) SetAutonomous(enabled bool) {
	c.agents.SetAutonomous(enabled)
	c.engine.SetEnabled(enabled)
	c.insights.SetAutonomous(enabled)
}

// SetMonitoring toggles the proactive monitoring loop
func (c *Console) SetMonitoring(enabled bool) {
	c.insights.SetMonitoring(enabled)
}

// Transcript captures the current conversation for archiving or export
func (c *Console) Transcript() *Transcript {
	return &Transcript{
		SessionID:  c.SessionID(),
		AppName:    c.cfg.Backend.AppName,
		UserID:     c.cfg.Backend.UserID,
		Messages:   c.log.Messages(),
		Phases:     c.phases.Phases(),
		Workflows:  c.engine.Workflows(),
		ExportedAt: c.clock.Now().UTC(),
	}
}

// Snapshot copies every store
func (c *Console) Snapshot() DashboardSnapshot {
	workflows := c.engine.Workflows()
	insights := c.insights.Log().Insights()
	agents := c.agents.All()

	return DashboardSnapshot{
		SessionID:  c.SessionID(),
		Autonomous: c.agents.Autonomous(),
		Monitoring: c.insights.Monitoring(),
		Messages:   c.log.Messages(),
		Phases:     c.phases.Phases(),
		Agents:     agents,
		Workflows:  workflows,
		Insights:   insights,
		Metrics:    ComputeMetrics(workflows, insights, agents),
		TakenAt:    c.clock.Now(),
	}
}

// Watch streams a fresh snapshot whenever any store changes. Bursts of
// changes coalesce into the latest snapshot. The channel closes when ctx
// is done.
func (c *Console) Watch(ctx context.Context) <-chan DashboardSnapshot {
	messages, cancelMessages := c.log.Subscribe()
	phases, cancelPhases := c.phases.Subscribe()
	agents, cancelAgents := c.agents.Subscribe()
	workflows, cancelWorkflows := c.engine.Subscribe()
	insights, cancelInsights := c.insights.Log().Subscribe()

	out := make(chan DashboardSnapshot, 1)
	go func() {
		defer close(out)
		defer cancelMessages()
		defer cancelPhases()
		defer cancelAgents()
		defer cancelWorkflows()
		defer cancelInsights()

		for {
			select {
			case <-ctx.Done():
				return
			case <-messages:
			case <-phases:
			case <-agents:
			case <-workflows:
			case <-insights:
			}

			snap := c.Snapshot()
			select {
			case out <- snap:
			default:
				select {
				case <-out:
				default:
				}
				out <- snap
			}
		}
	}()
	return out
}

// Agents exposes the agent store for read access
func (c *Console) Agents() *AgentStateStore { return c.agents }

// Engine exposes the workflow engine
func (c *Console) Engine() *WorkflowEngine { return c.engine }

// Insights exposes the insight generator
func (c *Console) Insights() *InsightGenerator { return c.insights }

// Transport returns the backend collaborator
func (c *Console) Transport() Transport { return c.transport }
