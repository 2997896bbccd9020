package internal

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaospilot/incident-console/internal/clock"
	"github.com/google/uuid"
)

// InsightType classifies an insight
type InsightType string

const (
	InsightPattern        InsightType = "pattern"
	InsightAnomaly        InsightType = "anomaly"
	InsightTrend          InsightType = "trend"
	InsightPrediction     InsightType = "prediction"
	InsightRecommendation InsightType = "recommendation"
)

// Severity of an insight
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Insight is an advisory record produced by background checks
type Insight struct {
	ID          string      `json:"id" yaml:"id"`
	Type        InsightType `json:"type" yaml:"type"`
	Title       string      `json:"title" yaml:"title"`
	Description string      `json:"description" yaml:"description"`
	Confidence  float64     `json:"confidence" yaml:"confidence"`
	Severity    Severity    `json:"severity" yaml:"severity"`
	Timestamp   time.Time   `json:"timestamp" yaml:"timestamp"`
	Actionable  bool        `json:"actionable" yaml:"actionable"`
	Actions     []string    `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// InsightLogCapacity is the number of insights retained
const InsightLogCapacity = 20

// InsightLog keeps the most recent insights, newest first. Inserting past
// capacity evicts the oldest entry.
type InsightLog struct {
	mu       sync.Mutex
	entries  []Insight
	capacity int
	feed     *Feed[[]Insight]
}

// NewInsightLog creates an empty log; capacity <= 0 uses InsightLogCapacity.
func NewInsightLog(capacity int) *InsightLog {
	if capacity <= 0 {
		capacity = InsightLogCapacity
	}
	return &InsightLog{capacity: capacity, feed: NewFeed[[]Insight]()}
}

// Add inserts each insight at the head, in the order given.
func (l *InsightLog) Add(insights ...Insight) {
	if len(insights) == 0 {
		return
	}

	l.mu.Lock()
	for _, in := range insights {
		l.entries = append(l.entries, Insight{})
		copy(l.entries[1:], l.entries)
		l.entries[0] = in
		if len(l.entries) > l.capacity {
			l.entries = l.entries[:l.capacity]
		}
	}
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	l.feed.Publish(snapshot)
}

// Insights returns a copy of the log, newest first.
func (l *InsightLog) Insights() []Insight {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Len returns the number of retained insights.
func (l *InsightLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear empties the log.
func (l *InsightLog) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
	l.feed.Publish([]Insight{})
}

// Subscribe streams the log after every change.
func (l *InsightLog) Subscribe() (<-chan []Insight, func()) {
	return l.feed.Subscribe(l.Insights())
}

func (l *InsightLog) snapshotLocked() []Insight {
	out := make([]Insight, len(l.entries))
	for i, in := range l.entries {
		in.Actions = append([]string(nil), in.Actions...)
		out[i] = in
	}
	return out
}

// Signals is one sample of observed system health
type Signals struct {
	HealthScore    float64 `json:"healthScore"`
	ResponseTimeMs float64 `json:"responseTimeMs"`
	SecurityScore  float64 `json:"securityScore"`
	CPU            float64 `json:"cpu"`
	Memory         float64 `json:"memory"`
}

// SignalSampler produces a fresh Signals value per tick
type SignalSampler interface {
	Sample() Signals
}

// RandomSampler produces synthetic signals
type RandomSampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSampler creates a sampler; a nil rng is seeded from the clock.
func NewRandomSampler(rng *rand.Rand) *RandomSampler {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RandomSampler{rng: rng}
}

// Sample draws one set of signals.
func (s *RandomSampler) Sample() Signals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Signals{
		HealthScore:    s.rng.Float64(),
		ResponseTimeMs: s.rng.Float64() * 1000,
		SecurityScore:  s.rng.Float64(),
		CPU:            s.rng.Float64() * 100,
		Memory:         s.rng.Float64() * 100,
	}
}

// MonitoringChecks evaluates the health, performance, security and
// resource checks. Each check yields at most one insight; IDs and
// timestamps are left for the caller.
func MonitoringChecks(s Signals) []Insight {
	var out []Insight
	if s.HealthScore < 0.7 {
		out = append(out, Insight{
			Type:        InsightAnomaly,
			Title:       "System Health Degradation",
			Description: "Overall health score dropped below the 0.70 threshold",
			Confidence:  0.85,
			Severity:    SeverityWarning,
			Actionable:  true,
			Actions:     []string{"Investigate system metrics", "Check service status"},
		})
	}
	if s.ResponseTimeMs > 800 {
		out = append(out, Insight{
			Type:        InsightTrend,
			Title:       "Performance Degradation Trend",
			Description: "Response times are trending above 800ms",
			Confidence:  0.80,
			Severity:    SeverityWarning,
			Actionable:  true,
			Actions:     []string{"Scale resources", "Optimize queries"},
		})
	}
	if s.SecurityScore < 0.8 {
		out = append(out, Insight{
			Type:        InsightPattern,
			Title:       "Security Pattern Detected",
			Description: "Unusual access patterns lowered the security score",
			Confidence:  0.75,
			Severity:    SeverityError,
			Actionable:  true,
			Actions:     []string{"Review access logs", "Enhance monitoring"},
		})
	}
	if s.CPU > 80 || s.Memory > 85 {
		out = append(out, Insight{
			Type:        InsightPrediction,
			Title:       "Resource Utilization Warning",
			Description: "CPU or memory utilization is approaching capacity",
			Confidence:  0.90,
			Severity:    SeverityWarning,
			Actionable:  true,
			Actions:     []string{"Scale resources", "Optimize processes"},
		})
	}
	return out
}

// ActivityChecks flags unusually many agents working at once.
func ActivityChecks(working int) []Insight {
	if working <= 2 {
		return nil
	}
	return []Insight{{
		Type:        InsightPattern,
		Title:       "High Agent Activity",
		Description: "More than two agents are working concurrently",
		Confidence:  0.80,
		Severity:    SeverityWarning,
		Actionable:  true,
		Actions:     []string{"Prioritize incidents", "Allocate resources"},
	}}
}

// AgentActivity reports how many agents are currently working
type AgentActivity interface {
	WorkingCount() int
}

// InsightOptions configures the generator's intervals
type InsightOptions struct {
	MonitorInterval time.Duration
	PatternInterval time.Duration
}

// InsightGenerator runs the periodic checks and feeds the insight log.
type InsightGenerator struct {
	log      *InsightLog
	sampler  SignalSampler
	activity AgentActivity
	clock    clock.Clock
	opts     InsightOptions

	monitoring    atomic.Bool
	autonomous    atomic.Bool
	monitorToggle chan struct{}
	patternToggle chan struct{}
}

// NewInsightGenerator creates a generator with both loops disabled.
func NewInsightGenerator(log *InsightLog, sampler SignalSampler, activity AgentActivity, clk clock.Clock, opts InsightOptions) *InsightGenerator {
	if clk == nil {
		clk = clock.Real()
	}
	if sampler == nil {
		sampler = NewRandomSampler(nil)
	}
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = 30 * time.Second
	}
	if opts.PatternInterval <= 0 {
		opts.PatternInterval = time.Minute
	}
	return &InsightGenerator{
		log:           log,
		sampler:       sampler,
		activity:      activity,
		clock:         clk,
		opts:          opts,
		monitorToggle: make(chan struct{}, 1),
		patternToggle: make(chan struct{}, 1),
	}
}

// Log returns the insight log the generator writes to.
func (g *InsightGenerator) Log() *InsightLog {
	return g.log
}

// SetMonitoring toggles the monitoring loop's tick scheduling.
func (g *InsightGenerator) SetMonitoring(enabled bool) {
	g.monitoring.Store(enabled)
	signal(g.monitorToggle)
}

// Monitoring reports whether proactive monitoring is on.
func (g *InsightGenerator) Monitoring() bool {
	return g.monitoring.Load()
}

// SetAutonomous toggles the pattern loop's tick scheduling.
func (g *InsightGenerator) SetAutonomous(enabled bool) {
	g.autonomous.Store(enabled)
	signal(g.patternToggle)
}

// SeedDefaults adds the two standing recommendations.
func (g *InsightGenerator) SeedDefaults() {
	now := g.clock.Now()
	g.log.Add(
		Insight{
			ID:          uuid.NewString(),
			Type:        InsightPattern,
			Title:       "Peak Usage Patterns",
			Description: "Traffic peaks recur on weekday mornings; error rates rise with them",
			Confidence:  0.85,
			Severity:    SeverityInfo,
			Timestamp:   now,
		},
		Insight{
			ID:          uuid.NewString(),
			Type:        InsightRecommendation,
			Title:       "Enable Automated Monitoring",
			Description: "Turn on proactive monitoring to catch degradations before they page anyone",
			Confidence:  0.95,
			Severity:    SeverityInfo,
			Timestamp:   now,
			Actionable:  true,
			Actions:     []string{"Enable proactive monitoring"},
		},
	)
}

// TickMonitoring runs the monitoring checks once.
func (g *InsightGenerator) TickMonitoring() []Insight {
	return g.record(MonitoringChecks(g.sampler.Sample()))
}

// TickPatterns runs the agent activity checks once.
func (g *InsightGenerator) TickPatterns() []Insight {
	if g.activity == nil {
		return nil
	}
	return g.record(ActivityChecks(g.activity.WorkingCount()))
}

func (g *InsightGenerator) record(insights []Insight) []Insight {
	if len(insights) == 0 {
		return nil
	}
	now := g.clock.Now()
	for i := range insights {
		insights[i].ID = uuid.NewString()
		insights[i].Timestamp = now
	}
	g.log.Add(insights...)
	return insights
}

// Start launches both loops. They stop when ctx is cancelled.
func (g *InsightGenerator) Start(ctx context.Context) {
	go g.runLoop(ctx, "monitoring", g.opts.MonitorInterval, &g.monitoring, g.monitorToggle, g.TickMonitoring)
	go g.runLoop(ctx, "patterns", g.opts.PatternInterval, &g.autonomous, g.patternToggle, g.TickPatterns)
}

// runLoop ticks while enabled. Disabling stops the ticker entirely, so
// no ticks are scheduled until the loop is enabled again.
func (g *InsightGenerator) runLoop(ctx context.Context, name string, interval time.Duration, enabled *atomic.Bool, toggle <-chan struct{}, tick func() []Insight) {
	var ticker *clock.Ticker
	var tickC <-chan time.Time
	stop := func() {
		if ticker != nil {
			ticker.Stop()
			ticker = nil
			tickC = nil
		}
	}
	defer stop()

	for {
		switch on := enabled.Load(); {
		case on && ticker == nil:
			ticker = g.clock.NewTicker(interval)
			tickC = ticker.C
		case !on:
			stop()
		}

		select {
		case <-ctx.Done():
			return
		case <-toggle:
		case <-tickC:
			if !enabled.Load() {
				continue
			}
			if produced := tick(); len(produced) > 0 {
				LogDebug("[insights] %s tick produced %d insight(s)", name, len(produced))
			}
		}
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
