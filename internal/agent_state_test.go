package internal

import (
	"math/rand"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/chaospilot/incident-console/internal/clock"
)

func newTestAgentStore() *AgentStateStore {
	return NewAgentStateStore(clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)), rand.New(rand.NewSource(1)))
}

func TestAgentStateStore_DefaultsAndUpdate(t *testing.T) {
	s := newTestAgentStore()

	if _, ok := s.Get("detector"); ok {
		t.Fatal("Get() found an agent before any update")
	}

	st := s.Update("detector", func(a *AgentState) {
		a.Status = AgentWorking
		a.Progress = 40
	})
	if st.Name != "Intelligent Detector" {
		t.Errorf("Name = %q, want Intelligent Detector", st.Name)
	}
	if st.Message != "Ready for analysis" {
		t.Errorf("Message = %q, want default", st.Message)
	}
	if st.Timestamp.IsZero() {
		t.Error("Timestamp should be stamped")
	}

	s.Update("detector", func(a *AgentState) { a.Status = AgentCompleted })
	got, _ := s.Get("detector")
	if got.Status != AgentCompleted || got.Progress != 40 {
		t.Errorf("last-write-wins merge = %+v", got)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestAgentStateStore_ReasoningOnlyWhenAutonomous(t *testing.T) {
	s := newTestAgentStore()

	st := s.Update("planner", func(a *AgentState) { a.Status = AgentThinking })
	if st.Reasoning != "" || len(st.NextActions) != 0 {
		t.Errorf("reasoning generated with autonomous mode off: %+v", st)
	}

	s.SetAutonomous(true)
	st = s.Update("planner", func(a *AgentState) { a.Status = AgentThinking })
	if st.Reasoning == "" {
		t.Error("Reasoning should be generated for a thinking agent in autonomous mode")
	}
	if len(st.NextActions) == 0 {
		t.Error("NextActions should be predicted in autonomous mode")
	}
	if !st.Autonomous {
		t.Error("Autonomous flag should be set on the state")
	}

	st = s.Update("weather_bot", func(a *AgentState) { a.Status = AgentThinking })
	if st.Reasoning != "Evaluating the latest pipeline output" {
		t.Errorf("fallback reasoning = %q", st.Reasoning)
	}
}

func TestAgentStateStore_Apply(t *testing.T) {
	s := newTestAgentStore()

	first := s.Apply("detector", func(a *AgentState) { a.Status = AgentWorking })
	if first.BecameCompletedWithData() {
		t.Error("working update should not trigger")
	}
	if first.Previous.Status != AgentIdle || first.Current.Status != AgentWorking {
		t.Errorf("first change = %s -> %s", first.Previous.Status, first.Current.Status)
	}

	second := s.Apply("detector", func(a *AgentState) {
		a.Status = AgentCompleted
		a.Data = map[string]any{"anomalies": []any{"x"}}
	})
	if !second.BecameCompletedWithData() || !second.DataChanged {
		t.Errorf("completion with data should trigger: %+v", second)
	}

	third := s.Apply("detector", func(a *AgentState) { a.Message = "done" })
	if third.BecameCompletedWithData() {
		t.Error("re-stamping a completed agent without new data should not trigger")
	}

	fourth := s.Apply("detector", func(a *AgentState) { a.Data = map[string]any{"anomalies": []any{"x", "y"}} })
	if !fourth.BecameCompletedWithData() {
		t.Error("new data on a completed agent should trigger")
	}
}

func TestAgentStateStore_DataIsCopied(t *testing.T) {
	s := newTestAgentStore()
	payload := map[string]any{"anomalies": []any{"spike"}, "severity": "warning"}

	st := s.Update("detector", func(a *AgentState) {
		a.Status = AgentCompleted
		a.Data = payload
	})

	payload["severity"] = "critical"
	st.Data.(map[string]any)["anomalies"] = []any{}
	got, _ := s.Get("detector")
	got.Data.(map[string]any)["severity"] = "info"
	s.All()[0].Data.(map[string]any)["anomalies"].([]any)[0] = "mutated"

	want := map[string]any{"anomalies": []any{"spike"}, "severity": "warning"}
	if again, _ := s.Get("detector"); !reflect.DeepEqual(again.Data, want) {
		t.Errorf("stored Data = %v, want %v", again.Data, want)
	}
}

func TestAgentStateStore_OrderAndCounts(t *testing.T) {
	s := newTestAgentStore()
	s.Update("notifier", func(a *AgentState) { a.Status = AgentWorking })
	s.Update("zeta", func(a *AgentState) { a.Status = AgentWorking })
	s.Update("detector", func(a *AgentState) { a.Status = AgentCompleted })
	s.Update("planner", func(a *AgentState) { a.Status = AgentThinking })

	all := s.All()
	wantOrder := []string{"detector", "planner", "notifier", "zeta"}
	for i, id := range wantOrder {
		if all[i].ID != id {
			t.Errorf("All()[%d] = %s, want %s", i, all[i].ID, id)
		}
	}

	if got := s.WorkingCount(); got != 2 {
		t.Errorf("WorkingCount() = %d, want 2", got)
	}
	if got := s.CountByStatus(AgentThinking, AgentWorking); got != 3 {
		t.Errorf("CountByStatus(thinking, working) = %d, want 3", got)
	}

	s.Reset()
	if s.Len() != 0 {
		t.Errorf("Len() after Reset() = %d", s.Len())
	}
}

func TestAgentStateStore_ConcurrentUpdates(t *testing.T) {
	s := newTestAgentStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.Update("detector", func(a *AgentState) { a.Progress = n })
			_ = s.All()
		}(i)
	}
	wg.Wait()

	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestAgentDisplayName(t *testing.T) {
	tests := map[string]string{
		"fixer":         "Automated Fixer",
		"log_collector": "Log Collector",
		"x":             "X",
	}
	for id, want := range tests {
		if got := AgentDisplayName(id); got != want {
			t.Errorf("AgentDisplayName(%q) = %q, want %q", id, got, want)
		}
	}
}
