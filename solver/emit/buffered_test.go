package emit

import (
	"context"
	"sync"
	"testing"
)

func TestBufferedEmitterHistory(t *testing.T) {
	emitter := NewBufferedEmitter()

	emitter.Emit(Event{RunID: "run-001", Msg: "run_start", Node: -1})
	emitter.Emit(Event{RunID: "run-001", Msg: "worker_done", Node: 0, Iter: 10})
	emitter.Emit(Event{RunID: "run-002", Msg: "run_start", Node: -1})

	history := emitter.GetHistory("run-001")
	if len(history) != 2 {
		t.Fatalf("Expected 2 events for run-001, got %d", len(history))
	}
	if history[0].Msg != "run_start" || history[1].Msg != "worker_done" {
		t.Errorf("Events out of order: %+v", history)
	}

	if got := emitter.GetHistory("run-unknown"); len(got) != 0 {
		t.Errorf("Expected no events for unknown run, got %d", len(got))
	}
}

func TestBufferedEmitterFilter(t *testing.T) {
	emitter := NewBufferedEmitter()
	for iter := 0; iter < 10; iter++ {
		emitter.Emit(Event{RunID: "run-001", Msg: "round", Node: iter % 2, Iter: iter})
	}
	emitter.Emit(Event{RunID: "run-001", Msg: "run_complete", Node: -1, Iter: 10})

	node := 0
	byNode := emitter.GetHistoryWithFilter("run-001", HistoryFilter{Node: &node})
	if len(byNode) != 5 {
		t.Errorf("Expected 5 events for node 0, got %d", len(byNode))
	}

	byMsg := emitter.GetHistoryWithFilter("run-001", HistoryFilter{Msg: "run_complete"})
	if len(byMsg) != 1 {
		t.Errorf("Expected 1 run_complete event, got %d", len(byMsg))
	}

	minIter, maxIter := 3, 5
	byRange := emitter.GetHistoryWithFilter("run-001", HistoryFilter{MinIter: &minIter, MaxIter: &maxIter})
	if len(byRange) != 3 {
		t.Errorf("Expected 3 events in iteration range [3,5], got %d", len(byRange))
	}
}

func TestBufferedEmitterClear(t *testing.T) {
	emitter := NewBufferedEmitter()
	emitter.Emit(Event{RunID: "run-001", Msg: "run_start"})
	emitter.Emit(Event{RunID: "run-002", Msg: "run_start"})

	emitter.Clear("run-001")
	if len(emitter.GetHistory("run-001")) != 0 {
		t.Error("Expected run-001 events cleared")
	}
	if len(emitter.GetHistory("run-002")) != 1 {
		t.Error("Expected run-002 events untouched")
	}

	emitter.ClearAll()
	if len(emitter.GetHistory("run-002")) != 0 {
		t.Error("Expected all events cleared")
	}
}

func TestBufferedEmitterConcurrent(t *testing.T) {
	emitter := NewBufferedEmitter()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(node int) {
			defer wg.Done()
			for iter := 0; iter < 100; iter++ {
				emitter.Emit(Event{RunID: "run-001", Msg: "round", Node: node, Iter: iter})
			}
		}(g)
	}
	wg.Wait()

	if got := len(emitter.GetHistory("run-001")); got != 800 {
		t.Errorf("Expected 800 events, got %d", got)
	}
}

func TestBufferedEmitterBatch(t *testing.T) {
	emitter := NewBufferedEmitter()
	events := []Event{
		{RunID: "run-001", Msg: "a"},
		{RunID: "run-001", Msg: "b"},
	}
	if err := emitter.EmitBatch(context.Background(), events); err != nil {
		t.Fatalf("EmitBatch failed: %v", err)
	}
	if got := len(emitter.GetHistory("run-001")); got != 2 {
		t.Errorf("Expected 2 events, got %d", got)
	}
	if err := emitter.Flush(context.Background()); err != nil {
		t.Errorf("Flush should succeed, got %v", err)
	}
}
