package solver

import (
	"context"
	"errors"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"
)

func chainPlan(t *testing.T) *Plan {
	t.Helper()
	w := mat.NewDense(2, 2, []float64{1, -1, -1, 1})
	l := mat.NewDense(2, 2, []float64{0, 0, 1, 0})
	p, err := BuildPlan(w, l, 1e-9)
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	return p
}

func TestFabricFIFO(t *testing.T) {
	ctx := context.Background()
	f := newFabric(chainPlan(t), false)

	first := []float64{1}
	second := []float64{2}
	if err := f.send(ctx, 0, 1, first); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := f.send(ctx, 0, 1, second); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	got, err := f.recv(ctx, 0, 1)
	if err != nil {
		t.Fatalf("recv failed: %v", err)
	}
	if got[0] != 1 {
		t.Errorf("Expected first message 1, got %v", got[0])
	}
	got, err = f.recv(ctx, 0, 1)
	if err != nil {
		t.Fatalf("recv failed: %v", err)
	}
	if got[0] != 2 {
		t.Errorf("Expected second message 2, got %v", got[0])
	}

	if n := f.sent(0, 1); n != 2 {
		t.Errorf("Expected 2 messages counted on (0,1), got %d", n)
	}
	if n := f.sent(1, 0); n != 0 {
		t.Errorf("Expected 0 messages counted on (1,0), got %d", n)
	}
}

func TestFabricUnknownPair(t *testing.T) {
	ctx := context.Background()
	f := newFabric(chainPlan(t), false)

	// (1,0) exists for the W exchange, (0,0) never does.
	if err := f.send(ctx, 0, 0, []float64{1}); err == nil {
		t.Error("Expected error sending on a pair the plan never created")
	}
	if _, err := f.recv(ctx, 0, 0); err == nil {
		t.Error("Expected error receiving on a pair the plan never created")
	}
}

func TestFabricCancellation(t *testing.T) {
	f := newFabric(chainPlan(t), false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.recv(ctx, 0, 1)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("recv did not observe cancellation")
	}
}

func TestFabricTelemetry(t *testing.T) {
	ctx := context.Background()
	f := newFabric(chainPlan(t), true)

	// Publishes up to the buffered lead succeed without a consumer.
	for k := 0; k < 5; k++ {
		if err := f.publish(ctx, 0, []float64{float64(k)}); err != nil {
			t.Fatalf("publish %d failed: %v", k, err)
		}
	}
	for k := 0; k < 5; k++ {
		got, err := f.sample(ctx, 0)
		if err != nil {
			t.Fatalf("sample %d failed: %v", k, err)
		}
		if got[0] != float64(k) {
			t.Errorf("Expected sample %d, got %v", k, got[0])
		}
	}
}
