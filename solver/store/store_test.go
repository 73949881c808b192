package store

import (
	"context"
	"errors"
	"os"
	"testing"
)

// storeUnderTest runs the shared conformance checks against any Store
// implementation.
func storeUnderTest(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("samples roundtrip", func(t *testing.T) {
		for iter, delta := range []float64{1.5, 0.4, 0.05} {
			if err := st.SaveSample(ctx, "run-001", iter, delta); err != nil {
				t.Fatalf("SaveSample failed: %v", err)
			}
		}

		samples, err := st.LoadSamples(ctx, "run-001")
		if err != nil {
			t.Fatalf("LoadSamples failed: %v", err)
		}
		if len(samples) != 3 {
			t.Fatalf("Expected 3 samples, got %d", len(samples))
		}
		for i, want := range []float64{1.5, 0.4, 0.05} {
			if samples[i].Iter != i || samples[i].Delta != want {
				t.Errorf("Sample %d = %+v, want iter=%d delta=%v", i, samples[i], i, want)
			}
		}
	})

	t.Run("results roundtrip", func(t *testing.T) {
		// Saved out of node order; loads come back sorted.
		if err := st.SaveResult(ctx, "run-001", 1, []float64{3, 4}, []float64{-1, 0}); err != nil {
			t.Fatalf("SaveResult failed: %v", err)
		}
		if err := st.SaveResult(ctx, "run-001", 0, []float64{1, 2}, []float64{1, 0}); err != nil {
			t.Fatalf("SaveResult failed: %v", err)
		}

		records, err := st.LoadResults(ctx, "run-001")
		if err != nil {
			t.Fatalf("LoadResults failed: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("Expected 2 records, got %d", len(records))
		}
		if records[0].Node != 0 || records[1].Node != 1 {
			t.Errorf("Records not ordered by node: %+v", records)
		}
		if records[0].X[0] != 1 || records[0].X[1] != 2 {
			t.Errorf("Record 0 x = %v, want [1 2]", records[0].X)
		}
		if records[1].V[0] != -1 {
			t.Errorf("Record 1 v = %v, want [-1 0]", records[1].V)
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		if _, err := st.LoadSamples(ctx, "run-unknown"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound for samples, got %v", err)
		}
		if _, err := st.LoadResults(ctx, "run-unknown"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound for results, got %v", err)
		}
	})
}

func TestMemStore(t *testing.T) {
	st := NewMemStore()
	defer func() { _ = st.Close() }()
	storeUnderTest(t, st)
}

func TestMemStoreResultCopies(t *testing.T) {
	st := NewMemStore()
	ctx := context.Background()

	x := []float64{1}
	if err := st.SaveResult(ctx, "run-001", 0, x, []float64{0}); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	x[0] = 99

	records, err := st.LoadResults(ctx, "run-001")
	if err != nil {
		t.Fatalf("LoadResults failed: %v", err)
	}
	if records[0].X[0] != 1 {
		t.Errorf("Stored vector aliased caller memory: got %v", records[0].X[0])
	}
}

func TestSQLiteStore(t *testing.T) {
	st, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer func() { _ = st.Close() }()
	storeUnderTest(t, st)
}

func TestSQLiteStoreReplaceResult(t *testing.T) {
	st, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer func() { _ = st.Close() }()
	ctx := context.Background()

	if err := st.SaveResult(ctx, "run-001", 0, []float64{1}, []float64{0}); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	if err := st.SaveResult(ctx, "run-001", 0, []float64{2}, []float64{0}); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	records, err := st.LoadResults(ctx, "run-001")
	if err != nil {
		t.Fatalf("LoadResults failed: %v", err)
	}
	if len(records) != 1 || records[0].X[0] != 2 {
		t.Errorf("Expected the re-saved record, got %+v", records)
	}
}

// TestMySQLStore requires a reachable server; set MYSQL_TEST_DSN to run it.
func TestMySQLStore(t *testing.T) {
	dsn := os.Getenv("MYSQL_TEST_DSN")
	if dsn == "" {
		t.Skip("MYSQL_TEST_DSN not set; skipping MySQL integration test")
	}

	st, err := NewMySQLStore(dsn)
	if err != nil {
		t.Fatalf("NewMySQLStore failed: %v", err)
	}
	defer func() { _ = st.Close() }()
	storeUnderTest(t, st)
}
