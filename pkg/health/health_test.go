package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakePinger implements Pinger with a fixed outcome.
type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(ctx context.Context) error { return p.err }

func TestHandler(t *testing.T) {
	h := NewHandler(WithVersion("1.0.0"), WithTimeout(1*time.Second))

	t.Run("Register and check", func(t *testing.T) {
		h.Register("endpoint", &EndpointCheck{Pinger: &fakePinger{}})

		response := h.Check(context.Background())

		if response.Status != StatusHealthy {
			t.Errorf("Status = %v, want %v", response.Status, StatusHealthy)
		}

		if response.Version != "1.0.0" {
			t.Errorf("Version = %v, want %v", response.Version, "1.0.0")
		}

		if len(response.Checks) != 1 {
			t.Errorf("Checks = %d, want 1", len(response.Checks))
		}

		if _, ok := response.Checks["endpoint"]; !ok {
			t.Error("Expected 'endpoint' check in response")
		}
	})

	t.Run("Unregister", func(t *testing.T) {
		h.Unregister("endpoint")
		response := h.Check(context.Background())

		if len(response.Checks) != 0 {
			t.Errorf("Checks after unregister = %d, want 0", len(response.Checks))
		}
	})

	t.Run("RegisterFunc", func(t *testing.T) {
		h.RegisterFunc("func-check", func(ctx context.Context) CheckResult {
			return CheckResult{
				Status:  StatusHealthy,
				Message: "custom check",
			}
		})

		response := h.Check(context.Background())

		if result, ok := response.Checks["func-check"]; !ok {
			t.Error("Expected 'func-check' in response")
		} else if result.Message != "custom check" {
			t.Errorf("Message = %v, want 'custom check'", result.Message)
		}
	})
}

func TestHandlerOverallStatus(t *testing.T) {
	t.Run("Unhealthy wins", func(t *testing.T) {
		h := NewHandler()
		h.Register("ok", &EndpointCheck{Pinger: &fakePinger{}})
		h.Register("broken", &ArchiveCheck{Pinger: &fakePinger{err: errors.New("database is locked")}})

		response := h.Check(context.Background())

		if response.Status != StatusUnhealthy {
			t.Errorf("Status = %v, want %v", response.Status, StatusUnhealthy)
		}
		if response.Checks["broken"].Error == "" {
			t.Error("Expected error detail on the failing check")
		}
	})

	t.Run("Degraded outranks healthy", func(t *testing.T) {
		h := NewHandler()
		h.Register("ok", &EndpointCheck{Pinger: &fakePinger{}})
		h.RegisterFunc("slow", func(ctx context.Context) CheckResult {
			return CheckResult{Status: StatusDegraded, Message: "responses are slow"}
		})

		response := h.Check(context.Background())

		if response.Status != StatusDegraded {
			t.Errorf("Status = %v, want %v", response.Status, StatusDegraded)
		}
	})

	t.Run("No checks is healthy", func(t *testing.T) {
		h := NewHandler()
		response := h.Check(context.Background())

		if response.Status != StatusHealthy {
			t.Errorf("Status = %v, want %v", response.Status, StatusHealthy)
		}
	})
}

func TestEndpointCheck(t *testing.T) {
	t.Run("Reachable", func(t *testing.T) {
		check := &EndpointCheck{Pinger: &fakePinger{}}
		result := check.Check(context.Background())

		if result.Status != StatusHealthy {
			t.Errorf("Status = %v, want %v", result.Status, StatusHealthy)
		}
		if result.Message != "endpoint reachable" {
			t.Errorf("Message = %q", result.Message)
		}
	})

	t.Run("Unreachable", func(t *testing.T) {
		check := &EndpointCheck{Pinger: &fakePinger{err: errors.New("connection refused")}}
		result := check.Check(context.Background())

		if result.Status != StatusUnhealthy {
			t.Errorf("Status = %v, want %v", result.Status, StatusUnhealthy)
		}
		if result.Error != "connection refused" {
			t.Errorf("Error = %q", result.Error)
		}
	})

	t.Run("No pinger", func(t *testing.T) {
		check := &EndpointCheck{}
		result := check.Check(context.Background())

		if result.Status != StatusUnknown {
			t.Errorf("Status = %v, want %v", result.Status, StatusUnknown)
		}
	})
}

func TestArchiveCheck(t *testing.T) {
	check := &ArchiveCheck{Pinger: &fakePinger{}}

	if check.Name() != "archive" {
		t.Errorf("Name = %q, want archive", check.Name())
	}

	result := check.Check(context.Background())
	if result.Status != StatusHealthy {
		t.Errorf("Status = %v, want %v", result.Status, StatusHealthy)
	}
}

func TestDiskCheck(t *testing.T) {
	t.Run("Default path", func(t *testing.T) {
		check := &DiskCheck{Path: t.TempDir()}
		result := check.Check(context.Background())

		if result.Status != StatusHealthy {
			t.Errorf("Status = %v, want %v (error: %s)", result.Status, StatusHealthy, result.Error)
		}
		if _, ok := result.Metadata["free_bytes"]; !ok {
			t.Error("Expected free_bytes in metadata")
		}
	})

	t.Run("Impossible percent threshold", func(t *testing.T) {
		// The root filesystem always has something on it.
		check := &DiskCheck{Path: "/", MinFreePercent: 100}
		result := check.Check(context.Background())

		if result.Status != StatusUnhealthy {
			t.Errorf("Status = %v, want %v", result.Status, StatusUnhealthy)
		}
	})

	t.Run("Missing path", func(t *testing.T) {
		check := &DiskCheck{Path: "/no/such/path"}
		result := check.Check(context.Background())

		if result.Status != StatusUnhealthy {
			t.Errorf("Status = %v, want %v", result.Status, StatusUnhealthy)
		}
	})
}

func TestMemoryCheck(t *testing.T) {
	t.Run("Within threshold", func(t *testing.T) {
		check := &MemoryCheck{MaxHeapBytes: 1 << 40}
		result := check.Check(context.Background())

		if result.Status != StatusHealthy {
			t.Errorf("Status = %v, want %v", result.Status, StatusHealthy)
		}
		if _, ok := result.Metadata["heap_alloc_bytes"]; !ok {
			t.Error("Expected heap_alloc_bytes in metadata")
		}
	})

	t.Run("Over threshold", func(t *testing.T) {
		check := &MemoryCheck{MaxHeapBytes: 1}
		result := check.Check(context.Background())

		if result.Status != StatusUnhealthy {
			t.Errorf("Status = %v, want %v", result.Status, StatusUnhealthy)
		}
	})
}

func TestCheckTimeout(t *testing.T) {
	h := NewHandler(WithTimeout(50 * time.Millisecond))
	h.RegisterFunc("slow", func(ctx context.Context) CheckResult {
		select {
		case <-ctx.Done():
			return CheckResult{Status: StatusUnhealthy, Error: ctx.Err().Error()}
		case <-time.After(5 * time.Second):
			return CheckResult{Status: StatusHealthy}
		}
	})

	start := time.Now()
	response := h.Check(context.Background())
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Errorf("Check took %s, want the 50ms timeout to cut it short", elapsed)
	}
	if response.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want %v", response.Status, StatusUnhealthy)
	}
}
