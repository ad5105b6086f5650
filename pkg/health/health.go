// Package health reports on the dependencies of the SBOM generator:
// the knowledge-graph endpoint, the document archive, and the local
// disk and memory the archive lives on.
package health

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// =============================================================================
// Health Check Interface
// =============================================================================

// Checker is the interface for health checks.
type Checker interface {
	// Name returns the check name.
	Name() string

	// Check performs the health check.
	Check(ctx context.Context) CheckResult
}

// CheckFunc is a function type that implements Checker.
type CheckFunc func(ctx context.Context) CheckResult

func (f CheckFunc) Name() string                          { return "" }
func (f CheckFunc) Check(ctx context.Context) CheckResult { return f(ctx) }

// Pinger is anything that can verify its backing connection. Both the
// query client and the archive store satisfy it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// =============================================================================
// Health Status Types
// =============================================================================

// Status represents the health status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
	StatusUnknown   Status = "unknown"
)

// CheckResult holds the result of a health check.
type CheckResult struct {
	// Status is the health status.
	Status Status `json:"status"`

	// Message provides additional details.
	Message string `json:"message,omitempty"`

	// Duration is how long the check took.
	Duration time.Duration `json:"duration_ms"`

	// Timestamp is when the check was performed.
	Timestamp time.Time `json:"timestamp"`

	// Error is the error if the check failed.
	Error string `json:"error,omitempty"`

	// Metadata holds additional check-specific data.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Response is the full health check response.
type Response struct {
	// Status is the overall health status.
	Status Status `json:"status"`

	// Timestamp is when the health check was performed.
	Timestamp time.Time `json:"timestamp"`

	// Checks contains individual check results.
	Checks map[string]CheckResult `json:"checks,omitempty"`

	// Version is the application version.
	Version string `json:"version,omitempty"`

	// Uptime is how long the application has been running.
	Uptime time.Duration `json:"uptime_seconds,omitempty"`
}

// =============================================================================
// Health Handler
// =============================================================================

// Handler manages health checks.
type Handler struct {
	mu sync.RWMutex

	checks map[string]Checker

	version   string
	startTime time.Time
	timeout   time.Duration
}

// HandlerOption configures the health handler.
type HandlerOption func(*Handler)

// WithVersion sets the application version.
func WithVersion(version string) HandlerOption {
	return func(h *Handler) {
		h.version = version
	}
}

// WithTimeout sets the check timeout.
func WithTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) {
		h.timeout = timeout
	}
}

// NewHandler creates a new health handler.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		checks:    make(map[string]Checker),
		startTime: time.Now(),
		timeout:   5 * time.Second,
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Register adds a health check.
func (h *Handler) Register(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = checker
}

// RegisterFunc adds a health check function.
func (h *Handler) RegisterFunc(name string, fn func(ctx context.Context) CheckResult) {
	h.Register(name, CheckFunc(fn))
}

// Unregister removes a health check.
func (h *Handler) Unregister(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.checks, name)
}

// =============================================================================
// Check Execution
// =============================================================================

// Check runs all registered health checks concurrently.
func (h *Handler) Check(ctx context.Context) Response {
	h.mu.RLock()
	checks := make(map[string]Checker, len(h.checks))
	for name, checker := range h.checks {
		checks[name] = checker
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make(map[string]CheckResult)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, checker := range checks {
		wg.Add(1)
		go func(name string, checker Checker) {
			defer wg.Done()

			start := time.Now()
			result := checker.Check(ctx)
			result.Duration = time.Since(start)
			result.Timestamp = time.Now()

			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(name, checker)
	}

	wg.Wait()

	// Any unhealthy check wins; degraded outranks healthy.
	overallStatus := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			overallStatus = StatusUnhealthy
		case StatusDegraded:
			if overallStatus != StatusUnhealthy {
				overallStatus = StatusDegraded
			}
		}
	}

	return Response{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Checks:    results,
		Version:   h.version,
		Uptime:    time.Since(h.startTime),
	}
}

// =============================================================================
// Built-in Health Checks
// =============================================================================

// EndpointCheck verifies the knowledge-graph endpoint answers queries.
type EndpointCheck struct {
	Pinger Pinger
}

func (c *EndpointCheck) Name() string { return "endpoint" }
func (c *EndpointCheck) Check(ctx context.Context) CheckResult {
	return pingResult(ctx, c.Pinger, "endpoint reachable")
}

// ArchiveCheck verifies the document archive database is usable.
type ArchiveCheck struct {
	Pinger Pinger
}

func (c *ArchiveCheck) Name() string { return "archive" }
func (c *ArchiveCheck) Check(ctx context.Context) CheckResult {
	return pingResult(ctx, c.Pinger, "archive reachable")
}

func pingResult(ctx context.Context, pinger Pinger, okMessage string) CheckResult {
	result := CheckResult{Timestamp: time.Now()}

	if pinger == nil {
		result.Status = StatusUnknown
		result.Message = "no pinger configured"
		return result
	}

	start := time.Now()
	err := pinger.Ping(ctx)
	result.Duration = time.Since(start)

	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
	} else {
		result.Status = StatusHealthy
		result.Message = okMessage
	}

	return result
}

// DiskCheck checks available disk space, typically for the archive
// directory.
type DiskCheck struct {
	Path         string
	MinFreeBytes int64

	// MinFreePercent is the minimum percentage of free space required
	// (0-100). If set, this takes precedence over MinFreeBytes.
	MinFreePercent float64
}

func (c *DiskCheck) Name() string { return "disk" }
func (c *DiskCheck) Check(ctx context.Context) CheckResult {
	result := CheckResult{
		Timestamp: time.Now(),
		Metadata:  make(map[string]any),
	}

	path := c.Path
	if path == "" {
		path = "/"
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		result.Status = StatusUnhealthy
		result.Error = fmt.Sprintf("failed to get disk stats: %v", err)
		return result
	}

	// Bsize is always positive on supported platforms.
	totalBytes := stat.Blocks * uint64(stat.Bsize) //nolint:gosec // G115: safe conversion
	freeBytes := stat.Bavail * uint64(stat.Bsize)  //nolint:gosec // G115: safe conversion
	freePercent := float64(freeBytes) / float64(totalBytes) * 100

	result.Metadata["total_bytes"] = totalBytes
	result.Metadata["free_bytes"] = freeBytes
	result.Metadata["free_percent"] = fmt.Sprintf("%.2f%%", freePercent)
	result.Metadata["path"] = path

	if c.MinFreePercent > 0 {
		if freePercent < c.MinFreePercent {
			result.Status = StatusUnhealthy
			result.Error = fmt.Sprintf("disk free space %.2f%% is below threshold %.2f%%", freePercent, c.MinFreePercent)
			return result
		}
	} else if c.MinFreeBytes > 0 {
		if freeBytes < uint64(c.MinFreeBytes) { //nolint:gosec // MinFreeBytes is always positive here
			result.Status = StatusUnhealthy
			result.Error = fmt.Sprintf("disk free space %d bytes is below threshold %d bytes", freeBytes, c.MinFreeBytes)
			return result
		}
	}

	result.Status = StatusHealthy
	result.Message = fmt.Sprintf("disk has %.2f%% free space", freePercent)
	return result
}

// MemoryCheck checks Go runtime memory usage.
type MemoryCheck struct {
	// MaxHeapBytes is the maximum heap size in bytes.
	MaxHeapBytes uint64
}

func (c *MemoryCheck) Name() string { return "memory" }
func (c *MemoryCheck) Check(ctx context.Context) CheckResult {
	result := CheckResult{
		Timestamp: time.Now(),
		Metadata:  make(map[string]any),
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	result.Metadata["heap_alloc_bytes"] = m.HeapAlloc
	result.Metadata["heap_sys_bytes"] = m.HeapSys
	result.Metadata["num_gc"] = m.NumGC
	result.Metadata["goroutines"] = runtime.NumGoroutine()

	if c.MaxHeapBytes > 0 && m.HeapAlloc > c.MaxHeapBytes {
		result.Status = StatusUnhealthy
		result.Error = fmt.Sprintf("heap usage %d bytes exceeds threshold %d bytes", m.HeapAlloc, c.MaxHeapBytes)
		return result
	}

	result.Status = StatusHealthy
	result.Message = fmt.Sprintf("heap: %d MB, goroutines: %d", m.HeapAlloc/1024/1024, runtime.NumGoroutine())
	return result
}

// =============================================================================
// Interface Compliance
// =============================================================================

var (
	_ Checker = (*EndpointCheck)(nil)
	_ Checker = (*ArchiveCheck)(nil)
	_ Checker = (*DiskCheck)(nil)
	_ Checker = (*MemoryCheck)(nil)
	_ Checker = CheckFunc(nil)
)
