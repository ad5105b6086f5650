// Package audit provides structured audit logging for SBOM generation.
//
// Query and resolution activity is logged via this package to enable:
// - Review of every query sent to the knowledge graph
// - Debugging and troubleshooting of resolution runs
// - Compliance trails for generated documents
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Query events
	EventQueryIssued   EventType = "query_issued"
	EventQueryRetried  EventType = "query_retried"
	EventQueryFailed   EventType = "query_failed"
	EventQueryRejected EventType = "query_rejected"
	EventCacheHit      EventType = "cache_hit"

	// Resolution events
	EventResolveStarted   EventType = "resolve_started"
	EventResolveCompleted EventType = "resolve_completed"
	EventResolveFailed    EventType = "resolve_failed"

	// Document events
	EventDocumentGenerated EventType = "document_generated"

	// Archive events
	EventArchiveSaved   EventType = "archive_saved"
	EventArchiveDeleted EventType = "archive_deleted"
	EventArchiveCleanup EventType = "archive_cleanup"
)

// Severity represents log severity level.
type Severity string

const (
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARN"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Event represents an audit event.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	Type      EventType              `json:"type"`
	Severity  Severity               `json:"severity"`
	Source    string                 `json:"source,omitempty"`
	Component string                 `json:"component,omitempty"`
	QueryHash string                 `json:"query_hash,omitempty"`
	Message   string                 `json:"message"`
	Error     string                 `json:"error,omitempty"`
	Duration  time.Duration          `json:"duration_ms,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// LoggerConfig configures the audit logger.
type LoggerConfig struct {
	// Source is the identifier included in all events.
	Source string

	// LogFile is the path to the audit log file.
	// Default: ~/.sbomgen/audit.log
	LogFile string

	// BufferSize is the number of events to buffer before flushing.
	// Default: 100
	BufferSize int

	// FlushInterval is how often to flush buffered events.
	// Default: 5 seconds
	FlushInterval time.Duration

	// Verbose enables console output of audit events.
	Verbose bool
}

// DefaultLoggerConfig returns sensible defaults.
func DefaultLoggerConfig() *LoggerConfig {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}

	return &LoggerConfig{
		Source:        "sbomgen",
		LogFile:       filepath.Join(home, ".sbomgen", "audit.log"),
		BufferSize:    100,
		FlushInterval: 5 * time.Second,
	}
}

// Logger is the audit logger.
type Logger struct {
	config *LoggerConfig
	file   *os.File
	mu     sync.Mutex

	buffer   []Event
	bufferMu sync.Mutex

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewLogger creates a new audit logger.
func NewLogger(config *LoggerConfig) (*Logger, error) {
	if config == nil {
		config = DefaultLoggerConfig()
	}

	// Apply defaults for zero values
	if config.LogFile == "" {
		config.LogFile = DefaultLoggerConfig().LogFile
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 5 * time.Second
	}

	// Ensure log directory exists
	dir := filepath.Dir(config.LogFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	// Open log file for append (0640 = owner read/write, group read)
	file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := &Logger{
		config: config,
		file:   file,
		buffer: make([]Event, 0, config.BufferSize),
		stopCh: make(chan struct{}),
	}

	return l, nil
}

// Start begins background flushing.
func (l *Logger) Start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.mu.Unlock()

	l.wg.Add(1)
	go l.flushLoop()
}

// Stop stops the logger and flushes remaining events.
func (l *Logger) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		// Flush anything logged without Start.
		l.Flush()
		return l.file.Close()
	}
	l.running = false
	close(l.stopCh)
	l.mu.Unlock()

	l.wg.Wait()

	// Final flush
	l.Flush()

	return l.file.Close()
}

// Log records an audit event.
func (l *Logger) Log(event Event) {
	event.Timestamp = time.Now()
	if event.Source == "" {
		event.Source = l.config.Source
	}

	l.bufferMu.Lock()
	l.buffer = append(l.buffer, event)
	shouldFlush := len(l.buffer) >= l.config.BufferSize
	l.bufferMu.Unlock()

	if l.config.Verbose {
		l.printEvent(event)
	}

	if shouldFlush {
		go l.Flush()
	}
}

// Convenience methods for common event types

// Info logs an informational event.
func (l *Logger) Info(eventType EventType, message string, details map[string]interface{}) {
	l.Log(Event{
		Type:     eventType,
		Severity: SeverityInfo,
		Message:  message,
		Details:  details,
	})
}

// Error logs an error event.
func (l *Logger) Error(eventType EventType, message string, err error, details map[string]interface{}) {
	event := Event{
		Type:     eventType,
		Severity: SeverityError,
		Message:  message,
		Details:  details,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// QueryIssued logs a query going out to the endpoint.
func (l *Logger) QueryIssued(queryHash string, querySize int) {
	l.Log(Event{
		Type:      EventQueryIssued,
		Severity:  SeverityInfo,
		QueryHash: queryHash,
		Message:   "Query issued",
		Details: map[string]interface{}{
			"query_bytes": querySize,
		},
	})
}

// QueryRetried logs a retry attempt for a failed query.
func (l *Logger) QueryRetried(queryHash string, attempt, maxAttempts int) {
	l.Log(Event{
		Type:      EventQueryRetried,
		Severity:  SeverityWarning,
		QueryHash: queryHash,
		Message:   fmt.Sprintf("Query retried (attempt %d/%d)", attempt, maxAttempts),
		Details: map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": maxAttempts,
		},
	})
}

// QueryFailed logs a query that exhausted its attempts or was rejected
// by the endpoint.
func (l *Logger) QueryFailed(queryHash string, err error) {
	event := Event{
		Type:      EventQueryFailed,
		Severity:  SeverityError,
		QueryHash: queryHash,
		Message:   "Query failed",
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// QueryRejected logs a parameter rejected before any network activity.
func (l *Logger) QueryRejected(param string, err error) {
	event := Event{
		Type:     EventQueryRejected,
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("Parameter %q rejected", param),
		Details: map[string]interface{}{
			"parameter": param,
		},
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// CacheHit logs a query answered from the result cache.
func (l *Logger) CacheHit(queryHash string) {
	l.Log(Event{
		Type:      EventCacheHit,
		Severity:  SeverityDebug,
		QueryHash: queryHash,
		Message:   "Query answered from cache",
	})
}

// ResolveStarted logs the start of a component resolution.
func (l *Logger) ResolveStarted(component string) {
	l.Log(Event{
		Type:      EventResolveStarted,
		Severity:  SeverityInfo,
		Component: component,
		Message:   "Resolution started",
	})
}

// ResolveCompleted logs a finished component resolution.
func (l *Logger) ResolveCompleted(component string, versions int, duration time.Duration) {
	l.Log(Event{
		Type:      EventResolveCompleted,
		Severity:  SeverityInfo,
		Component: component,
		Message:   fmt.Sprintf("Resolution completed: %d versions", versions),
		Duration:  duration,
		Details: map[string]interface{}{
			"versions": versions,
		},
	})
}

// ResolveFailed logs a failed component resolution.
func (l *Logger) ResolveFailed(component string, err error) {
	event := Event{
		Type:      EventResolveFailed,
		Severity:  SeverityError,
		Component: component,
		Message:   "Resolution failed",
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// DocumentGenerated logs a serialized document.
func (l *Logger) DocumentGenerated(component, format string, size int) {
	l.Log(Event{
		Type:      EventDocumentGenerated,
		Severity:  SeverityInfo,
		Component: component,
		Message:   fmt.Sprintf("Document generated (%s)", format),
		Details: map[string]interface{}{
			"format":     format,
			"size_bytes": size,
		},
	})
}

// ArchiveSaved logs a document stored in the archive.
func (l *Logger) ArchiveSaved(component, archiveID string, size int) {
	l.Log(Event{
		Type:      EventArchiveSaved,
		Severity:  SeverityInfo,
		Component: component,
		Message:   "Document archived",
		Details: map[string]interface{}{
			"archive_id": archiveID,
			"size_bytes": size,
		},
	})
}

// Flush writes buffered events to disk.
func (l *Logger) Flush() {
	l.bufferMu.Lock()
	if len(l.buffer) == 0 {
		l.bufferMu.Unlock()
		return
	}
	events := l.buffer
	l.buffer = make([]Event, 0, l.config.BufferSize)
	l.bufferMu.Unlock()

	// Write to file
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		_, _ = l.file.Write(data)
		_, _ = l.file.Write([]byte("\n"))
	}

	// Sync to disk
	_ = l.file.Sync()
}

// flushLoop periodically flushes buffered events.
func (l *Logger) flushLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.Flush()
		}
	}
}

// printEvent prints an event to console in human-readable format.
func (l *Logger) printEvent(event Event) {
	timestamp := event.Timestamp.Format("2006-01-02 15:04:05")
	fmt.Printf("[%s] [%s] %s: %s\n", timestamp, event.Severity, event.Type, event.Message)
	if event.Error != "" {
		fmt.Printf("  Error: %s\n", event.Error)
	}
}
