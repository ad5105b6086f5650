// Package store archives rendered SBOM documents in a local SQLite
// database. Documents above a size threshold are compressed with zstd
// before they hit disk; reads decompress transparently.
package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/securechain/sbomgen/pkg/audit"
	"github.com/securechain/sbomgen/pkg/compress"
	"github.com/securechain/sbomgen/pkg/errors"
	"github.com/securechain/sbomgen/pkg/logging"
	"github.com/securechain/sbomgen/pkg/metrics"
)

// =============================================================================
// Configuration
// =============================================================================

// Config configures the archive store.
type Config struct {
	// DatabasePath is the SQLite file backing the archive.
	// Default: ~/.sbomgen/archive.db
	DatabasePath string `yaml:"database_path" json:"database_path"`

	// MinCompressSize is the smallest document, in bytes, that gets
	// compressed before storage. Default: 1024.
	MinCompressSize int `yaml:"min_compress_size" json:"min_compress_size"`

	// CompressionLevel is the zstd effort level (1, 3, 6 or 9).
	// Default: 3.
	CompressionLevel int `yaml:"compression_level" json:"compression_level"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}

	return &Config{
		DatabasePath:     filepath.Join(home, ".sbomgen", "archive.db"),
		MinCompressSize:  1024,
		CompressionLevel: int(compress.LevelDefault),
	}
}

// =============================================================================
// Types
// =============================================================================

// Record describes one archived document. Data holds the document
// bytes after decompression and is populated by Get only.
type Record struct {
	ID          string    `json:"id"`
	Component   string    `json:"component"`
	Format      string    `json:"format"`
	Size        int64     `json:"size"`
	StoredSize  int64     `json:"stored_size"`
	Compression string    `json:"compression"`
	CreatedAt   time.Time `json:"created_at"`
	Data        []byte    `json:"-"`
}

// Stats summarizes the archive contents.
type Stats struct {
	Documents   int            `json:"documents"`
	Components  int            `json:"components"`
	TotalBytes  int64          `json:"total_bytes"`
	StoredBytes int64          `json:"stored_bytes"`
	ByFormat    map[string]int `json:"by_format"`
}

// =============================================================================
// Store
// =============================================================================

// Store is a SQLite-backed archive of generated SBOM documents.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	compressor *compress.Compressor
	policy     *compress.Policy

	logger    logging.Logger
	collector metrics.Collector
	auditLog  *audit.Logger
}

// Option configures the store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCollector sets the metrics collector.
func WithCollector(collector metrics.Collector) Option {
	return func(s *Store) {
		if collector != nil {
			s.collector = collector
		}
	}
}

// WithAuditLog sets the audit logger.
func WithAuditLog(auditLog *audit.Logger) Option {
	return func(s *Store) {
		s.auditLog = auditLog
	}
}

// Open opens the archive, creating the database and schema on first use.
func Open(config *Config, opts ...Option) (*Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.DatabasePath == "" {
		config.DatabasePath = defaults.DatabasePath
	}
	if config.MinCompressSize <= 0 {
		config.MinCompressSize = defaults.MinCompressSize
	}
	if config.CompressionLevel <= 0 {
		config.CompressionLevel = defaults.CompressionLevel
	}

	if err := os.MkdirAll(filepath.Dir(config.DatabasePath), 0755); err != nil {
		return nil, errors.E(errors.KindStorage, "store.Open", "failed to create archive directory", err)
	}

	db, err := sql.Open("sqlite", config.DatabasePath)
	if err != nil {
		return nil, errors.E(errors.KindStorage, "store.Open", "failed to open archive database", err)
	}

	// SQLite tuning for concurrent readers with a single writer.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.E(errors.KindStorage, "store.Open", fmt.Sprintf("failed to apply %s", pragma), err)
		}
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, errors.E(errors.KindStorage, "store.Open", "failed to initialize schema", err)
	}

	s := &Store{
		db:         db,
		compressor: compress.NewCompressor(compress.AlgorithmZSTD, compress.Level(config.CompressionLevel)),
		policy:     compress.NewPolicy(&compress.PolicyConfig{MinSizeForCompression: config.MinCompressSize}),
		logger:     logging.Default(),
		collector:  metrics.GetDefaultCollector(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger.Debug("archive store opened at %s", config.DatabasePath)
	return s, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sboms (
		id TEXT PRIMARY KEY,
		component TEXT NOT NULL,
		format TEXT NOT NULL,
		size INTEGER NOT NULL,
		stored_size INTEGER NOT NULL,
		compression TEXT NOT NULL DEFAULT 'none',
		data BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sboms_component ON sboms(component);
	CREATE INDEX IF NOT EXISTS idx_sboms_created_at ON sboms(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// =============================================================================
// Operations
// =============================================================================

// Save archives a rendered document and returns its record. Documents
// at or above the configured threshold are compressed first.
func (s *Store) Save(ctx context.Context, component, format string, data []byte) (*Record, error) {
	if component == "" {
		return nil, errors.E(errors.KindInvalidInput, "store.Save", "component name is empty", errors.ErrEmptyComponent)
	}
	if len(data) == 0 {
		return nil, errors.E(errors.KindInvalidInput, "store.Save", "refusing to archive an empty document")
	}

	blob := data
	algo := compress.AlgorithmNone
	if s.policy.ShouldCompress(len(data)) {
		compressed, err := s.compressor.Compress(data)
		if err != nil {
			s.collector.CounterInc(metrics.ArchiveSavesTotal.Name, "status", "error")
			return nil, errors.E(errors.KindStorage, "store.Save", "compression failed", err)
		}
		// Keep the raw bytes when compression does not pay.
		if len(compressed) < len(data) {
			blob = compressed
			algo = s.compressor.Algorithm()
		}
	}

	record := &Record{
		ID:          uuid.New().String(),
		Component:   component,
		Format:      format,
		Size:        int64(len(data)),
		StoredSize:  int64(len(blob)),
		Compression: string(algo),
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sboms (id, component, format, size, stored_size, compression, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Component, record.Format, record.Size, record.StoredSize, record.Compression, blob, record.CreatedAt,
	)
	s.mu.Unlock()
	if err != nil {
		s.collector.CounterInc(metrics.ArchiveSavesTotal.Name, "status", "error")
		return nil, errors.E(errors.KindStorage, "store.Save", fmt.Sprintf("failed to archive document for %s", component), err)
	}

	s.collector.CounterInc(metrics.ArchiveSavesTotal.Name, "status", "ok")
	s.updateSizeGauge(ctx)
	if s.auditLog != nil {
		s.auditLog.ArchiveSaved(component, record.ID, len(data))
	}
	s.logger.Debug("archived %s document for %s (%d bytes, %s)", format, component, len(data), algo)

	return record, nil
}

// Get retrieves an archived document by ID.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, component, format, size, stored_size, compression, data, created_at
		FROM sboms WHERE id = ?`, id)

	var record Record
	var blob []byte
	err := row.Scan(&record.ID, &record.Component, &record.Format, &record.Size,
		&record.StoredSize, &record.Compression, &blob, &record.CreatedAt)
	s.mu.RUnlock()

	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.E(errors.KindStorage, "store.Get", fmt.Sprintf("document %s", id), errors.ErrNotFound)
	}
	if err != nil {
		return nil, errors.E(errors.KindStorage, "store.Get", fmt.Sprintf("failed to read document %s", id), err)
	}

	data, err := s.decode(record.Compression, blob)
	if err != nil {
		return nil, errors.E(errors.KindStorage, "store.Get", fmt.Sprintf("failed to decode document %s", id), err)
	}
	record.Data = data

	return &record, nil
}

// List returns archive records, newest first, without document bytes.
// An empty component lists everything.
func (s *Store) List(ctx context.Context, component string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as unbounded
	}

	query := `
		SELECT id, component, format, size, stored_size, compression, created_at
		FROM sboms`
	args := []interface{}{}
	if component != "" {
		query += ` WHERE component = ?`
		args = append(args, component)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.E(errors.KindStorage, "store.List", "failed to list archive", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var record Record
		if err := rows.Scan(&record.ID, &record.Component, &record.Format, &record.Size,
			&record.StoredSize, &record.Compression, &record.CreatedAt); err != nil {
			return nil, errors.E(errors.KindStorage, "store.List", "failed to scan archive row", err)
		}
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.E(errors.KindStorage, "store.List", "failed to iterate archive rows", err)
	}

	return records, nil
}

// Delete removes an archived document.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	result, err := s.db.ExecContext(ctx, `DELETE FROM sboms WHERE id = ?`, id)
	s.mu.Unlock()
	if err != nil {
		return errors.E(errors.KindStorage, "store.Delete", fmt.Sprintf("failed to delete document %s", id), err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return errors.E(errors.KindStorage, "store.Delete", "failed to read delete result", err)
	}
	if affected == 0 {
		return errors.E(errors.KindStorage, "store.Delete", fmt.Sprintf("document %s", id), errors.ErrNotFound)
	}

	s.updateSizeGauge(ctx)
	if s.auditLog != nil {
		s.auditLog.Log(audit.Event{
			Type:     audit.EventArchiveDeleted,
			Severity: audit.SeverityInfo,
			Message:  fmt.Sprintf("archived document %s deleted", id),
			Details:  map[string]interface{}{"archive_id": id},
		})
	}

	return nil
}

// Cleanup deletes archived documents older than maxAge and reports how
// many rows were removed.
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	s.mu.Lock()
	result, err := s.db.ExecContext(ctx, `DELETE FROM sboms WHERE created_at < ?`, cutoff)
	s.mu.Unlock()
	if err != nil {
		return 0, errors.E(errors.KindStorage, "store.Cleanup", "failed to prune archive", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, errors.E(errors.KindStorage, "store.Cleanup", "failed to read cleanup result", err)
	}

	if removed > 0 {
		s.updateSizeGauge(ctx)
		s.logger.Info("archive cleanup removed %d documents older than %s", removed, maxAge)
		if s.auditLog != nil {
			s.auditLog.Info(audit.EventArchiveCleanup,
				fmt.Sprintf("removed %d archived documents", removed),
				map[string]interface{}{"removed": removed, "max_age": maxAge.String()})
		}
	}

	return removed, nil
}

// Stats reports totals for the archive.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{ByFormat: make(map[string]int)}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT component), COALESCE(SUM(size), 0), COALESCE(SUM(stored_size), 0)
		FROM sboms`).Scan(&stats.Documents, &stats.Components, &stats.TotalBytes, &stats.StoredBytes)
	if err != nil {
		return nil, errors.E(errors.KindStorage, "store.Stats", "failed to read archive totals", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT format, COUNT(*) FROM sboms GROUP BY format`)
	if err != nil {
		return nil, errors.E(errors.KindStorage, "store.Stats", "failed to read format counts", err)
	}
	defer rows.Close()

	for rows.Next() {
		var format string
		var count int
		if err := rows.Scan(&format, &count); err != nil {
			return nil, errors.E(errors.KindStorage, "store.Stats", "failed to scan format count", err)
		}
		stats.ByFormat[format] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.E(errors.KindStorage, "store.Stats", "failed to iterate format counts", err)
	}

	return stats, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// decode reverses the compression recorded for a row.
func (s *Store) decode(name string, blob []byte) ([]byte, error) {
	algo, err := compress.ParseAlgorithm(name)
	if err != nil {
		return nil, err
	}

	switch algo {
	case compress.AlgorithmNone:
		return blob, nil
	case compress.AlgorithmZSTD:
		return s.compressor.Decompress(blob)
	default:
		return compress.NewCompressor(algo, compress.LevelDefault).Decompress(blob)
	}
}

// updateSizeGauge refreshes the archive size gauge, ignoring errors.
func (s *Store) updateSizeGauge(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT SUM(stored_size) FROM sboms`).Scan(&total); err != nil {
		return
	}
	s.collector.GaugeSet(metrics.ArchiveBytes.Name, float64(total.Int64))
}
