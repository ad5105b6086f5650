// sbomgen - SBOM generator backed by a SPARQL knowledge graph
//
// One-shot generation:
//
//	sbomgen -endpoint http://localhost:3030/ds/sparql -component nginx -format cyclonedx -o nginx.cdx.json
//
// Generate and keep a copy in the local archive:
//
//	sbomgen -component nginx -format spdx -archive
//
// Probe the endpoint, archive database, disk and memory:
//
//	sbomgen -healthcheck
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/securechain/sbomgen/pkg/audit"
	"github.com/securechain/sbomgen/pkg/convert"
	"github.com/securechain/sbomgen/pkg/errors"
	"github.com/securechain/sbomgen/pkg/health"
	"github.com/securechain/sbomgen/pkg/logging"
	"github.com/securechain/sbomgen/pkg/sbom"
	"github.com/securechain/sbomgen/pkg/sparql"
	"github.com/securechain/sbomgen/pkg/store"
)

const (
	appName    = "sbomgen"
	appVersion = "1.0.0"
)

// Config is the generator configuration.
type Config struct {
	// Endpoint configures the SPARQL query client.
	Endpoint sparql.Config `yaml:"endpoint"`

	// Resolver configures the dependency graph walk.
	Resolver sbom.Config `yaml:"resolver"`

	// Archive configures the local document archive.
	Archive struct {
		Enabled         bool   `yaml:"enabled"`
		DatabasePath    string `yaml:"database_path"`
		MinCompressSize int    `yaml:"min_compress_size"`
	} `yaml:"archive"`

	// Audit configures the audit event log.
	Audit struct {
		Enabled bool   `yaml:"enabled"`
		LogFile string `yaml:"log_file"`
	} `yaml:"audit"`

	Verbose bool `yaml:"verbose"`
}

func main() {
	configPath := flag.String("config", "", "Path to config file")
	endpoint := flag.String("endpoint", "", "SPARQL endpoint URL (or SBOMGEN_ENDPOINT env)")
	component := flag.String("component", "", "Component to generate an SBOM for")
	format := flag.String("format", "json", "Output format (see -list-formats)")
	output := flag.String("o", "", "Output file path (default stdout)")
	archiveFlag := flag.Bool("archive", false, "Store the generated document in the local archive")
	healthcheck := flag.Bool("healthcheck", false, "Probe dependencies and print a health report")
	listFormats := flag.Bool("list-formats", false, "List supported output formats")
	verbose := flag.Bool("verbose", false, "Verbose output")
	showVersion := flag.Bool("version", false, "Show version")

	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}

	if *listFormats {
		fmt.Println("Supported formats:")
		fmt.Printf("  %-12s - %s\n", "json", "internal document model, lossless")
		fmt.Printf("  %-12s - %s\n", "spdx", "SPDX 2.2 JSON")
		fmt.Printf("  %-12s - %s\n", "cyclonedx", "CycloneDX 1.3 JSON (alias: cdx)")
		os.Exit(0)
	}

	// Cancel in-flight queries on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down...")
		cancel()
	}()

	var cfg Config
	if *configPath != "" {
		if err := loadConfig(*configPath, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	// Flags override the config file.
	if *endpoint != "" {
		cfg.Endpoint.Endpoint = *endpoint
	}
	if cfg.Endpoint.Endpoint == "" {
		cfg.Endpoint.Endpoint = os.Getenv("SBOMGEN_ENDPOINT")
	}
	if *verbose {
		cfg.Verbose = true
	}
	if *archiveFlag {
		cfg.Archive.Enabled = true
	}
	cfg.Endpoint.Verbose = cfg.Verbose

	level := logging.LevelWarn
	if cfg.Verbose {
		level = logging.LevelDebug
	}
	logger := logging.NewDefaultLogger(appName, level)
	logging.SetDefault(logger)

	var auditLog *audit.Logger
	if cfg.Audit.Enabled {
		var err error
		auditLog, err = audit.NewLogger(&audit.LoggerConfig{
			Source:  appName,
			LogFile: cfg.Audit.LogFile,
			Verbose: cfg.Verbose,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening audit log: %v\n", err)
			os.Exit(1)
		}
		auditLog.Start()
	}

	if *healthcheck {
		code := runHealthcheck(ctx, &cfg, logger)
		stopAudit(auditLog)
		os.Exit(code)
	}

	if *component == "" {
		fmt.Fprintf(os.Stderr, "Error: -component is required.\n")
		fmt.Fprintf(os.Stderr, "Usage: %s -component nginx -format cyclonedx\n", appName)
		stopAudit(auditLog)
		os.Exit(2)
	}
	if cfg.Endpoint.Endpoint == "" {
		fmt.Fprintf(os.Stderr, "Error: no SPARQL endpoint configured.\n")
		fmt.Fprintf(os.Stderr, "Use -endpoint, the SBOMGEN_ENDPOINT env var, or a config file.\n")
		stopAudit(auditLog)
		os.Exit(2)
	}

	client, err := sparql.New(&cfg.Endpoint,
		sparql.WithLogger(logger),
		sparql.WithAuditLog(auditLog),
	)
	if err != nil {
		fail(auditLog, err)
	}

	resolver := sbom.NewResolver(client, &cfg.Resolver,
		sbom.WithLogger(logger),
		sbom.WithAuditLog(auditLog),
	)

	doc, err := resolver.Resolve(ctx, *component)
	if err != nil {
		fail(auditLog, err)
	}
	logger.Info("resolved %s: %d versions, %d nodes, %d vulnerabilities",
		doc.Name, len(doc.Versions), doc.NodeCount(), doc.VulnerabilityCount())

	data, err := convert.Render(doc, *format)
	if err != nil {
		fail(auditLog, err)
	}
	if auditLog != nil {
		auditLog.DocumentGenerated(*component, *format, len(data))
	}

	if cfg.Archive.Enabled {
		archive, err := store.Open(&store.Config{
			DatabasePath:    cfg.Archive.DatabasePath,
			MinCompressSize: cfg.Archive.MinCompressSize,
		}, store.WithLogger(logger), store.WithAuditLog(auditLog))
		if err != nil {
			fail(auditLog, err)
		}
		record, err := archive.Save(ctx, *component, *format, data)
		archive.Close()
		if err != nil {
			fail(auditLog, err)
		}
		fmt.Fprintf(os.Stderr, "Archived: %s\n", record.ID)
	}

	if *output != "" {
		if err := os.WriteFile(*output, data, 0644); err != nil {
			fail(auditLog, errors.Wrap(err, "main.write"))
		}
		fmt.Fprintf(os.Stderr, "Wrote %s (%d bytes)\n", *output, len(data))
	} else {
		fmt.Println(string(data))
	}

	stopAudit(auditLog)
}

func runHealthcheck(ctx context.Context, cfg *Config, logger logging.Logger) int {
	handler := health.NewHandler(health.WithVersion(appVersion))

	// Endpoint check reports unknown when no endpoint is configured.
	endpointCheck := &health.EndpointCheck{}
	if cfg.Endpoint.Endpoint != "" {
		client, err := sparql.New(&cfg.Endpoint)
		if err == nil {
			endpointCheck.Pinger = client
		}
	}
	handler.Register("endpoint", endpointCheck)

	archiveCfg := &store.Config{
		DatabasePath:    cfg.Archive.DatabasePath,
		MinCompressSize: cfg.Archive.MinCompressSize,
	}
	archive, err := store.Open(archiveCfg, store.WithLogger(logger))
	if err != nil {
		openErr := err
		handler.RegisterFunc("archive", func(ctx context.Context) health.CheckResult {
			return health.CheckResult{Status: health.StatusUnhealthy, Error: openErr.Error()}
		})
	} else {
		defer archive.Close()
		handler.Register("archive", &health.ArchiveCheck{Pinger: archive})
	}

	// Open resolves the default database path into archiveCfg.
	handler.Register("disk", &health.DiskCheck{
		Path:         filepath.Dir(archiveCfg.DatabasePath),
		MinFreeBytes: 100 << 20,
	})
	handler.Register("memory", &health.MemoryCheck{})

	response := handler.Check(ctx)

	out, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rendering health report: %v\n", err)
		return 1
	}
	fmt.Println(string(out))

	if response.Status == health.StatusUnhealthy {
		return 1
	}
	return 0
}

func loadConfig(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables in config
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	return nil
}

func stopAudit(auditLog *audit.Logger) {
	if auditLog != nil {
		if err := auditLog.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: audit log flush failed: %v\n", err)
		}
	}
}

func fail(auditLog *audit.Logger, err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	stopAudit(auditLog)
	os.Exit(exitCode(err))
}

// exitCode maps the error taxonomy onto process exit codes: 2 for
// rejected input, 3 for endpoint trouble, 4 for serialization, 1
// otherwise.
func exitCode(err error) int {
	switch {
	case errors.IsInvalidInput(err), errors.IsInvalidParameter(err), errors.IsInvalidQuery(err):
		return 2
	case errors.IsEndpointError(err), errors.IsQueryError(err):
		return 3
	case errors.IsSerializationError(err):
		return 4
	default:
		return 1
	}
}
