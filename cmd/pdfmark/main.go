// Package main is the pdfmark CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/pdfmark/internal/cli"
	"github.com/hyperjump/pdfmark/internal/config"
	"github.com/hyperjump/pdfmark/internal/identity"
	"github.com/hyperjump/pdfmark/internal/library"
	"github.com/hyperjump/pdfmark/internal/metrics"
	"github.com/hyperjump/pdfmark/internal/models"
	"github.com/hyperjump/pdfmark/internal/pdfinfo"
	"github.com/hyperjump/pdfmark/internal/server"
	"github.com/hyperjump/pdfmark/internal/storage"
	"github.com/hyperjump/pdfmark/internal/watcher"
	"github.com/hyperjump/pdfmark/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/pdfmark/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if present, and a missing default file yields the built-in defaults.
// Environment overrides are applied last. Returns the config and the path that was loaded
// ("" for built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	cfg, resolved, err := readConfig(path)
	if err != nil {
		return nil, "", err
	}
	config.ApplyEnv(cfg)
	return cfg, resolved, nil
}

func readConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			if !filepath.IsAbs(cfg.Auth.IdentityFile) {
				if home, homeErr := os.UserHomeDir(); homeErr == nil {
					cfg.Auth.IdentityFile = filepath.Join(home, cfg.Auth.IdentityFile)
				}
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "list":
		runList()
	case "show":
		runShow()
	case "upload":
		runUpload()
	case "import":
		runImport()
	case "export":
		runExport()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "token":
		runToken()
	case "version", "--version", "-v":
		fmt.Printf("pdfmark version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (uploads, saves, inbox imports)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("auth_mode", cfg.Auth.Mode),
		zap.Bool("debug", debugMode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	srv := server.NewServer(
		components.Library,
		components.Rasterizer,
		components.Resolver,
		cfg,
		logger,
		server.WithMetrics(components.Metrics),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})
	if inbox, err := newInbox(cfg, components.Library, logger, debugMode); err != nil {
		logger.Warn("inbox disabled", zap.Error(err))
	} else if inbox != nil {
		g.Go(func() error { return inbox.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
	}
	components.Library.Saver().Wait()
}

// newInbox returns the configured inbox watcher, or nil when no inbox directory is set.
// Without an explicit identity, imports go to the local CLI identity.
func newInbox(cfg *config.Config, lib *library.Library, logger *zap.Logger, debug bool) (*watcher.Inbox, error) {
	if cfg.Watch.Inbox == "" {
		return nil, nil
	}
	owner := cfg.Watch.Identity
	if owner == "" {
		id, err := identity.LoadOrCreateLocalID(cfg.Auth.IdentityFile)
		if err != nil {
			return nil, err
		}
		owner = id
	}
	opts := []watcher.Option{
		watcher.WithCallback(func(path string, doc *models.Document, err error) {
			if err != nil {
				logger.Warn("inbox import failed", zap.String("path", path), zap.Error(err))
				return
			}
			logger.Info("inbox imported", zap.String("path", path), zap.String("id", doc.ID))
		}),
	}
	if debug {
		opts = append(opts, watcher.WithLogger(logger))
	}
	return watcher.NewInbox(cfg.Watch.Inbox, owner, cfg.Watch.Extensions, lib, opts...), nil
}

// clientFlags are shared by the commands that talk to a running server.
type clientFlags struct {
	configPath *string
	serverURL  *string
	token      *string
	output     *string
}

func addClientFlags(fs *flag.FlagSet) *clientFlags {
	return &clientFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path (server URL and identity file)"),
		serverURL:  fs.String("server", "", "server URL (default: server.public_base_url from config)"),
		token:      fs.String("token", os.Getenv("PDFMARK_TOKEN"), "bearer token for jwt auth (default: $PDFMARK_TOKEN)"),
		output:     fs.String("output", "text", "output format: text or json"),
	}
}

// client builds an HTTP client from flags and returns it with the parsed output format.
func (f *clientFlags) client() (*cli.Client, cli.OutputFormat, error) {
	format, err := cli.ParseOutputFormat(*f.output)
	if err != nil {
		return nil, "", err
	}
	cfg, _, err := loadConfig(*f.configPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	c, err := newClient(cfg, *f.serverURL, *f.token)
	if err != nil {
		return nil, "", err
	}
	return c, format, nil
}

// newClient prefers a bearer token and otherwise sends the local identity header.
func newClient(cfg *config.Config, serverURL, token string) (*cli.Client, error) {
	if serverURL == "" {
		serverURL = cfg.Server.PublicBaseURL
	}
	if token != "" {
		return cli.NewClient(serverURL, cli.WithToken(token)), nil
	}
	id, err := identity.LoadOrCreateLocalID(cfg.Auth.IdentityFile)
	if err != nil {
		return nil, err
	}
	return cli.NewClient(serverURL, cli.WithIdentity(cfg.Auth.LocalHeader, id)), nil
}

func mustClient(f *clientFlags) (*cli.Client, cli.OutputFormat) {
	c, format, err := f.client()
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
	return c, format
}

func runList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	flags := addClientFlags(fs)
	_ = fs.Parse(os.Args[2:])

	c, format := mustClient(flags)
	docs, err := c.List(context.Background())
	if err != nil {
		fmt.Printf("List failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteDocuments(os.Stdout, docs, format); err != nil {
		fmt.Printf("Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runShow() {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	flags := addClientFlags(fs)
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Println("Usage: pdfmark show [flags] <document-id>")
		os.Exit(1)
	}

	c, format := mustClient(flags)
	doc, err := c.Get(context.Background(), fs.Arg(0))
	if err != nil {
		fmt.Printf("Show failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteDocument(os.Stdout, doc, format)
}

func runUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	flags := addClientFlags(fs)
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Println("Usage: pdfmark upload [flags] <file.pdf>...")
		os.Exit(1)
	}

	c, format := mustClient(flags)
	failed := 0
	for _, path := range fs.Args() {
		content, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("Failed to read %s: %v\n", path, err)
			failed++
			continue
		}
		doc, err := c.Upload(context.Background(), filepath.Base(path), content)
		if err != nil {
			fmt.Printf("Upload of %s failed: %v\n", path, err)
			failed++
			continue
		}
		if format == cli.OutputJSON {
			_ = cli.WriteDocument(os.Stdout, doc, format)
			continue
		}
		fmt.Printf("Uploaded %s: %s\n", doc.OriginalName, doc.ID)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// runImport adds local files straight into the library without a running server.
func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	owner := fs.String("identity", "", "identity to import for (default: the local CLI identity)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: pdfmark import [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	id := *owner
	if id == "" {
		if id, err = identity.LoadOrCreateLocalID(cfg.Auth.IdentityFile); err != nil {
			fmt.Printf("Failed to load identity: %v\n", err)
			os.Exit(1)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		docs, err := components.Library.ImportDirectory(ctx, id, path, cfg.Watch.Extensions)
		if err != nil {
			fmt.Printf("Importing directory failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Imported %d file(s) from %s\n", len(docs), path)
		return
	}
	// Single file: no extension filter
	doc, err := components.Library.ImportFile(ctx, id, path, nil)
	if err != nil {
		fmt.Printf("Import failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document imported: %s\n", doc.ID)
}

func runExport() {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	flags := addClientFlags(fs)
	outDir := fs.String("dir", ".", "directory to write the export file into")
	stdout := fs.Bool("stdout", false, "write the bundle to stdout instead of a file")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Println("Usage: pdfmark export [flags] <document-id>")
		os.Exit(1)
	}

	c, _ := mustClient(flags)
	data, name, err := c.Export(context.Background(), fs.Arg(0))
	if err != nil {
		fmt.Printf("Export failed: %v\n", err)
		os.Exit(1)
	}
	if *stdout {
		_, _ = os.Stdout.Write(data)
		return
	}
	target := filepath.Join(*outDir, name)
	if err := os.WriteFile(target, data, 0644); err != nil {
		fmt.Printf("Failed to write %s: %v\n", target, err)
		os.Exit(1)
	}
	fmt.Printf("Annotations exported to %s\n", target)
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	flags := addClientFlags(fs)
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Println("Usage: pdfmark delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	c, _ := mustClient(flags)
	res, err := c.Delete(context.Background(), docID)
	if err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	if res.StorageError != "" {
		fmt.Printf("Warning: stored file was not removed: %s\n", res.StorageError)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	flags := addClientFlags(fs)
	_ = fs.Parse(os.Args[2:])

	c, format := mustClient(flags)
	st, err := c.Status(context.Background())
	if err != nil {
		fmt.Printf("Status failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteStatus(os.Stdout, st, format)
}

// runToken issues a signed token for jwt mode, for scripting and local testing.
func runToken() {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Println("Usage: pdfmark token [flags] <subject>")
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.JWTSecret == "" {
		fmt.Printf("No signing secret configured (set %s)\n", config.EnvJWTSecret)
		os.Exit(1)
	}
	token, err := identity.NewJWTResolver([]byte(cfg.Auth.JWTSecret)).IssueToken(fs.Arg(0), *ttl)
	if err != nil {
		fmt.Printf("Failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}

// Components holds initialized services.
type Components struct {
	Metadata   *storage.SQLStore
	Blobs      *storage.DiskBlobStore
	Metrics    *metrics.Metrics
	Library    *library.Library
	Rasterizer *pdfinfo.PDFRasterizer
	Resolver   identity.Resolver
}

func (c *Components) Close() {
	if c.Metadata != nil {
		_ = c.Metadata.Close()
	}
}

func openMetadataStore(ctx context.Context, cfg config.StorageConfig) (*storage.SQLStore, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return storage.NewSQLiteStore(cfg.DatabasePath)
	case "postgres":
		if cfg.DatabaseDSN == "" {
			return nil, fmt.Errorf("postgres storage requires a DSN (set %s)", config.EnvDatabaseDSN)
		}
		return storage.NewPostgresStore(ctx, cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	resolver, err := identity.NewResolver(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	meta, err := openMetadataStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	blobs, err := storage.NewDiskBlobStore(cfg.Storage.BlobRoot, cfg.Server.PublicBaseURL)
	if err != nil {
		_ = meta.Close()
		return nil, fmt.Errorf("failed to initialize blob storage: %w", err)
	}

	m := metrics.New()
	lib := library.New(meta, blobs,
		library.WithLogger(logger),
		library.WithMetrics(m),
		library.WithSaveTimeout(time.Duration(cfg.Session.SaveTimeoutSeconds)*time.Second),
	)
	raster := pdfinfo.NewPDFRasterizer(blobs, pdfinfo.WithLogger(logger))

	logger.Info("storage initialized",
		zap.String("driver", cfg.Storage.Driver),
		zap.String("blob_root", blobs.Root()),
	)

	return &Components{
		Metadata:   meta,
		Blobs:      blobs,
		Metrics:    m,
		Library:    lib,
		Rasterizer: raster,
		Resolver:   resolver,
	}, nil
}

func printUsage() {
	fmt.Println(`pdfmark - PDF library with page annotations

Usage:
  pdfmark server [flags]              Start the HTTP server (and the inbox watcher, if configured)
  pdfmark list [flags]                List your documents, newest first
  pdfmark show [flags] <id>           Show a document and its annotation counts per page
  pdfmark upload [flags] <file.pdf>   Upload one or more PDF files
  pdfmark import [flags] <path>       Import a file or directory directly into the library
  pdfmark export [flags] <id>         Download a document's annotations as JSON
  pdfmark delete [flags] <id>         Delete a document and its stored file
  pdfmark status [flags]              Show server storage status
  pdfmark token [flags] <subject>     Issue a signed token (jwt auth mode)
  pdfmark version                     Show version
  pdfmark help                        Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/pdfmark/config.yaml)
  --debug            Enable debug logging

Client Flags (list, show, upload, export, delete, status):
  --config string    Config file path (server URL and identity file)
  --server string    Server URL (default: server.public_base_url from config)
  --token string     Bearer token for jwt auth (default: $PDFMARK_TOKEN)
  --output string    Output format: text or json (default: text)

Import Flags:
  --config string    Config file path
  --identity string  Identity to import for (default: the local CLI identity)

Export Flags:
  --dir string       Directory to write <name>_annotations.json into (default: .)
  --stdout           Write the bundle to stdout

Token Flags:
  --ttl duration     Token lifetime (default: 24h)

Environment:
  PDFMARK_JWT_SECRET     Signing secret for jwt auth
  PDFMARK_DATABASE_DSN   Postgres DSN when storage.driver is postgres
  PDFMARK_AUTH_MODE      Overrides auth.mode (local or jwt)
  Variables may also be set in a .env file in the working directory.

Examples:
  pdfmark server
  pdfmark upload report.pdf
  pdfmark list --output json
  pdfmark export 0b6c1a52-3f1e-4d7a-9c55-2a1f0e2d9a10
  pdfmark delete 0b6c1a52-3f1e-4d7a-9c55-2a1f0e2d9a10`)
}
