// Package main is the kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kotae-ai/kotae/internal/chunker"
	"github.com/kotae-ai/kotae/internal/config"
	"github.com/kotae-ai/kotae/internal/embedding"
	"github.com/kotae-ai/kotae/internal/extract"
	"github.com/kotae-ai/kotae/internal/generate"
	"github.com/kotae-ai/kotae/internal/ingest"
	"github.com/kotae-ai/kotae/internal/models"
	"github.com/kotae-ai/kotae/internal/rerank"
	"github.com/kotae-ai/kotae/internal/retrieval"
	"github.com/kotae-ai/kotae/internal/server"
	"github.com/kotae-ai/kotae/internal/storage"
	"github.com/kotae-ai/kotae/internal/vector"
	"github.com/kotae-ai/kotae/internal/watcher"
	"github.com/kotae-ai/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence so development runs pick up the
// project config.
func loadConfig(path string) (*config.Config, string, error) {
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
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// API keys come from the environment; a .env in the working directory is
	// a convenience for development.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "ingest":
		runIngest()
	case "documents":
		runDocuments()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
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
	debug := fs.Bool("debug", false, "enable debug logging")
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
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	var inboxWatcher *watcher.InboxWatcher
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Ingest.InboxDir != "" {
		inboxWatcher = newInboxWatcher(cfg, components, logger, debugMode)
		if err := inboxWatcher.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start inbox watcher", zap.Error(err))
		}
		logger.Info("inbox watcher started", zap.String("inbox", cfg.Ingest.InboxDir))
	}

	srv := server.NewServer(
		components.Engine,
		components.Ingestor,
		components.Store,
		components.Index,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if inboxWatcher != nil {
		inboxWatcher.Stop()
	}
	watchCancel()
	if err := components.Index.Flush(); err != nil {
		logger.Warn("vector index flush failed", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// newInboxWatcher wires dropped inbox files into the ingestion pipeline and
// the catalog, mirroring what an authenticated upload does.
func newInboxWatcher(cfg *config.Config, components *Components, logger *zap.Logger, debug bool) *watcher.InboxWatcher {
	opts := []watcher.Option{}
	if debug {
		opts = append(opts, watcher.WithLogger(logger))
	}
	return watcher.NewInboxWatcher(cfg.Ingest.InboxDir, cfg.Ingest.Extensions,
		func(tenantID, path string) {
			ctx := context.Background()
			content, err := os.ReadFile(path)
			if err != nil {
				logger.Warn("inbox read failed", zap.String("path", path), zap.Error(err))
				return
			}
			filename := filepath.Base(path)
			docID := ingest.InboxDocumentID(tenantID, filename)
			result, err := components.Ingestor.Ingest(ctx, tenantID, docID, filename, content)
			if err != nil {
				logger.Warn("inbox ingest failed",
					zap.String("tenant_id", tenantID),
					zap.String("path", path),
					zap.Error(err))
				return
			}
			// An ingested inbox file moves to the uploads area, same place an
			// authenticated upload lands, so the inbox stays a drop box.
			filePath, err := settleInboxFile(cfg.Storage.UploadsDir, tenantID, docID, filename, path)
			if err != nil {
				logger.Warn("inbox file move failed", zap.String("path", path), zap.Error(err))
				filePath = path
			}
			doc := &models.Document{
				ID:         docID,
				TenantID:   tenantID,
				Filename:   filename,
				FilePath:   filePath,
				ChunkCount: result.ChunkCount,
			}
			if err := components.Store.CreateDocument(ctx, doc); err != nil {
				logger.Warn("inbox catalog insert failed", zap.String("path", path), zap.Error(err))
			}
		}, opts...)
}

// settleInboxFile moves an ingested inbox file to
// <uploads>/<tenant>/<docID>_<filename> and returns the new path.
func settleInboxFile(uploadsDir, tenantID, docID, filename, src string) (string, error) {
	dir := filepath.Join(uploadsDir, tenantID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, docID+"_"+filename)
	if err := os.Rename(src, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// Components holds the wired application services.
type Components struct {
	Store    storage.Store
	Embedder embedding.Embedder
	Index    vector.Index
	Reranker rerank.Reranker
	Engine   *retrieval.Engine
	Ingestor *ingest.Ingestor
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Reranker != nil {
		_ = c.Reranker.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var embedder embedding.Embedder
	switch cfg.Embedding.Provider {
	case "mock":
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	default:
		apiKey := ""
		if cfg.Embedding.APIKeyEnv != "" {
			apiKey = os.Getenv(cfg.Embedding.APIKeyEnv)
		}
		embedder = embedding.NewOpenAIEmbedder(
			cfg.Embedding.BaseURL,
			apiKey,
			cfg.Embedding.Model,
			cfg.Embedding.Dimensions,
			cfg.Embedding.Timeout(),
		)
	}
	embedder = embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)

	index, err := vector.NewIndex(cfg.Vector, cfg.Storage.VectorIndexPath,
		cfg.Embedding.Dimensions, cfg.Retrieval.SimilarityMetric)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	logger.Info("vector index initialized",
		zap.String("type", cfg.Vector.IndexType),
		zap.Int("size", index.Size()))

	var reranker rerank.Reranker
	if cfg.Rerank.BaseURL != "" {
		reranker = rerank.NewHTTPReranker(cfg.Rerank.BaseURL, cfg.Rerank.Model, cfg.Rerank.Timeout())
	} else {
		reranker = rerank.NewLexicalReranker()
		logger.Info("no rerank service configured, using lexical reranker")
	}

	genAPIKey := ""
	if cfg.Generation.APIKeyEnv != "" {
		genAPIKey = os.Getenv(cfg.Generation.APIKeyEnv)
	}
	generator := generate.NewOpenAIGenerator(
		cfg.Generation.BaseURL,
		genAPIKey,
		cfg.Generation.Model,
		cfg.Generation.Timeout(),
	)

	engineOpts := []retrieval.Option{retrieval.WithLogger(logger)}
	engine := retrieval.NewEngine(embedder, index, reranker, generator, cfg.Retrieval, engineOpts...)

	ingestOpts := []ingest.Option{}
	if debug {
		ingestOpts = append(ingestOpts, ingest.WithLogger(logger))
	}
	ch := chunker.New(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	ingestor := ingest.NewIngestor(extract.NewExtractor(), ch, embedder, index, ingestOpts...)

	return &Components{
		Store:    store,
		Embedder: embedder,
		Index:    index,
		Reranker: reranker,
		Engine:   engine,
		Ingestor: ingestor,
	}, nil
}

// clientFlags are shared by the HTTP client subcommands.
type clientFlags struct {
	serverURL string
	tenantID  string
}

func addClientFlags(fs *flag.FlagSet) *clientFlags {
	cf := &clientFlags{}
	fs.StringVar(&cf.serverURL, "server", "http://localhost:8080", "server URL")
	fs.StringVar(&cf.tenantID, "tenant", os.Getenv("KOTAE_TENANT"), "tenant id (or KOTAE_TENANT)")
	return cf
}

func (cf *clientFlags) require() {
	if cf.tenantID == "" {
		fmt.Fprintln(os.Stderr, "A tenant is required: pass --tenant or set KOTAE_TENANT")
		os.Exit(1)
	}
}

func (cf *clientFlags) do(method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequest(method, cf.serverURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-Tenant-ID", cf.tenantID)
	return http.DefaultClient.Do(req)
}

func decodeOrFail(resp *http.Response, out any) {
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			fmt.Fprintf(os.Stderr, "Request failed (%s): %s\n", resp.Status, apiErr.Error)
		} else {
			fmt.Fprintf(os.Stderr, "Request failed: %s\n", resp.Status)
		}
		os.Exit(1)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to decode response: %v\n", err)
			os.Exit(1)
		}
	}
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	cf := addClientFlags(fs)
	asJSON := fs.Bool("json", false, "print the raw JSON response")
	_ = fs.Parse(os.Args[2:])
	cf.require()

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "Usage: kotae ask [flags] <question>")
		os.Exit(1)
	}

	body, _ := json.Marshal(models.AskRequest{Query: query})
	resp, err := cf.do(http.MethodPost, "/api/v1/ask", bytes.NewReader(body), "application/json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	var answer models.Answer
	decodeOrFail(resp, &answer)

	if *asJSON {
		out, _ := json.MarshalIndent(answer, "", "  ")
		fmt.Println(string(out))
		return
	}
	fmt.Println(answer.Text)
	if len(answer.Sources) > 0 {
		fmt.Printf("\nSources: %s\n", strings.Join(answer.Sources, ", "))
	}
	if answer.NoContext {
		fmt.Println("\n(no relevant documents were found)")
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	cf := addClientFlags(fs)
	_ = fs.Parse(os.Args[2:])
	cf.require()

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: kotae ingest [flags] <file> [<file>...]")
		os.Exit(1)
	}
	for _, path := range fs.Args() {
		result, err := uploadFile(cf, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingest %s failed: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("Ingested %s: document %s, %d chunks\n", result.Filename, result.DocumentID, result.ChunkCount)
	}
}

func uploadFile(cf *clientFlags, path string) (*models.IngestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	resp, err := cf.do(http.MethodPost, "/api/v1/documents", &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}
	var result models.IngestResult
	decodeOrFail(resp, &result)
	return &result, nil
}

func runDocuments() {
	fs := flag.NewFlagSet("documents", flag.ExitOnError)
	cf := addClientFlags(fs)
	_ = fs.Parse(os.Args[2:])
	cf.require()

	resp, err := cf.do(http.MethodGet, "/api/v1/documents", nil, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		os.Exit(1)
	}
	var docs []*models.Document
	decodeOrFail(resp, &docs)

	if len(docs) == 0 {
		fmt.Println("No documents.")
		return
	}
	for _, doc := range docs {
		fmt.Printf("%s  %-30s  %3d chunks  %s\n",
			doc.ID, doc.Filename, doc.ChunkCount, doc.CreatedAt.Format(time.RFC3339))
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	cf := addClientFlags(fs)
	_ = fs.Parse(os.Args[2:])
	cf.require()

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: kotae delete [flags] <document-id>")
		os.Exit(1)
	}
	id := fs.Arg(0)
	resp, err := cf.do(http.MethodDelete, "/api/v1/documents/"+id, nil, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
		os.Exit(1)
	}
	decodeOrFail(resp, nil)
	fmt.Printf("Deleted %s\n", id)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cf := addClientFlags(fs)
	_ = fs.Parse(os.Args[2:])
	cf.require()

	resp, err := cf.do(http.MethodGet, "/api/v1/status", nil, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	var status map[string]any
	decodeOrFail(resp, &status)
	out, _ := json.MarshalIndent(status, "", "  ")
	fmt.Println(string(out))
}

func printUsage() {
	fmt.Println(`kotae - retrieval-augmented question answering over your documents

Usage:
  kotae server [flags]                 Start the HTTP server
  kotae ask [flags] <question>         Ask a question
  kotae ingest [flags] <file>...       Upload and index documents
  kotae documents [flags]              List your documents
  kotae delete [flags] <document-id>   Delete a document
  kotae status [flags]                 Show server status
  kotae version                        Show version
  kotae help                           Show this help

Client commands talk to a running server and require a tenant identity
(--tenant or KOTAE_TENANT).

Flags (see each command's -h for details):
  -config string   config file path (server)
  -server string   server URL (client commands, default http://localhost:8080)
  -tenant string   tenant id (client commands)`)
}
