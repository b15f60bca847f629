// Package main is the kotae CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

// loadConfig loads config from path. When path is the default and a
// config.yaml exists in the working directory, that file is used instead so
// "kotae server" from a project directory picks up the project's config.
// It returns the config and the path that was loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == config.DefaultPath {
		if cwd, err := os.Getwd(); err == nil {
			local := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(local); err == nil {
				path = local
			}
		}
	}
	path = config.ExpandHome(path)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}
	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "server":
		err = runServer(args)
	case "ingest":
		err = runIngest(args)
	case "ask":
		err = runAsk(args)
	case "search":
		err = runSearch(args)
	case "delete":
		err = runDelete(args)
	case "documents":
		err = runDocuments(args)
	case "status":
		err = runStatus(args)
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger from config and the --debug flag.
func newLogger(cfg *config.Config, debug bool) (*zap.Logger, error) {
	return utils.NewLogger(cfg.Debug || debug, cfg.LogLevel)
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, resolvedPath, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg, *debug)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("config loaded", zap.String("config_path", resolvedPath), zap.Bool("debug", cfg.Debug || *debug))

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := watcher.NewWatcher(components.Indexer, cfg.Watch.Directories, watcher.Options{
		Extensions: cfg.Watch.Extensions,
		Recursive:  cfg.Watch.RecursiveOrDefault(),
	}, watcher.WithLogger(logger.Named("watcher")))
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Stop()
	go w.SyncExistingFiles()

	srv := server.NewServer(components.Service, cfg, logger.Named("server"), w, resolvedPath)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// argsReorder moves flags that follow positional arguments to the front, so
// "kotae ask how do I install -k 8" parses -k. The flag package stops at the
// first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildQuery joins positional arguments so quoting a question is optional.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*s = append(*s, part)
		}
	}
	return nil
}

type queryFlags struct {
	server   *string
	k        *int
	minScore *float64
	docs     stringList
	output   *string
}

func addQueryFlags(fs *flag.FlagSet) *queryFlags {
	q := &queryFlags{
		server:   fs.String("server", cli.DefaultServerURL, "server URL"),
		k:        fs.Int("k", 0, "number of chunks to retrieve (0 = server default)"),
		minScore: fs.Float64("min-score", 0, "drop chunks scoring below this similarity"),
		output:   fs.String("output", "text", "output format: text or json"),
	}
	fs.Var(&q.docs, "doc", "restrict to a document ID (repeatable or comma-separated)")
	return q
}

func (q *queryFlags) request(question string) *models.QueryRequest {
	return &models.QueryRequest{Question: question, K: *q.k, DocumentIDs: q.docs, MinScore: *q.minScore}
}

func runAsk(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	q := addQueryFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kotae ask [flags] <question>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(args))
	question := buildQuery(fs.Args())
	if question == "" {
		fs.Usage()
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*q.output)
	if err != nil {
		return err
	}
	answer, err := cli.NewClient(*q.server, 0).Ask(context.Background(), q.request(question))
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}
	return cli.WriteAnswer(os.Stdout, answer, format)
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	q := addQueryFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kotae search [flags] <query>\n\nShows the chunks a question would be answered from, without generating an answer.\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(args))
	query := buildQuery(fs.Args())
	if query == "" {
		fs.Usage()
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*q.output)
	if err != nil {
		return err
	}
	res, err := cli.NewClient(*q.server, 0).Retrieve(context.Background(), q.request(query))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return cli.WriteRetrieval(os.Stdout, res.Query, res.Sources, format)
}

func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath, "config file path (with --local)")
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL")
	local := fs.Bool("local", false, "index in-process into the database instead of through the server (server must not be running)")
	id := fs.String("id", "", "document ID (single file or stdin only; default derived from the path)")
	title := fs.String("title", "", "document title (single file or stdin only; default is the file name)")
	chunkSize := fs.Int("chunk-size", 0, "chunk size override in characters")
	chunkOverlap := fs.Int("chunk-overlap", -1, "chunk overlap override in characters (-1 = configured default, 0 = no overlap)")
	output := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kotae ingest [flags] <file|directory|->\n\n\"-\" reads the document from stdin.\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*output)
	if err != nil {
		return err
	}
	chunking := chunkOverride(*chunkSize, *chunkOverlap)
	target := fs.Arg(0)
	ctx := context.Background()

	if *local {
		return ingestLocal(ctx, *configPath, target, *id, *title, chunking, format)
	}
	inputs, err := readInputs(target, *id, *title, chunking)
	if err != nil {
		return err
	}
	client := cli.NewClient(*serverURL, 0)
	var failed int
	for _, in := range inputs {
		res, err := client.Ingest(ctx, in)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "ingest %s failed: %v\n", in.Title, err)
			continue
		}
		if err := cli.WriteIngest(os.Stdout, res, format); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(inputs))
	}
	return nil
}

// readInputs turns target into documents: stdin, one file, or every
// supported file under a directory. Files get IDs derived from their path.
// chunkOverride builds the per-document chunk window from the ingest flags.
// A size of 0 and a negative overlap keep the configured defaults.
func chunkOverride(size, overlap int) *models.ChunkOverride {
	if size <= 0 && overlap < 0 {
		return nil
	}
	o := &models.ChunkOverride{Size: size}
	if overlap >= 0 {
		o.Overlap = &overlap
	}
	return o
}

func readInputs(target, id, title string, chunking *models.ChunkOverride) ([]*models.DocumentInput, error) {
	if target == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return []*models.DocumentInput{{ID: id, Title: title, Content: string(content), Chunking: chunking}}, nil
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	var paths []string
	if info.IsDir() {
		if id != "" || title != "" {
			return nil, errors.New("--id and --title apply to a single document")
		}
		err = filepath.WalkDir(abs, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != abs && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if hasExtension(path, extract.SupportedExtensions) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	} else {
		paths = []string{abs}
	}

	ex := extract.NewExtractor()
	inputs := make([]*models.DocumentInput, 0, len(paths))
	for _, p := range paths {
		text, err := ex.Extract(p)
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", p, err)
		}
		in := &models.DocumentInput{
			ID:       fileid.FromPath(p),
			Title:    filepath.Base(p),
			Content:  text,
			Metadata: map[string]interface{}{"source_path": p},
			Chunking: chunking,
		}
		if id != "" {
			in.ID = id
		}
		if title != "" {
			in.Title = title
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func hasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func ingestLocal(ctx context.Context, configPath, target, id, title string, chunking *models.ChunkOverride, format cli.OutputFormat) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg, false)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer components.Close()

	info, statErr := os.Stat(target)
	if target != "-" && statErr == nil && info.IsDir() && id == "" && title == "" && chunking == nil {
		res, err := components.Indexer.IndexDirectory(ctx, target, extract.SupportedExtensions, true)
		if res != nil {
			fmt.Printf("Indexed %d files (%d chunks), %d unchanged, %d failed\n", res.Indexed, res.Chunks, res.Skipped, res.Failed)
		}
		return err
	}
	inputs, err := readInputs(target, id, title, chunking)
	if err != nil {
		return err
	}
	for _, in := range inputs {
		res, err := components.Service.IngestDocument(ctx, in)
		if err != nil {
			return err
		}
		if err := cli.WriteIngest(os.Stdout, res, format); err != nil {
			return err
		}
	}
	return nil
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL")
	byPath := fs.Bool("path", false, "treat the argument as a file path and delete the document derived from it")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kotae delete [flags] <document-id|path>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	id := fs.Arg(0)
	if *byPath {
		abs, err := filepath.Abs(id)
		if err != nil {
			return err
		}
		id = fileid.FromPath(abs)
	}
	n, err := cli.NewClient(*serverURL, 0).Delete(context.Background(), id)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	fmt.Printf("Deleted %s (%d chunks)\n", id, n)
	return nil
}

func runDocuments(args []string) error {
	fs := flag.NewFlagSet("documents", flag.ExitOnError)
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL")
	offset := fs.Int("offset", 0, "skip this many documents")
	limit := fs.Int("limit", 100, "maximum documents to list")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	format, err := cli.ParseFormat(*output)
	if err != nil {
		return err
	}
	docs, err := cli.NewClient(*serverURL, 0).Documents(context.Background(), *offset, *limit)
	if err != nil {
		return fmt.Errorf("list documents failed: %w", err)
	}
	return cli.WriteDocuments(os.Stdout, docs, format)
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", cli.DefaultServerURL, "server URL")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)
	format, err := cli.ParseFormat(*output)
	if err != nil {
		return err
	}
	st, err := cli.NewClient(*serverURL, 30*time.Second).Status(context.Background())
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}
	return cli.WriteStatus(os.Stdout, st, format)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `kotae - answer questions from your documents

Usage:
  kotae server [--config path] [--debug]     Start the HTTP server and directory watcher
  kotae ingest [flags] <file|dir|->          Add or replace documents
  kotae ask [flags] <question>               Answer a question from the documents
  kotae search [flags] <query>               Show the chunks a question retrieves
  kotae delete [--path] <id|path>            Remove a document
  kotae documents [--limit n]                List documents
  kotae status                               Show corpus status
  kotae version                              Print the version

Commands other than server talk to a running server (--server, default `+cli.DefaultServerURL+`).
"kotae ingest --local" writes to the database directly when no server is running.
`)
}
