package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/renderinc/doc-archive/internal/archive"
	"github.com/renderinc/doc-archive/internal/config"
	"github.com/renderinc/doc-archive/internal/extract"
	"github.com/renderinc/doc-archive/internal/ingest"
	"github.com/renderinc/doc-archive/internal/logging"
	"github.com/renderinc/doc-archive/internal/ocr"
	"github.com/renderinc/doc-archive/internal/web"
)

var (
	cfg *config.Config
	// base is handed to the archive, the ingest worker and the server,
	// which tag their own component. logger is the CLI's.
	base   zerolog.Logger
	logger zerolog.Logger
)

// globalOptions are the flags accepted before the command name.
type globalOptions struct {
	configPath string
	archiveDir string
	command    string
	args       []string
}

// parseGlobalArgs parses global flags in either -flag=value or -flag value
// form and splits off the command and its arguments.
func parseGlobalArgs(argv []string) (*globalOptions, error) {
	opts := &globalOptions{}
	globalFlags := flag.NewFlagSet("global", flag.ContinueOnError)
	globalFlags.SetOutput(io.Discard)
	globalFlags.StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	globalFlags.StringVar(&opts.archiveDir, "archive-dir", "", "Archive directory (overrides config)")

	if err := globalFlags.Parse(argv); err != nil {
		return nil, err
	}
	if globalFlags.NArg() < 1 {
		return nil, errors.New("command required")
	}
	opts.command = globalFlags.Arg(0)
	opts.args = globalFlags.Args()[1:]
	return opts, nil
}

func main() {
	opts, err := parseGlobalArgs(os.Args[1:])
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		}
		printUsage()
		os.Exit(1)
	}

	cfg, err = config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if opts.archiveDir != "" {
		cfg.ArchiveDir = opts.archiveDir
	}
	base = logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stderr)
	logger = logging.Component(base, "cli")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := opts.command
	args := opts.args

	switch command {
	case "save":
		saveFlags := flag.NewFlagSet("save", flag.ExitOnError)
		notes := saveFlags.String("notes", "", "Free-form notes stored with the document")
		saveFlags.Parse(args)
		if saveFlags.NArg() < 1 {
			usageError("file path required", "save [-notes=<text>] <file>")
		}
		runSave(ctx, saveFlags.Arg(0), *notes)
	case "save-text":
		textFlags := flag.NewFlagSet("save-text", flag.ExitOnError)
		name := textFlags.String("name", "manual_entry", "Filename recorded for the text")
		notes := textFlags.String("notes", "", "Free-form notes stored with the document")
		textFlags.Parse(args)
		if textFlags.NArg() < 1 {
			usageError("text required (use - to read stdin)", "save-text [-name=<name>] <text|->")
		}
		runSaveText(ctx, *name, strings.Join(textFlags.Args(), " "), *notes)
	case "get":
		runGet(ctx, parseID(args, "get <id>"))
	case "get-doc":
		runGetDoc(ctx, parseID(args, "get-doc <id>"))
	case "search":
		searchFlags := flag.NewFlagSet("search", flag.ExitOnError)
		fuzzy := searchFlags.Bool("fuzzy", false, "Search the Bleve mirror (typo tolerant, term~N)")
		limit := searchFlags.Int("limit", 10, "Maximum number of results (1-100)")
		searchFlags.Parse(args)
		if searchFlags.NArg() < 1 {
			usageError("search query required", "search [flags] <query>")
		}
		runSearch(ctx, strings.Join(searchFlags.Args(), " "), *fuzzy, *limit)
	case "delete":
		runDelete(ctx, parseID(args, "delete <id>"))
	case "ingest":
		if len(args) < 1 {
			usageError("directory required", "ingest <dir>")
		}
		runIngest(ctx, args[0])
	case "reindex":
		runReindex(ctx)
	case "stats":
		runStats(ctx)
	case "serve":
		serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)
		host, port := splitListen(cfg.Listen)
		hostFlag := serveFlags.String("host", host, "Host to bind to")
		portFlag := serveFlags.String("port", port, "Port to listen on")
		serveFlags.Parse(args)
		runServe(ctx, net.JoinHostPort(*hostFlag, *portFlag))
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("doc-archive - Searchable archive for PDF, DOCX, HTML, Markdown and text documents")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  doc-archive [global-flags] <command> [flags]")
	fmt.Println()
	fmt.Println("Global Flags:")
	fmt.Println("  --config=<path>       YAML config file (default: built-in defaults + environment)")
	fmt.Println("  --archive-dir=<dir>   Archive directory (default: ./archive)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  save [flags] <file>       Extract (or OCR) a file and archive it")
	fmt.Println("  save-text [flags] <text>  Archive text typed on the command line, - reads stdin")
	fmt.Println("  get <id>                  Show a document record as JSON")
	fmt.Println("  get-doc <id>              Print a document's archived markdown")
	fmt.Println("  search [flags] <query>    Full-text search")
	fmt.Println("  delete <id>               Delete a document")
	fmt.Println("  ingest <dir>              Archive every supported file under a directory")
	fmt.Println("  reindex                   Rebuild the Bleve mirror from the catalog")
	fmt.Println("  stats                     Show archive statistics")
	fmt.Println("  serve [flags]             Start the HTTP API")
	fmt.Println()
	fmt.Println("Search Flags:")
	fmt.Println("  -fuzzy            Use the Bleve mirror (fuzzy terms like deploy~2, highlighted fragments)")
	fmt.Println("  -limit=<n>        Maximum results (default: 10)")
	fmt.Println()
	fmt.Println("Serve Flags:")
	fmt.Println("  -host=<host>      Host to bind to (default: localhost)")
	fmt.Println("  -port=<port>      Port to listen on (default: 8000)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  doc-archive save report.pdf")
	fmt.Println("  echo 'meeting notes' | doc-archive save-text -name=notes.txt -")
	fmt.Println("  doc-archive search kubernetes                # Keyword search")
	fmt.Println("  doc-archive search '\"postgres config\"'       # Phrase search")
	fmt.Println("  doc-archive search -fuzzy 'deploy~2'          # Fuzzy search")
	fmt.Println("  doc-archive ingest ~/Documents/scans")
	fmt.Println("  doc-archive --archive-dir=/srv/archive serve -port=3000")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  ARCHIVE_DIR, ARCHIVE_LISTEN, ARCHIVE_MAX_FILE_MB, OCR_API_KEY, OCR_BASE_URL, OCR_MODEL, LOG_LEVEL")
}

func usageError(msg, usage string) {
	fmt.Printf("Error: %s\n", msg)
	fmt.Printf("Usage: doc-archive [global-flags] %s\n", usage)
	os.Exit(1)
}

func parseID(args []string, usage string) int64 {
	if len(args) < 1 {
		usageError("document ID required", usage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		usageError(fmt.Sprintf("invalid document ID %q", args[0]), usage)
	}
	return id
}

func splitListen(listen string) (string, string) {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "localhost", "8000"
	}
	return host, port
}

func openArchive() *archive.Archive {
	a, err := archive.New(archive.Config{
		Dir:           cfg.ArchiveDir,
		BusyTimeoutMS: cfg.BusyTimeoutMS,
		Mirror:        cfg.Mirror,
	}, archive.WithLogger(base))
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.ArchiveDir).Msg("open archive")
	}
	return a
}

func newConverter() *ingest.Converter {
	client := ocr.NewClient(cfg.OCR.BaseURL, cfg.OCR.APIKey, cfg.OCR.Model, ocr.WithTimeout(cfg.OCR.Timeout))
	if !client.Configured() {
		logger.Debug().Msg("OCR_API_KEY not set, scanned documents will fail with an ocr error")
	}
	return ingest.NewConverter(extract.New(cfg.MaxFileBytes()), client)
}

func runSave(ctx context.Context, path, notes string) {
	a := openArchive()
	defer a.Close()

	worker := ingest.NewWorker(a, newConverter(), 1, base)
	id, err := worker.IngestFile(ctx, path, optional(notes))
	if err != nil {
		logger.Fatal().Err(err).Str("kind", web.ErrorKind(err)).Str("path", path).Msg("save failed")
	}
	fmt.Printf("Saved %s as document %d\n", path, id)
}

func runSaveText(ctx context.Context, name, text, notes string) {
	if text == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			logger.Fatal().Err(err).Msg("read stdin")
		}
		text = string(data)
	}

	a := openArchive()
	defer a.Close()

	id, err := a.Save(ctx, archive.SaveRequest{
		Filename:     name,
		OriginalType: string(extract.FormatText),
		Content:      text,
		Notes:        optional(notes),
	})
	if err != nil {
		logger.Fatal().Err(err).Str("kind", web.ErrorKind(err)).Msg("save failed")
	}
	fmt.Printf("Saved text as document %d\n", id)
}

func runGet(ctx context.Context, id int64) {
	a := openArchive()
	defer a.Close()

	doc, err := a.Get(ctx, id)
	if err != nil {
		logger.Fatal().Err(err).Int64("id", id).Msg("get document")
	}
	if doc == nil {
		fmt.Printf("Document not found: %d\n", id)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(doc)
}

func runGetDoc(ctx context.Context, id int64) {
	a := openArchive()
	defer a.Close()

	content, err := a.Content(ctx, id)
	if errors.Is(err, archive.ErrNotFound) {
		fmt.Printf("Document not found: %d\n", id)
		os.Exit(1)
	}
	if err != nil {
		logger.Fatal().Err(err).Int64("id", id).Msg("read document")
	}

	fmt.Print(content)
}

func runSearch(ctx context.Context, query string, fuzzy bool, limit int) {
	a := openArchive()
	defer a.Close()

	if fuzzy {
		fmt.Println("Using fuzzy search...")
		results, err := a.FuzzySearch(ctx, query, limit)
		if err != nil {
			logger.Fatal().Err(err).Str("kind", web.ErrorKind(err)).Msg("search failed")
		}
		if len(results) == 0 {
			fmt.Println("No results found")
			return
		}
		fmt.Printf("\nFound %d results:\n\n", len(results))
		for i, r := range results {
			fmt.Printf("%d. %s (id %d, %s)\n", i+1, r.Filename, r.ID, r.OriginalType)
			fmt.Printf("   Score: %.3f\n", r.Score)
			if snippets, ok := r.Fragments["Content"]; ok && len(snippets) > 0 {
				fmt.Printf("   Preview: %s\n", snippets[0])
			}
			fmt.Println()
		}
		return
	}

	fmt.Println("Using keyword search...")
	hits, err := a.Search(ctx, query, limit)
	if err != nil {
		logger.Fatal().Err(err).Str("kind", web.ErrorKind(err)).Msg("search failed")
	}
	if len(hits) == 0 {
		fmt.Println("No results found")
		return
	}

	fmt.Printf("\nFound %d results:\n\n", len(hits))
	for i, hit := range hits {
		doc := hit.Document
		fmt.Printf("%d. %s (id %d, %s, %d words)\n", i+1, doc.Filename, doc.ID, doc.OriginalType, doc.WordCount)
		fmt.Printf("   Added: %s\n", doc.AddedDate.Local().Format("2006-01-02 15:04"))
		fmt.Printf("   Score: %.3f\n", hit.Score)
		if hit.Snippet != "" {
			fmt.Printf("   Preview: %s\n", hit.Snippet)
		}
		fmt.Println()
	}
}

func runDelete(ctx context.Context, id int64) {
	a := openArchive()
	defer a.Close()

	deleted, err := a.Delete(ctx, id)
	if err != nil {
		logger.Fatal().Err(err).Int64("id", id).Msg("delete document")
	}
	if !deleted {
		fmt.Printf("Document not found: %d\n", id)
		os.Exit(1)
	}
	fmt.Printf("Deleted document %d\n", id)
}

func runIngest(ctx context.Context, dir string) {
	a := openArchive()
	defer a.Close()

	worker := ingest.NewWorker(a, newConverter(), cfg.IngestConcurrency, base)
	stats, err := worker.IngestDir(ctx, dir)
	if err != nil && stats == nil {
		logger.Fatal().Err(err).Str("dir", dir).Msg("ingest failed")
	}

	fmt.Println()
	fmt.Println("=== Ingest Complete ===")
	fmt.Printf("Files:     %d\n", stats.Total)
	fmt.Printf("Saved:     %d\n", stats.Saved)
	fmt.Printf("Skipped:   %d\n", stats.Skipped)
	fmt.Printf("Errors:    %d\n", stats.Errors)
	fmt.Printf("Duration:  %v\n", stats.Duration)
	if err != nil {
		logger.Fatal().Err(err).Msg("ingest interrupted")
	}
}

func runReindex(ctx context.Context) {
	if !cfg.Mirror {
		logger.Fatal().Msg("mirror is disabled in config, nothing to reindex")
	}
	a := openArchive()
	defer a.Close()

	fmt.Println("Rebuilding Bleve mirror...")
	err := a.Reindex(ctx, func(current, total int) {
		if current%100 == 0 || current == total {
			fmt.Printf("  Indexed %d/%d documents\n", current, total)
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("reindex failed")
	}
	fmt.Println("✓ Reindex complete")
}

func runStats(ctx context.Context) {
	a := openArchive()
	defer a.Close()

	st, err := a.Stats(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("stats")
	}

	fmt.Println("=== Archive Statistics ===")
	fmt.Printf("Archive directory:  %s\n", cfg.ArchiveDir)
	fmt.Printf("Catalog:            %s\n", cfg.DBPath())
	fmt.Printf("Blobs:              %s\n", cfg.DocumentsDir())
	fmt.Printf("Documents:          %d\n", st.Documents)
	fmt.Printf("Search entries:     %d\n", st.SearchEntries)
	if st.MirrorEnabled {
		fmt.Printf("Mirror:             %s\n", cfg.MirrorPath())
		fmt.Printf("Mirror entries:     %d\n", st.MirrorEntries)
	} else {
		fmt.Println("Mirror:             disabled")
	}
	if st.Documents != st.SearchEntries {
		fmt.Println("⚠ Catalog and search index disagree")
	}
}

func runServe(ctx context.Context, addr string) {
	a := openArchive()
	defer a.Close()

	srv := web.NewServer(a, newConverter(), base, cfg.MaxFileBytes())
	fmt.Printf("Starting server on http://%s\n", addr)
	if err := srv.Run(ctx, addr); err != nil {
		logger.Error().Err(err).Msg("server stopped")
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
