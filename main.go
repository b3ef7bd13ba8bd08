package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/heathj/docparser/parser"
	"github.com/heathj/docparser/parser/dom"
	"github.com/heathj/docparser/parser/loader"
	"github.com/heathj/docparser/parser/script"
	"github.com/heathj/docparser/parser/treebuilder"
	"github.com/heathj/docparser/tasks"
)

// parseFlags holds command-line flags for the parse command
type parseFlags struct {
	chunkSize           int
	budget              string
	tokenBudget         int
	sync                bool
	threadedScanner     bool
	backgroundTokenizer bool
	noPreload           bool
	noScripting         bool
	url                 string
	contentType         string
	maxFetches          int
	linkPreloads        []string
	timeout             time.Duration
	dumpTree            bool
	format              string
	logLevel            string
}

func main() {
	tasks.StartPool(runtime.NumCPU())
	defer tasks.StopPool()

	rootCmd := createRootCmd(context.Background(), afero.NewOsFs())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		tasks.StopPool()
		os.Exit(1)
	}
}

// createRootCmd creates the root command with flags
func createRootCmd(ctx context.Context, fs afero.Fs) *cobra.Command {
	flags := &parseFlags{}

	rootCmd := &cobra.Command{
		Use:   "docparser",
		Short: "Incremental HTML document parser",
		Long: `Parse an HTML document in chunks the way a browser does: budgeted tokenizer
pumps, parser-blocking scripts and stylesheets, and speculative preloads.`,
		Example: `  # Parse a local file and print the tree
  docparser parse index.html --dump-tree

  # Feed stdin in small chunks with a timed budget
  cat page.html | docparser parse - --chunk-size 512 --budget timed

  # Resolve resources against a site
  docparser parse page.html --url https://example.com/ --log-level debug`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(createParseCmd(ctx, fs, flags))
	return rootCmd
}

// createParseCmd creates the parse command with flags
func createParseCmd(ctx context.Context, fs afero.Fs, flags *parseFlags) *cobra.Command {
	parseCmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse a document and report what the parser did",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) > 0 {
				path = args[0]
			}
			return runParse(ctx, fs, flags, path, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	setupParseFlags(parseCmd, flags)
	return parseCmd
}

// setupParseFlags configures flags for the parse command
func setupParseFlags(cmd *cobra.Command, flags *parseFlags) {
	// input options
	cmd.Flags().IntVar(&flags.chunkSize, "chunk-size", 4096, "Bytes handed to the parser per network chunk")
	cmd.Flags().StringVar(&flags.url, "url", "", "Document URL used to resolve resources (default file://<path>)")
	cmd.Flags().StringVar(&flags.contentType, "content-type", "text/html", "Content-Type used to pick the charset")

	// scheduling options
	cmd.Flags().StringVar(&flags.budget, "budget", "tokens", "Pump budget kind (tokens, timed)")
	cmd.Flags().IntVar(&flags.tokenBudget, "token-budget", 250, "Tokens per pump with the tokens budget")
	cmd.Flags().BoolVar(&flags.sync, "sync", false, "Parse synchronously instead of in posted tasks")
	cmd.Flags().BoolVar(&flags.noScripting, "no-scripting", false, "Parse as if scripting were disabled")

	// preload options
	cmd.Flags().BoolVar(&flags.noPreload, "no-preload", false, "Disable the preload scanner")
	cmd.Flags().BoolVar(&flags.threadedScanner, "threaded-scanner", false, "Scan for preloads on a background goroutine")
	cmd.Flags().BoolVar(&flags.backgroundTokenizer, "background-tokenizer", false, "Use the background tokenizer variant of the threaded scanner")
	cmd.Flags().IntVar(&flags.maxFetches, "max-fetches", 6, "Maximum concurrent resource fetches")
	cmd.Flags().StringSliceVar(&flags.linkPreloads, "link-preload", nil, "URLs preloaded as if named by a Link response header")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 30*time.Second, "Give up if the document is not complete by then")

	// output options
	cmd.Flags().BoolVar(&flags.dumpTree, "dump-tree", false, "Print the parsed document")
	cmd.Flags().StringVar(&flags.format, "format", "tree", "Document dump format (tree, html)")

	// logging options
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "warn", "Set logging level (panic, fatal, error, warn, info, debug, trace)")
}

// newLogger builds the stderr logger the parser and its collaborators share
func newLogger(level string, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, errors.Wrap(err, "bad --log-level")
	}
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{TimestampFormat: "15:04:05.000", FullTimestamp: true})
	return log, nil
}

// buildConfig maps flags onto a parser configuration
func buildConfig(flags *parseFlags, log logrus.FieldLogger) (parser.Config, error) {
	cfg := parser.DefaultConfig()
	kind, err := parser.ParseBudgetKind(flags.budget)
	if err != nil {
		return cfg, err
	}
	cfg.Budget = kind
	cfg.TokenBudget = flags.tokenBudget
	if flags.sync {
		cfg.SyncPolicy = parser.ForceSynchronousParsing
	}
	if flags.noScripting {
		cfg.ScriptingEnabled = false
		cfg.ContentPolicy = parser.DisallowScriptingAndPluginContent
	}
	cfg.PreloadScanningEnabled = !flags.noPreload
	cfg.ThreadedPreloadScanner = flags.threadedScanner || flags.backgroundTokenizer
	cfg.BackgroundTokenizer = flags.backgroundTokenizer
	cfg.Logger = log
	return cfg, cfg.Validate()
}

// readInput loads the document body and the URL it is parsed against
func readInput(fs afero.Fs, path, rawURL string, stdin io.Reader) ([]byte, *url.URL, error) {
	var (
		body []byte
		err  error
		doc  *url.URL
	)
	if path == "-" {
		body, err = io.ReadAll(stdin)
	} else {
		body, err = afero.ReadFile(fs, path)
		if abs, absErr := filepath.Abs(path); absErr == nil {
			doc = &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
		}
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading %s", path)
	}
	if rawURL != "" {
		if doc, err = url.Parse(rawURL); err != nil {
			return nil, nil, errors.Wrap(err, "bad --url")
		}
	}
	return body, doc, nil
}

// linkPreloads resolves --link-preload values against the document URL
func linkPreloads(refs []string, base *url.URL) ([]*parser.PreloadRequest, error) {
	var requests []*parser.PreloadRequest
	for _, ref := range refs {
		u, err := url.Parse(ref)
		if err != nil {
			return nil, errors.Wrapf(err, "bad --link-preload %q", ref)
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		if !u.IsAbs() {
			return nil, errors.Errorf("--link-preload %q is relative and there is no document URL", ref)
		}
		requests = append(requests, &parser.PreloadRequest{
			URL:           u,
			ResourceType:  parser.ResourceFetch,
			Priority:      parser.PriorityMedium,
			InitiatorName: "link-header",
		})
	}
	return requests, nil
}

// runParse executes the parse command with the provided flags
func runParse(ctx context.Context, fs afero.Fs, flags *parseFlags, path string, stdin io.Reader, out, errOut io.Writer) error {
	log, err := newLogger(flags.logLevel, errOut)
	if err != nil {
		return err
	}
	if flags.chunkSize <= 0 {
		return errors.Errorf("--chunk-size must be positive, got %d", flags.chunkSize)
	}
	if flags.format != "tree" && flags.format != "html" {
		return errors.Errorf("unknown --format %q", flags.format)
	}
	cfg, err := buildConfig(flags, log)
	if err != nil {
		return err
	}
	body, docURL, err := readInput(fs, path, flags.url, stdin)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, flags.timeout)
	defer cancel()

	links, err := linkPreloads(flags.linkPreloads, docURL)
	if err != nil {
		return err
	}

	loop := tasks.NewLoop(log)
	doc := dom.NewHTMLDocument(docURL)
	pre := loader.NewPreloader(ctx, loader.Options{
		Fetch:        loader.NewFetch(http.DefaultClient, fs),
		MaxFetches:   flags.maxFetches,
		Logger:       log,
		LinkPreloads: links,
	})

	var runner *script.Runner
	p, err := parser.New(cfg, parser.Deps{
		Document: doc,
		Loader:   pre,
		NewTreeBuilder: treebuilder.Factory(doc, treebuilder.Options{
			ScriptingEnabled: cfg.ScriptingEnabled,
			Stylesheets:      pre,
			Tasks:            loop,
			Logger:           log,
		}),
		NewScriptRunner: script.Factory(script.Options{
			Tasks:   loop,
			Loader:  pre,
			BaseURL: docURL,
			Logger:  log,
			Context: ctx,
		}, &runner),
		Preloader:  pre,
		Fetcher:    pre,
		Scheduler:  loop,
		TaskRunner: loop,
	})
	if err != nil {
		return err
	}
	decoder := parser.NewDecoder(flags.contentType)
	p.SetDecoder(decoder)

	startedAt := time.Now()
	log.WithFields(logrus.Fields{
		"parser": p.ID(),
		"bytes":  len(body),
		"url":    docURL,
		"policy": cfg.SyncPolicy,
		"budget": cfg.Budget,
	}).Debug("starting parse")

	// each chunk arrives in its own task, like network reads
	for start := 0; start < len(body); start += flags.chunkSize {
		chunk := body[start:min(start+flags.chunkSize, len(body))]
		loop.PostTask(func() {
			if err := p.AppendBytes(chunk); err != nil {
				log.WithError(err).Warn("append failed")
			}
		})
	}
	loop.PostTask(p.Finish)

	runErr := loop.RunUntil(ctx, func() bool { return doc.ReadyState == dom.Complete })
	if runErr != nil {
		loop.PostTask(p.Detach)
	}
	loop.Close()
	if err := loop.Wait(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	if runner != nil {
		runner.Wait()
	}
	if err := pre.Wait(); err != nil {
		log.WithError(err).Warn("fetches failed")
	}
	if runErr != nil {
		return errors.Wrap(runErr, "document did not complete")
	}

	log.WithField("duration", time.Since(startedAt).String()).Debug("parse completed")
	return writeReport(out, flags, doc, decoder, p.Stats(), pre)
}

// writeReport prints what the parser did and, optionally, the document
func writeReport(out io.Writer, flags *parseFlags, doc *dom.HTMLDocument, decoder *parser.Decoder, stats parser.Stats, pre *loader.Preloader) error {
	fetched := 0
	var bytes uint64
	for _, res := range pre.Resources() {
		if !res.IsDone() {
			continue
		}
		if b, err := res.Result(); err == nil {
			fetched++
			bytes += uint64(len(b))
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "encoding: %s\n", decoder.Encoding())
	fmt.Fprintf(&sb, "ready state: %s\n", doc.ReadyState)
	fmt.Fprintf(&sb, "tokens: %d\npumps: %d\nyields: %d\n", stats.Tokens, stats.Pumps, stats.Yields)
	fmt.Fprintf(&sb, "scripts: %d (%s)\n", stats.Scripts, stats.ScriptTime)
	requests := pre.Requests()
	fmt.Fprintf(&sb, "preloads: %d\n", len(requests))
	for _, req := range requests {
		fmt.Fprintf(&sb, "  %s\n", req)
	}
	fmt.Fprintf(&sb, "fetched: %d (%s)\n", fetched, humanize.Bytes(bytes))
	if vp := pre.Viewport(); vp != "" {
		fmt.Fprintf(&sb, "viewport: %s\n", vp)
	}
	for _, ch := range pre.MetaCH() {
		fmt.Fprintf(&sb, "client hints: %s\n", ch.Value)
	}

	if flags.dumpTree {
		if flags.format == "html" {
			sb.WriteString(doc.Node.OuterHTML() + "\n")
		} else {
			sb.WriteString(doc.Node.String() + "\n")
		}
	}
	_, err := io.WriteString(out, sb.String())
	return errors.Wrap(err, "writing report")
}
