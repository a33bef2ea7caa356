// rpgexplain analyzes IBM i RPG sources and explains them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mayflower/rpg-explainer/internal/cache"
	"github.com/mayflower/rpg-explainer/internal/config"
	"github.com/mayflower/rpg-explainer/internal/discover"
	"github.com/mayflower/rpg-explainer/internal/extract"
	"github.com/mayflower/rpg-explainer/internal/index"
	"github.com/mayflower/rpg-explainer/internal/lang"
	"github.com/mayflower/rpg-explainer/internal/model"
	"github.com/mayflower/rpg-explainer/internal/parse"
	"github.com/mayflower/rpg-explainer/internal/ranking"
	"github.com/mayflower/rpg-explainer/internal/report"
	"github.com/mayflower/rpg-explainer/internal/toon"
)

var version = "dev"

// newGenerator creates the model backend. Tests replace it.
var newGenerator = func(ctx context.Context, cfg report.GeminiConfig) (report.Generator, error) {
	return report.NewGemini(ctx, cfg)
}

func main() {
	_ = godotenv.Load()
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if args == nil {
		args = []string{}
	}
	cmd := newRootCmd(stdout, &lockedWriter{w: stderr})
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

type options struct {
	configPath  string
	output      string
	update      string
	json        bool
	toon        bool
	noLLM       bool
	quick       bool
	model       string
	procedure   string
	maxProcs    int
	cachePath   string
	maxFileSize int64
	workers     int
	showVersion bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var o options
	cmd := &cobra.Command{
		Use:   "rpgexplain [flags] PATH...",
		Short: "Analyze and explain IBM i RPG programs",
		Long: `Parses RPG source members (free-form, fixed-form or mixed), extracts
procedures, subroutines, files, constants, data structures and the call graph,
and asks a language model for a human-readable explanation.

PATH may be a source member or a directory, which is searched for members
with a known RPG extension.

Examples:
  rpgexplain program.rpgle
  rpgexplain qrpglesrc/ --output report.md
  rpgexplain program.rpgle --json > index.json
  rpgexplain qrpglesrc/ --procedure ProcessOrder`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.showVersion {
				_, _ = fmt.Fprintf(stdout, "rpgexplain %s\n", version)
				return nil
			}
			if len(args) == 0 {
				return errors.New("at least one PATH is required")
			}
			return explain(cmd, args, &o, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "", "config file (default ./rpgexplain.yaml)")
	f.StringVarP(&o.output, "output", "o", "", "write the result to a file instead of stdout")
	f.StringVar(&o.update, "update", "", "merge the result into a markdown file between rpgexplain markers")
	f.BoolVar(&o.json, "json", false, "print the program index as JSON")
	f.BoolVar(&o.toon, "toon", false, "print the program index in TOON format")
	f.BoolVar(&o.noLLM, "no-llm", false, "skip the model and print statistics only")
	f.BoolVar(&o.quick, "quick", false, "ask for a two or three sentence summary")
	f.StringVar(&o.model, "model", "", "override the model")
	f.StringVar(&o.procedure, "procedure", "", "focus on procedures whose name contains this text")
	f.IntVarP(&o.maxProcs, "max-procedures", "n", 0, "keep only the N most central procedures")
	f.StringVar(&o.cachePath, "cache", "", "record cache database path (enables caching)")
	f.Int64Var(&o.maxFileSize, "max-file-size", 0, "skip files larger than this many bytes")
	f.IntVarP(&o.workers, "workers", "j", 0, "files analyzed in parallel (0 = one per CPU)")
	f.BoolVarP(&o.showVersion, "version", "V", false, "show version and exit")
	cmd.MarkFlagsMutuallyExclusive("json", "toon", "no-llm")
	cmd.MarkFlagsMutuallyExclusive("quick", "procedure")
	cmd.MarkFlagsMutuallyExclusive("output", "update")

	cmd.AddCommand(newInitCmd(stdout, stderr))
	return cmd
}

func loadConfig(cmd *cobra.Command, o *options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
	} else {
		var wd string
		wd, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		cfg, err = config.LoadFromDir(wd)
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("model") {
		cfg.Report.Model = o.model
	}
	if flags.Changed("max-file-size") {
		cfg.Discover.MaxFileSize = o.maxFileSize
	}
	if flags.Changed("workers") {
		cfg.Analysis.Workers = o.workers
	}
	if flags.Changed("cache") {
		cfg.Cache.Enabled = true
		cfg.Cache.Path = o.cachePath
	}
	return cfg, cfg.Validate()
}

func explain(cmd *cobra.Command, args []string, o *options, stdout, stderr io.Writer) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, o)
	if err != nil {
		return err
	}

	files, err := discover.Paths(args, discover.Options{
		Include:     cfg.Discover.Includes,
		Exclude:     cfg.Discover.Excludes,
		MaxFileSize: cfg.Discover.MaxFileSize,
		OnSkip: func(path, reason string) {
			_, _ = fmt.Fprintf(stderr, "Warning: %s: skipped (%s)\n", path, reason)
		},
	})
	if err != nil {
		return fmt.Errorf("discovering files: %w", err)
	}
	if len(files) == 0 {
		return errors.New("no RPG source files found")
	}

	progress(stderr, "Parsing RPG source files...")
	units, issues := parseAll(ctx, files, stderr)
	defer func() {
		for _, u := range units {
			u.Close()
		}
	}()
	if len(units) == 0 {
		return errors.New("no files were successfully parsed")
	}

	progress(stderr, "Analyzing dependencies and structure...")
	idx, failed := analyze(ctx, units, cfg, stderr)
	issues = append(issues, failed...)
	if len(idx.Files) == 0 {
		return errors.New("no files could be analyzed")
	}
	if len(issues) > 0 {
		_, _ = fmt.Fprintf(stderr, "Warning: %d file(s) had parse issues.\n", len(issues))
	}

	view := idx
	if o.procedure != "" && (o.json || o.toon || o.noLLM) {
		view = ranking.FilterByProcedure(view, o.procedure)
	}
	view = ranking.SelectProcedures(view, o.maxProcs)

	switch {
	case o.json:
		data, err := view.JSON(2)
		if err != nil {
			return fmt.Errorf("encoding index: %w", err)
		}
		return emit(o, string(data)+"\n", "JSON index", stdout, stderr)
	case o.toon:
		return emit(o, toon.Encode(view, programName(args))+"\n", "TOON index", stdout, stderr)
	case o.noLLM:
		var b strings.Builder
		if err := report.WriteStats(&b, view, issues); err != nil {
			return err
		}
		return emit(o, b.String(), "Statistics", stdout, stderr)
	}

	key := cfg.APIKey()
	if key == "" {
		return fmt.Errorf("%w: set %s or use --no-llm", report.ErrNoAPIKey, cfg.Report.APIKeyEnv)
	}
	gen, err := newGenerator(ctx, report.GeminiConfig{
		APIKey:          key,
		Model:           cfg.Report.Model,
		Temperature:     cfg.Report.Temperature,
		MaxOutputTokens: cfg.Report.MaxOutputTokens,
	})
	if err != nil {
		return err
	}
	r := report.New(gen)

	progress(stderr, fmt.Sprintf("Calling %s for explanation...", cfg.Report.Model))
	var text string
	switch {
	case o.procedure != "":
		text, err = explainProcedures(ctx, r, idx, units, o.procedure)
	case o.quick:
		text, err = r.Quick(ctx, view)
	default:
		var sources []report.Source
		if cfg.Report.IncludeSource {
			for _, u := range units {
				sources = append(sources, report.Source{Path: u.Path, Text: string(u.Source)})
			}
		}
		text, err = r.Program(ctx, view, sources)
	}
	if err != nil {
		return fmt.Errorf("LLM call failed: %w", err)
	}

	text = report.AppendIssues(text, issues)
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return emit(o, text, "Report", stdout, stderr)
}

// parseAll parses every file with the grammar of its dialect. Files that
// cannot be read are reported and skipped; units with syntax errors are kept
// and reported.
func parseAll(ctx context.Context, files []discover.FileEntry, stderr io.Writer) ([]*parse.Unit, []report.Issue) {
	parsers := make(map[string]*parse.Parser)
	var (
		units  []*parse.Unit
		issues []report.Issue
	)
	for _, f := range files {
		p, ok := parsers[f.Dialect]
		if !ok {
			p = parse.New(nil)
			if d := lang.Dialects[f.Dialect]; d != nil {
				p = parse.New(d.Grammar)
			}
			parsers[f.Dialect] = p
		}

		u, err := p.ParseFile(ctx, f.Path)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Warning: Failed to parse %s: %v\n", f.Path, err)
			issues = append(issues, report.Issue{Path: f.Path, Message: err.Error()})
			continue
		}
		if u.HasErrors {
			issues = append(issues, report.Issue{Path: f.Path, Message: "Parse tree contains errors"})
		}
		units = append(units, u)
	}
	return units, issues
}

// analyze runs both passes, isolating units whose text cannot be decoded.
func analyze(ctx context.Context, units []*parse.Unit, cfg *config.Config, stderr io.Writer) (*model.ProgramIndex, []report.Issue) {
	opts := []index.Option{
		index.WithWorkers(cfg.Analysis.Workers),
		index.WithWarnings(stderr),
	}
	if cfg.Cache.Enabled && cfg.Cache.Path != "" {
		store, err := cache.Open(cfg.Cache.Path, cfg.Cache.MemoryEntries)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Warning: cache disabled: %v\n", err)
		} else {
			defer store.Close()
			opts = append(opts, index.WithCache(store))
		}
	}
	if bar := newProgressBar(stderr, len(units)); bar != nil {
		opts = append(opts, index.WithProgress(bar))
	}

	var (
		records []model.FileRecord
		issues  []report.Issue
	)
	for _, res := range index.Analyze(ctx, units, opts...) {
		if res.Err != nil {
			_, _ = fmt.Fprintf(stderr, "Warning: Failed to analyze %s: %v\n", res.Path, res.Err)
			issues = append(issues, report.Issue{Path: res.Path, Message: res.Err.Error()})
			continue
		}
		records = append(records, res.Record)
	}
	return index.Assemble(records), issues
}

func explainProcedures(ctx context.Context, r *report.Reporter, idx *model.ProgramIndex, units []*parse.Unit, name string) (string, error) {
	matches := ranking.FindProcedures(idx, name)
	if len(matches) == 0 {
		return "", fmt.Errorf("no procedure matches %q", name)
	}
	byPath := make(map[string]*parse.Unit, len(units))
	for _, u := range units {
		byPath[u.Path] = u
	}

	var parts []string
	for _, m := range matches {
		var source string
		if u := byPath[m.File]; u != nil {
			text, ok, err := extract.ProcedureSource(u.Root, u.Source, m.Procedure.Name)
			if err != nil {
				return "", fmt.Errorf("reading %s in %s: %w", m.Procedure.Name, m.File, err)
			}
			if ok {
				source = text
			}
		}
		text, err := r.Procedure(ctx, m.Procedure, source)
		if err != nil {
			return "", err
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n---\n\n"), nil
}

// emit writes text to the destination chosen by the output flags.
func emit(o *options, text, what string, stdout, stderr io.Writer) error {
	switch {
	case o.update != "":
		existing, err := os.ReadFile(o.update)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("reading %s: %w", o.update, err)
		}
		updated := applySection(string(existing), wrapSection(text))
		if err := os.WriteFile(o.update, []byte(updated), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", o.update, err)
		}
		progress(stderr, fmt.Sprintf("%s merged into %s", what, o.update))
	case o.output != "":
		if err := os.WriteFile(o.output, []byte(text), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", o.output, err)
		}
		progress(stderr, fmt.Sprintf("%s written to %s", what, o.output))
	default:
		_, _ = io.WriteString(stdout, text)
	}
	return nil
}

func progress(w io.Writer, msg string) {
	_, _ = fmt.Fprintf(w, ">> %s\n", msg)
}

func programName(args []string) string {
	abs, err := filepath.Abs(args[0])
	if err != nil {
		return filepath.Base(args[0])
	}
	name := filepath.Base(abs)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// newProgressBar returns a per-unit callback drawing a progress bar, or nil
// when w is not a terminal.
func newProgressBar(w io.Writer, total int) func(index.Result) {
	lw, ok := w.(*lockedWriter)
	if !ok {
		return nil
	}
	f, ok := lw.w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return nil
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(lw),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Analyzing[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(lw)
		}),
	)
	var mu sync.Mutex
	return func(index.Result) {
		mu.Lock()
		defer mu.Unlock()
		_ = bar.Add(1)
	}
}

// lockedWriter serializes writes from analysis workers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
