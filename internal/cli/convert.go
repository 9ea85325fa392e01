package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/FreelineGuide/ExamBulldozer/internal/export"
	"github.com/FreelineGuide/ExamBulldozer/internal/pipeline"
)

var (
	questionType string
	modelID      string
	outDir       string
	concurrency  int
	margin       float64
	asJSON       bool
	noExport     bool
	noProgress   bool
	noCache      bool
)

var convertCmd = &cobra.Command{
	Use:   "convert [files or globs...]",
	Short: "Convert exam text into structured records and an XLSX workbook",
	Long: `Convert reads the given files (globs such as "exams/**/*.txt" are expanded),
or standard input when none are given, and runs the conversion pipeline.

The workbook is written to the export directory. Failed batches and records
are listed in the report; they do not change the exit status. Only
configuration errors (unknown question type, bad schema, missing API key,
non-positive token budget) exit non-zero.

Examples:
  exambulldozer convert -t single_choice exam.txt
  exambulldozer convert -t 判断题 -m qwen-plus "papers/**/*.txt"
  cat exam.txt | exambulldozer convert -t multiple_choice --json`,
	RunE: runConvert,
}

var planCmd = &cobra.Command{
	Use:   "plan [files or globs...]",
	Short: "Show how input would be batched without calling a model",
	RunE:  runPlan,
}

func init() {
	for _, c := range []*cobra.Command{convertCmd, planCmd} {
		c.Flags().StringVarP(&questionType, "type", "t", "", "question type id or alias (required)")
		c.Flags().StringVarP(&modelID, "model", "m", "", "model id (default from config)")
		c.Flags().Float64Var(&margin, "margin", -1, "safety margin in [0, 1) (default from config)")
		_ = c.MarkFlagRequired("type")
		rootCmd.AddCommand(c)
	}
	convertCmd.Flags().StringVarP(&outDir, "out", "o", "", "directory for the workbook (default from config)")
	convertCmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "batches in flight (default from config)")
	convertCmd.Flags().BoolVar(&asJSON, "json", false, "print the run result as JSON instead of a report")
	convertCmd.Flags().BoolVar(&noExport, "no-export", false, "skip writing the workbook")
	convertCmd.Flags().BoolVar(&noProgress, "no-progress", false, "hide the progress bar")
	convertCmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the completion cache for this run")
}

// resolveInputs expands globs in args and returns matching files in order,
// without duplicates. A pattern that matches nothing is an error.
func resolveInputs(args []string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	for _, arg := range args {
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", arg)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}

// readInput concatenates the files named by args, or reads stdin when args is empty.
func readInput(args []string, stdin io.Reader) (string, error) {
	if len(args) == 0 {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}
	files, err := resolveInputs(args)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(files))
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", f, err)
		}
		parts = append(parts, strings.TrimSpace(string(b)))
	}
	return strings.Join(parts, "\n\n"), nil
}

func (a *app) runConfigFromFlags() (pipeline.RunConfig, error) {
	settings := a.settings()
	if margin >= 0 {
		settings.SafetyMargin = margin
	}
	if concurrency > 0 {
		settings.Concurrency = concurrency
	}
	model := modelID
	if model == "" {
		model = a.cfg.LLM.Model
	}
	return settings.RunConfig(a.models, model, questionType, "")
}

func runConvert(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	text, err := readInput(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	appCfg := cfg
	if noCache {
		c := *cfg
		c.LLM.CachePath = ""
		appCfg = &c
	}
	a, err := newApp(ctx, appCfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	runCfg, err := a.runConfigFromFlags()
	if err != nil {
		return err
	}

	var opts []pipeline.Option
	if !noProgress && !asJSON {
		opts = append(opts, pipeline.WithProgress(progressReporter(cmd.ErrOrStderr())))
	}
	res, err := a.orchestrator(opts...).Run(ctx, runCfg, text)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		fmt.Fprint(out, pipeline.Report(res, true))
	}

	if noExport || len(res.Records) == 0 {
		return nil
	}
	desc, err := a.schemas.Get(ctx, runCfg.QuestionType)
	if err != nil {
		return err
	}
	f, err := export.NewService(logger).ExportXLSX(desc.ID, "", res.Records)
	if err != nil {
		return err
	}
	dir := outDir
	if dir == "" {
		dir = cfg.Export.Dir
	}
	path, err := writeWorkbook(dir, f)
	if err != nil {
		return err
	}
	if !asJSON {
		fmt.Fprintf(out, "\nwrote %d records to %s\n", f.Rows, path)
	}
	return nil
}

func writeWorkbook(dir string, f *export.File) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, f.Name)
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		return "", fmt.Errorf("write workbook: %w", err)
	}
	return path, nil
}

// progressReporter draws a bar sized on the first report, once the batch
// count is known.
func progressReporter(w io.Writer) func(pipeline.Progress) {
	var (
		mu  sync.Mutex
		bar *progressbar.ProgressBar
	)
	return func(p pipeline.Progress) {
		mu.Lock()
		defer mu.Unlock()
		if bar == nil {
			bar = progressbar.NewOptions(p.Total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Converting[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(w)
				}),
			)
		}
		if p.Errors > 0 {
			bar.Describe(fmt.Sprintf("[cyan]Converting[reset] [red]%d errors[reset]", p.Errors))
		}
		_ = bar.Set(p.Done)
	}
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	text, err := readInput(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	appCfg := cfg
	if noCache {
		c := *cfg
		c.LLM.CachePath = ""
		appCfg = &c
	}
	a, err := newApp(ctx, appCfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	runCfg, err := a.runConfigFromFlags()
	if err != nil {
		return err
	}
	runCfg.RequireAPIKey = false
	prep, err := a.orchestrator().Prepare(ctx, runCfg, text)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "type %s  model %s  units %d\n", prep.Descriptor.ID, runCfg.ModelID, len(prep.Units))
	fmt.Fprintf(out, "fixed cost %d  budget %d  batches %d\n", prep.Plan.FixedCost, prep.Plan.Budget, len(prep.Plan.Batches))
	for _, b := range prep.Plan.Batches {
		flag := ""
		if b.Oversized {
			flag = "  oversized"
		}
		fmt.Fprintf(out, "  batch %d: %d units, %d tokens%s\n", b.Index, len(b.Units), b.Tokens, flag)
	}
	return nil
}
