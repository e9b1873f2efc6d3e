package main

import (
	"context"
	"fmt"
	"io"

	"gut-health-kb/internal/core/importer"
	"gut-health-kb/internal/pkg/common"

	"github.com/spf13/cobra"
)

// runnerFactory 建立匯入執行器與對應的釋放函式
type runnerFactory func(ctx context.Context) (*importer.Runner, func() error, error)

// rootCommand 建立匯入工具的根命令
func rootCommand(open runnerFactory) *cobra.Command {
	var opts importer.Options
	var asJSON bool

	rootCmd := &cobra.Command{
		Use:           "importer",
		Short:         "Gut health ingredient importer",
		Long:          `Validate and import ingredient JSON documents into the knowledge base.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&opts.DryRun, "dry-run", false, "Validate documents without writing to the database")
	flags.BoolVar(&opts.UpdateExisting, "update-existing", false, "Update core fields of ingredients that already exist")
	flags.BoolVar(&opts.SkipDuplicates, "skip-duplicates", false, "Skip ingredients that already exist")
	flags.BoolVar(&opts.ForceImport, "force-import", false, "Replace ingredients that already exist")
	flags.BoolVar(&asJSON, "json", false, "Print the result as a single JSON object")

	run := func(fn func(ctx context.Context, r *importer.Runner, arg string) (*importer.Result, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			runner, closeFn, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeFn() }()

			res, err := fn(cmd.Context(), runner, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				printResult(cmd.OutOrStdout(), res)
			}
			return res.Err()
		}
	}

	singleCmd := &cobra.Command{
		Use:   "single [file.json]",
		Short: "Import a single ingredient document",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, r *importer.Runner, path string) (*importer.Result, error) {
			return r.ImportFile(ctx, path, opts)
		}),
	}

	batchCmd := &cobra.Command{
		Use:   "batch [directory]",
		Short: "Import every *.json document in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, r *importer.Runner, dir string) (*importer.Result, error) {
			return r.ImportDirectory(ctx, dir, opts)
		}),
	}

	validateCmd := &cobra.Command{
		Use:   "validate [directory]",
		Short: "Validate every *.json document in a directory without importing",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, r *importer.Runner, dir string) (*importer.Result, error) {
			return r.ValidateDirectory(ctx, dir)
		}),
	}

	rootCmd.AddCommand(singleCmd, batchCmd, validateCmd)
	return rootCmd
}

// printJSON 以單一 JSON 物件輸出摘要與完整結果
func printJSON(w io.Writer, res *importer.Result) error {
	out, err := common.ToJSON(struct {
		Summary importer.ResultSummary `json:"summary"`
		*importer.Result
	}{res.Summary(), res})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

// printResult 輸出匯入摘要、錯誤與警告
func printResult(w io.Writer, res *importer.Result) {
	s := res.Summary()
	mode := "import"
	if res.DryRun {
		mode = "dry run"
	}

	fmt.Fprintf(w, "Import summary (%s)\n", mode)
	fmt.Fprintf(w, "  processed: %d\n", s.TotalProcessed)
	fmt.Fprintf(w, "  successful: %d\n", s.Successful)
	fmt.Fprintf(w, "  failed: %d\n", s.Failed)
	fmt.Fprintf(w, "  skipped: %d\n", s.Skipped)
	fmt.Fprintf(w, "  duration: %.2fs\n", s.DurationSeconds)

	for _, o := range res.Outcomes {
		fmt.Fprintf(w, "  [%s] %s: %s\n", o.Outcome, o.Source, o.Message)
	}
	if len(res.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, e := range res.Errors {
			if e.Field != "" {
				fmt.Fprintf(w, "  %s %s: %s\n", e.Source, e.Field, e.Message)
			} else {
				fmt.Fprintf(w, "  %s: %s\n", e.Source, e.Message)
			}
		}
	}
	if len(res.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, e := range res.Warnings {
			fmt.Fprintf(w, "  %s: %s\n", e.Source, e.Message)
		}
	}
}
