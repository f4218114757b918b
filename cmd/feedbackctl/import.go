package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-feedback/pkg/app"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/services"
)

const pollInterval = 250 * time.Millisecond

var importKinds = map[string]models.ImportKind{
	"nps":      models.ImportKindNPSCSV,
	"zendesk":  models.ImportKindZendeskJSON,
	"mapped":   models.ImportKindMappedCSV,
	"profiles": models.ImportKindProfilesCSV,
}

type importFlags struct {
	mapping            string
	defaultSource      string
	skipClassification bool
	noProgress         bool
}

func importCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import feedback or customer profiles from a file",
		Long: `Import a batch file as a background job and wait for it to finish.
Row failures are reported at the end and never abort the import.`,
	}

	flags := &importFlags{}
	for _, name := range []string{"nps", "zendesk", "mapped", "profiles"} {
		cmd.AddCommand(importKindCmd(opts, flags, name, importKinds[name]))
	}

	cmd.PersistentFlags().StringVar(&flags.mapping, "mapping", "", `column mapping for "mapped" as JSON or column=field pairs, e.g. "Comment=text,Score=nps_score"`)
	cmd.PersistentFlags().StringVar(&flags.defaultSource, "default-source", "", "source for mapped rows without a source column")
	cmd.PersistentFlags().BoolVar(&flags.skipClassification, "skip-classification", false, "store rows without calling the AI provider")
	cmd.PersistentFlags().BoolVar(&flags.noProgress, "no-progress", false, "do not draw a progress bar")

	return cmd
}

func importKindCmd(opts *rootOptions, flags *importFlags, name string, kind models.ImportKind) *cobra.Command {
	return &cobra.Command{
		Use:   name + " FILE",
		Short: fmt.Sprintf("Import a %s file", strings.ReplaceAll(string(kind), "_", " ")),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			req := services.ImportRequest{
				Kind:               kind,
				Data:               data,
				DefaultSource:      models.FeedbackSource(flags.defaultSource),
				SkipClassification: flags.skipClassification,
			}
			if kind == models.ImportKindMappedCSV {
				if req.Mapping, err = parseMapping(flags.mapping); err != nil {
					return err
				}
			}

			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				job, err := a.Importer.StartImport(ctx, req)
				if err != nil {
					return err
				}

				var bar *progressbar.ProgressBar
				if !flags.noProgress && opts.output == outputText {
					bar = newImportBar(cmd.ErrOrStderr())
				}

				job, err = waitForJob(ctx, a.Importer, job.ID, bar)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.output, job, func(w io.Writer) error {
					return writeJobSummary(w, job)
				})
			})
		},
	}
}

// waitForJob polls the job until it reaches a terminal status. Cancelling ctx
// cancels the job and keeps waiting for the worker to stop.
func waitForJob(ctx context.Context, importer services.ImportService, id string, bar *progressbar.ProgressBar) (models.ImportJob, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	done := ctx.Done()
	for {
		job, err := importer.GetJob(id)
		if err != nil {
			return models.ImportJob{}, err
		}
		updateBar(bar, job.Progress)
		if job.Status.Terminal() {
			if bar != nil {
				_ = bar.Finish()
			}
			return job, nil
		}

		select {
		case <-done:
			if _, err := importer.CancelJob(id); err != nil {
				return job, err
			}
			done = nil
		case <-ticker.C:
		}
	}
}

func newImportBar(w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Importing rows...[reset]"),
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

func updateBar(bar *progressbar.ProgressBar, p models.ImportProgress) {
	if bar == nil {
		return
	}
	if p.Total > 0 && bar.GetMax() != p.Total {
		bar.ChangeMax(p.Total)
	}
	_ = bar.Set(p.Current)
}

func writeJobSummary(w io.Writer, job models.ImportJob) error {
	fmt.Fprintf(w, "Import %s %s\n", job.ID, job.Status)
	if job.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", job.Error)
	}
	if job.Result == nil {
		return nil
	}

	fmt.Fprintf(w, "  %s imported, %s failed\n",
		countOf(job.Result.Imported, "row"), countOf(len(job.Result.Errors), "row"))
	for _, rowErr := range job.Result.Errors {
		if rowErr.ItemID != "" {
			fmt.Fprintf(w, "  row %d: %s (stored as %s)\n", rowErr.Row, rowErr.Message, rowErr.ItemID)
			continue
		}
		fmt.Fprintf(w, "  row %d: %s\n", rowErr.Row, rowErr.Message)
	}
	return nil
}

// parseMapping accepts a JSON object or comma-separated column=field pairs.
func parseMapping(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("--mapping is required for mapped imports")
	}

	mapping := make(map[string]string)
	if strings.HasPrefix(raw, "{") {
		if err := json.Unmarshal([]byte(raw), &mapping); err != nil {
			return nil, fmt.Errorf("invalid --mapping JSON: %w", err)
		}
	} else {
		for _, pair := range strings.Split(raw, ",") {
			column, field, ok := strings.Cut(pair, "=")
			column, field = strings.TrimSpace(column), strings.TrimSpace(field)
			if !ok || column == "" || field == "" {
				return nil, fmt.Errorf("invalid --mapping pair %q (want column=field)", pair)
			}
			mapping[column] = field
		}
	}

	if err := services.ValidateMapping(mapping); err != nil {
		return nil, err
	}
	return mapping, nil
}
