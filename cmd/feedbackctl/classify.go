package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-feedback/pkg/app"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/services"
)

func classifyCmd(opts *rootOptions) *cobra.Command {
	var (
		sentiment string
		topics    []string
		urgency   string
		intent    string
		summary   string
	)

	cmd := &cobra.Command{
		Use:   "classify ID",
		Short: "Replace the classification of one feedback item",
		Long: `Set the classification of a feedback item by hand. Every field is required;
the stored confidence becomes 1.0.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid feedback ID %q", args[0])
			}

			c := models.Classification{
				Sentiment: models.Sentiment(strings.ToLower(sentiment)),
				Topics:    topics,
				Urgency:   models.Urgency(strings.ToLower(urgency)),
				Intent:    models.Intent(strings.ToLower(intent)),
				Summary:   summary,
			}

			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				item, err := a.Query.UpdateClassification(ctx, id, c)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.output, item, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "Updated classification of %s\n", item.ID)
					return err
				})
			})
		},
	}

	cmd.Flags().StringVar(&sentiment, "sentiment", "", "positive, neutral or negative")
	cmd.Flags().StringSliceVar(&topics, "topic", nil, "topic (repeatable)")
	cmd.Flags().StringVar(&urgency, "urgency", "", "low, medium or high")
	cmd.Flags().StringVar(&intent, "intent", "", "churn_risk, upsell_opportunity, support_needed, feature_advocacy or general_feedback")
	cmd.Flags().StringVar(&summary, "summary", "", "one-sentence summary")
	for _, name := range []string{"sentiment", "topic", "urgency", "intent", "summary"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func reclassifyCmd(opts *rootOptions) *cobra.Command {
	var onlyUnclassified bool

	cmd := &cobra.Command{
		Use:   "reclassify",
		Short: "Run classification again over stored feedback",
		Long: `Classify and embed stored feedback again with the current provider settings.
Items whose classification fails keep their previous values.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Query.Reclassify(ctx, onlyUnclassified)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.output, result, func(w io.Writer) error {
					return writeReclassifyResult(w, result)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&onlyUnclassified, "only-unclassified", false, "only items without a classification")
	return cmd
}

func writeReclassifyResult(w io.Writer, result *services.ReclassifyResult) error {
	_, err := fmt.Fprintf(w, "Processed %s: %d updated, %d failed\n",
		countOf(result.Processed, "item"), result.Updated, result.Failed)
	return err
}
