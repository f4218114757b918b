package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-feedback/pkg/app"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/services"
)

// filterFlags binds the shared search filters to a command.
type filterFlags struct {
	sources           []string
	sentiments        []string
	urgencies         []string
	intents           []string
	topics            []string
	subscriptionTypes []string
	minMRR            float64
	days              int
	limit             int
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.sources, "source", nil, "filter by source")
	cmd.Flags().StringSliceVar(&f.sentiments, "sentiment", nil, "filter by sentiment")
	cmd.Flags().StringSliceVar(&f.urgencies, "urgency", nil, "filter by urgency")
	cmd.Flags().StringSliceVar(&f.intents, "intent", nil, "filter by intent")
	cmd.Flags().StringSliceVar(&f.topics, "topic", nil, "filter by topic")
	cmd.Flags().StringSliceVar(&f.subscriptionTypes, "subscription-type", nil, "filter by subscription type")
	cmd.Flags().Float64Var(&f.minMRR, "min-mrr", 0, "minimum monthly recurring revenue")
	cmd.Flags().IntVar(&f.days, "days", services.DefaultSearchDays, "only items from the last N days (0 for all time)")
	cmd.Flags().IntVar(&f.limit, "limit", models.DefaultSearchLimit, "maximum number of items")
}

func (f *filterFlags) filters(cmd *cobra.Command) (models.FeedbackFilters, error) {
	filters := models.FeedbackFilters{
		Sources:           convert[models.FeedbackSource](f.sources),
		Sentiments:        convert[models.Sentiment](f.sentiments),
		Urgencies:         convert[models.Urgency](f.urgencies),
		Intents:           convert[models.Intent](f.intents),
		Topics:            f.topics,
		SubscriptionTypes: convert[models.SubscriptionType](f.subscriptionTypes),
		Days:              f.days,
		Limit:             f.limit,
	}
	if cmd.Flags().Changed("min-mrr") {
		filters.MinMRR = &f.minMRR
	}
	if err := filters.Validate(); err != nil {
		return models.FeedbackFilters{}, err
	}
	return filters, nil
}

func convert[T ~string](values []string) []T {
	if len(values) == 0 {
		return nil
	}
	out := make([]T, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, T(strings.ToLower(v)))
		}
	}
	return out
}

func searchCmd(opts *rootOptions) *cobra.Command {
	f := &filterFlags{}

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search feedback by meaning and filters",
		Long: `Search stored feedback. With a query the results are ranked by semantic
similarity; without one the newest matching items are listed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := f.filters(cmd)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Query.Search(ctx, services.SearchRequest{
					Query:   strings.Join(args, " "),
					Filters: filters,
				})
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.output, result, func(w io.Writer) error {
					return writeSearchResult(w, result)
				})
			})
		},
	}
	f.register(cmd)
	return cmd
}

func writeSearchResult(w io.Writer, result *services.SearchResult) error {
	if len(result.Items) == 0 {
		_, err := fmt.Fprintln(w, "No matching feedback")
		return err
	}
	if err := writeItems(w, result.Items); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%s of %d\n", countOf(len(result.Items), "item"), result.Total)
	return err
}

func askCmd(opts *rootOptions) *cobra.Command {
	f := &filterFlags{}

	cmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Answer a question from stored feedback",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := f.filters(cmd)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Query.Ask(ctx, strings.Join(args, " "), filters)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.output, result, func(w io.Writer) error {
					fmt.Fprintln(w, result.Answer)
					_, err := fmt.Fprintf(w, "\n(based on %s)\n", countOf(result.SourcesCount, "feedback item"))
					return err
				})
			})
		},
	}
	f.register(cmd)
	return cmd
}

var alertCommands = []struct {
	name  string
	kind  services.AlertKind
	short string
}{
	{"churn", services.AlertChurnRisks, "Customers at risk of churning"},
	{"urgent", services.AlertUrgent, "High-urgency feedback"},
	{"upsell", services.AlertUpsell, "Expansion and upsell signals"},
	{"detractors", services.AlertDetractors, "NPS detractors (score 0-6)"},
	{"promoters", services.AlertPromoters, "NPS promoters (score 9-10)"},
}

func alertsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List feedback that needs attention",
	}
	for _, ac := range alertCommands {
		cmd.AddCommand(alertCmd(opts, ac.name, ac.kind, ac.short))
	}
	return cmd
}

func alertCmd(opts *rootOptions, name string, kind services.AlertKind, short string) *cobra.Command {
	var (
		days              int
		limit             int
		minMRR            float64
		subscriptionTypes []string
	)

	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := services.AlertRequest{
				Days:              days,
				Limit:             limit,
				SubscriptionTypes: convert[models.SubscriptionType](subscriptionTypes),
			}
			if cmd.Flags().Changed("min-mrr") {
				req.MinMRR = &minMRR
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Query.Alert(ctx, kind, req)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.output, result, func(w io.Writer) error {
					return writeSearchResult(w, result)
				})
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", services.DefaultSearchDays, "only items from the last N days")
	cmd.Flags().IntVar(&limit, "limit", models.DefaultSearchLimit, "maximum number of items")
	cmd.Flags().Float64Var(&minMRR, "min-mrr", 0, "minimum monthly recurring revenue")
	cmd.Flags().StringSliceVar(&subscriptionTypes, "subscription-type", nil, "filter by subscription type")
	return cmd
}

func statsCmd(opts *rootOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show feedback counts by sentiment, source, topic and urgency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				stats, err := a.Query.Stats(ctx, days)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.output, stats, func(w io.Writer) error {
					period := "in total"
					if stats.Days > 0 {
						period = fmt.Sprintf("in the last %d days", stats.Days)
					}
					fmt.Fprintf(w, "%s %s\n", countOf(stats.TotalCount, "feedback item"), period)
					if stats.AvgNPS != nil {
						fmt.Fprintf(w, "Average NPS: %.1f\n", *stats.AvgNPS)
					}
					writeCounts(w, "Sentiment", stats.BySentiment)
					writeCounts(w, "Source", stats.BySource)
					writeCounts(w, "Topic", stats.ByTopic)
					writeCounts(w, "Urgency", stats.ByUrgency)
					writeCounts(w, "Intent", stats.ByIntent)
					return nil
				})
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", services.DefaultSearchDays, "window in days")
	return cmd
}

func topicCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topic",
		Short: "Topic analytics",
	}

	var days int
	summary := &cobra.Command{
		Use:       "summary TOPIC",
		Short:     "Summarize recent feedback about one topic",
		Args:      cobra.ExactArgs(1),
		ValidArgs: models.Topics,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Query.TopicSummary(ctx, args[0], days)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.output, result, func(w io.Writer) error {
					fmt.Fprintf(w, "%s (%s, last %d days)\n\n", result.Topic, countOf(result.ItemCount, "item"), result.Days)
					_, err := fmt.Fprintln(w, result.Summary)
					return err
				})
			})
		},
	}
	summary.Flags().IntVar(&days, "days", services.DefaultSearchDays, "window in days")

	cmd.AddCommand(summary)
	return cmd
}
