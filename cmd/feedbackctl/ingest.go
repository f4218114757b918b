package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-feedback/pkg/app"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/services"
)

type ingestOutput struct {
	Item     *models.FeedbackItem `json:"item"`
	Partial  bool                 `json:"partial"`
	Warnings []string             `json:"warnings,omitempty"`
}

func ingestCmd(opts *rootOptions) *cobra.Command {
	var (
		source             string
		npsScore           int
		ticketID           string
		ticketPriority     string
		userID             string
		skipClassification bool
	)

	cmd := &cobra.Command{
		Use:   "ingest [text]",
		Short: "Store and classify one feedback item",
		Long: `Store one feedback item. The text is taken from the arguments, or from stdin
when no arguments are given. The item is classified and embedded unless
--skip-classification is set; provider failures leave it stored unclassified.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read stdin: %w", err)
				}
				text = strings.TrimSpace(string(data))
			}
			if text == "" {
				return errors.New("feedback text is required")
			}

			req := services.IngestRequest{
				Text:               text,
				Source:             models.FeedbackSource(source),
				SkipClassification: skipClassification,
			}
			if cmd.Flags().Changed("nps") {
				req.NPSScore = &npsScore
			}
			req.TicketID = optionalString(ticketID)
			req.TicketPriority = optionalString(ticketPriority)
			req.UserID = optionalString(userID)

			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Ingestion.Ingest(ctx, req)
				if err != nil {
					return err
				}

				out := ingestOutput{Item: result.Item, Partial: result.Partial(), Warnings: result.Warnings()}
				return render(cmd.OutOrStdout(), opts.output, out, func(w io.Writer) error {
					fmt.Fprintf(w, "Stored feedback %s\n", result.Item.ID)
					if c := result.Item.Classification; c != nil {
						fmt.Fprintf(w, "  sentiment: %s  urgency: %s  intent: %s\n", c.Sentiment, c.Urgency, c.Intent)
						fmt.Fprintf(w, "  topics: %s\n", strings.Join(c.Topics, ", "))
					}
					for _, warning := range out.Warnings {
						fmt.Fprintf(w, "  warning: %s\n", warning)
					}
					return nil
				})
			})
		},
	}

	cmd.Flags().StringVar(&source, "source", string(models.SourceOther), "feedback source (nps, zendesk, intercom, email, other)")
	cmd.Flags().IntVar(&npsScore, "nps", 0, "NPS score (0-10)")
	cmd.Flags().StringVar(&ticketID, "ticket-id", "", "support ticket ID")
	cmd.Flags().StringVar(&ticketPriority, "ticket-priority", "", "support ticket priority")
	cmd.Flags().StringVar(&userID, "user-id", "", "customer user ID")
	cmd.Flags().BoolVar(&skipClassification, "skip-classification", false, "store without calling the AI provider")

	return cmd
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
