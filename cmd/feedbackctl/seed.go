package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-feedback/pkg/app"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/services"
)

type sampleFeedback struct {
	text         string
	score        int
	priority     string
	subscription models.SubscriptionType
	mrr          float64
}

var sampleNPS = []sampleFeedback{
	{text: "Absolutely love this product! The API is super easy to use and the documentation is excellent. Already recommended it to three other teams.", score: 10, subscription: models.SubscriptionEnterprise, mrr: 2500},
	{text: "Great experience so far. The onboarding was smooth and support has been very responsive.", score: 9, subscription: models.SubscriptionPro, mrr: 299},
	{text: "Best tool we've used for this. The mobile app works flawlessly and syncs instantly.", score: 10, subscription: models.SubscriptionEnterprise, mrr: 5000},
	{text: "It's good but could use more integrations. Would love to see Salesforce and HubSpot support.", score: 8, subscription: models.SubscriptionPro, mrr: 199},
	{text: "Works well for basic use cases but missing some advanced features we need.", score: 7, subscription: models.SubscriptionStarter, mrr: 49},
	{text: "The product is solid but the pricing tiers are confusing. Not sure what I'm paying for.", score: 7, subscription: models.SubscriptionPro, mrr: 299},
	{text: "Very frustrated with the constant bugs. The app crashed three times this week and I lost work.", score: 3, subscription: models.SubscriptionEnterprise, mrr: 1500},
	{text: "Support takes forever to respond. Been waiting 5 days for a critical issue to be resolved.", score: 2, subscription: models.SubscriptionPro, mrr: 199},
	{text: "Too expensive for what you get. Considering switching to a competitor.", score: 4, subscription: models.SubscriptionEnterprise, mrr: 3000},
	{text: "The new update completely broke our workflow. Please bring back the old interface.", score: 1, subscription: models.SubscriptionPro, mrr: 499},
	{text: "Performance has degraded significantly. Pages take 10+ seconds to load now.", score: 5, subscription: models.SubscriptionEnterprise, mrr: 2000},
	{text: "Billing issues every month. I keep getting charged incorrectly and it takes weeks to resolve.", score: 2, subscription: models.SubscriptionPro, mrr: 299},
}

var sampleTickets = []sampleFeedback{
	{text: "Cannot login to my account. Getting 'Invalid credentials' error even though password is correct. Tried resetting but still not working. This is urgent as we have a demo tomorrow.", priority: "high", subscription: models.SubscriptionEnterprise, mrr: 4000},
	{text: "How do I export data to CSV? Can't find the option anywhere in the dashboard.", priority: "low", subscription: models.SubscriptionStarter, mrr: 29},
	{text: "API rate limiting is causing issues for our integration. We need higher limits for our use case. Currently hitting the 100 req/min limit constantly.", priority: "medium", subscription: models.SubscriptionPro, mrr: 499},
	{text: "Security concern: noticed that user data is being sent over HTTP instead of HTTPS on the mobile app. Please investigate immediately.", priority: "urgent", subscription: models.SubscriptionEnterprise, mrr: 5000},
	{text: "Feature request: Would love to see a dark mode option. Working late nights and the bright interface is hard on the eyes.", priority: "low", subscription: models.SubscriptionPro, mrr: 199},
	{text: "Webhook notifications stopped working after the latest update. Our automation pipeline is completely broken.", priority: "high", subscription: models.SubscriptionEnterprise, mrr: 3500},
	{text: "Need help setting up SSO with Okta. Documentation is outdated and the steps don't match current interface.", priority: "medium", subscription: models.SubscriptionEnterprise, mrr: 2500},
	{text: "Mobile app doesn't work offline. When I lose connection, I lose all unsaved work. This is a dealbreaker for our field team.", priority: "high", subscription: models.SubscriptionEnterprise, mrr: 6000},
}

var sampleIndustries = []string{"tech", "finance", "healthcare", "retail", "education"}

type seedOutput struct {
	NPS      int      `json:"nps"`
	Tickets  int      `json:"tickets"`
	Partial  int      `json:"partial"`
	IDs      []string `json:"ids"`
	Warnings []string `json:"warnings,omitempty"`
}

func seedCmd(opts *rootOptions) *cobra.Command {
	var skipClassification bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a sample set of NPS responses and support tickets",
		Long: `Load sample NPS responses and Zendesk tickets, each with a customer profile,
spread over the last 30 days. Useful for trying out search, alerts and stats
on an empty database. Items are classified unless --skip-classification is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				out, err := seedSamples(ctx, a.Ingestion, time.Now().UTC(), skipClassification)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.output, out, func(w io.Writer) error {
					fmt.Fprintf(w, "Loaded %s and %s\n",
						countOf(out.NPS, "NPS response"), countOf(out.Tickets, "Zendesk ticket"))
					if out.Partial > 0 {
						fmt.Fprintf(w, "  %s stored without classification\n", countOf(out.Partial, "item"))
					}
					for _, warning := range out.Warnings {
						fmt.Fprintf(w, "  warning: %s\n", warning)
					}
					return nil
				})
			})
		},
	}

	cmd.Flags().BoolVar(&skipClassification, "skip-classification", false, "store without calling the AI provider")

	return cmd
}

// seedSamples ingests the sample corpus. Dates are spread deterministically
// from now: NPS responses over 30 days, tickets over 14.
func seedSamples(ctx context.Context, ingestion services.IngestionService, now time.Time, skipClassification bool) (*seedOutput, error) {
	out := &seedOutput{IDs: []string{}}

	ingest := func(req services.IngestRequest) error {
		req.SkipClassification = skipClassification
		result, err := ingestion.Ingest(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to seed %q: %w", req.Text, err)
		}
		out.IDs = append(out.IDs, result.Item.ID.String())
		if result.Partial() {
			out.Partial++
			out.Warnings = append(out.Warnings, result.Warnings()...)
		}
		return nil
	}

	for i, s := range sampleNPS {
		userID := fmt.Sprintf("user_nps_%d", i)
		score := s.score
		createdAt := now.AddDate(0, 0, -(i*30)/len(sampleNPS))
		err := ingest(services.IngestRequest{
			Text:      s.text,
			Source:    models.SourceNPS,
			NPSScore:  &score,
			UserID:    &userID,
			CreatedAt: &createdAt,
			Profile:   sampleProfile(userID, fmt.Sprintf("user%d@example.com", i), fmt.Sprintf("Company %d", i), i, s),
		})
		if err != nil {
			return nil, err
		}
		out.NPS++
	}

	for i, s := range sampleTickets {
		userID := fmt.Sprintf("user_zendesk_%d", i)
		ticketID := fmt.Sprintf("TICKET-%d", 1000+i)
		priority := s.priority
		createdAt := now.AddDate(0, 0, -(i*14)/len(sampleTickets))
		err := ingest(services.IngestRequest{
			Text:           s.text,
			Source:         models.SourceZendesk,
			TicketID:       &ticketID,
			TicketPriority: &priority,
			UserID:         &userID,
			CreatedAt:      &createdAt,
			Profile:        sampleProfile(userID, fmt.Sprintf("support%d@example.com", i), fmt.Sprintf("Customer %d", i), i, s),
		})
		if err != nil {
			return nil, err
		}
		out.Tickets++
	}

	return out, nil
}

func sampleProfile(userID, email, company string, i int, s sampleFeedback) *models.UserProfile {
	return &models.UserProfile{
		UserID:           userID,
		Email:            email,
		SubscriptionType: s.subscription,
		MRR:              models.Float64(s.mrr),
		CompanyName:      company,
		Industry:         sampleIndustries[i%len(sampleIndustries)],
	}
}
