package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/services"
)

// maxToolResults caps list results returned to MCP clients.
const maxToolResults = 100

// FeedbackToolDeps contains dependencies for the feedback tools.
type FeedbackToolDeps struct {
	Query  services.QueryService
	Logger *zap.Logger
}

// RegisterFeedbackTools registers the read-only feedback query tools.
func RegisterFeedbackTools(s *server.MCPServer, deps *FeedbackToolDeps) {
	registerSearchFeedbackTool(s, deps)
	registerAskFeedbackTool(s, deps)
	registerFeedbackStatsTool(s, deps)
	registerFeedbackAlertsTool(s, deps)
	registerTopicSummaryTool(s, deps)
}

func readOnlyAnnotations() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	}
}

func registerSearchFeedbackTool(s *server.MCPServer, deps *FeedbackToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Search customer feedback (NPS responses and support tickets). " +
				"With a query, results are ranked by semantic similarity; without one, newest first. " +
				"Example: search_feedback(query='slow exports', sentiments=['negative'], days=14)",
		),
		mcp.WithString("query", mcp.Description("Optional natural-language query for semantic ranking")),
		mcp.WithArray("sources", mcp.Description("Filter by source: nps, zendesk, intercom, email, other")),
		mcp.WithArray("sentiments", mcp.Description("Filter by sentiment: positive, neutral, negative")),
		mcp.WithArray("topics", mcp.Description("Filter by topic (e.g. billing, performance, bug)")),
		mcp.WithArray("urgency", mcp.Description("Filter by urgency: low, medium, high")),
		mcp.WithArray("intents", mcp.Description("Filter by intent: churn_risk, upsell_opportunity, support_needed, feature_advocacy, general_feedback")),
		mcp.WithArray("subscription_types", mcp.Description("Filter by customer plan: free, starter, pro, enterprise")),
		mcp.WithNumber("min_mrr", mcp.Description("Minimum customer MRR")),
		mcp.WithNumber("days", mcp.Description("Only feedback from the last N days (default 30, 0 for all time)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20, max 100)")),
	}
	tool := mcp.NewTool("search_feedback", append(opts, readOnlyAnnotations()...)...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filters := filtersFromRequest(req)
		result, err := deps.Query.Search(ctx, services.SearchRequest{
			Query:   getOptionalString(req, "query"),
			Filters: filters,
		})
		if err != nil {
			return serviceErrorResult(err)
		}
		return jsonResult(result)
	})
}

func registerAskFeedbackTool(s *server.MCPServer, deps *FeedbackToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Answer a question using the most relevant customer feedback. " +
				"Example: ask_feedback(question='Why are enterprise customers unhappy?')",
		),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithNumber("days", mcp.Description("Only consider feedback from the last N days (default 30)")),
		mcp.WithArray("sources", mcp.Description("Restrict to these sources")),
	}
	tool := mcp.NewTool("ask_feedback", append(opts, readOnlyAnnotations()...)...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return NewErrorResult("invalid_parameters", "question is required"), nil
		}
		if trimString(question) == "" {
			return NewErrorResult("invalid_parameters", "question parameter cannot be empty"), nil
		}

		filters := models.FeedbackFilters{Days: getOptionalInt(req, "days", services.DefaultSearchDays)}
		for _, src := range getStringSlice(req, "sources") {
			filters.Sources = append(filters.Sources, models.FeedbackSource(src))
		}

		result, err := deps.Query.Ask(ctx, question, filters)
		if err != nil {
			return serviceErrorResult(err)
		}
		deps.Logger.Debug("Answered feedback question",
			zap.Int("sources_count", result.SourcesCount))
		return jsonResult(result)
	})
}

func registerFeedbackStatsTool(s *server.MCPServer, deps *FeedbackToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Aggregate feedback statistics: counts by sentiment, source, topic, urgency and intent, plus average NPS.",
		),
		mcp.WithNumber("days", mcp.Description("Window in days (default 30, 0 for all time)")),
	}
	tool := mcp.NewTool("feedback_stats", append(opts, readOnlyAnnotations()...)...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := deps.Query.Stats(ctx, getOptionalInt(req, "days", services.DefaultSearchDays))
		if err != nil {
			return serviceErrorResult(err)
		}
		return jsonResult(stats)
	})
}

func registerFeedbackAlertsTool(s *server.MCPServer, deps *FeedbackToolDeps) {
	kinds := make([]string, len(services.AllAlertKinds))
	for i, k := range services.AllAlertKinds {
		kinds[i] = string(k)
	}

	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Run a canned alert query. churn_risks: high-value customers at risk; urgent: high-urgency items; " +
				"upsell: upsell signals from lower plans; detractors / promoters: NPS 0-6 / 9-10.",
		),
		mcp.WithString("alert_type", mcp.Required(), mcp.Enum(kinds...), mcp.Description("Alert to run")),
		mcp.WithNumber("days", mcp.Description("Window in days (alert-specific default)")),
		mcp.WithNumber("min_mrr", mcp.Description("churn_risks only: minimum MRR (default 100)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20, max 100)")),
	}
	tool := mcp.NewTool("feedback_alerts", append(opts, readOnlyAnnotations()...)...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		alertType, err := req.RequireString("alert_type")
		if err != nil {
			return NewErrorResult("invalid_parameters", "alert_type is required"), nil
		}

		alertReq := services.AlertRequest{
			Days:  getOptionalInt(req, "days", 0),
			Limit: clampLimit(getOptionalInt(req, "limit", 0)),
		}
		if minMRR, ok := getOptionalFloat(req, "min_mrr"); ok {
			alertReq.MinMRR = &minMRR
		}

		kind := services.AlertKind(strings.ToLower(trimString(alertType)))
		result, err := deps.Query.Alert(ctx, kind, alertReq)
		if err != nil {
			return serviceErrorResult(err)
		}
		return jsonResult(result)
	})
}

func registerTopicSummaryTool(s *server.MCPServer, deps *FeedbackToolDeps) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Summarize recent feedback about one topic."),
		mcp.WithString("topic", mcp.Required(), mcp.Enum(models.Topics...), mcp.Description("Topic to summarize")),
		mcp.WithNumber("days", mcp.Description("Window in days (default 30)")),
	}
	tool := mcp.NewTool("topic_summary", append(opts, readOnlyAnnotations()...)...)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		topic, err := req.RequireString("topic")
		if err != nil {
			return NewErrorResult("invalid_parameters", "topic is required"), nil
		}

		summary, err := deps.Query.TopicSummary(ctx, topic, getOptionalInt(req, "days", services.DefaultSearchDays))
		if err != nil {
			return serviceErrorResult(err)
		}
		return jsonResult(summary)
	})
}

// filtersFromRequest builds search filters from tool arguments.
// Invalid enumeration values are rejected by the service.
func filtersFromRequest(req mcp.CallToolRequest) models.FeedbackFilters {
	f := models.FeedbackFilters{
		Days:  getOptionalInt(req, "days", services.DefaultSearchDays),
		Limit: clampLimit(getOptionalInt(req, "limit", 0)),
	}
	for _, v := range getStringSlice(req, "sources") {
		f.Sources = append(f.Sources, models.FeedbackSource(v))
	}
	for _, v := range getStringSlice(req, "sentiments") {
		f.Sentiments = append(f.Sentiments, models.Sentiment(v))
	}
	f.Topics = getStringSlice(req, "topics")
	for _, v := range getStringSlice(req, "urgency") {
		f.Urgencies = append(f.Urgencies, models.Urgency(v))
	}
	for _, v := range getStringSlice(req, "intents") {
		f.Intents = append(f.Intents, models.Intent(v))
	}
	for _, v := range getStringSlice(req, "subscription_types") {
		f.SubscriptionTypes = append(f.SubscriptionTypes, models.SubscriptionType(v))
	}
	if minMRR, ok := getOptionalFloat(req, "min_mrr"); ok {
		f.MinMRR = &minMRR
	}
	return f
}

func clampLimit(limit int) int {
	if limit > maxToolResults {
		return maxToolResults
	}
	return limit
}
