package services

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-feedback/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
)

// Mapped CSV target fields.
const (
	FieldText             = "text"
	FieldSource           = "source"
	FieldNPSScore         = "nps_score"
	FieldUserID           = "user_id"
	FieldEmail            = "email"
	FieldCreatedAt        = "created_at"
	FieldTicketID         = "ticket_id"
	FieldTicketPriority   = "ticket_priority"
	FieldSubscriptionType = "subscription_type"
	FieldMRR              = "mrr"
	FieldCompanyName      = "company_name"
	FieldIndustry         = "industry"
)

// MappableFields lists the fields a mapped CSV column can target.
var MappableFields = []string{
	FieldText, FieldSource, FieldNPSScore, FieldUserID, FieldEmail, FieldCreatedAt,
	FieldTicketID, FieldTicketPriority, FieldSubscriptionType, FieldMRR, FieldCompanyName, FieldIndustry,
}

// fieldAliases maps common header spellings to mapped fields for preview suggestions.
var fieldAliases = map[string]string{
	"response":     FieldText,
	"feedback":     FieldText,
	"comment":      FieldText,
	"comments":     FieldText,
	"description":  FieldText,
	"message":      FieldText,
	"body":         FieldText,
	"score":        FieldNPSScore,
	"nps":          FieldNPSScore,
	"rating":       FieldNPSScore,
	"date":         FieldCreatedAt,
	"created":      FieldCreatedAt,
	"timestamp":    FieldCreatedAt,
	"submitted_at": FieldCreatedAt,
	"user":         FieldUserID,
	"customer_id":  FieldUserID,
	"ticket":       FieldTicketID,
	"priority":     FieldTicketPriority,
	"plan":         FieldSubscriptionType,
	"subscription": FieldSubscriptionType,
	"company":      FieldCompanyName,
	"channel":      FieldSource,
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParsedRow is one data row of an upload. Row numbers start at 1 for the
// first row after the header. Exactly one of Request, Profile or Err is set.
type ParsedRow struct {
	Row     int
	Request *IngestRequest
	Profile *models.UserProfile
	Err     error
}

// ParseOptions configures mapped CSV parsing.
type ParseOptions struct {
	// Mapping is CSV column -> target field.
	Mapping map[string]string
	// DefaultSource applies when a row has no explicit source.
	DefaultSource models.FeedbackSource
}

// ParseUpload parses data according to kind. A returned error means the
// upload as a whole is unusable; row-shape problems are reported per row.
func ParseUpload(kind models.ImportKind, data []byte, opts ParseOptions) ([]ParsedRow, error) {
	switch kind {
	case models.ImportKindNPSCSV:
		return ParseNPSCSV(bytes.NewReader(data))
	case models.ImportKindZendeskJSON:
		return ParseZendeskJSON(bytes.NewReader(data))
	case models.ImportKindMappedCSV:
		return ParseMappedCSV(bytes.NewReader(data), opts)
	case models.ImportKindProfilesCSV:
		return ParseProfilesCSV(bytes.NewReader(data))
	default:
		return nil, apperrors.NewValidationError("kind", "unsupported import kind %q", kind)
	}
}

// csvTable is a header-indexed CSV upload.
type csvTable struct {
	headers []string
	index   map[string]int
	rows    [][]string
}

func readCSV(r io.Reader) (*csvTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperrors.NewValidationError("file", "unreadable CSV: %v", err)
	}
	if len(records) == 0 {
		return nil, apperrors.NewValidationError("file", "CSV file is empty")
	}

	headers := records[0]
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\uFEFF")
	}
	t := &csvTable{headers: headers, index: make(map[string]int, len(headers)), rows: records[1:]}
	for i, h := range headers {
		t.index[normalizeHeader(h)] = i
	}
	return t, nil
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	return strings.ReplaceAll(h, "-", "_")
}

func (t *csvTable) has(column string) bool {
	_, ok := t.index[normalizeHeader(column)]
	return ok
}

// get returns the trimmed cell for column, or "" when absent.
func (t *csvTable) get(row []string, column string) string {
	i, ok := t.index[normalizeHeader(column)]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// ParseNPSCSV parses an NPS export with columns response,score,user_id,email,date.
func ParseNPSCSV(r io.Reader) ([]ParsedRow, error) {
	t, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	if !t.has("response") {
		return nil, apperrors.NewValidationError("file", "NPS CSV requires a 'response' column")
	}

	var out []ParsedRow
	for i, row := range t.rows {
		n := i + 1
		if blankRow(row) {
			continue
		}

		req := &IngestRequest{
			Text:   t.get(row, "response"),
			Source: models.SourceNPS,
		}
		if req.Text == "" {
			out = append(out, ParsedRow{Row: n, Err: errors.New("response is empty")})
			continue
		}
		if score := t.get(row, "score"); score != "" {
			v, err := parseNPS(score)
			if err != nil {
				out = append(out, ParsedRow{Row: n, Err: err})
				continue
			}
			req.NPSScore = &v
		}
		if created := t.get(row, "date"); created != "" {
			ts, err := parseDate(created)
			if err != nil {
				out = append(out, ParsedRow{Row: n, Err: err})
				continue
			}
			req.CreatedAt = &ts
		}
		if userID := t.get(row, "user_id"); userID != "" {
			req.UserID = &userID
			req.Profile = &models.UserProfile{UserID: userID, Email: t.get(row, "email")}
		}
		out = append(out, ParsedRow{Row: n, Request: req})
	}
	return out, nil
}

type zendeskRequester struct {
	ID    json.RawMessage `json:"id"`
	Email string          `json:"email"`
}

type zendeskTicket struct {
	ID          json.RawMessage   `json:"id"`
	Description string            `json:"description"`
	Subject     string            `json:"subject"`
	Priority    string            `json:"priority"`
	Requester   *zendeskRequester `json:"requester"`
	CreatedAt   string            `json:"created_at"`
}

// ParseZendeskJSON parses a ticket export: an array of tickets or {"tickets": [...]}.
func ParseZendeskJSON(r io.Reader) ([]ParsedRow, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.NewValidationError("file", "unreadable upload: %v", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var wrapped struct {
			Tickets []json.RawMessage `json:"tickets"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil || wrapped.Tickets == nil {
			return nil, apperrors.NewValidationError("file", "expected a JSON array of tickets: %v", err)
		}
		raw = wrapped.Tickets
	}

	out := make([]ParsedRow, 0, len(raw))
	for i, msg := range raw {
		n := i + 1
		var ticket zendeskTicket
		if err := json.Unmarshal(msg, &ticket); err != nil {
			out = append(out, ParsedRow{Row: n, Err: fmt.Errorf("invalid ticket object: %v", err)})
			continue
		}

		text := strings.TrimSpace(ticket.Description)
		if text == "" {
			text = strings.TrimSpace(ticket.Subject)
		}
		if text == "" {
			out = append(out, ParsedRow{Row: n, Err: errors.New("ticket has no description or subject")})
			continue
		}

		req := &IngestRequest{Text: text, Source: models.SourceZendesk}
		if id := jsonutil.FlexibleStringValue(ticket.ID); id != "" {
			req.TicketID = &id
		}
		if p := strings.TrimSpace(ticket.Priority); p != "" {
			req.TicketPriority = &p
		}
		if ticket.CreatedAt != "" {
			ts, err := parseDate(ticket.CreatedAt)
			if err != nil {
				out = append(out, ParsedRow{Row: n, Err: err})
				continue
			}
			req.CreatedAt = &ts
		}
		if ticket.Requester != nil {
			if userID := jsonutil.FlexibleStringValue(ticket.Requester.ID); userID != "" {
				req.UserID = &userID
				req.Profile = &models.UserProfile{UserID: userID, Email: ticket.Requester.Email}
			}
		}
		out = append(out, ParsedRow{Row: n, Request: req})
	}
	return out, nil
}

// ParseMappedCSV parses a CSV whose columns are mapped to fields by the caller.
func ParseMappedCSV(r io.Reader, opts ParseOptions) ([]ParsedRow, error) {
	if err := ValidateMapping(opts.Mapping); err != nil {
		return nil, err
	}
	defaultSource := opts.DefaultSource
	if defaultSource == "" {
		defaultSource = models.SourceOther
	}
	if !defaultSource.Valid() {
		return nil, apperrors.NewValidationError("default_source", "invalid source %q", defaultSource)
	}

	t, err := readCSV(r)
	if err != nil {
		return nil, err
	}

	// field -> column
	columns := make(map[string]string, len(opts.Mapping))
	for column, field := range opts.Mapping {
		if field == "" {
			continue
		}
		if !t.has(column) {
			return nil, apperrors.NewValidationError("mapping", "column %q not found in CSV", column)
		}
		columns[field] = column
	}

	var out []ParsedRow
	for i, row := range t.rows {
		n := i + 1
		if blankRow(row) {
			continue
		}
		value := func(field string) string {
			column, ok := columns[field]
			if !ok {
				return ""
			}
			return t.get(row, column)
		}

		req, err := mappedRequest(value, defaultSource)
		if err != nil {
			out = append(out, ParsedRow{Row: n, Err: err})
			continue
		}
		out = append(out, ParsedRow{Row: n, Request: req})
	}
	return out, nil
}

func mappedRequest(value func(string) string, defaultSource models.FeedbackSource) (*IngestRequest, error) {
	req := &IngestRequest{Text: value(FieldText), Source: defaultSource}
	if req.Text == "" {
		return nil, errors.New("text is empty")
	}

	if s := value(FieldSource); s != "" {
		src := models.FeedbackSource(strings.ToLower(s))
		if !src.Valid() {
			return nil, fmt.Errorf("invalid source %q", s)
		}
		req.Source = src
	}
	if s := value(FieldNPSScore); s != "" {
		v, err := parseNPS(s)
		if err != nil {
			return nil, err
		}
		req.NPSScore = &v
	}
	if s := value(FieldCreatedAt); s != "" {
		ts, err := parseDate(s)
		if err != nil {
			return nil, err
		}
		req.CreatedAt = &ts
	}
	if s := value(FieldTicketID); s != "" {
		req.TicketID = &s
	}
	if s := value(FieldTicketPriority); s != "" {
		req.TicketPriority = &s
	}

	if userID := value(FieldUserID); userID != "" {
		req.UserID = &userID
		profile, err := profileFromValues(userID, value)
		if err != nil {
			return nil, err
		}
		req.Profile = profile
	}
	return req, nil
}

// ParseProfilesCSV parses user_id,email,subscription_type,mrr,company_name,industry.
func ParseProfilesCSV(r io.Reader) ([]ParsedRow, error) {
	t, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	if !t.has(FieldUserID) {
		return nil, apperrors.NewValidationError("file", "profiles CSV requires a 'user_id' column")
	}

	var out []ParsedRow
	for i, row := range t.rows {
		n := i + 1
		if blankRow(row) {
			continue
		}
		userID := t.get(row, FieldUserID)
		if userID == "" {
			out = append(out, ParsedRow{Row: n, Err: errors.New("user_id is empty")})
			continue
		}
		profile, err := profileFromValues(userID, func(field string) string { return t.get(row, field) })
		if err != nil {
			out = append(out, ParsedRow{Row: n, Err: err})
			continue
		}
		out = append(out, ParsedRow{Row: n, Profile: profile})
	}
	return out, nil
}

func profileFromValues(userID string, value func(string) string) (*models.UserProfile, error) {
	p := &models.UserProfile{
		UserID:           userID,
		Email:            value(FieldEmail),
		SubscriptionType: models.SubscriptionType(strings.ToLower(value(FieldSubscriptionType))),
		CompanyName:      value(FieldCompanyName),
		Industry:         value(FieldIndustry),
	}
	if s := value(FieldMRR); s != "" {
		mrr, err := strconv.ParseFloat(strings.TrimPrefix(strings.ReplaceAll(s, ",", ""), "$"), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid mrr %q", s)
		}
		p.MRR = &mrr
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// ValidateMapping checks that every mapping target is a known field and that text is mapped.
func ValidateMapping(mapping map[string]string) error {
	hasText := false
	for column, field := range mapping {
		if field == "" {
			continue
		}
		if !isMappableField(field) {
			return apperrors.NewValidationError("mapping", "column %q maps to unknown field %q", column, field)
		}
		if field == FieldText {
			hasText = true
		}
	}
	if !hasText {
		return apperrors.NewValidationError("mapping", "a column must be mapped to %q", FieldText)
	}
	return nil
}

func isMappableField(field string) bool {
	for _, f := range MappableFields {
		if f == field {
			return true
		}
	}
	return false
}

func parseNPS(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		f, ferr := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, fmt.Errorf("invalid score %q", s)
		}
		v = int(f)
	}
	if v < 0 || v > 10 {
		return 0, fmt.Errorf("score %d out of range 0-10", v)
	}
	return v, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// PreviewResult describes an uploaded CSV before import.
type PreviewResult struct {
	Headers          []string            `json:"headers"`
	SampleRows       []map[string]string `json:"sample_rows"`
	TotalRows        int                 `json:"total_rows"`
	SuggestedMapping map[string]string   `json:"suggested_mapping"`
	AvailableFields  []string            `json:"available_fields"`
}

// DefaultPreviewRows is the sample size when the caller does not set one.
const DefaultPreviewRows = 5

// PreviewCSV returns headers, up to limit sample rows, the data row count and
// a suggested column mapping.
func PreviewCSV(r io.Reader, limit int) (*PreviewResult, error) {
	if limit <= 0 {
		limit = DefaultPreviewRows
	}
	t, err := readCSV(r)
	if err != nil {
		return nil, err
	}

	result := &PreviewResult{
		Headers:          t.headers,
		SampleRows:       []map[string]string{},
		SuggestedMapping: map[string]string{},
		AvailableFields:  MappableFields,
	}
	for _, row := range t.rows {
		if blankRow(row) {
			continue
		}
		result.TotalRows++
		if len(result.SampleRows) < limit {
			sample := make(map[string]string, len(t.headers))
			for i, h := range t.headers {
				if i < len(row) {
					sample[h] = row[i]
				}
			}
			result.SampleRows = append(result.SampleRows, sample)
		}
	}

	used := map[string]bool{}
	headers := append([]string(nil), t.headers...)
	sort.SliceStable(headers, func(i, j int) bool {
		// exact field names win over aliases
		return isMappableField(normalizeHeader(headers[i])) && !isMappableField(normalizeHeader(headers[j]))
	})
	for _, h := range headers {
		key := normalizeHeader(h)
		field := ""
		if isMappableField(key) {
			field = key
		} else if alias, ok := fieldAliases[key]; ok {
			field = alias
		}
		if field != "" && !used[field] {
			result.SuggestedMapping[h] = field
			used[field] = true
		}
	}
	return result, nil
}
