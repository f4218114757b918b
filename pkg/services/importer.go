package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-feedback/pkg/jobs"
	"github.com/ekaya-inc/ekaya-feedback/pkg/logging"
	"github.com/ekaya-inc/ekaya-feedback/pkg/metrics"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
)

// ImportRequest describes one uploaded file to import in the background.
type ImportRequest struct {
	Kind               models.ImportKind
	Data               []byte
	Mapping            map[string]string
	DefaultSource      models.FeedbackSource
	SkipClassification bool
}

// ImportService runs batch imports as background jobs.
type ImportService interface {
	// Preview inspects a CSV upload without importing it.
	Preview(data []byte, limit int) (*PreviewResult, error)

	// StartImport registers a job and returns immediately. Parsing and row
	// processing happen on a worker goroutine.
	StartImport(ctx context.Context, req ImportRequest) (models.ImportJob, error)

	GetJob(id string) (models.ImportJob, error)
	ListJobs() []models.ImportJob
	CancelJob(id string) (models.ImportJob, error)

	// Wait blocks until every worker has returned.
	Wait()
	// Shutdown cancels running jobs and waits for workers until ctx is done.
	Shutdown(ctx context.Context) error
}

type importService struct {
	ingestion IngestionService
	registry  *jobs.Registry
	metrics   *metrics.Metrics
	logger    *zap.Logger

	wg     sync.WaitGroup
	mu     sync.Mutex
	tokens map[string]*jobs.CancelToken
	closed bool
}

// NewImportService creates an ImportService backed by registry.
func NewImportService(ingestion IngestionService, registry *jobs.Registry, m *metrics.Metrics, logger *zap.Logger) ImportService {
	return &importService{
		ingestion: ingestion,
		registry:  registry,
		metrics:   m,
		logger:    logger.Named("import-service"),
		tokens:    make(map[string]*jobs.CancelToken),
	}
}

var _ ImportService = (*importService)(nil)

func (s *importService) Preview(data []byte, limit int) (*PreviewResult, error) {
	if len(data) == 0 {
		return nil, apperrors.NewValidationError("file", "upload is empty")
	}
	return PreviewCSV(bytes.NewReader(data), limit)
}

func (s *importService) StartImport(ctx context.Context, req ImportRequest) (models.ImportJob, error) {
	if !req.Kind.Valid() {
		return models.ImportJob{}, apperrors.NewValidationError("kind", "unsupported import kind %q", req.Kind)
	}
	if len(req.Data) == 0 {
		return models.ImportJob{}, apperrors.NewValidationError("file", "upload is empty")
	}
	if req.Kind == models.ImportKindMappedCSV {
		if err := ValidateMapping(req.Mapping); err != nil {
			return models.ImportJob{}, err
		}
		if req.DefaultSource != "" && !req.DefaultSource.Valid() {
			return models.ImportJob{}, apperrors.NewValidationError("default_source", "invalid source %q", req.DefaultSource)
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return models.ImportJob{}, fmt.Errorf("import service is shutting down: %w", apperrors.ErrConflict)
	}
	job, token := s.registry.Create(req.Kind, 0)
	s.tokens[job.ID] = token
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("Import job queued",
		zap.String("job_id", job.ID),
		zap.String("kind", string(req.Kind)),
		zap.Int("bytes", len(req.Data)))

	// The job outlives the request that started it.
	go s.run(context.WithoutCancel(ctx), job.ID, token, req)
	return job, nil
}

func (s *importService) GetJob(id string) (models.ImportJob, error) {
	return s.registry.Get(id)
}

func (s *importService) ListJobs() []models.ImportJob {
	return s.registry.List()
}

func (s *importService) CancelJob(id string) (models.ImportJob, error) {
	return s.registry.Cancel(id)
}

func (s *importService) Wait() {
	s.wg.Wait()
}

func (s *importService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, token := range s.tokens {
		token.Cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("import workers did not stop: %w", ctx.Err())
	}
}

func (s *importService) run(ctx context.Context, jobID string, token *jobs.CancelToken, req ImportRequest) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.tokens, jobID)
		s.mu.Unlock()
	}()

	kind := string(req.Kind)
	s.metrics.ImportStarted()
	status := models.JobStatusFailed
	defer func() {
		s.metrics.ImportFinished(kind, string(status))
	}()

	rows, err := ParseUpload(req.Kind, req.Data, ParseOptions{
		Mapping:       req.Mapping,
		DefaultSource: req.DefaultSource,
	})
	if err != nil {
		s.logger.Warn("Import upload rejected",
			zap.String("job_id", jobID),
			zap.Error(err))
		s.registry.Fail(jobID, err)
		return
	}

	total := len(rows)
	s.registry.SetTotal(jobID, total)
	s.registry.Start(jobID)

	result := &models.ImportResult{Errors: []models.RowError{}}
	for i, row := range rows {
		if token.Cancelled() {
			status = models.JobStatusCancelled
			s.registry.MarkCancelled(jobID, result)
			s.logger.Info("Import job cancelled",
				zap.String("job_id", jobID),
				zap.Int("processed", i),
				zap.Int("total", total))
			return
		}

		ok := s.processRow(ctx, row, req.SkipClassification, result)
		s.metrics.RecordImportRow(kind, ok)
		s.registry.Advance(jobID, i+1, result.Imported, len(result.Errors), progressMessage(i+1, total))
	}

	status = models.JobStatusCompleted
	s.registry.Complete(jobID, result)
	s.logger.Info("Import job completed",
		zap.String("job_id", jobID),
		zap.String("kind", kind),
		zap.Int("imported", result.Imported),
		zap.Int("errors", len(result.Errors)))
}

// processRow imports one parsed row and records its outcome in result.
func (s *importService) processRow(ctx context.Context, row ParsedRow, skipClassification bool, result *models.ImportResult) bool {
	fail := func(err error) bool {
		result.Errors = append(result.Errors, models.RowError{Row: row.Row, Message: logging.SanitizeError(err)})
		return false
	}

	switch {
	case row.Err != nil:
		return fail(row.Err)

	case row.Profile != nil:
		if err := s.ingestion.UpsertProfile(ctx, row.Profile); err != nil {
			return fail(err)
		}
		result.Imported++
		result.ImportedIDs = append(result.ImportedIDs, row.Profile.UserID)
		return true

	case row.Request != nil:
		req := *row.Request
		req.SkipClassification = req.SkipClassification || skipClassification
		res, err := s.ingestion.Ingest(ctx, req)
		if err != nil {
			return fail(err)
		}
		if res.Partial() {
			// Stored unclassified; reclassify picks it up later.
			result.Errors = append(result.Errors, models.RowError{
				Row:     row.Row,
				Message: strings.Join(res.Warnings(), "; "),
				ItemID:  res.Item.ID.String(),
			})
			return false
		}
		result.Imported++
		result.ImportedIDs = append(result.ImportedIDs, res.Item.ID.String())
		return true
	}
	return fail(fmt.Errorf("row %d is empty", row.Row))
}

func progressMessage(current, total int) string {
	noun := "row"
	if total != 1 {
		noun = inflection.Plural(noun)
	}
	return fmt.Sprintf("Processed %d/%d %s", current, total, noun)
}
