package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-feedback/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-feedback/pkg/classifier"
	"github.com/ekaya-inc/ekaya-feedback/pkg/jobs"
	"github.com/ekaya-inc/ekaya-feedback/pkg/models"
	"github.com/ekaya-inc/ekaya-feedback/pkg/repositories"
)

type importTestContext struct {
	repo     repositories.FeedbackRepository
	mock     *classifier.MockClient
	importer ImportService
}

func setupImportTest(t *testing.T) *importTestContext {
	t.Helper()
	repo := newTestRepo(t)
	mock := classifier.NewMockClient()
	ingestion := NewIngestionService(repo, mock, nil, zap.NewNop())
	importer := NewImportService(ingestion, jobs.NewRegistry(10, zap.NewNop()), nil, zap.NewNop())
	t.Cleanup(importer.Wait)
	return &importTestContext{repo: repo, mock: mock, importer: importer}
}

func npsCSV(rows ...string) []byte {
	return []byte("response,score,user_id,email,date\n" + strings.Join(rows, "\n") + "\n")
}

func (tc *importTestContext) storedCount(t *testing.T) int {
	t.Helper()
	_, total, err := tc.repo.Query(context.Background(), models.FeedbackFilters{})
	require.NoError(t, err)
	return total
}

func TestImport_CompletesWithRowErrors(t *testing.T) {
	tc := setupImportTest(t)

	job, err := tc.importer.StartImport(context.Background(), ImportRequest{
		Kind: models.ImportKindNPSCSV,
		Data: npsCSV(
			"Great,9,u1,,",
			"Bad score,42,u2,,",
			"Fine,7,,,",
			",5,u3,,",
			"Slow,2,,,",
		),
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Len(t, job.ID, 8)

	tc.importer.Wait()

	got, err := tc.importer.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 5, got.Progress.Total)
	assert.Equal(t, 5, got.Progress.Current)
	assert.Equal(t, 3, got.Progress.Successful)
	assert.Equal(t, 2, got.Progress.Errors)
	assert.Equal(t, 100.0, got.Progress.Percentage)
	assert.Equal(t, "Completed", got.Progress.Message)

	require.NotNil(t, got.Result)
	assert.Equal(t, 3, got.Result.Imported)
	assert.Len(t, got.Result.ImportedIDs, 3)
	require.Len(t, got.Result.Errors, 2)
	assert.Equal(t, 2, got.Result.Errors[0].Row)
	assert.Equal(t, 4, got.Result.Errors[1].Row)

	assert.Equal(t, 3, tc.storedCount(t))
}

func TestImport_ProviderFailureIsRowError(t *testing.T) {
	tc := setupImportTest(t)
	tc.mock.ClassifyFunc = func(ctx context.Context, text string, cc classifier.ClassifyContext) (*models.Classification, error) {
		return nil, providerError()
	}

	job, err := tc.importer.StartImport(context.Background(), ImportRequest{
		Kind: models.ImportKindNPSCSV,
		Data: npsCSV("Great,9,,,", "Awful,2,,,"),
	})
	require.NoError(t, err)
	tc.importer.Wait()

	got, err := tc.importer.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 0, got.Result.Imported)
	assert.Equal(t, 0, got.Progress.Successful)
	assert.Equal(t, 2, got.Progress.Errors)
	require.Len(t, got.Result.Errors, 2)
	assert.Equal(t, 2, got.Result.Errors[0].Row)
	assert.Contains(t, got.Result.Errors[0].Message, "classification failed")
	assert.NotEmpty(t, got.Result.Errors[0].ItemID)

	// The rows are still stored for later reclassification.
	assert.Equal(t, 2, tc.storedCount(t))
}

func TestImport_SkipClassification(t *testing.T) {
	tc := setupImportTest(t)

	_, err := tc.importer.StartImport(context.Background(), ImportRequest{
		Kind:               models.ImportKindZendeskJSON,
		Data:               []byte(`[{"id": 1, "description": "Cannot log in", "priority": "high"}]`),
		SkipClassification: true,
	})
	require.NoError(t, err)
	tc.importer.Wait()

	embed, classify, _, _ := tc.mock.Calls()
	assert.Zero(t, embed)
	assert.Zero(t, classify)
	assert.Equal(t, 1, tc.storedCount(t))
}

func TestImport_Cancel(t *testing.T) {
	tc := setupImportTest(t)

	reached := make(chan struct{})
	proceed := make(chan struct{})
	tc.mock.ClassifyFunc = func(ctx context.Context, text string, cc classifier.ClassifyContext) (*models.Classification, error) {
		if text == "row 2" {
			close(reached)
			<-proceed
		}
		return nil, providerError()
	}

	rows := make([]string, 10)
	for i := range rows {
		rows[i] = fmt.Sprintf("row %d,5,,,", i+1)
	}
	job, err := tc.importer.StartImport(context.Background(), ImportRequest{Kind: models.ImportKindNPSCSV, Data: npsCSV(rows...)})
	require.NoError(t, err)

	select {
	case <-reached:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never reached row 2")
	}

	cancelled, err := tc.importer.CancelJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cancellation requested", cancelled.Progress.Message)
	close(proceed)
	tc.importer.Wait()

	got, err := tc.importer.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
	assert.LessOrEqual(t, got.Progress.Current, 3)
	require.NotNil(t, got.Result)
	assert.Equal(t, 0, got.Result.Imported)
	assert.Len(t, got.Result.Errors, 2)
	assert.Equal(t, 2, tc.storedCount(t), "rows after the cancellation point are not persisted")

	_, err = tc.importer.CancelJob(job.ID)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestImport_UnreadableUploadFailsJob(t *testing.T) {
	tc := setupImportTest(t)

	job, err := tc.importer.StartImport(context.Background(), ImportRequest{
		Kind: models.ImportKindZendeskJSON,
		Data: []byte("this is not json"),
	})
	require.NoError(t, err)
	tc.importer.Wait()

	got, err := tc.importer.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.NotEmpty(t, got.Error)
	assert.Nil(t, got.Result)
}

func TestImport_ProfilesCSV(t *testing.T) {
	tc := setupImportTest(t)

	_, err := tc.importer.StartImport(context.Background(), ImportRequest{
		Kind: models.ImportKindProfilesCSV,
		Data: []byte("user_id,email,subscription_type,mrr\nu1,a@x.io,pro,300\n,skip@x.io,free,0\n"),
	})
	require.NoError(t, err)
	tc.importer.Wait()

	p, err := tc.repo.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionPro, p.SubscriptionType)
	assert.Equal(t, 300.0, p.MRRValue())

	list := tc.importer.ListJobs()
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].Result.Imported)
	assert.Len(t, list[0].Result.Errors, 1)
}

func TestStartImport_Validation(t *testing.T) {
	tc := setupImportTest(t)
	ctx := context.Background()

	_, err := tc.importer.StartImport(ctx, ImportRequest{Kind: "xlsx", Data: []byte("x")})
	assert.True(t, apperrors.IsValidation(err))

	_, err = tc.importer.StartImport(ctx, ImportRequest{Kind: models.ImportKindNPSCSV})
	assert.True(t, apperrors.IsValidation(err))

	_, err = tc.importer.StartImport(ctx, ImportRequest{
		Kind:    models.ImportKindMappedCSV,
		Data:    []byte("a\n1\n"),
		Mapping: map[string]string{"a": FieldEmail},
	})
	assert.True(t, apperrors.IsValidation(err))

	assert.Empty(t, tc.importer.ListJobs())
}

func TestImport_ShutdownRejectsNewJobs(t *testing.T) {
	tc := setupImportTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tc.importer.Shutdown(ctx))

	_, err := tc.importer.StartImport(context.Background(), ImportRequest{Kind: models.ImportKindNPSCSV, Data: npsCSV("x,1,,,")})
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestProgressMessage(t *testing.T) {
	assert.Equal(t, "Processed 1/1 row", progressMessage(1, 1))
	assert.Equal(t, "Processed 2/5 rows", progressMessage(2, 5))
}
