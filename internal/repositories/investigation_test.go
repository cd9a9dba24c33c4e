package repositories_test

import (
	"github.com/google/uuid"
	"github.com/myrjola/vera/internal/models"
	"github.com/myrjola/vera/internal/repositories"
	"github.com/myrjola/vera/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"testing"
	"time"
)

var submittedAt = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func newInvestigation(visitor string, submitted time.Time) *models.Investigation {
	return &models.Investigation{ //nolint:exhaustruct // filled by the repository
		ID:           uuid.New(),
		VisitorToken: visitor,
		RawText:      "https://example.com/cube",
		InputText:    "[Content extracted from: https://example.com/cube]\n\nThe cube was invented in 1974.",
		SourceURL:    "https://example.com/cube",
		Language:     "en",
		SubmittedAt:  submitted,
	}
}

func ptr(v int) *int {
	return &v
}

func TestInvestigationRepository_Lifecycle(t *testing.T) {
	ctx := t.Context()
	repo := repositories.NewInvestigationRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))

	inv := newInvestigation("visitor-1", submittedAt)
	require.NoError(t, repo.Create(ctx, inv))

	got, err := repo.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, got.Status)
	assert.False(t, got.Finished())
	assert.Nil(t, got.DisinformationScore)
	assert.Nil(t, got.FinishedAt)
	assert.True(t, submittedAt.Equal(got.SubmittedAt))
	assert.Empty(t, got.Stages)

	for i, name := range []string{"researcher", "librarian"} {
		require.NoError(t, repo.RecordStage(ctx, inv.ID, models.StageResult{
			Position:   i,
			Stage:      name,
			Status:     "succeeded",
			Output:     name + " output",
			Reason:     "",
			StartedAt:  submittedAt.Add(time.Duration(i) * time.Minute),
			DurationMS: 1500,
		}))
	}

	finishedAt := submittedAt.Add(3 * time.Minute)
	require.NoError(t, repo.Finish(ctx, inv.ID, repositories.Completion{
		Status:              "completed",
		Reason:              "",
		Report:              "# Report",
		DisinformationScore: ptr(2),
		ManipulationScore:   ptr(3),
		ConfidenceScore:     ptr(8),
		FinishedAt:          finishedAt,
		Duration:            3 * time.Minute,
		Turns: []models.Turn{
			{Position: 0, Role: "user", Stage: "researcher", Text: "framed input"},
			{Position: 1, Role: "model", Stage: "researcher", Text: "researcher output"},
		},
	}))

	got, err = repo.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.Finished())
	assert.Equal(t, "# Report", got.Report)
	require.NotNil(t, got.DisinformationScore)
	assert.Equal(t, 2, *got.DisinformationScore)
	assert.Equal(t, 8, *got.ConfidenceScore)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, finishedAt.Equal(*got.FinishedAt))
	assert.Equal(t, int64(180000), got.DurationMS)

	require.Len(t, got.Stages, 2)
	assert.Equal(t, "researcher", got.Stages[0].Stage)
	assert.Equal(t, "librarian output", got.Stages[1].Output)
	assert.True(t, submittedAt.Add(time.Minute).Equal(got.Stages[1].StartedAt))
	require.Len(t, got.Turns, 2)
	assert.Equal(t, "model", got.Turns[1].Role)
}

func TestInvestigationRepository_NotFound(t *testing.T) {
	ctx := t.Context()
	repo := repositories.NewInvestigationRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))

	_, err := repo.Get(ctx, uuid.New())
	require.ErrorIs(t, err, repositories.ErrNotFound)

	err = repo.Finish(ctx, uuid.New(), repositories.Completion{Status: "failed"}) //nolint:exhaustruct // minimal
	require.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestInvestigationRepository_List(t *testing.T) {
	ctx := t.Context()
	repo := repositories.NewInvestigationRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))

	first := newInvestigation("visitor-1", submittedAt)
	second := newInvestigation("visitor-2", submittedAt.Add(time.Minute))
	third := newInvestigation("visitor-1", submittedAt.Add(2*time.Minute))
	for _, inv := range []*models.Investigation{first, second, third} {
		require.NoError(t, repo.Create(ctx, inv))
	}

	tests := []struct {
		name    string
		visitor string
		limit   int
		want    []uuid.UUID
	}{
		{name: "all visitors", visitor: "", limit: 10, want: []uuid.UUID{third.ID, second.ID, first.ID}},
		{name: "one visitor", visitor: "visitor-1", limit: 10, want: []uuid.UUID{third.ID, first.ID}},
		{name: "limit", visitor: "", limit: 1, want: []uuid.UUID{third.ID}},
		{name: "unknown visitor", visitor: "nobody", limit: 10, want: []uuid.UUID{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := repo.List(ctx, tt.visitor, tt.limit)
			require.NoError(t, err)
			ids := make([]uuid.UUID, 0, len(list))
			for _, inv := range list {
				ids = append(ids, inv.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestInvestigationRepository_MarkInterrupted(t *testing.T) {
	ctx := t.Context()
	repo := repositories.NewInvestigationRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))

	running := newInvestigation("", submittedAt)
	require.NoError(t, repo.Create(ctx, running))

	n, err := repo.MarkInterrupted(ctx, submittedAt.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.Get(ctx, running.ID)
	require.NoError(t, err)
	assert.Equal(t, "failed", got.Status)
	assert.Contains(t, got.Reason, "interrupted")
}
