package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/guru-portal-api/internal/dto"
	"github.com/noah-isme/guru-portal-api/internal/models"
	"github.com/noah-isme/guru-portal-api/pkg/storage"
)

type stubResults struct {
	rows []dto.ExamResultRow
	exam *models.ObjectiveExam
}

func (s *stubResults) Results(ctx context.Context, examID string, claims *models.JWTClaims) ([]dto.ExamResultRow, *models.ObjectiveExam, error) {
	return s.rows, s.exam, nil
}

func TestExportServiceGenerateResultsCSV(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	gradedAt := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	results := &stubResults{
		rows: []dto.ExamResultRow{
			{StudentName: "Siswa Satu", Status: models.SubmissionStatusGraded, ScoredMarks: 80, GradedAt: &gradedAt, Passed: true},
			{StudentName: "Siswa Dua", Status: models.SubmissionStatusPending},
		},
		exam: &models.ObjectiveExam{ID: examID, Title: "Ujian Akhir Semester", TotalMarks: 100, PassingMarks: 60},
	}
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	svc := NewExportService(results, store, signer, time.Hour, zap.NewNop(), nil)

	result, err := svc.GenerateResultsCSV(context.Background(), examID, teacherClaims())
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Contains(t, result.RelativePath, "results_ujian_akhir_semester_")

	file, err := store.Open(result.RelativePath)
	require.NoError(t, err)
	defer file.Close()

	buf := make([]byte, 4096)
	n, _ := file.Read(buf)
	content := string(buf[:n])
	assert.Contains(t, content, "student_name")
	assert.Contains(t, content, "Siswa Satu")
	assert.Contains(t, content, "80.00")
	assert.Contains(t, content, "true")
}

func TestExportServiceCleanup(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	_, err = store.Save("stale.csv", []byte("old"))
	require.NoError(t, err)

	removed, err := store.CleanupOlderThan(-time.Minute)
	require.NoError(t, err)
	assert.Contains(t, removed, "stale.csv")
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "ujian_akhir-semester", sanitizeFilename("Ujian Akhir/Semester"))
	assert.False(t, strings.ContainsAny(sanitizeFilename(`a b/c\d:e`), ` /\:`))
}
