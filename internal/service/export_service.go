package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/guru-portal-api/internal/dto"
	"github.com/noah-isme/guru-portal-api/internal/models"
	appErrors "github.com/noah-isme/guru-portal-api/pkg/errors"
	"github.com/noah-isme/guru-portal-api/pkg/export"
	"github.com/noah-isme/guru-portal-api/pkg/storage"
)

type resultsProvider interface {
	Results(ctx context.Context, examID string, claims *models.JWTClaims) ([]dto.ExamResultRow, *models.ObjectiveExam, error)
}

type exportFileStorage interface {
	Save(filename string, data []byte) (string, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string    `json:"relative_path"`
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ExportService renders exam result sheets to CSV files served through
// signed URLs.
type ExportService struct {
	results   resultsProvider
	storage   exportFileStorage
	csv       csvRenderer
	signer    *storage.SignedURLSigner
	resultTTL time.Duration
	logger    *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(results resultsProvider, store exportFileStorage, signer *storage.SignedURLSigner, resultTTL time.Duration, logger *zap.Logger, csv csvRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resultTTL <= 0 {
		resultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	return &ExportService{
		results:   results,
		storage:   store,
		csv:       csv,
		signer:    signer,
		resultTTL: resultTTL,
		logger:    logger,
	}
}

// GenerateResultsCSV renders the exam's result sheet and stores it, returning
// a signed download token.
func (s *ExportService) GenerateResultsCSV(ctx context.Context, examID string, claims *models.JWTClaims) (*ExportResult, error) {
	rows, exam, err := s.results.Results(ctx, examID, claims)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"student_name", "status", "scored_marks", "total_marks", "passed", "graded_at"},
	}
	for _, row := range rows {
		gradedAt := ""
		if row.GradedAt != nil {
			gradedAt = row.GradedAt.UTC().Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"student_name": row.StudentName,
			"status":       string(row.Status),
			"scored_marks": strconv.FormatFloat(row.ScoredMarks, 'f', 2, 64),
			"total_marks":  strconv.FormatFloat(exam.TotalMarks, 'f', 2, 64),
			"passed":       strconv.FormatBool(row.Passed),
			"graded_at":    gradedAt,
		})
	}

	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}

	filename := fmt.Sprintf("results_%s_%s.csv", sanitizeFilename(exam.Title), time.Now().UTC().Format("20060102T150405"))
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(examID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export url")
	}

	s.logger.Info("results export generated",
		zap.String("exam_id", examID),
		zap.String("path", relPath),
		zap.Int("rows", len(rows)))
	return &ExportResult{RelativePath: relPath, Token: token, ExpiresAt: expiresAt}, nil
}

// Cleanup removes exports older than the result TTL.
func (s *ExportService) Cleanup() {
	removed, err := s.storage.CleanupOlderThan(s.resultTTL)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
	}
}

func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-")
	return strings.ToLower(replacer.Replace(name))
}
