package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateData carries the fields printed on a completion certificate.
type CertificateData struct {
	StudentName  string
	ExamTitle    string
	SchoolName   string
	ScoredMarks  float64
	TotalMarks   float64
	GradedAt     time.Time
	SerialNumber string
}

// CertificateRenderer produces completion-certificate PDFs.
type CertificateRenderer struct{}

// NewCertificateRenderer constructs a certificate renderer.
func NewCertificateRenderer() *CertificateRenderer {
	return &CertificateRenderer{}
}

// Render creates a single-page landscape certificate document.
func (r *CertificateRenderer) Render(data CertificateData) ([]byte, error) {
	if data.StudentName == "" || data.ExamTitle == "" {
		return nil, fmt.Errorf("certificate requires student name and exam title")
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 25, 20)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 26)
	pdf.CellFormat(0, 16, "CERTIFICATE OF COMPLETION", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(0, 8, "This certifies that", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "B", 20)
	pdf.CellFormat(0, 12, strings.ToUpper(data.StudentName), "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(0, 8, "has successfully completed the objective exam", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 10, data.ExamTitle, "", 1, "C", false, 0, "")

	if data.SchoolName != "" {
		pdf.SetFont("Arial", "", 12)
		pdf.CellFormat(0, 8, fmt.Sprintf("at %s", data.SchoolName), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(0, 8, fmt.Sprintf("Score: %.1f / %.1f", data.ScoredMarks, data.TotalMarks), "", 1, "C", false, 0, "")
	if !data.GradedAt.IsZero() {
		pdf.CellFormat(0, 8, fmt.Sprintf("Graded on %s", data.GradedAt.Format("2 January 2006")), "", 1, "C", false, 0, "")
	}

	if data.SerialNumber != "" {
		pdf.Ln(10)
		pdf.SetFont("Arial", "I", 9)
		pdf.CellFormat(0, 6, fmt.Sprintf("Serial: %s", data.SerialNumber), "", 1, "C", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
