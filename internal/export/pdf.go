// Package export renders submitted assessments as PDF documents.
package export

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"

	"webcaf.gov.uk/webcaf/internal/domain"
	"webcaf.gov.uk/webcaf/internal/framework"
)

const (
	fontFamily = "Helvetica"
	lineHeight = 6.0
)

// Filename is the attachment name offered for an assessment.
func Filename(a domain.Assessment) string {
	return a.Reference() + ".pdf"
}

// AssessmentPDF writes a to w. Outcomes are listed in framework order; those
// not yet recorded are shown as such.
func AssessmentPDF(w io.Writer, a domain.Assessment) error {
	fw, err := framework.Get(a.Framework)
	if err != nil {
		return err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	// Uncompressed so the reference stays searchable in the raw file.
	pdf.SetCompression(false)
	pdf.SetTitle(a.Reference(), true)
	pdf.SetSubject(fmt.Sprintf("CAF assessment for %s", a.SystemName), true)
	pdf.SetCreator("WebCAF", true)
	pdf.SetCreationDate(a.LastUpdated)
	pdf.SetModificationDate(a.LastUpdated)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(fontFamily, "", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("%s  |  page %d", a.Reference(), pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont(fontFamily, "B", 18)
	pdf.MultiCell(0, 9, tr("Cyber Assessment Framework submission"), "", "L", false)
	pdf.Ln(2)

	pdf.SetFont(fontFamily, "", 11)
	rows := [][2]string{
		{"Reference", a.Reference()},
		{"Organisation", a.OrganisationName},
		{"System", a.SystemName},
		{"Assessment period", a.AssessmentPeriod},
		{"Framework", fw.Name},
		{"CAF profile", choiceLabel(domain.CAFProfiles, string(a.CAFProfile))},
		{"Review type", choiceLabel(domain.ReviewTypes, string(a.ReviewType))},
		{"Status", string(a.Status)},
	}
	if a.SubmittedAt != nil {
		rows = append(rows, [2]string{"Submitted", formatTime(*a.SubmittedAt)})
	}
	for _, row := range rows {
		pdf.SetFont(fontFamily, "B", 11)
		pdf.CellFormat(50, lineHeight+1, tr(row[0]), "", 0, "L", false, 0, "")
		pdf.SetFont(fontFamily, "", 11)
		pdf.MultiCell(0, lineHeight+1, tr(row[1]), "", "L", false)
	}

	done, total := fw.Progress(a.CAFProfile, a.Data)
	pdf.Ln(4)
	pdf.SetFont(fontFamily, "", 10)
	pdf.MultiCell(0, lineHeight, fmt.Sprintf("%d of %d outcomes confirmed.", done, total), "", "L", false)

	objective := ""
	for _, ref := range fw.OutcomesFor(a.CAFProfile) {
		if ref.Objective != objective {
			objective = ref.Objective
			pdf.Ln(4)
			pdf.SetFont(fontFamily, "B", 14)
			pdf.MultiCell(0, 8, tr(objectiveTitle(fw, objective)), "", "L", false)
		}
		pdf.Ln(1)
		pdf.SetFont(fontFamily, "B", 11)
		pdf.MultiCell(0, lineHeight, tr(ref.Outcome.Code+" "+ref.Outcome.Title), "", "L", false)

		pdf.SetFont(fontFamily, "", 10)
		rec, ok := a.Data.Outcome(ref.Objective, ref.Outcome.Code)
		if !ok {
			pdf.MultiCell(0, lineHeight, "Not recorded.", "", "L", false)
			continue
		}
		pdf.MultiCell(0, lineHeight, tr("Status: "+rec.Status), "", "L", false)
		if rec.Comments != "" {
			pdf.MultiCell(0, lineHeight, tr("Summary: "+rec.Comments), "", "L", false)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf %s: %w", a.Reference(), err)
	}
	return nil
}

// Render returns the document as bytes.
func Render(a domain.Assessment) ([]byte, error) {
	var buf bytes.Buffer
	if err := AssessmentPDF(&buf, a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func objectiveTitle(fw *framework.Framework, code string) string {
	for _, o := range fw.Objectives {
		if o.Code == code {
			return o.Title
		}
	}
	return code
}

func choiceLabel(choices []domain.Choice, id string) string {
	for _, c := range choices {
		if c.ID == id {
			return c.Label
		}
	}
	return id
}

func formatTime(t time.Time) string {
	if loc, err := time.LoadLocation("Europe/London"); err == nil {
		t = t.In(loc)
	}
	return t.Format(domain.DueDateLayout)
}
