package reports

import (
	"fmt"
	"io"
	"strconv"

	"logbook/pkg/types"

	"github.com/go-pdf/fpdf"
)

const (
	pageMargin   = 14.0
	contentWidth = 210.0 - 2*pageMargin
	rowHeight    = 7.0
)

type rgb struct{ r, g, b int }

var (
	headerBlue = rgb{41, 128, 185}
	headerRed  = rgb{231, 76, 60}
	stripe     = rgb{245, 245, 245}
)

type pdfTable struct {
	header []string
	widths []float64
	rows   [][]string
	color  rgb
}

// FileName is the suggested download name of a report's PDF.
func FileName(report *types.Report) string {
	return fmt.Sprintf("laporan-kegiatan-%s-sd-%s.pdf", report.StartDate, report.EndDate)
}

// WritePDF renders the report as an A4 document: title and period, the
// summary, every tool used, per-category insights and, when there are
// any, the damaged tools.
func WritePDF(w io.Writer, report *types.Report) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, 20, pageMargin)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetTitle("Laporan Kegiatan", true)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(0, 10, "Laporan Kegiatan", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	period := fmt.Sprintf("Periode: %s - %s", report.From.Format("02 January 2006"), report.To.Format("02 January 2006"))
	pdf.CellFormat(0, 8, period, "", 1, "C", false, 0, "")
	pdf.Ln(12)

	heading(pdf, "Ringkasan Laporan")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, rowHeight, fmt.Sprintf("Total Kegiatan Dilayani: %d", report.TotalEvents), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, rowHeight, fmt.Sprintf("Total Peralatan Digunakan: %d", report.TotalItemsDeployed), "", 1, "L", false, 0, "")
	pdf.Ln(8)

	usage := pdfTable{
		header: []string{"No", "Kategori", "Nama Alat", "Event", "Kondisi Akhir", "Keterangan"},
		widths: []float64{10, 28, 40, 40, 28, 36},
		color:  headerBlue,
	}
	for i, tool := range report.AllTools {
		condition := tool.InitialCondition
		if tool.FinalCondition != nil && *tool.FinalCondition != "" {
			condition = *tool.FinalCondition
		}
		notes := "-"
		if tool.Notes != nil && *tool.Notes != "" {
			notes = *tool.Notes
		}
		usage.rows = append(usage.rows, []string{strconv.Itoa(i + 1), tool.Category, tool.ToolName, tool.EventName, condition, notes})
	}
	heading(pdf, "Rincian Penggunaan Alat")
	drawTable(pdf, tr, usage)
	pdf.Ln(10)

	insights := pdfTable{
		header: []string{"Kategori", "Frekuensi", "% Penggunaan", "Jumlah Item", "Item Rusak"},
		widths: []float64{50, 30, 36, 34, 32},
		color:  headerBlue,
	}
	for _, category := range report.Categories() {
		insight := report.CategoryInsights[category]
		insights.rows = append(insights.rows, []string{
			category,
			strconv.Itoa(insight.UsageCount),
			fmt.Sprintf("%.1f%%", report.UsageShare(category)),
			strconv.Itoa(insight.ItemsDeployed),
			strconv.Itoa(insight.DamagedCount),
		})
	}
	heading(pdf, "Wawasan Kategori")
	drawTable(pdf, tr, insights)

	if len(report.DamagedTools) > 0 {
		pdf.Ln(10)

		damaged := pdfTable{
			header: []string{"Kegiatan", "Nama Alat", "Kategori", "Kondisi Awal", "Kondisi Akhir"},
			widths: []float64{46, 40, 32, 32, 32},
			color:  headerRed,
		}
		for _, tool := range report.DamagedTools {
			final := ""
			if tool.FinalCondition != nil {
				final = *tool.FinalCondition
			}
			damaged.rows = append(damaged.rows, []string{tool.EventName, tool.ToolName, tool.Category, tool.InitialCondition, final})
		}
		heading(pdf, "Laporan Alat Rusak & Tidak Wajar")
		drawTable(pdf, tr, damaged)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to render report pdf: %w", err)
	}

	return pdf.Output(w)
}

func heading(pdf *fpdf.Fpdf, text string) {
	// keep a heading on the same page as at least two rows of its table
	_, pageHeight := pdf.GetPageSize()
	if pdf.GetY()+10+3*rowHeight > pageHeight-20 {
		pdf.AddPage()
	}

	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 10, text, "", 1, "L", false, 0, "")
}

func drawTable(pdf *fpdf.Fpdf, tr func(string) string, t pdfTable) {
	drawHeader := func() {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(t.color.r, t.color.g, t.color.b)
		pdf.SetTextColor(255, 255, 255)
		for i, title := range t.header {
			pdf.CellFormat(t.widths[i], rowHeight+1, tr(title), "", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(0, 0, 0)
	}

	drawHeader()

	_, pageHeight := pdf.GetPageSize()
	for i, row := range t.rows {
		if pdf.GetY()+rowHeight > pageHeight-20 {
			pdf.AddPage()
			drawHeader()
		}

		fill := i%2 == 1
		pdf.SetFillColor(stripe.r, stripe.g, stripe.b)
		for j, cell := range row {
			pdf.CellFormat(t.widths[j], rowHeight, fit(pdf, tr(cell), t.widths[j]-2), "", 0, "L", fill, 0, "")
		}
		pdf.Ln(-1)
	}
}

// fit shortens an already translated single-byte string with an ellipsis
// until it fits in width.
func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}

	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width {
		s = s[:len(s)-1]
	}
	return s + "..."
}
