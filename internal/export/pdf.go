package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"golang.org/x/sync/errgroup"

	"github.com/DukeRupert/safetyline/internal/metrics"
)

// Cover is the block printed above the table on the first page. PreparedBy
// is the email shown in every page footer.
type Cover struct {
	CompanyName string
	LogoURL     string
	PrintedBy   string
	PreparedBy  string
	GeneratedAt time.Time
}

// PDFStats reports what WritePDF did with the image column.
type PDFStats struct {
	Pages         int
	Images        int
	ImageFailures int
}

// Colors used by the PDF writer.
var colors = struct {
	Header     string
	HeaderText string
	Stripe     string
	Border     string
	Text       string
	Muted      string
}{
	Header:     "#2C3E50",
	HeaderText: "#FFFFFF",
	Stripe:     "#F5F5F5",
	Border:     "#BDC3C7",
	Text:       "#1F2937",
	Muted:      "#6B7280",
}

// hexToRGB converts "#RRGGBB" or "RRGGBB" to RGB components.
func hexToRGB(hex string) (r, g, b int) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(v >> 16 & 0xFF), int(v >> 8 & 0xFF), int(v & 0xFF)
}

// =============================================================================
// PDF Writer
// =============================================================================

const (
	pageWidth      = 297.0 // A4 landscape, mm
	pageHeight     = 210.0
	margin         = 10.0
	footerHeight   = 12.0
	lineHeight     = 3.6
	cellPad        = 1.0
	headerFontSize = 7.5
	bodyFontSize   = 7.0
	imageRowHeight = 22.0
	logoSize       = 24.0
	prefetchLimit  = 4
)

// imageCell is a rectangle left blank during layout and filled once the
// image behind ref has been fetched.
type imageCell struct {
	page       int
	x, y, w, h float64
	ref        string
}

type pdfWriter struct {
	pdf    *fpdf.Fpdf
	tr     func(string) string
	table  *Table
	cover  Cover
	colW   float64
	cells  []imageCell
	logger *slog.Logger
}

// WritePDF renders t as a landscape A4 document. The table is laid out
// first; image cells are then fetched concurrently and drawn into the
// rectangles recorded for them. An image that cannot be fetched or decoded
// leaves its cell blank.
func WritePDF(ctx context.Context, w io.Writer, t *Table, cover Cover, fetcher ImageFetcher, logger *slog.Logger) (PDFStats, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(t.Title, true)
	pdf.SetAuthor(cover.PreparedBy, true)
	pdf.SetCreator("SafetyLine", true)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AliasNbPages("")

	pw := &pdfWriter{
		pdf:    pdf,
		tr:     pdf.UnicodeTranslatorFromDescriptor(""),
		table:  t,
		cover:  cover,
		logger: logger,
	}
	if n := len(t.Headers); n > 0 {
		pw.colW = (pageWidth - 2*margin) / float64(n)
	}

	pdf.SetFooterFunc(pw.footer)
	pdf.AddPage()
	pw.addCover()
	pw.addTable()

	if err := pdf.Error(); err != nil {
		return PDFStats{}, fmt.Errorf("pdf generation error: %w", err)
	}

	stats := pw.drawImages(ctx, fetcher)
	stats.Pages = pdf.PageCount()

	// The footer of the last page is written on close.
	pdf.SetPage(pdf.PageCount())

	if err := pdf.Error(); err != nil {
		return stats, fmt.Errorf("pdf generation error: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return stats, fmt.Errorf("pdf output error: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return stats, err
	}
	return stats, nil
}

func (pw *pdfWriter) setColor(hex string, set func(r, g, b int)) {
	r, g, b := hexToRGB(hex)
	set(r, g, b)
}

func (pw *pdfWriter) footer() {
	pdf := pw.pdf
	pdf.SetY(-footerHeight + 2)
	pdf.SetFont("Helvetica", "", 7)
	pw.setColor(colors.Muted, pdf.SetTextColor)

	left := pw.cover.GeneratedAt.Format("2006-01-02 15:04")
	if pw.cover.PreparedBy != "" {
		left += "  |  " + pw.cover.PreparedBy
	}
	pdf.CellFormat(pageWidth/2-margin, 5, pw.tr(left), "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
}

// =============================================================================
// Cover
// =============================================================================

func (pw *pdfWriter) addCover() {
	pdf := pw.pdf
	y := margin

	if pw.cover.LogoURL != "" {
		pw.cells = append(pw.cells, imageCell{
			page: pdf.PageNo(), x: margin, y: y, w: logoSize, h: logoSize, ref: pw.cover.LogoURL,
		})
	}

	textX := margin + logoSize + 4
	pw.setColor(colors.Text, pdf.SetTextColor)
	pdf.SetXY(textX, y+4)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(32, 6, "Company Name:", "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, pw.tr(pw.cover.CompanyName), "", 1, "L", false, 0, "")

	pdf.SetX(textX)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(32, 6, "Report Printed By:", "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, pw.tr(pw.cover.PrintedBy), "", 1, "L", false, 0, "")

	pdf.SetXY(margin, y+logoSize+4)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(pageWidth-2*margin, 9, pw.tr(pw.table.Title), "", 1, "C", false, 0, "")
	pdf.Ln(3)
}

// =============================================================================
// Table
// =============================================================================

func (pw *pdfWriter) addTable() {
	if len(pw.table.Headers) == 0 {
		return
	}
	pw.addHeaderRow()

	bottom := pageHeight - footerHeight
	maxRowH := bottom - margin - pw.headerHeight() - 2

	for i, row := range pw.table.Rows {
		pw.pdf.SetFont("Helvetica", "", bodyFontSize)
		lines, h := pw.layoutRow(row, maxRowH)
		if pw.table.ImageColumn && h < imageRowHeight {
			h = imageRowHeight
		}
		if pw.pdf.GetY()+h > bottom {
			pw.pdf.AddPage()
			pw.pdf.SetY(margin)
			pw.addHeaderRow()
		}
		pw.drawRow(i, lines, h)
	}
}

func (pw *pdfWriter) headerHeight() float64 {
	pw.pdf.SetFont("Helvetica", "B", headerFontSize)
	_, h := pw.layoutRow(pw.table.Headers, pageHeight)
	return h
}

func (pw *pdfWriter) addHeaderRow() {
	pdf := pw.pdf
	pdf.SetFont("Helvetica", "B", headerFontSize)
	lines, h := pw.layoutRow(pw.table.Headers, pageHeight)

	pw.setColor(colors.Header, pdf.SetFillColor)
	pw.setColor(colors.Border, pdf.SetDrawColor)
	pw.setColor(colors.HeaderText, pdf.SetTextColor)

	x, y := margin, pdf.GetY()
	for c := range pw.table.Headers {
		pdf.Rect(x, y, pw.colW, h, "FD")
		pw.writeLines(lines[c], x, y)
		x += pw.colW
	}
	pdf.SetXY(margin, y+h)
}

// layoutRow wraps every cell of row to the column width with the current
// font and returns the lines and the row height. Cells taller than maxH are
// cut.
func (pw *pdfWriter) layoutRow(row []string, maxH float64) ([][]string, float64) {
	maxLines := int((maxH - 2*cellPad) / lineHeight)
	if maxLines < 1 {
		maxLines = 1
	}
	lines := make([][]string, len(row))
	most := 1
	for c, text := range row {
		wrapped := pw.wrap(pw.tr(text), pw.colW-2*cellPad)
		if len(wrapped) > maxLines {
			wrapped = wrapped[:maxLines]
		}
		lines[c] = wrapped
		if len(wrapped) > most {
			most = len(wrapped)
		}
	}
	return lines, float64(most)*lineHeight + 2*cellPad
}

func (pw *pdfWriter) drawRow(i int, lines [][]string, h float64) {
	pdf := pw.pdf
	pdf.SetFont("Helvetica", "", bodyFontSize)
	pw.setColor(colors.Text, pdf.SetTextColor)
	pw.setColor(colors.Border, pdf.SetDrawColor)

	style := "D"
	if i%2 == 1 {
		pw.setColor(colors.Stripe, pdf.SetFillColor)
		style = "FD"
	}

	x, y := margin, pdf.GetY()
	last := len(lines) - 1
	for c := range lines {
		pdf.Rect(x, y, pw.colW, h, style)
		if c == last && pw.table.ImageColumn {
			if i < len(pw.table.Images) && pw.table.Images[i] != "" {
				pw.cells = append(pw.cells, imageCell{
					page: pdf.PageNo(), x: x, y: y, w: pw.colW, h: h, ref: pw.table.Images[i],
				})
			}
		} else {
			pw.writeLines(lines[c], x, y)
		}
		x += pw.colW
	}
	pdf.SetXY(margin, y+h)
}

func (pw *pdfWriter) writeLines(lines []string, x, y float64) {
	for n, line := range lines {
		pw.pdf.SetXY(x+cellPad, y+cellPad+float64(n)*lineHeight)
		pw.pdf.CellFormat(pw.colW-2*cellPad, lineHeight, line, "", 0, "L", false, 0, "")
	}
}

// wrap breaks already translated text into lines no wider than width.
// Explicit newlines are kept; words longer than a line are split.
func (pw *pdfWriter) wrap(text string, width float64) []string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := ""
		for _, word := range words {
			for pw.pdf.GetStringWidth(word) > width && len(word) > 1 {
				if line != "" {
					out = append(out, line)
					line = ""
				}
				cut := len(word) - 1
				for cut > 1 && pw.pdf.GetStringWidth(word[:cut]) > width {
					cut--
				}
				out = append(out, word[:cut])
				word = word[cut:]
			}
			candidate := word
			if line != "" {
				candidate = line + " " + word
			}
			if line != "" && pw.pdf.GetStringWidth(candidate) > width {
				out = append(out, line)
				line = word
				continue
			}
			line = candidate
		}
		out = append(out, line)
	}
	return out
}

// =============================================================================
// Images
// =============================================================================

// drawImages fetches every recorded cell, at most prefetchLimit at a time,
// then draws the images page by page. Failures are isolated per cell.
func (pw *pdfWriter) drawImages(ctx context.Context, fetcher ImageFetcher) PDFStats {
	stats := PDFStats{Images: len(pw.cells)}
	if len(pw.cells) == 0 {
		return stats
	}

	type fetched struct {
		data []byte
		size image.Point
		err  error
	}
	results := make([]fetched, len(pw.cells))

	var g errgroup.Group
	g.SetLimit(prefetchLimit)
	for i, cell := range pw.cells {
		g.Go(func() error {
			if fetcher == nil {
				results[i].err = fmt.Errorf("no image fetcher")
				return nil
			}
			raw, err := fetcher.Fetch(ctx, cell.ref)
			if err != nil {
				results[i].err = err
				return nil
			}
			results[i].data, results[i].size, results[i].err = normalize(raw)
			return nil
		})
	}
	_ = g.Wait()

	for i, cell := range pw.cells {
		res := results[i]
		if res.err != nil {
			stats.ImageFailures++
			metrics.ExportImageFailures.Inc()
			pw.logger.Warn("export image skipped",
				"kind", string(pw.table.Kind),
				"ref", truncateRef(cell.ref),
				"error", res.err,
			)
			continue
		}

		name := fmt.Sprintf("img%d", i)
		pw.pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "JPG"}, bytes.NewReader(res.data))
		if !pw.pdf.Ok() {
			// A registration failure poisons the document; stop drawing.
			return stats
		}
		pw.pdf.SetPage(cell.page)
		x, y, w, h := fit(cell, res.size)
		pw.pdf.ImageOptions(name, x, y, w, h, false, fpdf.ImageOptions{ImageType: "JPG"}, 0, "")
	}
	return stats
}

// fit centres an image of size px inside cell, keeping its aspect ratio.
func fit(cell imageCell, px image.Point) (x, y, w, h float64) {
	boxW, boxH := cell.w-2*cellPad, cell.h-2*cellPad
	if px.X <= 0 || px.Y <= 0 || boxW <= 0 || boxH <= 0 {
		return cell.x + cellPad, cell.y + cellPad, boxW, boxH
	}
	scale := boxW / float64(px.X)
	if s := boxH / float64(px.Y); s < scale {
		scale = s
	}
	w, h = float64(px.X)*scale, float64(px.Y)*scale
	return cell.x + (cell.w-w)/2, cell.y + (cell.h-h)/2, w, h
}

func truncateRef(ref string) string {
	if len(ref) > 80 {
		return ref[:80] + "..."
	}
	return ref
}
