package qr

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-pdf/fpdf"
)

// PageSize de la página destino.
// @Enum letter, a4
type PageSize string

const (
	PageLetter PageSize = "letter"
	PageA4     PageSize = "a4"
)

type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

func ParsePageSize(s string) (PageSize, error) {
	switch PageSize(strings.ToLower(strings.TrimSpace(s))) {
	case PageLetter, "":
		return PageLetter, nil
	case PageA4:
		return PageA4, nil
	default:
		return "", fmt.Errorf("%w: page size %q", ErrInvalidOptions, s)
	}
}

// pageDims en puntos: Letter 612x792, A4 595x842. Landscape transpone.
func pageDims(size PageSize, orient Orientation) (float64, float64) {
	w, h := 612.0, 792.0
	if size == PageA4 {
		w, h = 595.0, 842.0
	}
	if orient == Landscape {
		w, h = h, w
	}
	return w, h
}

// fitRect calcula el tamaño colocado: encaja (srcW,srcH) dentro de
// (availW,availH) sin pasar 1:1, salvo que haya targetW explícito y entre.
func fitRect(srcW, srcH, availW, availH, targetW float64) (float64, float64) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0
	}
	scale := math.Min(math.Min(availW/srcW, availH/srcH), 1)
	if targetW > 0 {
		ts := targetW / srcW
		if targetW <= availW && srcH*ts <= availH {
			scale = ts
		}
	}
	return srcW * scale, srcH * scale
}

type SinglePDFOptions struct {
	Page        PageSize
	Orientation Orientation
	MarginPt    float64
	// TargetWidthPt escala a ese ancho salvo que desborde el área útil;
	// en ese caso cae al fit-within-bounds.
	TargetWidthPt float64
}

// SinglePagePDF centra el documento SVG en una página.
func SinglePagePDF(svg string, o SinglePDFOptions) ([]byte, error) {
	if o.Page == "" {
		o.Page = PageLetter
	}
	if o.Orientation == "" {
		o.Orientation = Portrait
	}
	if o.MarginPt <= 0 {
		o.MarginPt = 36
	}

	pageW, pageH := pageDims(o.Page, o.Orientation)
	availW := pageW - 2*o.MarginPt
	availH := pageH - 2*o.MarginPt

	srcW, srcH := docDims(svg)
	placedW, placedH := fitRect(srcW, srcH, availW, availH, o.TargetWidthPt)

	pdf := newPDF(pageW, pageH)
	pdf.AddPage()
	if err := placeSVG(pdf, svg, "qr-0", (pageW-placedW)/2, (pageH-placedH)/2, placedW, placedH); err != nil {
		return nil, err
	}
	return pdfBytes(pdf)
}

// BatchEntry es un documento a colocar en el PDF multi-página.
type BatchEntry struct {
	SVG   string
	Label string
}

type MultiPDFOptions struct {
	Page        PageSize
	Orientation Orientation
	MarginPt    float64
	PerPage     int // 1, 2, 4 o 6
}

// MultiPagePDF arma un PDF con uno o varios QRs por página. Con PerPage=1
// cada código lleva caption centrado y footer con número de página; con
// 2/4/6 se arma una grilla (1x2, 2x2, 2x3) y cada celda escala por su cuenta.
func MultiPagePDF(entries []BatchEntry, o MultiPDFOptions) ([]byte, error) {
	if len(entries) == 0 {
		return nil, errors.New("compose pdf: no entries")
	}
	if o.Page == "" {
		o.Page = PageLetter
	}
	if o.Orientation == "" {
		o.Orientation = Portrait
	}
	if o.MarginPt <= 0 {
		o.MarginPt = 36
	}

	var cols, rows int
	switch o.PerPage {
	case 0, 1:
		cols, rows = 1, 1
	case 2:
		cols, rows = 1, 2
	case 4:
		cols, rows = 2, 2
	case 6:
		cols, rows = 2, 3
	default:
		return nil, fmt.Errorf("%w: %d per page", ErrInvalidOptions, o.PerPage)
	}
	perPage := cols * rows

	pageW, pageH := pageDims(o.Page, o.Orientation)
	availW := pageW - 2*o.MarginPt
	availH := pageH - 2*o.MarginPt

	pdf := newPDF(pageW, pageH)
	pdf.SetFont("Helvetica", "", 11)

	totalPages := (len(entries) + perPage - 1) / perPage

	for i, e := range entries {
		slot := i % perPage
		if slot == 0 {
			pdf.AddPage()
			if perPage == 1 {
				// Footer con número de página.
				page := i/perPage + 1
				footer := fmt.Sprintf("Page %d of %d", page, totalPages)
				pdf.SetFont("Helvetica", "", 9)
				pdf.Text((pageW-pdf.GetStringWidth(footer))/2, pageH-o.MarginPt/2, footer)
				pdf.SetFont("Helvetica", "", 11)
			}
		}

		cellW := availW / float64(cols)
		cellH := availH / float64(rows)
		cellX := o.MarginPt + float64(slot%cols)*cellW
		cellY := o.MarginPt + float64(slot/cols)*cellH

		captionBand := 0.0
		if perPage == 1 && e.Label != "" {
			captionBand = 24
		}

		const cellPad = 10.0
		srcW, srcH := docDims(e.SVG)
		placedW, placedH := fitRect(srcW, srcH, cellW-2*cellPad, cellH-2*cellPad-captionBand, 0)

		x := cellX + (cellW-placedW)/2
		y := cellY + (cellH-captionBand-placedH)/2
		if err := placeSVG(pdf, e.SVG, fmt.Sprintf("qr-%d", i), x, y, placedW, placedH); err != nil {
			return nil, err
		}

		if captionBand > 0 {
			pdf.Text((pageW-pdf.GetStringWidth(e.Label))/2, y+placedH+16, e.Label)
		}
	}

	return pdfBytes(pdf)
}

func newPDF(pageW, pageH float64) *fpdf.Fpdf {
	return fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "pt",
		Size:    fpdf.SizeType{Wd: pageW, Ht: pageH},
	})
}

// placeSVG rasteriza el SVG a buena resolución y lo incrusta como imagen.
func placeSVG(pdf *fpdf.Fpdf, svg, name string, x, y, w, h float64) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("compose pdf: nothing to place")
	}
	// 4x el tamaño colocado para que imprima nítido.
	pngBytes, err := Rasterize(svg, int(math.Max(w, h)*4))
	if err != nil {
		return fmt.Errorf("compose pdf: %w", err)
	}
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(pngBytes))
	pdf.ImageOptions(name, x, y, w, h, false, opts, 0, "")
	if pdf.Err() {
		return fmt.Errorf("compose pdf: %v", pdf.Error())
	}
	return nil
}

func pdfBytes(pdf *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("compose pdf: %w", err)
	}
	return buf.Bytes(), nil
}
