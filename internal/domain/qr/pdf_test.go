package qr

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestParsePageSize(t *testing.T) {
	if p, err := ParsePageSize(""); err != nil || p != PageLetter {
		t.Fatalf("expected default letter, got %q err=%v", p, err)
	}
	if p, err := ParsePageSize(" A4 "); err != nil || p != PageA4 {
		t.Fatalf("expected a4, got %q err=%v", p, err)
	}
	if _, err := ParsePageSize("legal"); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions, got %v", err)
	}
}

func TestPageDims(t *testing.T) {
	if w, h := pageDims(PageLetter, Portrait); w != 612 || h != 792 {
		t.Fatalf("letter portrait: got %vx%v", w, h)
	}
	if w, h := pageDims(PageA4, Portrait); w != 595 || h != 842 {
		t.Fatalf("a4 portrait: got %vx%v", w, h)
	}
	if w, h := pageDims(PageLetter, Landscape); w != 792 || h != 612 {
		t.Fatalf("letter landscape: got %vx%v", w, h)
	}
}

func TestFitRect_NeverUpscalesPastOneToOne(t *testing.T) {
	// Documento chico en página grande: queda 1:1, no se estira.
	w, h := fitRect(100, 100, 540, 720, 0)
	if w != 100 || h != 100 {
		t.Fatalf("expected 100x100 untouched, got %vx%v", w, h)
	}

	// Documento grande: encaja dentro del área útil preservando aspecto.
	w, h = fitRect(1080, 540, 540, 720, 0)
	if w != 540 || h != 270 {
		t.Fatalf("expected 540x270, got %vx%v", w, h)
	}

	// targetW explícito que entra: manda el target.
	w, h = fitRect(100, 100, 540, 720, 300)
	if w != 300 || h != 300 {
		t.Fatalf("expected 300x300 from target, got %vx%v", w, h)
	}

	// targetW que desborda: cae al fit.
	w, h = fitRect(100, 200, 540, 720, 500)
	if h > 720 || w > 540 {
		t.Fatalf("target overflow not clamped: %vx%v", w, h)
	}

	if w, h := fitRect(0, 0, 540, 720, 0); w != 0 || h != 0 {
		t.Fatalf("expected 0x0 for empty source, got %vx%v", w, h)
	}
}

func TestSinglePagePDF_ProducesDocument(t *testing.T) {
	doc, err := Render(testURL, "pawtrace.app/p/ab3", RenderOptions{Shape: ShapeSquare, SizePx: 256})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, page := range []PageSize{PageLetter, PageA4} {
		out, err := SinglePagePDF(doc, SinglePDFOptions{Page: page})
		if err != nil {
			t.Fatalf("%s: compose: %v", page, err)
		}
		if !bytes.HasPrefix(out, []byte("%PDF-")) {
			t.Fatalf("%s: not a pdf: %q", page, out[:8])
		}
	}
}

func TestMultiPagePDF_GridsAndPaging(t *testing.T) {
	doc, err := Render(testURL, "pawtrace.app/p/ab3", RenderOptions{Shape: ShapeSquare, SizePx: 128})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	entries := make([]BatchEntry, 5)
	for i := range entries {
		entries[i] = BatchEntry{SVG: doc, Label: fmt.Sprintf("code-%d", i)}
	}

	for _, perPage := range []int{1, 2, 4, 6} {
		out, err := MultiPagePDF(entries, MultiPDFOptions{PerPage: perPage})
		if err != nil {
			t.Fatalf("per-page %d: %v", perPage, err)
		}
		if !bytes.HasPrefix(out, []byte("%PDF-")) {
			t.Fatalf("per-page %d: not a pdf", perPage)
		}
	}

	if _, err := MultiPagePDF(entries, MultiPDFOptions{PerPage: 3}); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions for 3 per page, got %v", err)
	}
	if _, err := MultiPagePDF(nil, MultiPDFOptions{}); err == nil {
		t.Fatal("expected error for empty batch")
	}
}
