package qr

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"

	qrcode "github.com/skip2/go-qrcode"
)

const testURL = "https://pawtrace.app/p/ab3"

func TestParseShape(t *testing.T) {
	if s, err := ParseShape(""); err != nil || s != ShapeSquare {
		t.Fatalf("expected default square, got %q err=%v", s, err)
	}
	if s, err := ParseShape(" Round "); err != nil || s != ShapeRound {
		t.Fatalf("expected round, got %q err=%v", s, err)
	}
	if _, err := ParseShape("triangle"); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions, got %v", err)
	}
}

func TestRender_RejectsEmptyURL(t *testing.T) {
	if _, err := Render("  ", "x", RenderOptions{}); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("expected ErrInvalidOptions for empty url, got %v", err)
	}
}

func TestRenderSquare_MatrixMatchesEncoder(t *testing.T) {
	doc, err := Render(testURL, "pawtrace.app/p/ab3", RenderOptions{Shape: ShapeSquare, SizePx: 512})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	// El square usa nivel de corrección M; el documento tiene que contener
	// exactamente un rect por módulo oscuro de esa matriz. El fondo blanco
	// no lleva atributo x, así que no entra en el conteo.
	code, err := qrcode.New(testURL, qrcode.Medium)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dark := 0
	for _, row := range code.Bitmap() {
		for _, on := range row {
			if on {
				dark++
			}
		}
	}

	got := strings.Count(doc, `<rect x="`)
	if got != dark {
		t.Fatalf("expected %d module rects, got %d", dark, got)
	}
	// Los módulos van en coordenadas absolutas, sin scale() de grupo: los
	// rasterizadores que ignoran ese transform dibujarían una matriz vacía.
	if strings.Contains(doc, "scale(") {
		t.Fatal("square matrix depends on a scale() transform")
	}
	if !strings.HasPrefix(doc, `<svg xmlns="http://www.w3.org/2000/svg"`) {
		t.Fatalf("missing svg root: %s", doc[:60])
	}
}

func TestRenderSquare_EscapesDisplayText(t *testing.T) {
	doc, err := Render(testURL, `a<b>&"c"`, RenderOptions{Shape: ShapeSquare})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(doc, `<title>a&lt;b&gt;&amp;&quot;c&quot;</title>`) {
		t.Fatalf("display text not escaped in title: %s", doc[:200])
	}
	if strings.Contains(doc, `<title>a<b>`) {
		t.Fatal("raw markup leaked into the document")
	}
}

func TestRenderRound_SquareCanvas(t *testing.T) {
	doc, err := Render(testURL, "pawtrace.app/p/ab3", RenderOptions{Shape: ShapeRound, SizePx: 400})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	m := regexp.MustCompile(`width="([^"]+)" height="([^"]+)"`).FindStringSubmatch(doc)
	if m == nil {
		t.Fatalf("no dimensions in root: %s", doc[:120])
	}
	if m[1] != m[2] {
		t.Fatalf("expected square canvas, got %s x %s", m[1], m[2])
	}

	if !strings.Contains(doc, `<clipPath id="qrclip">`) {
		t.Fatal("missing circular clip definition")
	}
	if !strings.Contains(doc, `clip-path="url(#qrclip)"`) {
		t.Fatal("module group not clipped")
	}
	// Tres corner markers redondeados: anillo + centro = 6 rects con rx.
	if got := strings.Count(doc, ` rx="`); got != 6 {
		t.Fatalf("expected 6 rounded marker rects, got %d", got)
	}
}

func TestRenderRound_DotsStayInsideCircle(t *testing.T) {
	const size = 400.0
	doc, err := Render(testURL, "pawtrace.app/p/ab3", RenderOptions{Shape: ShapeRound, SizePx: int(size)})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	margin := size * 0.12
	cx := (size + 2*margin) / 2

	// Dots: circles sin fill propio (el bg blanco y el clip llevan attrs).
	re := regexp.MustCompile(`<circle cx="([^"]+)" cy="([^"]+)" r="([^"]+)"/>`)
	dots := re.FindAllStringSubmatch(doc, -1)
	if len(dots) == 0 {
		t.Fatal("expected dot circles in round render")
	}
	for _, d := range dots {
		x, _ := strconv.ParseFloat(d[1], 64)
		y, _ := strconv.ParseFloat(d[2], 64)
		r, _ := strconv.ParseFloat(d[3], 64)
		if math.Hypot(x-cx, y-cx)+r > size/2+0.01 {
			t.Fatalf("dot at (%s,%s) r=%s sticks out of the circle", d[1], d[2], d[3])
		}
	}
}

func TestRender_FlattenOptionRemovesShapes(t *testing.T) {
	doc, err := Render(testURL, "pawtrace.app/p/ab3", RenderOptions{Shape: ShapeSquare, Flatten: true})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(doc, "<rect") {
		t.Fatal("flattened output still contains rect shapes")
	}
	if strings.Contains(doc, "transform=") {
		t.Fatal("flattened output still carries transforms")
	}
}
