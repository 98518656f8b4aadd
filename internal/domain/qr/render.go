package qr

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// Shape es el estilo visual del QR.
// @Enum square, round
type Shape string

const (
	ShapeSquare Shape = "square"
	ShapeRound  Shape = "round"
)

func ParseShape(s string) (Shape, error) {
	switch Shape(strings.ToLower(strings.TrimSpace(s))) {
	case ShapeSquare, "":
		return ShapeSquare, nil
	case ShapeRound:
		return ShapeRound, nil
	default:
		return "", fmt.Errorf("%w: shape %q", ErrInvalidOptions, s)
	}
}

var ErrInvalidOptions = errors.New("invalid render options")

type RenderOptions struct {
	Shape   Shape
	SizePx  int  // lado del área de módulos (default 512)
	Flatten bool // aplicar Flatten antes de devolver
}

// skip2 agrega quiet zone de 4 módulos alrededor de la matriz.
const quietZone = 4

// Render compone un documento SVG con la matriz QR para targetURL más un
// label con displayText. Square usa nivel de corrección M; round usa H: el
// recorte circular y el redondeo de módulos comen área escaneable y la
// redundancia extra lo compensa (requisito duro, no cosmético).
func Render(targetURL, displayText string, opts RenderOptions) (string, error) {
	if strings.TrimSpace(targetURL) == "" {
		return "", fmt.Errorf("%w: empty target url", ErrInvalidOptions)
	}
	if opts.SizePx <= 0 {
		opts.SizePx = 512
	}
	if opts.Shape == "" {
		opts.Shape = ShapeSquare
	}

	var (
		doc string
		err error
	)
	switch opts.Shape {
	case ShapeSquare:
		doc, err = renderSquare(targetURL, displayText, opts.SizePx)
	case ShapeRound:
		doc, err = renderRound(targetURL, displayText, opts.SizePx)
	default:
		return "", fmt.Errorf("%w: shape %q", ErrInvalidOptions, opts.Shape)
	}
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}

	if opts.Flatten {
		doc, err = Flatten(doc, false)
		if err != nil {
			return "", err
		}
	}
	return doc, nil
}

func renderSquare(targetURL, displayText string, sizePx int) (string, error) {
	code, err := qrcode.New(targetURL, qrcode.Medium)
	if err != nil {
		return "", err
	}
	bm := code.Bitmap()
	n := len(bm)
	if n == 0 {
		return "", errors.New("empty qr matrix")
	}

	size := float64(sizePx)
	pad := 16.0
	textSize := size * 0.055
	if textSize < 14 {
		textSize = 14
	}
	textBand := textSize * 1.8

	w := size + 2*pad
	h := w + textBand
	scale := size / float64(n)

	var sb strings.Builder
	fmt.Fprintf(&sb, `<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`,
		fnum(w), fnum(h), fnum(w), fnum(h))
	fmt.Fprintf(&sb, `<title>%s</title>`, xmlEscape(displayText))
	fmt.Fprintf(&sb, `<rect width="%s" height="%s" fill="#fff"/>`, fnum(w), fnum(h))

	// Matriz en coordenadas absolutas, igual que el round: oksvg descarta
	// los scale() de grupo, así que el documento no puede depender de un
	// transform para llevar los módulos a sizePx.
	sb.WriteString(`<g fill="#000">`)
	for y := range bm {
		for x := range bm[y] {
			if bm[y][x] {
				fmt.Fprintf(&sb, `<rect x="%s" y="%s" width="%s" height="%s"/>`,
					fnum(pad+float64(x)*scale), fnum(pad+float64(y)*scale), fnum(scale), fnum(scale))
			}
		}
	}
	sb.WriteString("</g>")

	label, err := flatLabel(displayText, textSize, w/2, size+2*pad+textSize)
	if err != nil {
		return "", err
	}
	sb.WriteString(label)
	sb.WriteString("</svg>")
	return sb.String(), nil
}

func renderRound(targetURL, displayText string, sizePx int) (string, error) {
	code, err := qrcode.New(targetURL, qrcode.Highest)
	if err != nil {
		return "", err
	}
	bm := code.Bitmap()
	n := len(bm)
	dataN := n - 2*quietZone
	if dataN <= 0 {
		return "", errors.New("empty qr matrix")
	}

	size := float64(sizePx)  // diámetro del círculo
	margin := size * 0.12    // banda para el texto curvo
	w := size + 2*margin     // bounding box cuadrado (w == h)
	cx := w / 2
	cy := w / 2
	// La matriz va inscripta en el círculo: si el cuadrado tocara el borde,
	// el clip circular se comería los corner markers.
	qrSide := size * 0.70
	module := qrSide / float64(n)
	offset := margin + (size-qrSide)/2
	textSize := size * 0.05
	if textSize < 12 {
		textSize = 12
	}
	arcRadius := size/2 + margin*0.45

	var sb strings.Builder
	fmt.Fprintf(&sb, `<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`,
		fnum(w), fnum(w), fnum(w), fnum(w))
	fmt.Fprintf(&sb, `<title>%s</title>`, xmlEscape(displayText))
	fmt.Fprintf(&sb, `<defs><clipPath id="qrclip"><circle cx="%s" cy="%s" r="%s"/></clipPath></defs>`,
		fnum(cx), fnum(cy), fnum(size/2))
	fmt.Fprintf(&sb, `<circle cx="%s" cy="%s" r="%s" fill="#fff"/>`, fnum(cx), fnum(cy), fnum(size/2))

	fmt.Fprintf(&sb, `<g fill="#000" clip-path="url(#qrclip)">`)
	for y := range bm {
		for x := range bm[y] {
			if !bm[y][x] {
				continue
			}
			dx, dy := x-quietZone, y-quietZone
			if inFinder(dx, dy, dataN) {
				continue
			}
			dotX := offset + (float64(x)+0.5)*module
			dotY := offset + (float64(y)+0.5)*module
			// Cull explícito además del clip: los rasterizadores que no
			// soportan clipPath tienen que ver lo mismo que el browser.
			if math.Hypot(dotX-cx, dotY-cy)+module*0.42 > size/2 {
				continue
			}
			// Módulos como dots: r < módulo/2 para que respiren.
			fmt.Fprintf(&sb, `<circle cx="%s" cy="%s" r="%s"/>`,
				fnum(dotX), fnum(dotY), fnum(module*0.42))
		}
	}
	sb.WriteString("</g>")

	// Corner markers redondeados (anillo 7x7 + centro 3x3).
	for _, p := range finderOrigins(dataN) {
		ox := offset + float64(p[0]+quietZone)*module
		oy := offset + float64(p[1]+quietZone)*module
		fmt.Fprintf(&sb, `<rect x="%s" y="%s" width="%s" height="%s" rx="%s" fill="none" stroke="#000" stroke-width="%s"/>`,
			fnum(ox+module*0.5), fnum(oy+module*0.5), fnum(module*6), fnum(module*6), fnum(module*2), fnum(module))
		fmt.Fprintf(&sb, `<rect x="%s" y="%s" width="%s" height="%s" rx="%s" fill="#000"/>`,
			fnum(ox+module*2), fnum(oy+module*2), fnum(module*3), fnum(module*3), fnum(module))
	}

	label, err := arcLabel(displayText, textSize, cx, cy, arcRadius)
	if err != nil {
		return "", err
	}
	sb.WriteString(label)
	sb.WriteString("</svg>")
	return sb.String(), nil
}

// inFinder: los tres patrones de posicionamiento de 7x7 en coordenadas de
// datos (sin quiet zone).
func inFinder(dx, dy, dataN int) bool {
	if dx < 0 || dy < 0 || dx >= dataN || dy >= dataN {
		return false
	}
	return (dx < 7 && dy < 7) ||
		(dx >= dataN-7 && dy < 7) ||
		(dx < 7 && dy >= dataN-7)
}

func finderOrigins(dataN int) [3][2]int {
	return [3][2]int{{0, 0}, {dataN - 7, 0}, {0, dataN - 7}}
}

// fnum formatea un float sin ceros de cola, con dos decimales máximo.
func fnum(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// xmlEscape escapa texto derivado de datos antes de incrustarlo en el SVG.
// El display text suele ser el short code (generado por el sistema), pero
// esta función no lo asume.
func xmlEscape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}
