package qr

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// Los labels se renderizan como outlines de glyphs (<path>), no como <text>:
// así sobreviven la rasterización, el flatten y la apertura en editores
// vectoriales sin depender de fonts instaladas.

var (
	fontOnce sync.Once
	fontTTF  *sfnt.Font
	fontErr  error
)

func labelFont() (*sfnt.Font, error) {
	fontOnce.Do(func() {
		fontTTF, fontErr = sfnt.Parse(goregular.TTF)
	})
	return fontTTF, fontErr
}

type glyphOutline struct {
	d       string // path data con baseline en y=0, origen a la izquierda, y hacia abajo
	advance float64
}

// textToGlyphs convierte text en outlines a tamaño sizePx, con kerning.
// Devuelve los glyphs y el ancho total de la línea.
func textToGlyphs(text string, sizePx float64) ([]glyphOutline, float64, error) {
	f, err := labelFont()
	if err != nil {
		return nil, 0, fmt.Errorf("label font: %w", err)
	}

	var buf sfnt.Buffer
	ppem := fixed.Int26_6(math.Round(sizePx * 64))

	glyphs := make([]glyphOutline, 0, len(text))
	total := 0.0
	var prev sfnt.GlyphIndex
	havePrev := false

	for _, r := range text {
		gi, err := f.GlyphIndex(&buf, r)
		if err != nil {
			return nil, 0, fmt.Errorf("glyph index %q: %w", r, err)
		}
		if gi == 0 {
			// Glifo faltante: avanzamos medio em para no pegar los vecinos.
			glyphs = append(glyphs, glyphOutline{advance: sizePx / 2})
			total += sizePx / 2
			havePrev = false
			continue
		}

		if havePrev {
			if k, err := f.Kern(&buf, prev, gi, ppem, font.HintingNone); err == nil {
				total += f26(k)
			}
		}

		segs, err := f.LoadGlyph(&buf, gi, ppem, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("load glyph %q: %w", r, err)
		}
		adv, err := f.GlyphAdvance(&buf, gi, ppem, font.HintingNone)
		if err != nil {
			return nil, 0, fmt.Errorf("glyph advance %q: %w", r, err)
		}

		glyphs = append(glyphs, glyphOutline{
			d:       segmentsToPath(segs),
			advance: f26(adv),
		})
		total += f26(adv)
		prev = gi
		havePrev = true
	}

	return glyphs, total, nil
}

func f26(v fixed.Int26_6) float64 { return float64(v) / 64 }

func segmentsToPath(segs sfnt.Segments) string {
	if len(segs) == 0 {
		return ""
	}
	var sb strings.Builder
	open := false
	for _, seg := range segs {
		switch seg.Op {
		case sfnt.SegmentOpMoveTo:
			if open {
				sb.WriteString("Z")
			}
			fmt.Fprintf(&sb, "M%s %s", fnum(f26(seg.Args[0].X)), fnum(f26(seg.Args[0].Y)))
			open = true
		case sfnt.SegmentOpLineTo:
			fmt.Fprintf(&sb, "L%s %s", fnum(f26(seg.Args[0].X)), fnum(f26(seg.Args[0].Y)))
		case sfnt.SegmentOpQuadTo:
			fmt.Fprintf(&sb, "Q%s %s %s %s",
				fnum(f26(seg.Args[0].X)), fnum(f26(seg.Args[0].Y)),
				fnum(f26(seg.Args[1].X)), fnum(f26(seg.Args[1].Y)))
		case sfnt.SegmentOpCubeTo:
			fmt.Fprintf(&sb, "C%s %s %s %s %s %s",
				fnum(f26(seg.Args[0].X)), fnum(f26(seg.Args[0].Y)),
				fnum(f26(seg.Args[1].X)), fnum(f26(seg.Args[1].Y)),
				fnum(f26(seg.Args[2].X)), fnum(f26(seg.Args[2].Y)))
		}
	}
	if open {
		sb.WriteString("Z")
	}
	return sb.String()
}

// flatLabel arma el fragmento SVG de un label horizontal centrado en centerX
// con baseline en baselineY.
func flatLabel(text string, sizePx, centerX, baselineY float64) (string, error) {
	glyphs, total, err := textToGlyphs(text, sizePx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<g fill="#000" transform="translate(%s %s)">`, fnum(centerX-total/2), fnum(baselineY))
	x := 0.0
	for _, g := range glyphs {
		if g.d != "" {
			fmt.Fprintf(&sb, `<path transform="translate(%s 0)" d="%s"/>`, fnum(x), g.d)
		}
		x += g.advance
	}
	sb.WriteString("</g>")
	return sb.String(), nil
}

// arcLabel arma un label curvo siguiendo el círculo (cx, cy, radius),
// centrado en las 12 en punto, con la baseline sobre el arco y los glyphs
// apuntando hacia afuera. Equivale a un textPath sobre un arco, pero en
// paths puros.
func arcLabel(text string, sizePx, cx, cy, radius float64) (string, error) {
	glyphs, total, err := textToGlyphs(text, sizePx)
	if err != nil {
		return "", err
	}
	if radius <= 0 {
		return "", fmt.Errorf("arc label: radius must be positive")
	}

	var sb strings.Builder
	sb.WriteString(`<g fill="#000">`)
	// Avance medido en longitud de arco; arrancamos a -total/2 del tope.
	cum := -total / 2
	for _, g := range glyphs {
		mid := cum + g.advance/2
		theta := -math.Pi/2 + mid/radius
		px := cx + radius*math.Cos(theta)
		py := cy + radius*math.Sin(theta)
		deg := (theta + math.Pi/2) * 180 / math.Pi
		if g.d != "" {
			fmt.Fprintf(&sb, `<path transform="translate(%s %s) rotate(%s) translate(%s 0)" d="%s"/>`,
				fnum(px), fnum(py), fnum(deg), fnum(-g.advance/2), g.d)
		}
		cum += g.advance
	}
	sb.WriteString("</g>")
	return sb.String(), nil
}
