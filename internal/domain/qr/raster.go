package qr

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strconv"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Rasterize dibuja el documento SVG en un bitmap PNG, escalado para que la
// dimensión mayor llegue a targetPx. Pinta fondo blanco primero: el SVG
// puede tener zonas transparentes y para imprimir/mostrar se espera blanco
// opaco.
func Rasterize(svg string, targetPx int) ([]byte, error) {
	if targetPx <= 0 {
		targetPx = 512
	}

	icon, err := oksvg.ReadIconStream(strings.NewReader(svg))
	if err != nil {
		return nil, fmt.Errorf("rasterize: parse svg: %w", err)
	}

	w, h := docDims(svg)
	scale := float64(targetPx) / math.Max(w, h)
	outW := int(math.Round(w * scale))
	outH := int(math.Round(h * scale))
	if outW < 1 {
		outW = 1
	}
	if outH < 1 {
		outH = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, outW, outH))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	icon.SetTarget(0, 0, float64(outW), float64(outH))
	scanner := rasterx.NewScannerGV(outW, outH, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(outW, outH, scanner), 1.0)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("rasterize: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// docDims devuelve las dimensiones del documento: width/height del root,
// fallback al viewBox, fallback 512 (documentos sin dimensiones declaradas).
func docDims(svg string) (float64, float64) {
	var w, h float64
	var viewBox string

	dec := xml.NewDecoder(strings.NewReader(svg))
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Local == "svg" {
			for _, a := range se.Attr {
				switch a.Name.Local {
				case "width":
					w = parseLength(a.Value)
				case "height":
					h = parseLength(a.Value)
				case "viewBox":
					viewBox = a.Value
				}
			}
		}
		break
	}

	if (w <= 0 || h <= 0) && viewBox != "" {
		if parts, err := parseFloats(viewBox); err == nil && len(parts) == 4 {
			w, h = parts[2], parts[3]
		}
	}
	if w <= 0 || h <= 0 {
		w, h = 512, 512
	}
	return w, h
}

func parseLength(s string) float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
