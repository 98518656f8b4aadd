package qr

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Flatten simplifica un documento SVG sin cambiar lo que se ve: hornea
// transforms en coordenadas, convierte shapes básicos a paths, colapsa
// grupos redundantes, saca atributos no esenciales y fusiona paths
// contiguos. Corre los passes en loop hasta que la salida queda estable
// (un pass puede habilitar otro: un bake de transform deja paths contiguos
// fusionables).
//
// Con illustratorCompatible se emite la declaración XML y el viewBox se
// preserva explícitamente para que el archivo abra bien en editores.
func Flatten(doc string, illustratorCompatible bool) (string, error) {
	root, err := parseSVG(doc)
	if err != nil {
		return "", fmt.Errorf("flatten: %w", err)
	}

	for pass := 0; pass < 5; pass++ {
		changed := false
		changed = shapesToPaths(root) || changed
		changed = bakeTransforms(root, identityMat) || changed
		changed = collapseGroups(root) || changed
		changed = stripAttrs(root) || changed
		changed = dropRedundantPaint(root, "#000", "none") || changed
		changed = mergePaths(root) || changed
		if !changed {
			break
		}
	}

	var sb strings.Builder
	if illustratorCompatible {
		sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
		ensureAttr(root, "version", "1.1")
	}
	serializeNode(&sb, root)
	return sb.String(), nil
}

// -------------------------
// Mini-DOM
// -------------------------

type svgAttr struct{ key, val string }

type svgNode struct {
	name  string
	attrs []svgAttr
	kids  []*svgNode
	text  string
}

func parseSVG(doc string) (*svgNode, error) {
	dec := xml.NewDecoder(strings.NewReader(doc))
	var root *svgNode
	var stack []*svgNode

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &svgNode{name: t.Name.Local}
			for _, a := range t.Attr {
				// xmlns lo re-emite el serializer en el root.
				if a.Name.Local == "xmlns" || a.Name.Space == "xmlns" {
					continue
				}
				n.attrs = append(n.attrs, svgAttr{key: a.Name.Local, val: a.Value})
			}
			if len(stack) == 0 {
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.kids = append(parent.kids, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				if s := strings.TrimSpace(string(t)); s != "" {
					stack[len(stack)-1].text += s
				}
			}
		}
	}
	if root == nil {
		return nil, errors.New("no root element")
	}
	return root, nil
}

func serializeNode(sb *strings.Builder, n *svgNode) {
	sb.WriteByte('<')
	sb.WriteString(n.name)
	if n.name == "svg" {
		sb.WriteString(` xmlns="http://www.w3.org/2000/svg"`)
	}
	for _, a := range n.attrs {
		fmt.Fprintf(sb, ` %s="%s"`, a.key, xmlEscape(a.val))
	}
	if len(n.kids) == 0 && n.text == "" {
		sb.WriteString("/>")
		return
	}
	sb.WriteByte('>')
	if n.text != "" {
		sb.WriteString(xmlEscape(n.text))
	}
	for _, k := range n.kids {
		serializeNode(sb, k)
	}
	sb.WriteString("</")
	sb.WriteString(n.name)
	sb.WriteByte('>')
}

func getAttr(n *svgNode, key string) (string, bool) {
	for _, a := range n.attrs {
		if a.key == key {
			return a.val, true
		}
	}
	return "", false
}

func setAttr(n *svgNode, key, val string) {
	for i := range n.attrs {
		if n.attrs[i].key == key {
			n.attrs[i].val = val
			return
		}
	}
	n.attrs = append(n.attrs, svgAttr{key: key, val: val})
}

func ensureAttr(n *svgNode, key, val string) {
	if _, ok := getAttr(n, key); !ok {
		setAttr(n, key, val)
	}
}

func delAttr(n *svgNode, key string) bool {
	for i := range n.attrs {
		if n.attrs[i].key == key {
			n.attrs = append(n.attrs[:i], n.attrs[i+1:]...)
			return true
		}
	}
	return false
}

func floatAttr(n *svgNode, key string, def float64) float64 {
	v, ok := getAttr(n, key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v), "px"), 64)
	if err != nil {
		return def
	}
	return f
}

// -------------------------
// Pass: shapes básicos -> path
// -------------------------

func shapesToPaths(n *svgNode) bool {
	changed := false
	for _, k := range n.kids {
		changed = shapesToPaths(k) || changed
	}

	var d string
	switch n.name {
	case "rect":
		x := floatAttr(n, "x", 0)
		y := floatAttr(n, "y", 0)
		w := floatAttr(n, "width", 0)
		h := floatAttr(n, "height", 0)
		rx := floatAttr(n, "rx", 0)
		ry := floatAttr(n, "ry", rx)
		if rx == 0 && ry > 0 {
			rx = ry
		}
		rx = math.Min(rx, w/2)
		ry = math.Min(ry, h/2)
		if rx > 0 {
			d = fmt.Sprintf("M%s %sL%s %sA%s %s 0 0 1 %s %sL%s %sA%s %s 0 0 1 %s %sL%s %sA%s %s 0 0 1 %s %sL%s %sA%s %s 0 0 1 %s %sZ",
				fnum(x+rx), fnum(y),
				fnum(x+w-rx), fnum(y),
				fnum(rx), fnum(ry), fnum(x+w), fnum(y+ry),
				fnum(x+w), fnum(y+h-ry),
				fnum(rx), fnum(ry), fnum(x+w-rx), fnum(y+h),
				fnum(x+rx), fnum(y+h),
				fnum(rx), fnum(ry), fnum(x), fnum(y+h-ry),
				fnum(x), fnum(y+ry),
				fnum(rx), fnum(ry), fnum(x+rx), fnum(y))
		} else {
			d = fmt.Sprintf("M%s %sL%s %sL%s %sL%s %sZ",
				fnum(x), fnum(y), fnum(x+w), fnum(y), fnum(x+w), fnum(y+h), fnum(x), fnum(y+h))
		}
		for _, key := range []string{"x", "y", "width", "height", "rx", "ry"} {
			delAttr(n, key)
		}
	case "circle":
		cx := floatAttr(n, "cx", 0)
		cy := floatAttr(n, "cy", 0)
		r := floatAttr(n, "r", 0)
		d = ellipsePath(cx, cy, r, r)
		for _, key := range []string{"cx", "cy", "r"} {
			delAttr(n, key)
		}
	case "ellipse":
		cx := floatAttr(n, "cx", 0)
		cy := floatAttr(n, "cy", 0)
		rx := floatAttr(n, "rx", 0)
		ry := floatAttr(n, "ry", 0)
		d = ellipsePath(cx, cy, rx, ry)
		for _, key := range []string{"cx", "cy", "rx", "ry"} {
			delAttr(n, key)
		}
	case "line":
		d = fmt.Sprintf("M%s %sL%s %s",
			fnum(floatAttr(n, "x1", 0)), fnum(floatAttr(n, "y1", 0)),
			fnum(floatAttr(n, "x2", 0)), fnum(floatAttr(n, "y2", 0)))
		for _, key := range []string{"x1", "y1", "x2", "y2"} {
			delAttr(n, key)
		}
	default:
		return changed
	}

	n.name = "path"
	// d primero para legibilidad del output.
	n.attrs = append([]svgAttr{{key: "d", val: d}}, n.attrs...)
	return true
}

func ellipsePath(cx, cy, rx, ry float64) string {
	return fmt.Sprintf("M%s %sA%s %s 0 1 0 %s %sA%s %s 0 1 0 %s %sZ",
		fnum(cx-rx), fnum(cy),
		fnum(rx), fnum(ry), fnum(cx+rx), fnum(cy),
		fnum(rx), fnum(ry), fnum(cx-rx), fnum(cy))
}

// -------------------------
// Pass: hornear transforms
// -------------------------

type affineMat struct{ a, b, c, d, e, f float64 }

var identityMat = affineMat{a: 1, d: 1}

func (m affineMat) isIdentity() bool {
	return m == identityMat
}

func (m affineMat) mul(o affineMat) affineMat {
	return affineMat{
		a: m.a*o.a + m.c*o.b,
		b: m.b*o.a + m.d*o.b,
		c: m.a*o.c + m.c*o.d,
		d: m.b*o.c + m.d*o.d,
		e: m.a*o.e + m.c*o.f + m.e,
		f: m.b*o.e + m.d*o.f + m.f,
	}
}

func (m affineMat) apply(x, y float64) (float64, float64) {
	return m.a*x + m.c*y + m.e, m.b*x + m.d*y + m.f
}

func parseTransform(s string) (affineMat, error) {
	m := identityMat
	s = strings.TrimSpace(s)
	for s != "" {
		open := strings.IndexByte(s, '(')
		closeIdx := strings.IndexByte(s, ')')
		if open < 0 || closeIdx < open {
			return identityMat, fmt.Errorf("malformed transform %q", s)
		}
		name := strings.TrimSpace(s[:open])
		args, err := parseFloats(s[open+1 : closeIdx])
		if err != nil {
			return identityMat, err
		}
		var t affineMat
		switch name {
		case "translate":
			tx := args[0]
			ty := 0.0
			if len(args) > 1 {
				ty = args[1]
			}
			t = affineMat{a: 1, d: 1, e: tx, f: ty}
		case "scale":
			sx := args[0]
			sy := sx
			if len(args) > 1 {
				sy = args[1]
			}
			t = affineMat{a: sx, d: sy}
		case "rotate":
			rad := args[0] * math.Pi / 180
			cos, sin := math.Cos(rad), math.Sin(rad)
			t = affineMat{a: cos, b: sin, c: -sin, d: cos}
			if len(args) == 3 {
				cx, cy := args[1], args[2]
				pre := affineMat{a: 1, d: 1, e: cx, f: cy}
				post := affineMat{a: 1, d: 1, e: -cx, f: -cy}
				t = pre.mul(t).mul(post)
			}
		case "matrix":
			if len(args) != 6 {
				return identityMat, fmt.Errorf("matrix needs 6 args, got %d", len(args))
			}
			t = affineMat{a: args[0], b: args[1], c: args[2], d: args[3], e: args[4], f: args[5]}
		default:
			return identityMat, fmt.Errorf("unsupported transform %q", name)
		}
		m = m.mul(t)
		s = strings.TrimSpace(strings.TrimPrefix(s[closeIdx+1:], ","))
	}
	return m, nil
}

func parseFloats(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, errors.New("transform without arguments")
	}
	return out, nil
}

func bakeTransforms(n *svgNode, parent affineMat) bool {
	local := parent
	changed := false

	if raw, ok := getAttr(n, "transform"); ok {
		t, err := parseTransform(raw)
		if err == nil {
			local = parent.mul(t)
			delAttr(n, "transform")
			changed = true
		}
	}

	if n.name == "path" && !local.isIdentity() {
		if raw, ok := getAttr(n, "d"); ok {
			cmds, err := parsePath(raw)
			if err == nil {
				setAttr(n, "d", serializePath(transformPath(cmds, local)))
				changed = true
			}
		}
		// stroke-width escala con la matriz (asumimos escala uniforme).
		if sw, ok := getAttr(n, "stroke-width"); ok {
			if v, err := strconv.ParseFloat(sw, 64); err == nil {
				scale := math.Sqrt(math.Abs(local.a*local.d - local.b*local.c))
				setAttr(n, "stroke-width", fnum(v*scale))
			}
		}
		local = identityMat
	}

	for _, k := range n.kids {
		changed = bakeTransforms(k, local) || changed
	}
	return changed
}

// -------------------------
// Path data
// -------------------------

type pathCmd struct {
	op   byte // M, L, Q, C, A, Z (absolutos, H/V normalizados a L)
	args []float64
}

func parsePath(d string) ([]pathCmd, error) {
	var cmds []pathCmd
	var cur, start [2]float64

	i := 0
	readFloats := func(count int) ([]float64, error) {
		out := make([]float64, 0, count)
		for len(out) < count {
			for i < len(d) && (d[i] == ' ' || d[i] == ',') {
				i++
			}
			j := i
			if j < len(d) && (d[j] == '-' || d[j] == '+') {
				j++
			}
			for j < len(d) && (d[j] == '.' || (d[j] >= '0' && d[j] <= '9') || d[j] == 'e' || d[j] == 'E') {
				j++
			}
			if j == i {
				return nil, fmt.Errorf("expected number at %d in %q", i, d)
			}
			v, err := strconv.ParseFloat(d[i:j], 64)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
			i = j
		}
		return out, nil
	}

	for i < len(d) {
		ch := d[i]
		if ch == ' ' || ch == ',' {
			i++
			continue
		}
		i++
		rel := ch >= 'a' && ch <= 'z'
		op := ch
		if rel {
			op = ch - 'a' + 'A'
		}
		switch op {
		case 'M', 'L':
			args, err := readFloats(2)
			if err != nil {
				return nil, err
			}
			if rel {
				args[0] += cur[0]
				args[1] += cur[1]
			}
			cur = [2]float64{args[0], args[1]}
			if op == 'M' {
				start = cur
			}
			cmds = append(cmds, pathCmd{op: op, args: args})
		case 'H', 'V':
			args, err := readFloats(1)
			if err != nil {
				return nil, err
			}
			x, y := cur[0], cur[1]
			if op == 'H' {
				if rel {
					args[0] += cur[0]
				}
				x = args[0]
			} else {
				if rel {
					args[0] += cur[1]
				}
				y = args[0]
			}
			cur = [2]float64{x, y}
			cmds = append(cmds, pathCmd{op: 'L', args: []float64{x, y}})
		case 'Q':
			args, err := readFloats(4)
			if err != nil {
				return nil, err
			}
			if rel {
				for j := 0; j < 4; j += 2 {
					args[j] += cur[0]
					args[j+1] += cur[1]
				}
			}
			cur = [2]float64{args[2], args[3]}
			cmds = append(cmds, pathCmd{op: 'Q', args: args})
		case 'C':
			args, err := readFloats(6)
			if err != nil {
				return nil, err
			}
			if rel {
				for j := 0; j < 6; j += 2 {
					args[j] += cur[0]
					args[j+1] += cur[1]
				}
			}
			cur = [2]float64{args[4], args[5]}
			cmds = append(cmds, pathCmd{op: 'C', args: args})
		case 'A':
			args, err := readFloats(7)
			if err != nil {
				return nil, err
			}
			if rel {
				args[5] += cur[0]
				args[6] += cur[1]
			}
			cur = [2]float64{args[5], args[6]}
			cmds = append(cmds, pathCmd{op: 'A', args: args})
		case 'Z':
			cur = start
			cmds = append(cmds, pathCmd{op: 'Z'})
		default:
			return nil, fmt.Errorf("unsupported path op %q", string(ch))
		}
	}
	return cmds, nil
}

func transformPath(cmds []pathCmd, m affineMat) []pathCmd {
	scale := math.Sqrt(math.Abs(m.a*m.d - m.b*m.c))
	angle := math.Atan2(m.b, m.a) * 180 / math.Pi

	out := make([]pathCmd, 0, len(cmds))
	for _, c := range cmds {
		nc := pathCmd{op: c.op, args: append([]float64(nil), c.args...)}
		switch c.op {
		case 'M', 'L':
			nc.args[0], nc.args[1] = m.apply(c.args[0], c.args[1])
		case 'Q':
			nc.args[0], nc.args[1] = m.apply(c.args[0], c.args[1])
			nc.args[2], nc.args[3] = m.apply(c.args[2], c.args[3])
		case 'C':
			nc.args[0], nc.args[1] = m.apply(c.args[0], c.args[1])
			nc.args[2], nc.args[3] = m.apply(c.args[2], c.args[3])
			nc.args[4], nc.args[5] = m.apply(c.args[4], c.args[5])
		case 'A':
			// Válido para escala uniforme + rotación + traslación, que es
			// todo lo que generan nuestros renderers.
			nc.args[0] = c.args[0] * scale
			nc.args[1] = c.args[1] * scale
			nc.args[2] = c.args[2] + angle
			nc.args[5], nc.args[6] = m.apply(c.args[5], c.args[6])
		}
		out = append(out, nc)
	}
	return out
}

func serializePath(cmds []pathCmd) string {
	var sb strings.Builder
	for _, c := range cmds {
		sb.WriteByte(c.op)
		for j, v := range c.args {
			if j > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(fnum(v))
		}
	}
	return sb.String()
}

// -------------------------
// Passes estructurales
// -------------------------

func collapseGroups(n *svgNode) bool {
	changed := false
	for _, k := range n.kids {
		changed = collapseGroups(k) || changed
	}

	out := make([]*svgNode, 0, len(n.kids))
	for _, k := range n.kids {
		if k.name == "g" && len(k.attrs) == 0 {
			out = append(out, k.kids...)
			changed = true
			continue
		}
		if k.name == "g" && len(k.kids) == 0 {
			changed = true
			continue
		}
		out = append(out, k)
	}
	n.kids = out
	return changed
}

func stripAttrs(n *svgNode) bool {
	changed := false
	kept := n.attrs[:0]
	for _, a := range n.attrs {
		if a.key == "class" || strings.HasPrefix(a.key, "data-") {
			changed = true
			continue
		}
		kept = append(kept, a)
	}
	n.attrs = kept
	for _, k := range n.kids {
		changed = stripAttrs(k) || changed
	}
	return changed
}

func normalizeColor(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	switch c {
	case "#000000", "black":
		return "#000"
	case "#ffffff", "white":
		return "#fff"
	}
	return c
}

// dropRedundantPaint saca fills/strokes que coinciden con lo heredado
// (el default SVG es fill negro, stroke none).
func dropRedundantPaint(n *svgNode, inheritedFill, inheritedStroke string) bool {
	changed := false

	fill := inheritedFill
	if v, ok := getAttr(n, "fill"); ok {
		nv := normalizeColor(v)
		if nv == inheritedFill {
			delAttr(n, "fill")
			changed = true
		} else {
			if nv != v {
				setAttr(n, "fill", nv)
				changed = true
			}
			fill = nv
		}
	}

	stroke := inheritedStroke
	if v, ok := getAttr(n, "stroke"); ok {
		nv := normalizeColor(v)
		if nv == inheritedStroke {
			delAttr(n, "stroke")
			delAttr(n, "stroke-width")
			changed = true
		} else {
			if nv != v {
				setAttr(n, "stroke", nv)
				changed = true
			}
			stroke = nv
		}
	}

	for _, k := range n.kids {
		changed = dropRedundantPaint(k, fill, stroke) || changed
	}
	return changed
}

// mergePaths fusiona paths hermanos contiguos con atributos idénticos
// (ignorando d). Recién rinde después del bake de transforms.
func mergePaths(n *svgNode) bool {
	changed := false
	for _, k := range n.kids {
		changed = mergePaths(k) || changed
	}

	out := make([]*svgNode, 0, len(n.kids))
	for _, k := range n.kids {
		if len(out) > 0 && k.name == "path" && out[len(out)-1].name == "path" &&
			samePathAttrs(out[len(out)-1], k) {
			prev := out[len(out)-1]
			pd, _ := getAttr(prev, "d")
			kd, _ := getAttr(k, "d")
			setAttr(prev, "d", pd+kd)
			changed = true
			continue
		}
		out = append(out, k)
	}
	n.kids = out
	return changed
}

func samePathAttrs(a, b *svgNode) bool {
	filter := func(n *svgNode) []svgAttr {
		out := make([]svgAttr, 0, len(n.attrs))
		for _, at := range n.attrs {
			if at.key == "d" {
				continue
			}
			if at.key == "id" {
				// nodos con id pueden estar referenciados; no fusionar
				return nil
			}
			out = append(out, at)
		}
		return out
	}
	fa, fb := filter(a), filter(b)
	if _, ok := getAttr(a, "id"); ok {
		return false
	}
	if _, ok := getAttr(b, "id"); ok {
		return false
	}
	if len(fa) != len(fb) {
		return false
	}
	for i := range fa {
		if fa[i] != fb[i] {
			return false
		}
	}
	return true
}
