package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pawtrace-qr/internal/domain/pool"
	"pawtrace-qr/internal/domain/qr"
	"pawtrace-qr/internal/platform/logger"
)

var (
	// ErrEmptySelection: la selección no matcheó ningún código. Falla el
	// batch entero, no se escribe nada.
	ErrEmptySelection = errors.New("no codes matched the selection")

	ErrInvalidInput = errors.New("invalid input")
)

type Format string

const (
	FormatSVG Format = "svg"
	FormatPDF Format = "pdf"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatSVG, "":
		return FormatSVG, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("%w: format %q", ErrInvalidInput, s)
	}
}

// Selection resuelve a una lista concreta de entradas: shortcodes explícitos
// (los not-found se saltean) o una página de no-asignadas filtrada por tag.
type Selection struct {
	TagType  pool.TagType
	ShortIDs []string
	Limit    int
}

type Options struct {
	Shape    qr.Shape
	Format   Format
	PageSize qr.PageSize
	SizePx   int
}

// Manifest acompaña cada export. Se genera fresco por export y solo vive
// dentro del archive descargable; nunca se persiste server-side.
type Manifest struct {
	ExportedAt    time.Time      `json:"exported_at"`
	Shape         string         `json:"shape"`
	TagTypeFilter string         `json:"tag_type_filter,omitempty"`
	Format        string         `json:"format"`
	Count         int            `json:"count"`
	Codes         []ManifestCode `json:"codes"`
}

type ManifestCode struct {
	ShortID  string `json:"short_id"`
	TagType  string `json:"tag_type"`
	Filename string `json:"filename"`
}

type Service struct {
	repo    pool.Repository
	baseURL string
	log     logger.Logger
	now     func() time.Time
}

func NewService(repo pool.Repository, baseURL string, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:    repo,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
		now:     time.Now,
	}
}

// TargetURL es el payload que se codifica en la matriz del QR.
func (s *Service) TargetURL(shortID string) string {
	return s.baseURL + "/p/" + shortID
}

// ExportBatch renderiza la selección y la empaqueta en un zip con un archivo
// por código ({tag_type}-{short_id}.{ext}) más manifest.json. Los filenames
// son únicos porque short_id es único global.
func (s *Service) ExportBatch(ctx context.Context, sel Selection, opts Options) ([]byte, error) {
	entries, err := s.resolve(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrEmptySelection
	}
	if opts.Shape == "" {
		opts.Shape = ShapeDefault
	}
	if opts.Format == "" {
		opts.Format = FormatSVG
	}
	if opts.SizePx <= 0 {
		opts.SizePx = 512
	}

	manifest := Manifest{
		ExportedAt:    s.now().UTC(),
		Shape:         string(opts.Shape),
		TagTypeFilter: string(sel.TagType),
		Format:        string(opts.Format),
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, ext, err := s.renderOne(e, opts)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", e.ShortID, err)
		}

		filename := fmt.Sprintf("%s-%s.%s", e.TagType, e.ShortID, ext)
		w, err := zw.Create(filename)
		if err != nil {
			return nil, fmt.Errorf("export: archive: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("export: archive: %w", err)
		}

		manifest.Codes = append(manifest.Codes, ManifestCode{
			ShortID:  e.ShortID,
			TagType:  string(e.TagType),
			Filename: filename,
		})
	}

	manifest.Count = len(manifest.Codes)
	mw, err := zw.Create("manifest.json")
	if err != nil {
		return nil, fmt.Errorf("export: archive: %w", err)
	}
	enc := json.NewEncoder(mw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(manifest); err != nil {
		return nil, fmt.Errorf("export: manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("export: archive: %w", err)
	}

	s.log.Info("batch export done", map[string]any{
		"count":  manifest.Count,
		"format": manifest.Format,
		"shape":  manifest.Shape,
	})
	return buf.Bytes(), nil
}

// ExportSheet arma un solo PDF multi-página con la selección (1/2/4/6 por
// página), pensado para imprimir planchas de tags.
func (s *Service) ExportSheet(ctx context.Context, sel Selection, shape qr.Shape, page qr.PageSize, perPage int) ([]byte, error) {
	entries, err := s.resolve(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrEmptySelection
	}
	if shape == "" {
		shape = ShapeDefault
	}

	batch := make([]qr.BatchEntry, 0, len(entries))
	for _, e := range entries {
		url := s.TargetURL(e.ShortID)
		doc, err := qr.Render(url, displayLabel(url), qr.RenderOptions{Shape: shape, SizePx: 512})
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", e.ShortID, err)
		}
		batch = append(batch, qr.BatchEntry{SVG: doc, Label: e.ShortID})
	}

	return qr.MultiPagePDF(batch, qr.MultiPDFOptions{Page: page, PerPage: perPage})
}

// ShapeDefault para exports sin shape explícito.
const ShapeDefault = qr.ShapeSquare

func (s *Service) renderOne(e pool.Entry, opts Options) ([]byte, string, error) {
	url := s.TargetURL(e.ShortID)
	doc, err := qr.Render(url, displayLabel(url), qr.RenderOptions{Shape: opts.Shape, SizePx: opts.SizePx})
	if err != nil {
		return nil, "", err
	}

	switch opts.Format {
	case FormatSVG:
		flat, err := qr.Flatten(doc, true)
		if err != nil {
			return nil, "", err
		}
		return []byte(flat), "svg", nil
	case FormatPDF:
		pdfBytes, err := qr.SinglePagePDF(doc, qr.SinglePDFOptions{Page: opts.PageSize})
		if err != nil {
			return nil, "", err
		}
		return pdfBytes, "pdf", nil
	default:
		return nil, "", fmt.Errorf("%w: format %q", ErrInvalidInput, opts.Format)
	}
}

func (s *Service) resolve(ctx context.Context, sel Selection) ([]pool.Entry, error) {
	if len(sel.ShortIDs) > 0 {
		out := make([]pool.Entry, 0, len(sel.ShortIDs))
		seen := map[string]bool{}
		for _, id := range sel.ShortIDs {
			id = strings.TrimSpace(id)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			e, err := s.repo.GetByShortID(ctx, id)
			if errors.Is(err, pool.ErrNotFound) {
				// not-found explícitos se saltean, no abortan el batch
				s.log.Warn("export: short id not found, skipping", map[string]any{"short_id": id})
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	}

	limit := sel.Limit
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListUnassigned(ctx, sel.TagType, limit)
}

// Lookup expone el lookup de entradas para los downloads individuales.
func (s *Service) Lookup(ctx context.Context, shortID string) (pool.Entry, error) {
	return s.repo.GetByShortID(ctx, strings.TrimSpace(shortID))
}

// SaveRasterURL persiste la URL del raster cacheado en object storage.
func (s *Service) SaveRasterURL(ctx context.Context, shortID, url string) error {
	return s.repo.SetQRURL(ctx, shortID, url)
}

// displayLabel: la URL sin scheme, que es lo que se imprime bajo el QR.
func displayLabel(url string) string {
	for _, p := range []string{"https://", "http://"} {
		if strings.HasPrefix(url, p) {
			return strings.TrimPrefix(url, p)
		}
	}
	return url
}
