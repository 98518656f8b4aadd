package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"pawtrace-qr/internal/domain/pool"
	"pawtrace-qr/internal/domain/qr"
	"pawtrace-qr/internal/middleware"
	"pawtrace-qr/internal/platform/logger"
	"pawtrace-qr/internal/ports/objstore"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service, store objstore.Store, log logger.Logger) {
	if log == nil {
		log = logger.Nop()
	}

	// Downloads por código (públicos: el QR ya apunta acá)
	r.Route("/codes/{shortID}", func(cr chi.Router) {
		cr.Get("/qr.svg", codeSVGHandler(svc, log))
		cr.Get("/qr.png", codePNGHandler(svc, store, log))
		cr.Get("/qr.pdf", codePDFHandler(svc, log))
	})

	// Export masivo (operador)
	r.Post("/export/batch", batchHandler(svc))
	r.Post("/export/sheet", sheetHandler(svc))
}

func renderParams(r *http.Request) (qr.Shape, int, error) {
	shape, err := qr.ParseShape(r.URL.Query().Get("shape"))
	if err != nil {
		return "", 0, err
	}
	size := 512
	if v := r.URL.Query().Get("size"); v != "" {
		size, err = strconv.Atoi(v)
		if err != nil || size <= 0 || size > 4096 {
			return "", 0, fmt.Errorf("%w: size %q", ErrInvalidInput, v)
		}
	}
	return shape, size, nil
}

// Los downloads individuales son user-facing: ante cualquier falla del
// pipeline devolvemos un aviso genérico y el detalle queda en el log.
func codeSVGHandler(svc *Service, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shortID := chi.URLParam(r, "shortID")
		shape, size, err := renderParams(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if _, err := svc.Lookup(r.Context(), shortID); err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		url := svc.TargetURL(shortID)
		doc, err := qr.Render(url, displayLabel(url), qr.RenderOptions{Shape: shape, SizePx: size})
		if err == nil && r.URL.Query().Get("flatten") == "1" {
			doc, err = qr.Flatten(doc, true)
		}
		if err != nil {
			log.Error("qr svg download failed", map[string]any{"short_id": shortID, "err": err.Error()})
			http.Error(w, "could not generate the QR download", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.svg"`, shortID))
		_, _ = w.Write([]byte(doc))
	}
}

func codePNGHandler(svc *Service, store objstore.Store, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shortID := chi.URLParam(r, "shortID")
		shape, size, err := renderParams(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if _, err := svc.Lookup(r.Context(), shortID); err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		url := svc.TargetURL(shortID)
		doc, err := qr.Render(url, displayLabel(url), qr.RenderOptions{Shape: shape, SizePx: size})
		if err != nil {
			log.Error("qr png download failed", map[string]any{"short_id": shortID, "err": err.Error()})
			http.Error(w, "could not generate the QR download", http.StatusInternalServerError)
			return
		}
		png, err := qr.Rasterize(doc, size)
		if err != nil {
			log.Error("qr png download failed", map[string]any{"short_id": shortID, "err": err.Error()})
			http.Error(w, "could not generate the QR download", http.StatusInternalServerError)
			return
		}

		// Cache en object storage: las vistas repetidas sirven la URL
		// pública sin re-renderizar. Best-effort, no bloquea el download.
		if store != nil {
			path := fmt.Sprintf("qr/%s-%s.png", shape, shortID)
			if pub, err := store.Upload(r.Context(), path, png, "image/png", true); err == nil {
				_ = svc.SaveRasterURL(r.Context(), shortID, pub)
			} else {
				log.Warn("qr raster cache upload failed", map[string]any{"short_id": shortID, "err": err.Error()})
			}
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.png"`, shortID))
		_, _ = w.Write(png)
	}
}

func codePDFHandler(svc *Service, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shortID := chi.URLParam(r, "shortID")
		shape, size, err := renderParams(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		page, err := qr.ParsePageSize(r.URL.Query().Get("page"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if _, err := svc.Lookup(r.Context(), shortID); err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		url := svc.TargetURL(shortID)
		doc, err := qr.Render(url, displayLabel(url), qr.RenderOptions{Shape: shape, SizePx: size})
		if err != nil {
			log.Error("qr pdf download failed", map[string]any{"short_id": shortID, "err": err.Error()})
			http.Error(w, "could not generate the QR download", http.StatusInternalServerError)
			return
		}
		pdfBytes, err := qr.SinglePagePDF(doc, qr.SinglePDFOptions{Page: page})
		if err != nil {
			log.Error("qr pdf download failed", map[string]any{"short_id": shortID, "err": err.Error()})
			http.Error(w, "could not generate the QR download", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, shortID))
		_, _ = w.Write(pdfBytes)
	}
}

type batchRequest struct {
	TagType  string   `json:"tag_type"`
	ShortIDs []string `json:"short_ids"`
	Limit    int      `json:"limit"`
	Shape    string   `json:"shape"`
	Format   string   `json:"format"`
	PageSize string   `json:"page_size"`
	SizePx   int      `json:"size_px"`
}

// requireOperator: el export masivo es de operador, igual que el pool.
func requireOperator(w http.ResponseWriter, r *http.Request) bool {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || claims.UserID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if !claims.Admin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// batchHandler es para la audiencia operador: los errores van con mensaje
// específico ("no codes found matching criteria" es accionable).
func batchHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireOperator(w, r) {
			return
		}

		var req batchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		shape, err := qr.ParseShape(req.Shape)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		format, err := ParseFormat(req.Format)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		page, err := qr.ParsePageSize(req.PageSize)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		archive, err := svc.ExportBatch(r.Context(),
			Selection{TagType: pool.TagType(req.TagType), ShortIDs: req.ShortIDs, Limit: req.Limit},
			Options{Shape: shape, Format: format, PageSize: page, SizePx: req.SizePx})
		if errors.Is(err, ErrEmptySelection) {
			http.Error(w, "no codes found matching criteria", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", `attachment; filename="qr-export.zip"`)
		_, _ = w.Write(archive)
	}
}

type sheetRequest struct {
	TagType  string   `json:"tag_type"`
	ShortIDs []string `json:"short_ids"`
	Limit    int      `json:"limit"`
	Shape    string   `json:"shape"`
	PageSize string   `json:"page_size"`
	PerPage  int      `json:"per_page"`
}

func sheetHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireOperator(w, r) {
			return
		}

		var req sheetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		shape, err := qr.ParseShape(req.Shape)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		page, err := qr.ParsePageSize(req.PageSize)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		pdfBytes, err := svc.ExportSheet(r.Context(),
			Selection{TagType: pool.TagType(req.TagType), ShortIDs: req.ShortIDs, Limit: req.Limit},
			shape, page, req.PerPage)
		if errors.Is(err, ErrEmptySelection) {
			http.Error(w, "no codes found matching criteria", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="qr-sheet.pdf"`)
		_, _ = w.Write(pdfBytes)
	}
}
