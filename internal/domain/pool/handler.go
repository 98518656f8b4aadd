package pool

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"pawtrace-qr/internal/middleware"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	// Surface público: es la URL que va dentro del QR.
	r.Get("/p/{shortID}", resolveHandler(svc))

	// Operaciones de pool (admin/operador)
	r.Route("/pool", func(pr chi.Router) {
		pr.Get("/status", statusHandler(svc))
		pr.Post("/replenish", replenishHandler(svc))
		pr.Post("/allocate", allocateHandler(svc))
		pr.Post("/assign", assignHandler(svc))
		pr.Post("/reassign", reassignHandler(svc))
	})
}

type entryResponse struct {
	ShortID    string     `json:"short_id"`
	TagType    string     `json:"tag_type"`
	PetID      *string    `json:"pet_id,omitempty"`
	QRURL      string     `json:"qr_url,omitempty"`
	Assigned   bool       `json:"assigned"`
	CreatedAt  time.Time  `json:"created_at"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`
}

func toEntryResponse(e Entry) entryResponse {
	return entryResponse{
		ShortID:    e.ShortID,
		TagType:    string(e.TagType),
		PetID:      e.PetID,
		QRURL:      e.QRURL,
		Assigned:   e.Assigned(),
		CreatedAt:  e.CreatedAt,
		AssignedAt: e.AssignedAt,
	}
}

func resolveHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := svc.Resolve(r.Context(), chi.URLParam(r, "shortID"))
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toEntryResponse(e))
	}
}

func statusHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireOperator(w, r) {
			return
		}
		st, err := svc.Status(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

type replenishRequest struct {
	TagType   string `json:"tag_type"`
	Target    int    `json:"target"`
	BatchSize int    `json:"batch_size"`
}

func replenishHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireOperator(w, r) {
			return
		}

		var req replenishRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		res, err := svc.Replenish(r.Context(), TagType(req.TagType), req.Target, req.BatchSize)
		if errors.Is(err, ErrInvalidInput) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			// audiencia operador: mensaje específico, puede accionar
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

type allocateRequest struct {
	PetID   string `json:"pet_id"`
	TagType string `json:"tag_type"`
}

func allocateHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireOperator(w, r) {
			return
		}

		var req allocateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		e, err := svc.AllocateForPet(r.Context(), req.PetID, TagType(req.TagType))
		if errors.Is(err, ErrInvalidInput) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			http.Error(w, "could not generate a unique short id", http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusCreated, toEntryResponse(e))
	}
}

type assignRequest struct {
	ShortID string `json:"short_id"`
	PetID   string `json:"pet_id"`
}

func assignHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireOperator(w, r) {
			return
		}

		var req assignRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		e, err := svc.Assign(r.Context(), req.ShortID, req.PetID)
		switch {
		case errors.Is(err, ErrInvalidInput):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrNotFound):
			http.Error(w, "short id not found", http.StatusNotFound)
		case errors.Is(err, ErrAlreadyAssigned):
			http.Error(w, "short id already claimed", http.StatusConflict)
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		default:
			writeJSON(w, http.StatusOK, toEntryResponse(e))
		}
	}
}

type reassignRequest struct {
	PetID      string `json:"pet_id"`
	NewShortID string `json:"new_short_id"`
}

func reassignHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireOperator(w, r) {
			return
		}

		var req reassignRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		e, err := svc.Reassign(r.Context(), req.PetID, req.NewShortID)
		switch {
		case errors.Is(err, ErrInvalidInput):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrNotFound):
			http.Error(w, "short id not found", http.StatusNotFound)
		case errors.Is(err, ErrAlreadyAssigned):
			http.Error(w, "short id already claimed", http.StatusConflict)
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		default:
			writeJSON(w, http.StatusOK, toEntryResponse(e))
		}
	}
}

// requireOperator: las operaciones de pool son de operador. Un token activo
// de usuario final alcanza para autenticarse pero no para operar el pool.
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

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
