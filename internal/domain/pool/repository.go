package pool

import (
	"context"
	"errors"
)

var (
	// ErrDuplicateShortID: violación del unique constraint sobre short_id.
	// Señal esperada y recuperable durante la asignación (se reintenta con
	// otro candidato); nunca llega al caller final.
	ErrDuplicateShortID = errors.New("duplicate short id")

	ErrNotFound        = errors.New("pool entry not found")
	ErrAlreadyAssigned = errors.New("pool entry already assigned")
	ErrNotAssigned     = errors.New("pool entry not assigned")
	ErrNoState         = errors.New("pool state not initialized")
)

type Repository interface {
	// Insert crea una entrada nueva. Devuelve ErrDuplicateShortID si el
	// short_id ya existe (la base es la autoridad de unicidad).
	Insert(ctx context.Context, e Entry) error

	GetByShortID(ctx context.Context, shortID string) (Entry, error)

	// ListUnassigned devuelve hasta limit entradas disponibles, filtradas
	// por tag si tag != "". Orden estable por created_at asc.
	ListUnassigned(ctx context.Context, tag TagType, limit int) ([]Entry, error)

	CountUnassigned(ctx context.Context) (int, error)
	CountTotal(ctx context.Context) (int, error)

	// Assign reclama una entrada libre para un pet (set pet_id atómico).
	Assign(ctx context.Context, shortID, petID string) error

	// Release devuelve una entrada asignada al pool (pet_id = null).
	Release(ctx context.Context, shortID string) error

	// Reassign mueve el pet de newShortID: libera el código viejo del pet y
	// le asigna newShortID, como una sola operación (swap de dos entidades,
	// atómico en el adapter; ver nota en DESIGN.md).
	Reassign(ctx context.Context, petID, newShortID string) error

	SetQRURL(ctx context.Context, shortID, url string) error

	// GetState devuelve ErrNoState si el singleton todavía no existe.
	GetState(ctx context.Context) (State, error)
	SaveState(ctx context.Context, s State) error
}
