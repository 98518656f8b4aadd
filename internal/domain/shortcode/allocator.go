package shortcode

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAllocationExhausted: se agotó el presupuesto de intentos y
	// escalaciones sin encontrar un código libre.
	ErrAllocationExhausted = errors.New("short id allocation exhausted")
)

// ExistsFunc responde si un candidato ya existe (camino check-then-insert,
// usado por el preload masivo donde la carrera no importa tanto).
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// ClaimFunc intenta reclamar un candidato de forma atómica (insert directo).
// ok=false significa colisión (unique violation en la base) y se reintenta
// con otro candidato; cualquier otro error corta la asignación.
// Es la variante preferida bajo concurrencia: la base es la autoridad.
type ClaimFunc func(ctx context.Context, candidate string) (ok bool, err error)

// Allocator genera candidatos y escala la longitud cuando hay demasiadas
// colisiones seguidas. No toca persistencia: todo pasa por el callback.
type Allocator struct {
	MaxAttemptsPerLength int
	MaxLengthEscalations int

	gen func(int) string // seam para tests
}

func NewAllocator(maxAttemptsPerLength, maxLengthEscalations int) *Allocator {
	if maxAttemptsPerLength <= 0 {
		maxAttemptsPerLength = 10
	}
	if maxLengthEscalations < 0 {
		maxLengthEscalations = 0
	}
	return &Allocator{
		MaxAttemptsPerLength: maxAttemptsPerLength,
		MaxLengthEscalations: maxLengthEscalations,
		gen:                  Generate,
	}
}

// Allocate corre el loop check-then-insert: genera, pregunta si existe y
// devuelve el primer candidato libre. El insert real queda a cargo del
// caller (que igual debe tolerar la carrera vía unique constraint).
func (a *Allocator) Allocate(ctx context.Context, initialLength int, exists ExistsFunc) (string, error) {
	return a.AllocateWith(ctx, initialLength, func(ctx context.Context, candidate string) (bool, error) {
		found, err := exists(ctx, candidate)
		if err != nil {
			return false, err
		}
		return !found, nil
	})
}

// AllocateWith corre el loop insert-and-catch: claim decide. Empieza en
// initialLength y escala +1 cada vez que se agotan los intentos en una
// longitud, hasta MaxLengthEscalations escalaciones en total.
func (a *Allocator) AllocateWith(ctx context.Context, initialLength int, claim ClaimFunc) (string, error) {
	if initialLength <= 0 {
		initialLength = 1
	}
	length := initialLength
	for escalation := 0; escalation <= a.MaxLengthEscalations; escalation++ {
		for attempt := 0; attempt < a.MaxAttemptsPerLength; attempt++ {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			candidate := a.gen(length)
			ok, err := claim(ctx, candidate)
			if err != nil {
				return "", err
			}
			if ok {
				return candidate, nil
			}
		}
		length++
	}
	return "", fmt.Errorf("%w: tried lengths %d..%d", ErrAllocationExhausted, initialLength, length-1)
}
