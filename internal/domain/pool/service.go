package pool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pawtrace-qr/internal/domain/shortcode"
	"pawtrace-qr/internal/platform/logger"
	"pawtrace-qr/internal/platform/metrics"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput = errors.New("invalid input")
)

type Config struct {
	// InitialLength: longitud de arranque cuando no hay State persistido.
	InitialLength int

	// RefillThreshold: por debajo de esto el pool "necesita refill".
	RefillThreshold int

	// BatchSize default para Replenish cuando el caller no especifica.
	BatchSize int

	// EscalationCeiling: válvula de seguridad. Después de generar esta
	// cantidad de códigos en una misma longitud escalamos igual, haya o no
	// colisiones, para que los ids no se queden mínimos con el espacio lleno.
	// Es una heurística configurable, no una medición de ocupación real.
	EscalationCeiling int

	MaxAttemptsPerLength int
	MaxLengthEscalations int
}

func (c Config) withDefaults() Config {
	if c.InitialLength <= 0 {
		c.InitialLength = 3
	}
	if c.RefillThreshold <= 0 {
		c.RefillThreshold = 100
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.EscalationCeiling <= 0 {
		c.EscalationCeiling = 1000
	}
	if c.MaxAttemptsPerLength <= 0 {
		c.MaxAttemptsPerLength = 10
	}
	if c.MaxLengthEscalations <= 0 {
		c.MaxLengthEscalations = 5
	}
	return c
}

type Service struct {
	repo  Repository
	alloc *shortcode.Allocator
	cfg   Config
	log   logger.Logger
	mets  *metrics.Metrics
	now   func() time.Time
}

func NewService(repo Repository, cfg Config, log logger.Logger, mets *metrics.Metrics) *Service {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		repo:  repo,
		alloc: shortcode.NewAllocator(cfg.MaxAttemptsPerLength, cfg.MaxLengthEscalations),
		cfg:   cfg,
		log:   log,
		mets:  mets,
		now:   time.Now,
	}
}

type ReplenishResult struct {
	Generated       int `json:"generated"`
	FinalUnassigned int `json:"final_unassigned"`
	FinalLength     int `json:"final_length"`
	CodesAtLength   int `json:"codes_at_length"`
}

// Replenish genera entradas nuevas hasta que el count de no-asignadas llegue
// a target. Los batches son estrictamente secuenciales: el batch N+1 no
// arranca hasta persistir el N (el bookkeeping de CodesAtLength se correría
// si no). Si la persistencia falla a mitad de camino, el progreso ya
// insertado queda (at-least-once, idempotente por unicidad) y el error sube.
func (s *Service) Replenish(ctx context.Context, tag TagType, target, batchSize int) (ReplenishResult, error) {
	if target <= 0 || !tag.Valid() {
		return ReplenishResult{}, ErrInvalidInput
	}
	if batchSize <= 0 {
		batchSize = s.cfg.BatchSize
	}

	st, err := s.loadState(ctx)
	if err != nil {
		return ReplenishResult{}, err
	}

	unassigned, err := s.repo.CountUnassigned(ctx)
	if err != nil {
		return ReplenishResult{}, err
	}
	if unassigned >= target {
		return ReplenishResult{Generated: 0, FinalUnassigned: unassigned, FinalLength: st.CurrentLength, CodesAtLength: st.CodesAtLength}, nil
	}

	needed := target - unassigned
	generated := 0

	for generated < needed {
		n := min(batchSize, needed-generated)

		for i := 0; i < n; i++ {
			code, err := s.mintOne(ctx, tag, st.CurrentLength)
			if err != nil {
				// progreso parcial ya persistido se conserva; solo
				// persistimos el state hasta donde llegamos.
				_ = s.saveState(ctx, st)
				return ReplenishResult{Generated: generated, FinalUnassigned: unassigned + generated, FinalLength: st.CurrentLength, CodesAtLength: st.CodesAtLength},
					fmt.Errorf("replenish: %w", err)
			}

			// Si el allocator escaló por colisiones, el state lo sigue.
			if len(code) > st.CurrentLength {
				st.CurrentLength = len(code)
				st.CodesAtLength = 0
			}
			st.CodesAtLength++
			generated++
			s.mets.CodeGenerated()

			// Escalación defensiva aunque no haya colisiones.
			if st.CodesAtLength >= s.cfg.EscalationCeiling {
				st.CurrentLength++
				st.CodesAtLength = 0
				s.log.Info("defensive length escalation", map[string]any{
					"new_length": st.CurrentLength,
				})
			}
		}

		if err := s.saveState(ctx, st); err != nil {
			return ReplenishResult{Generated: generated, FinalUnassigned: unassigned + generated, FinalLength: st.CurrentLength, CodesAtLength: st.CodesAtLength},
				fmt.Errorf("replenish: persist state: %w", err)
		}

		s.log.Info("pool batch persisted", map[string]any{
			"generated": generated,
			"needed":    needed,
			"length":    st.CurrentLength,
		})
	}

	finalUnassigned, err := s.repo.CountUnassigned(ctx)
	if err != nil {
		finalUnassigned = unassigned + generated
	}
	s.mets.SetUnassigned(finalUnassigned)
	s.mets.SetCurrentLength(st.CurrentLength)

	return ReplenishResult{Generated: generated, FinalUnassigned: finalUnassigned, FinalLength: st.CurrentLength, CodesAtLength: st.CodesAtLength}, nil
}

// mintOne inserta una entrada nueva con la estrategia insert-and-catch: el
// unique violation de la base es la señal de colisión y se reintenta.
func (s *Service) mintOne(ctx context.Context, tag TagType, length int) (string, error) {
	return s.alloc.AllocateWith(ctx, length, func(ctx context.Context, candidate string) (bool, error) {
		err := s.repo.Insert(ctx, Entry{
			ID:        uuid.NewString(),
			ShortID:   candidate,
			TagType:   tag,
			CreatedAt: s.now(),
		})
		if errors.Is(err, ErrDuplicateShortID) {
			s.mets.Collision()
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	})
}

// AllocateForPet es el camino por-mascota: inserta la entrada ya asignada,
// con longitud adaptativa arrancando en el CurrentLength vigente.
func (s *Service) AllocateForPet(ctx context.Context, petID string, tag TagType) (Entry, error) {
	petID = strings.TrimSpace(petID)
	if petID == "" || !tag.Valid() {
		return Entry{}, ErrInvalidInput
	}

	st, err := s.loadState(ctx)
	if err != nil {
		return Entry{}, err
	}

	var created Entry
	_, err = s.alloc.AllocateWith(ctx, st.CurrentLength, func(ctx context.Context, candidate string) (bool, error) {
		now := s.now()
		pid := petID
		e := Entry{
			ID:         uuid.NewString(),
			ShortID:    candidate,
			TagType:    tag,
			PetID:      &pid,
			CreatedAt:  now,
			AssignedAt: &now,
		}
		if err := s.repo.Insert(ctx, e); err != nil {
			if errors.Is(err, ErrDuplicateShortID) {
				s.mets.Collision()
				return false, nil
			}
			return false, err
		}
		created = e
		return true, nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.mets.CodeGenerated()
	return created, nil
}

// Assign reclama una entrada pre-generada del pool para un pet (camino admin).
func (s *Service) Assign(ctx context.Context, shortID, petID string) (Entry, error) {
	shortID = strings.TrimSpace(shortID)
	petID = strings.TrimSpace(petID)
	if shortID == "" || petID == "" {
		return Entry{}, ErrInvalidInput
	}
	if err := s.repo.Assign(ctx, shortID, petID); err != nil {
		return Entry{}, err
	}
	return s.repo.GetByShortID(ctx, shortID)
}

// Reassign: swap administrativo. El código viejo del pet queda huérfano
// (vuelve al pool) y newShortID pasa a ser suyo, en una sola operación.
func (s *Service) Reassign(ctx context.Context, petID, newShortID string) (Entry, error) {
	petID = strings.TrimSpace(petID)
	newShortID = strings.TrimSpace(newShortID)
	if petID == "" || newShortID == "" {
		return Entry{}, ErrInvalidInput
	}
	if err := s.repo.Reassign(ctx, petID, newShortID); err != nil {
		return Entry{}, err
	}
	return s.repo.GetByShortID(ctx, newShortID)
}

// Resolve es el lookup del surface público /p/{shortID}.
func (s *Service) Resolve(ctx context.Context, shortID string) (Entry, error) {
	shortID = strings.TrimSpace(shortID)
	if shortID == "" {
		return Entry{}, ErrNotFound
	}
	return s.repo.GetByShortID(ctx, shortID)
}

func (s *Service) SetQRURL(ctx context.Context, shortID, url string) error {
	return s.repo.SetQRURL(ctx, shortID, url)
}

func (s *Service) ListUnassigned(ctx context.Context, tag TagType, limit int) ([]Entry, error) {
	return s.repo.ListUnassigned(ctx, tag, limit)
}

// Status es una propiedad computada: se re-evalúa on demand (el dashboard
// hace polling), no hay trigger por eventos acá.
func (s *Service) Status(ctx context.Context) (Status, error) {
	total, err := s.repo.CountTotal(ctx)
	if err != nil {
		return Status{}, err
	}
	unassigned, err := s.repo.CountUnassigned(ctx)
	if err != nil {
		return Status{}, err
	}
	st, err := s.loadState(ctx)
	if err != nil {
		return Status{}, err
	}

	s.mets.SetUnassigned(unassigned)
	s.mets.SetCurrentLength(st.CurrentLength)

	return Status{
		Total:         total,
		Unassigned:    unassigned,
		CurrentLength: st.CurrentLength,
		CodesAtLength: st.CodesAtLength,
		NeedsRefill:   unassigned < s.cfg.RefillThreshold,
	}, nil
}

func (s *Service) loadState(ctx context.Context) (State, error) {
	st, err := s.repo.GetState(ctx)
	if errors.Is(err, ErrNoState) {
		return State{CurrentLength: s.cfg.InitialLength}, nil
	}
	if err != nil {
		return State{}, err
	}
	if st.CurrentLength <= 0 {
		st.CurrentLength = s.cfg.InitialLength
	}
	return st, nil
}

func (s *Service) saveState(ctx context.Context, st State) error {
	st.UpdatedAt = s.now()
	return s.repo.SaveState(ctx, st)
}
