package pool

import "time"

// TagType es la categoría física del tag pre-fabricado al que se imprime el QR.
// @Enum dog, cat
type TagType string

const (
	TagDog TagType = "dog"
	TagCat TagType = "cat"
)

func (t TagType) Valid() bool {
	return t == TagDog || t == TagCat
}

// Entry es un short code pre-generado. Mientras PetID sea nil está "en el
// pool" (disponible); una vez asignado sale del set disponible y no se borra.
type Entry struct {
	ID      string
	ShortID string
	TagType TagType

	// PetID es opaco para este subsistema: el CRUD de mascotas vive afuera.
	PetID *string

	// QRURL: raster cacheado en object storage (opcional, puede estar vacío).
	QRURL string

	CreatedAt  time.Time
	AssignedAt *time.Time
}

func (e Entry) Assigned() bool {
	return e.PetID != nil
}

// State es el bookkeeping de generación adaptativa (fila singleton).
// CurrentLength solo crece: refleja presión de agotamiento del keyspace.
type State struct {
	CurrentLength int
	CodesAtLength int
	UpdatedAt     time.Time
}

// Status es la foto operacional del pool que consume el dashboard/CLI.
type Status struct {
	Total         int  `json:"total"`
	Unassigned    int  `json:"unassigned"`
	CurrentLength int  `json:"current_length"`
	CodesAtLength int  `json:"codes_at_length"`
	NeedsRefill   bool `json:"needs_refill"`
}
