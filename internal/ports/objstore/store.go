package objstore

import "context"

// Store es el contrato mínimo de object storage que consume este core: se
// usa para cachear el raster de cada código y que las vistas repetidas no
// re-rendericen. La implementación real (bucket hosteado) queda afuera.
type Store interface {
	// Upload sube bytes y devuelve la URL pública. Con upsert pisa el
	// objeto existente en ese path.
	Upload(ctx context.Context, path string, data []byte, contentType string, upsert bool) (string, error)
}
