package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"pawtrace-qr/internal/domain/pool"

	"github.com/jackc/pgx/v5/pgconn"
)

type PoolRepo struct {
	db *sql.DB
}

func NewPoolRepo(db *sql.DB) *PoolRepo {
	return &PoolRepo{db: db}
}

// uniqueViolation: 23505 es el code de unique_violation en Postgres. Es la
// señal de colisión que el allocator espera, no un error fatal.
func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PoolRepo) Insert(ctx context.Context, e pool.Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pool_entries (
			id, short_id, tag_type, pet_id, qr_url,
			created_at, assigned_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		e.ID,
		e.ShortID,
		e.TagType,
		e.PetID,
		e.QRURL,
		e.CreatedAt,
		e.AssignedAt,
	)
	if uniqueViolation(err) {
		return pool.ErrDuplicateShortID
	}
	return err
}

func (r *PoolRepo) GetByShortID(ctx context.Context, shortID string) (pool.Entry, error) {
	shortID = strings.TrimSpace(shortID)
	if shortID == "" {
		return pool.Entry{}, pool.ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT id, short_id, tag_type, pet_id, qr_url, created_at, assigned_at
		FROM pool_entries
		WHERE short_id = $1
	`, shortID)

	return scanEntry(row)
}

func (r *PoolRepo) ListUnassigned(ctx context.Context, tag pool.TagType, limit int) ([]pool.Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, short_id, tag_type, pet_id, qr_url, created_at, assigned_at
		FROM pool_entries
		WHERE pet_id IS NULL
	`
	args := []any{}
	if tag != "" {
		query += ` AND tag_type = $1 ORDER BY created_at ASC LIMIT $2`
		args = append(args, tag, limit)
	} else {
		query += ` ORDER BY created_at ASC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]pool.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PoolRepo) CountUnassigned(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pool_entries WHERE pet_id IS NULL`).Scan(&n)
	return n, err
}

func (r *PoolRepo) CountTotal(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pool_entries`).Scan(&n)
	return n, err
}

func (r *PoolRepo) Assign(ctx context.Context, shortID, petID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pool_entries
		SET pet_id = $2, assigned_at = $3
		WHERE short_id = $1 AND pet_id IS NULL
	`, shortID, petID, time.Now())
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// distinguimos not-found de already-claimed
		if _, err := r.GetByShortID(ctx, shortID); errors.Is(err, pool.ErrNotFound) {
			return pool.ErrNotFound
		}
		return pool.ErrAlreadyAssigned
	}
	return nil
}

func (r *PoolRepo) Release(ctx context.Context, shortID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pool_entries
		SET pet_id = NULL, assigned_at = NULL
		WHERE short_id = $1 AND pet_id IS NOT NULL
	`, shortID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		if _, err := r.GetByShortID(ctx, shortID); errors.Is(err, pool.ErrNotFound) {
			return pool.ErrNotFound
		}
		return pool.ErrNotAssigned
	}
	return nil
}

// Reassign corre el swap completo en una sola transacción: liberar el
// código viejo del pet y reclamar el nuevo nunca quedan a medias.
func (r *PoolRepo) Reassign(ctx context.Context, petID, newShortID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE pool_entries
		SET pet_id = $2, assigned_at = $3
		WHERE short_id = $1 AND pet_id IS NULL
	`, newShortID, petID, time.Now())
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM pool_entries WHERE short_id = $1)`, newShortID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return pool.ErrNotFound
		}
		return pool.ErrAlreadyAssigned
	}

	// Huérfanar el código viejo del pet (puede no existir: pet nuevo).
	if _, err := tx.ExecContext(ctx, `
		UPDATE pool_entries
		SET pet_id = NULL, assigned_at = NULL
		WHERE pet_id = $1 AND short_id <> $2
	`, petID, newShortID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *PoolRepo) SetQRURL(ctx context.Context, shortID, url string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pool_entries SET qr_url = $2 WHERE short_id = $1
	`, shortID, url)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return pool.ErrNotFound
	}
	return nil
}

func (r *PoolRepo) GetState(ctx context.Context) (pool.State, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT current_length, codes_at_length, updated_at
		FROM pool_state
		WHERE id = 1
	`)

	var s pool.State
	if err := row.Scan(&s.CurrentLength, &s.CodesAtLength, &s.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return pool.State{}, pool.ErrNoState
		}
		return pool.State{}, err
	}
	return s, nil
}

// SaveState es un upsert plano: dos replenishers concurrentes hacen
// last-write-wins (limitación conocida, ver DESIGN.md).
func (r *PoolRepo) SaveState(ctx context.Context, s pool.State) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pool_state (id, current_length, codes_at_length, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET current_length = EXCLUDED.current_length,
		    codes_at_length = EXCLUDED.codes_at_length,
		    updated_at = EXCLUDED.updated_at
	`, s.CurrentLength, s.CodesAtLength, s.UpdatedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (pool.Entry, error) {
	var e pool.Entry
	var petID sql.NullString
	var qrURL sql.NullString
	var assignedAt sql.NullTime

	if err := row.Scan(&e.ID, &e.ShortID, &e.TagType, &petID, &qrURL, &e.CreatedAt, &assignedAt); err != nil {
		if err == sql.ErrNoRows {
			return pool.Entry{}, pool.ErrNotFound
		}
		return pool.Entry{}, err
	}

	if petID.Valid {
		v := petID.String
		e.PetID = &v
	}
	if qrURL.Valid {
		e.QRURL = qrURL.String
	}
	if assignedAt.Valid {
		t := assignedAt.Time
		e.AssignedAt = &t
	}
	return e, nil
}
