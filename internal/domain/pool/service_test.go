package pool

import (
	"context"
	"errors"
	"testing"
	"time"
)

// -------------------------
// Test repo (in-memory)
// -------------------------

type testRepo struct {
	byShortID map[string]Entry
	order     []string
	state     *State

	// failInsertAfter: cuando > 0, Insert falla después de esa cantidad
	// de inserts exitosos (simula caída de storage a mitad de un batch).
	failInsertAfter int
	inserts         int
}

func newTestRepo() *testRepo {
	return &testRepo{byShortID: map[string]Entry{}}
}

var errRepoDown = errors.New("repo: storage down")

func (r *testRepo) Insert(ctx context.Context, e Entry) error {
	if r.failInsertAfter > 0 && r.inserts >= r.failInsertAfter {
		return errRepoDown
	}
	if _, ok := r.byShortID[e.ShortID]; ok {
		return ErrDuplicateShortID
	}
	r.byShortID[e.ShortID] = e
	r.order = append(r.order, e.ShortID)
	r.inserts++
	return nil
}

func (r *testRepo) GetByShortID(ctx context.Context, shortID string) (Entry, error) {
	e, ok := r.byShortID[shortID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (r *testRepo) ListUnassigned(ctx context.Context, tag TagType, limit int) ([]Entry, error) {
	out := make([]Entry, 0)
	for _, id := range r.order {
		e := r.byShortID[id]
		if e.Assigned() {
			continue
		}
		if tag != "" && e.TagType != tag {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *testRepo) CountUnassigned(ctx context.Context) (int, error) {
	n := 0
	for _, e := range r.byShortID {
		if !e.Assigned() {
			n++
		}
	}
	return n, nil
}

func (r *testRepo) CountTotal(ctx context.Context) (int, error) {
	return len(r.byShortID), nil
}

func (r *testRepo) Assign(ctx context.Context, shortID, petID string) error {
	e, ok := r.byShortID[shortID]
	if !ok {
		return ErrNotFound
	}
	if e.Assigned() {
		return ErrAlreadyAssigned
	}
	now := time.Now()
	e.PetID = &petID
	e.AssignedAt = &now
	r.byShortID[shortID] = e
	return nil
}

func (r *testRepo) Release(ctx context.Context, shortID string) error {
	e, ok := r.byShortID[shortID]
	if !ok {
		return ErrNotFound
	}
	if !e.Assigned() {
		return ErrNotAssigned
	}
	e.PetID = nil
	e.AssignedAt = nil
	r.byShortID[shortID] = e
	return nil
}

func (r *testRepo) Reassign(ctx context.Context, petID, newShortID string) error {
	target, ok := r.byShortID[newShortID]
	if !ok {
		return ErrNotFound
	}
	if target.Assigned() {
		return ErrAlreadyAssigned
	}
	for id, e := range r.byShortID {
		if e.Assigned() && *e.PetID == petID {
			_ = r.Release(ctx, id)
			break
		}
	}
	now := time.Now()
	target.PetID = &petID
	target.AssignedAt = &now
	r.byShortID[newShortID] = target
	return nil
}

func (r *testRepo) SetQRURL(ctx context.Context, shortID, url string) error {
	e, ok := r.byShortID[shortID]
	if !ok {
		return ErrNotFound
	}
	e.QRURL = url
	r.byShortID[shortID] = e
	return nil
}

func (r *testRepo) GetState(ctx context.Context) (State, error) {
	if r.state == nil {
		return State{}, ErrNoState
	}
	return *r.state, nil
}

func (r *testRepo) SaveState(ctx context.Context, s State) error {
	r.state = &s
	return nil
}

// -------------------------
// Replenish
// -------------------------

func TestReplenish_FillsPoolInSequentialBatches(t *testing.T) {
	repo := newTestRepo()
	svc := NewService(repo, Config{InitialLength: 2}, nil, nil)

	res, err := svc.Replenish(context.Background(), TagDog, 20, 5)
	if err != nil {
		t.Fatalf("replenish: %v", err)
	}

	if res.Generated != 20 {
		t.Fatalf("expected 20 generated, got %d", res.Generated)
	}
	if res.FinalUnassigned != 20 {
		t.Fatalf("expected 20 unassigned, got %d", res.FinalUnassigned)
	}
	// 20 códigos entran de sobra en longitud 2 (1296 combinaciones)
	if res.FinalLength != 2 {
		t.Fatalf("expected length to stay at 2, got %d", res.FinalLength)
	}

	// El resultado lleva el bookkeeping completo: el CLI lo imprime en el
	// resumen final sin re-consultar el estado.
	if res.CodesAtLength != 20 {
		t.Fatalf("expected codes_at_length 20 in result, got %d", res.CodesAtLength)
	}

	st, err := repo.GetState(context.Background())
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.CodesAtLength != 20 {
		t.Fatalf("expected codes_at_length 20, got %d", st.CodesAtLength)
	}

	for _, id := range repo.order {
		if len(id) != 2 {
			t.Fatalf("expected every short id at length 2, got %q", id)
		}
		if repo.byShortID[id].TagType != TagDog {
			t.Fatalf("expected tag dog, got %q", repo.byShortID[id].TagType)
		}
	}
}

func TestReplenish_NoopWhenPoolAlreadyAtTarget(t *testing.T) {
	repo := newTestRepo()
	svc := NewService(repo, Config{}, nil, nil)

	if _, err := svc.Replenish(context.Background(), TagCat, 10, 0); err != nil {
		t.Fatalf("first replenish: %v", err)
	}
	res, err := svc.Replenish(context.Background(), TagCat, 10, 0)
	if err != nil {
		t.Fatalf("second replenish: %v", err)
	}
	if res.Generated != 0 {
		t.Fatalf("expected 0 generated at target, got %d", res.Generated)
	}
	if res.FinalUnassigned != 10 {
		t.Fatalf("expected 10 unassigned, got %d", res.FinalUnassigned)
	}
}

func TestReplenish_DefensiveCeilingEscalatesLength(t *testing.T) {
	repo := newTestRepo()
	svc := NewService(repo, Config{InitialLength: 3, EscalationCeiling: 5}, nil, nil)

	res, err := svc.Replenish(context.Background(), TagDog, 12, 4)
	if err != nil {
		t.Fatalf("replenish: %v", err)
	}

	// 12 códigos con ceiling 5 => escala en el 5 y en el 10: termina en 5.
	if res.FinalLength != 5 {
		t.Fatalf("expected final length 5, got %d", res.FinalLength)
	}
	st, _ := repo.GetState(context.Background())
	if st.CodesAtLength != 2 {
		t.Fatalf("expected 2 codes at the new length, got %d", st.CodesAtLength)
	}
}

func TestReplenish_LengthNeverDecreases(t *testing.T) {
	repo := newTestRepo()
	repo.state = &State{CurrentLength: 6, CodesAtLength: 3}
	svc := NewService(repo, Config{InitialLength: 3}, nil, nil)

	res, err := svc.Replenish(context.Background(), TagDog, 5, 0)
	if err != nil {
		t.Fatalf("replenish: %v", err)
	}
	if res.FinalLength != 6 {
		t.Fatalf("expected persisted length 6 to win over initial 3, got %d", res.FinalLength)
	}
	for _, id := range repo.order {
		if len(id) != 6 {
			t.Fatalf("expected short ids at length 6, got %q", id)
		}
	}
}

func TestReplenish_StorageFailureKeepsPartialProgress(t *testing.T) {
	repo := newTestRepo()
	repo.failInsertAfter = 7
	svc := NewService(repo, Config{InitialLength: 3}, nil, nil)

	res, err := svc.Replenish(context.Background(), TagDog, 20, 5)
	if err == nil {
		t.Fatal("expected error when storage fails mid-batch")
	}
	if res.Generated != 7 {
		t.Fatalf("expected 7 generated before the failure, got %d", res.Generated)
	}

	// Lo insertado queda; una re-corrida completa el resto.
	n, _ := repo.CountUnassigned(context.Background())
	if n != 7 {
		t.Fatalf("expected 7 entries persisted, got %d", n)
	}

	repo.failInsertAfter = 0
	res, err = svc.Replenish(context.Background(), TagDog, 20, 5)
	if err != nil {
		t.Fatalf("retry replenish: %v", err)
	}
	if res.Generated != 13 {
		t.Fatalf("expected 13 generated on retry, got %d", res.Generated)
	}
	if res.FinalUnassigned != 20 {
		t.Fatalf("expected 20 unassigned after retry, got %d", res.FinalUnassigned)
	}
}

func TestReplenish_RejectsInvalidInput(t *testing.T) {
	svc := NewService(newTestRepo(), Config{}, nil, nil)

	if _, err := svc.Replenish(context.Background(), TagDog, 0, 5); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for target 0, got %v", err)
	}
	if _, err := svc.Replenish(context.Background(), TagType("bird"), 10, 5); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown tag, got %v", err)
	}
}

// -------------------------
// Allocate / Assign / Reassign
// -------------------------

func TestAllocateForPet_CreatesAssignedEntry(t *testing.T) {
	repo := newTestRepo()
	svc := NewService(repo, Config{InitialLength: 4}, nil, nil)

	e, err := svc.AllocateForPet(context.Background(), "pet-1", TagCat)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if !e.Assigned() || *e.PetID != "pet-1" {
		t.Fatalf("expected entry assigned to pet-1, got %+v", e)
	}
	if len(e.ShortID) != 4 {
		t.Fatalf("expected short id at current length 4, got %q", e.ShortID)
	}
	if e.AssignedAt == nil {
		t.Fatal("expected assigned_at set")
	}
}

func TestAssign_ClaimsPoolEntryOnce(t *testing.T) {
	repo := newTestRepo()
	svc := NewService(repo, Config{}, nil, nil)

	if _, err := svc.Replenish(context.Background(), TagDog, 1, 0); err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	shortID := repo.order[0]

	e, err := svc.Assign(context.Background(), shortID, "pet-1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !e.Assigned() {
		t.Fatal("expected entry assigned")
	}

	if _, err := svc.Assign(context.Background(), shortID, "pet-2"); !errors.Is(err, ErrAlreadyAssigned) {
		t.Fatalf("expected ErrAlreadyAssigned on second claim, got %v", err)
	}
	if _, err := svc.Assign(context.Background(), "nope", "pet-3"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown short id, got %v", err)
	}
}

func TestReassign_SwapsAndOrphansOldCode(t *testing.T) {
	repo := newTestRepo()
	svc := NewService(repo, Config{}, nil, nil)

	if _, err := svc.Replenish(context.Background(), TagDog, 2, 0); err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	oldID, newID := repo.order[0], repo.order[1]

	if _, err := svc.Assign(context.Background(), oldID, "pet-1"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	e, err := svc.Reassign(context.Background(), "pet-1", newID)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if !e.Assigned() || *e.PetID != "pet-1" {
		t.Fatalf("expected new code assigned to pet-1, got %+v", e)
	}

	// El código viejo vuelve al pool.
	old, err := repo.GetByShortID(context.Background(), oldID)
	if err != nil {
		t.Fatalf("get old entry: %v", err)
	}
	if old.Assigned() {
		t.Fatalf("expected old code released, got %+v", old)
	}
}

// -------------------------
// Status
// -------------------------

func TestStatus_ComputesNeedsRefill(t *testing.T) {
	repo := newTestRepo()
	svc := NewService(repo, Config{RefillThreshold: 5}, nil, nil)

	st, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("status on empty pool: %v", err)
	}
	if !st.NeedsRefill {
		t.Fatal("expected needs_refill on empty pool")
	}

	if _, err := svc.Replenish(context.Background(), TagDog, 5, 0); err != nil {
		t.Fatalf("replenish: %v", err)
	}

	st, err = svc.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.NeedsRefill {
		t.Fatalf("expected refill satisfied at threshold, got %+v", st)
	}
	if st.Total != 5 || st.Unassigned != 5 {
		t.Fatalf("expected 5/5, got total=%d unassigned=%d", st.Total, st.Unassigned)
	}
}

func TestResolve_TrimsAndLooksUp(t *testing.T) {
	repo := newTestRepo()
	svc := NewService(repo, Config{}, nil, nil)

	if _, err := svc.Replenish(context.Background(), TagCat, 1, 0); err != nil {
		t.Fatalf("seed pool: %v", err)
	}
	shortID := repo.order[0]

	e, err := svc.Resolve(context.Background(), "  "+shortID+"  ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if e.ShortID != shortID {
		t.Fatalf("expected %q, got %q", shortID, e.ShortID)
	}

	if _, err := svc.Resolve(context.Background(), "   "); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for blank id, got %v", err)
	}
}
