package repos

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/fablecast-backend/internal/domain"
)

func TestEbookSectionsOrderedByIndex(t *testing.T) {
	db := testDB(t)
	repo := NewEbookRepo(db, testLogger(t))
	dbc := testDBC()

	eb := &domain.Ebook{ID: uuid.New(), OwnerUserID: uuid.New(), Title: "Linear Algebra", Status: domain.StatusPending}
	if _, err := repo.Create(dbc, []*domain.Ebook{eb}); err != nil {
		t.Fatalf("create: %v", err)
	}

	sections := []*domain.Section{
		{ID: uuid.New(), EbookID: eb.ID, Index: 2, Title: "Determinants", Type: domain.TitleTypeHead},
		{ID: uuid.New(), EbookID: eb.ID, Index: 0, Title: "Vectors", Type: domain.TitleTypeHead},
		{ID: uuid.New(), EbookID: eb.ID, Index: 1, Title: "Matrices", Type: domain.TitleTypeHead},
	}
	if err := repo.AppendSections(dbc, sections); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := repo.GetSections(dbc, eb.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(got))
	}
	for i, s := range got {
		if s.Index != i {
			t.Fatalf("expected idx %d at position %d, got %d", i, i, s.Index)
		}
	}
}

func TestEbookMarkStalled(t *testing.T) {
	db := testDB(t)
	repo := NewEbookRepo(db, testLogger(t))
	dbc := testDBC()

	stale := &domain.Ebook{ID: uuid.New(), OwnerUserID: uuid.New(), Title: "stale", Status: domain.StatusProcessing}
	fresh := &domain.Ebook{ID: uuid.New(), OwnerUserID: uuid.New(), Title: "fresh", Status: domain.StatusProcessing}
	done := &domain.Ebook{ID: uuid.New(), OwnerUserID: uuid.New(), Title: "done", Status: domain.StatusComplete}
	if _, err := repo.Create(dbc, []*domain.Ebook{stale, fresh, done}); err != nil {
		t.Fatalf("create: %v", err)
	}
	old := time.Now().Add(-61 * time.Minute)
	if err := repo.UpdateFields(dbc, stale.ID, map[string]interface{}{"updated_at": old}); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	n, err := repo.MarkStalled(dbc, time.Now().Add(-60*time.Minute), "Processing timed out")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 stalled ebook, got %d", n)
	}

	got, err := repo.GetByID(dbc, stale.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusError || got.Error == "" {
		t.Fatalf("expected stale ebook flipped to error, got %+v", got)
	}

	gotFresh, err := repo.GetByID(dbc, fresh.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if gotFresh.Status != domain.StatusProcessing {
		t.Fatalf("expected fresh ebook untouched, got %s", gotFresh.Status)
	}
}
