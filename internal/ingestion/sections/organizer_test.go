package sections

import (
	"testing"

	"github.com/yungbote/fablecast-backend/internal/domain"
)

func title(idx int, typ, name string) domain.ContentTitle {
	return domain.ContentTitle{Index: idx, Type: typ, Title: name}
}

func TestOrganizeGroupsSubsUnderPrecedingHead(t *testing.T) {
	titles := []domain.ContentTitle{
		title(0, domain.TitleTypeHead, "A"),
		title(1, domain.TitleTypeSub, "A1"),
		title(2, domain.TitleTypeSub, "A2"),
		title(3, domain.TitleTypeHead, "B"),
		title(4, domain.TitleTypeSub, "B1"),
	}

	groups := Organize(titles)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].Head.Title != "A" || len(groups[0].Subs) != 2 {
		t.Fatalf("unexpected first group: %+v", groups[0])
	}
	if groups[0].Subs[0].Title != "A1" || groups[0].Subs[1].Title != "A2" {
		t.Fatalf("sub order not preserved: %+v", groups[0].Subs)
	}
	if groups[1].Head.Title != "B" || len(groups[1].Subs) != 1 || groups[1].Subs[0].Title != "B1" {
		t.Fatalf("unexpected second group: %+v", groups[1])
	}
}

func TestOrganizeDropsOrphanSubs(t *testing.T) {
	titles := []domain.ContentTitle{
		title(0, domain.TitleTypeSub, "orphan"),
		title(1, domain.TitleTypeHead, "A"),
		title(2, domain.TitleTypeSub, "A1"),
	}

	groups := Organize(titles)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if len(groups[0].Subs) != 1 || groups[0].Subs[0].Title != "A1" {
		t.Fatalf("orphan sub should be dropped: %+v", groups[0].Subs)
	}
}

func TestOrganizeHeadWithoutSubs(t *testing.T) {
	titles := []domain.ContentTitle{
		title(0, domain.TitleTypeHead, "A"),
		title(1, domain.TitleTypeHead, "B"),
	}

	groups := Organize(titles)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if len(groups[0].Subs) != 0 || len(groups[1].Subs) != 0 {
		t.Fatalf("expected empty sub lists")
	}
}

func TestOrganizeEmptyInput(t *testing.T) {
	if groups := Organize(nil); len(groups) != 0 {
		t.Fatalf("expected no groups, got %d", len(groups))
	}
}
