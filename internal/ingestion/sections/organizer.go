package sections

import (
	"github.com/yungbote/fablecast-backend/internal/domain"
)

// SectionGroup is one head title with the sub titles that follow it in
// reading order, up to the next head.
type SectionGroup struct {
	Head domain.ContentTitle   `json:"head"`
	Subs []domain.ContentTitle `json:"subs,omitempty"`
}

// Organize groups titles positionally: every sub belongs to the nearest
// preceding head. Subs that appear before any head have no parent and are
// dropped. Input order is preserved; the input is never mutated.
func Organize(titles []domain.ContentTitle) []SectionGroup {
	var out []SectionGroup
	for _, t := range titles {
		switch t.Type {
		case domain.TitleTypeHead:
			out = append(out, SectionGroup{Head: t})
		case domain.TitleTypeSub:
			if len(out) == 0 {
				continue
			}
			last := &out[len(out)-1]
			last.Subs = append(last.Subs, t)
		}
	}
	return out
}
