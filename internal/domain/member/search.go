// internal/domain/member/search.go
package member

import (
	"strings"

	"gorm.io/gorm"
)

// SearchField selects which member column a directory search matches against
type SearchField int

const (
	// SearchNone applies no filter
	SearchNone SearchField = iota
	SearchByName
	SearchByEmail
)

// ParseSearchField resolves the search_by request parameter. Anything other
// than "name" or "email" yields SearchNone.
func ParseSearchField(raw string) SearchField {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "name":
		return SearchByName
	case "email":
		return SearchByEmail
	default:
		return SearchNone
	}
}

func (f SearchField) String() string {
	switch f {
	case SearchByName:
		return "name"
	case SearchByEmail:
		return "email"
	default:
		return "none"
	}
}

// Scope returns a gorm scope filtering members whose field contains query
func (f SearchField) Scope(query string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		pattern := "%" + query + "%"
		switch f {
		case SearchByName:
			return db.Where("name LIKE ?", pattern)
		case SearchByEmail:
			return db.Where("email LIKE ?", pattern)
		default:
			return db
		}
	}
}
