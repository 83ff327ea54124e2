package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidFilter wraps every Filter validation failure.
var ErrInvalidFilter = errors.New("invalid filter")

// SortKey names the field a listing is ordered by. The empty key selects the
// view's default ordering.
type SortKey string

const (
	SortDefault    SortKey = ""
	SortName       SortKey = "name"
	SortModified   SortKey = "modifiedAt"
	SortSize       SortKey = "sizeBytes"
	SortLastOpened SortKey = "lastOpenedAt"
	SortTrashed    SortKey = "trashedAt"
)

// SortDir is ascending or descending. Empty means the view default when the
// key is also empty, ascending otherwise.
type SortDir string

const (
	Asc  SortDir = "asc"
	Desc SortDir = "desc"
)

// Filter is the request-specific part of every listing.
type Filter struct {
	Text    string  `json:"text" form:"q"`
	SortKey SortKey `json:"sortKey" form:"sort"`
	SortDir SortDir `json:"sortDir" form:"dir"`
}

// Validate rejects unknown sort keys and directions.
func (f Filter) Validate() error {
	switch f.SortKey {
	case SortDefault, SortName, SortModified, SortSize, SortLastOpened, SortTrashed:
	default:
		return fmt.Errorf("%w: unknown sort key %q", ErrInvalidFilter, f.SortKey)
	}
	switch f.SortDir {
	case "", Asc, Desc:
	default:
		return fmt.Errorf("%w: unknown sort direction %q", ErrInvalidFilter, f.SortDir)
	}
	return nil
}

// order resolves the effective key and direction against a view default.
func (f Filter) order(defKey SortKey, defDir SortDir) (SortKey, SortDir) {
	if f.SortKey == SortDefault {
		if f.SortDir == "" {
			return defKey, defDir
		}
		return defKey, f.SortDir
	}
	if f.SortDir == "" {
		return f.SortKey, Asc
	}
	return f.SortKey, f.SortDir
}

// matches reports whether the lowercase needle is a substring of any field.
// An empty needle matches everything.
func matches(needle string, fields ...string) bool {
	if needle == "" {
		return true
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// sortItems orders items by key and direction. Equal keys always fall back to
// ascending id so results are deterministic.
func sortItems(items []Item, key SortKey, dir SortDir) {
	sort.SliceStable(items, func(i, j int) bool {
		c := compare(items[i], items[j], key)
		if c == 0 {
			return items[i].ID < items[j].ID
		}
		if dir == Desc {
			return c > 0
		}
		return c < 0
	})
}

func compare(a, b Item, key SortKey) int {
	switch key {
	case SortModified:
		return a.Modified.Compare(b.Modified)
	case SortSize:
		return cmpInt64(a.size(), b.size())
	case SortLastOpened:
		return a.lastOpened().Compare(b.lastOpened())
	case SortTrashed:
		return a.trashedAt().Compare(b.trashedAt())
	default:
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
