package relay

import (
	"sort"
	"strings"

	"statuswatch/internal/domain/entity"
)

// batch is the outcome of the pure part of reconciliation: ordering,
// de-duplication and type filtering. Seen-store lookups happen afterwards.
type batch struct {
	posts      []entity.Post
	duplicates int
	filtered   int
}

// prepare orders posts oldest-first and drops in-batch duplicates and post
// types that are not relayed. The input slice is not modified.
func prepare(posts []entity.Post, includeReplies, includeReblogs bool) batch {
	sorted := make([]entity.Post, len(posts))
	copy(sorted, posts)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return idLess(a.ID, b.ID)
	})

	var out batch
	seen := make(map[string]struct{}, len(sorted))
	for _, p := range sorted {
		if _, dup := seen[p.ID]; dup {
			out.duplicates++
			continue
		}
		seen[p.ID] = struct{}{}

		if !relayed(p.Type, includeReplies, includeReblogs) {
			out.filtered++
			continue
		}
		out.posts = append(out.posts, p)
	}
	return out
}

func relayed(t entity.PostType, includeReplies, includeReblogs bool) bool {
	switch t {
	case entity.PostTypeReply:
		return includeReplies
	case entity.PostTypeReblog:
		return includeReblogs
	default:
		return true
	}
}

// idLess orders numeric IDs by value and everything else lexically.
// Snowflake IDs of different lengths would otherwise sort "9" after "10".
func idLess(a, b string) bool {
	if isDigits(a) && isDigits(b) {
		a, b = strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(a) != len(b) {
			return len(a) < len(b)
		}
	}
	return a < b
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
