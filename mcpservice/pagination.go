package mcpservice

import (
	"strconv"

	"github.com/ggoodman/mcp-engine-go/mcp"
)

// paginate slices all using an integer offset cursor. A non-positive page
// size returns everything.
func paginate[T any](all []T, pageSize int, cursor string) ([]T, string, error) {
	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 || n > len(all) {
			return nil, "", mcp.NewError(mcp.KindInvalidParams, "invalid cursor: %q", cursor)
		}
		start = n
	}
	if pageSize <= 0 {
		return all[start:], "", nil
	}
	end := min(start+pageSize, len(all))
	var next string
	if end < len(all) {
		next = strconv.Itoa(end)
	}
	return all[start:end], next, nil
}

// compact keeps the elements for which keep returns true, reusing s.
func compact[T any](s []T, keep func(T) bool) []T {
	n := 0
	for _, v := range s {
		if keep(v) {
			s[n] = v
			n++
		}
	}
	clear(s[n:])
	return s[:n]
}
