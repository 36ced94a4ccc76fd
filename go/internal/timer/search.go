package timer

import (
	"strings"

	"golang.org/x/text/cases"
)

// Matches reports whether query is a case-insensitive substring of the
// customer name, description or receipt number. An empty query matches all.
func Matches(v View, query string) bool {
	q := strings.TrimSpace(query)
	if q == "" {
		return true
	}
	folder := cases.Fold()
	q = folder.String(q)
	for _, field := range []string{v.CustomerName, v.Description, v.ReceiptNumber} {
		if strings.Contains(folder.String(field), q) {
			return true
		}
	}
	return false
}

// Filter returns the visible views matching query, preserving order.
func Filter(views []View, query string) []View {
	out := make([]View, 0, len(views))
	for _, v := range views {
		if v.Hidden || !Matches(v, query) {
			continue
		}
		out = append(out, v)
	}
	return out
}
