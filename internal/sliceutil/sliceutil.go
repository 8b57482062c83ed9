// Package sliceutil holds small generic slice helpers.
package sliceutil

import "strings"

// DistinctNonEmpty returns the items whose trimmed key is non-empty,
// keeping the first occurrence of each trimmed key in input order.
// Comparison is case-sensitive.
func DistinctNonEmpty[T any](items []T, key func(T) string) []T {
	out := make([]T, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		k := strings.TrimSpace(key(it))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

// DistinctStrings trims items and drops empty and duplicate entries.
func DistinctStrings(items []string) []string {
	out := DistinctNonEmpty(items, func(s string) string { return s })
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out
}
