// Package fn holds the small generic helpers the pipeline packages share:
// slice transforms, a Result type, bounded fan-out and retry with backoff.
package fn

// Map returns f applied to every element of items.
func Map[T, U any](items []T, f func(T) U) []U {
	out := make([]U, 0, len(items))
	for _, v := range items {
		out = append(out, f(v))
	}
	return out
}

// Filter keeps the elements for which keep is true. It never returns nil.
func Filter[S ~[]T, T any](items S, keep func(T) bool) S {
	out := make(S, 0, len(items))
	for _, v := range items {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// Unique drops repeats, keeping the first occurrence of each element. It
// never returns nil.
func Unique[T comparable](items []T) []T {
	out := make([]T, 0, len(items))
	seen := map[T]bool{}
	for _, v := range items {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
