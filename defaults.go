package swcache

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// orDefault is coalesce for slices: nil keeps the default, an empty non-nil
// slice explicitly disables it.
func orDefault[T any](v, def []T) []T {
	if v == nil {
		return def
	}
	return v
}
