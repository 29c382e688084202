package db

// LoadResult is the outcome of a load. Items is never nil and keeps its
// ascending id order. Err is nil for a complete listing; otherwise it is the
// failure that cut the listing short, and Items holds the rows read before it.
type LoadResult[T any] struct {
	Items []T
	Err   error
}

// Partial reports whether the listing was truncated by an error.
func (r LoadResult[T]) Partial() bool {
	return r.Err != nil
}

// Values returns the result as the usual (items, err) pair. items is
// non-nil even when err is set.
func (r LoadResult[T]) Values() ([]T, error) {
	return r.Items, r.Err
}
