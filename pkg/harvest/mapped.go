package harvest

import (
	"context"
	"fmt"
	"iter"
)

// Mapper converts a raw record into a domain value.
type Mapper[T any] func(Record) (T, error)

// MapError reports a record the mapper rejected.
type MapError struct {
	ID    int64
	HasID bool
	Err   error
}

// Error implements the error interface.
func (e *MapError) Error() string {
	if e.HasID {
		return fmt.Sprintf("map record %d: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("map record: %v", e.Err)
}

// Unwrap returns the mapper error.
func (e *MapError) Unwrap() error {
	return e.Err
}

// Mapped is a typed view over a Stream.
type Mapped[T any] struct {
	stream *Stream
	mapper Mapper[T]
	err    error
}

// MapStream wraps s so that every record passes through mapper.
func MapStream[T any](s *Stream, mapper Mapper[T]) *Mapped[T] {
	return &Mapped[T]{stream: s, mapper: mapper}
}

// Stream returns the underlying record stream.
func (m *Mapped[T]) Stream() *Stream {
	return m.stream
}

// Next returns the next mapped value. Errors are sticky, mapper errors
// included.
func (m *Mapped[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if m.err != nil {
		return zero, false, m.err
	}
	rec, ok, err := m.stream.Next(ctx)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := m.mapper(rec)
	if err != nil {
		id, hasID := rec.Identifier(m.stream.field)
		m.err = &MapError{ID: id, HasID: hasID, Err: err}
		return zero, false, m.err
	}
	return v, true, nil
}

// All adapts the mapped stream to a range-over-func sequence.
func (m *Mapped[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			v, ok, err := m.Next(ctx)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if !ok || !yield(v, nil) {
				return
			}
		}
	}
}
