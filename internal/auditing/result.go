package auditing

// Result is the outcome of one remote mutation. Value always carries the item
// the mutation was attempted on, so a failed result can still be reported.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok returns a successful result.
func Ok[T any](value T) Result[T] {
	return Result[T]{Value: value}
}

// Fail returns a failed result for value.
func Fail[T any](value T, err error) Result[T] {
	return Result[T]{Value: value, Err: err}
}

// Succeeded reports whether the mutation was applied.
func (r Result[T]) Succeeded() bool {
	return r.Err == nil
}

// ErrorMessage returns the failure detail, or nil on success.
func (r Result[T]) ErrorMessage() *string {
	if r.Err == nil {
		return nil
	}
	msg := r.Err.Error()
	return &msg
}
