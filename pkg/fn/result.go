package fn

// Result holds the value of a computation or the error that stopped it.
// The zero Result is a successful zero value.
type Result[T any] struct {
	val T
	err error
}

func Ok[T any](v T) Result[T] { return Result[T]{val: v} }

func Err[T any](err error) Result[T] { return Result[T]{err: err} }

// FromPair lifts a (value, error) return into a Result.
func FromPair[T any](v T, err error) Result[T] { return Result[T]{val: v, err: err} }

func (r Result[T]) IsOk() bool  { return r.err == nil }
func (r Result[T]) IsErr() bool { return r.err != nil }

// Unwrap returns the value and error. The value is meaningful only when the
// error is nil.
func (r Result[T]) Unwrap() (T, error) { return r.val, r.err }
