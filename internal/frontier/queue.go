package frontier

// Stack is the LIFO counterpart used for depth-first tree expansion.
type Stack[T any] []T

func NewStack[T any]() *Stack[T] {
	return &Stack[T]{}
}

func (s *Stack[T]) Push(item T) {
	*s = append(*s, item)
}

// return false on the second returned values if stack is empty
func (s *Stack[T]) Pop() (T, bool) {
	var zero T
	n := len(*s)
	if n == 0 {
		return zero, false
	}
	top := (*s)[n-1]
	(*s)[n-1] = zero
	*s = (*s)[:n-1]
	return top, true
}

func (s *Stack[T]) Size() int {
	return len(*s)
}
