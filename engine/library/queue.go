package library

// NewQueue returns a new FIFO queue with the given initial size.
func NewQueue[T any](size int) *Queue[T] {
	if size < 1 {
		size = 1
	}
	return &Queue[T]{
		nodes: make([]T, size),
		size:  size,
	}
}

// Queue is a FIFO ring buffer that resizes as needed. It is not safe for concurrent use.
type Queue[T any] struct {
	nodes []T
	size  int
	head  int
	tail  int
	count int
}

// Push adds an item to the queue.
func (q *Queue[T]) Push(n T) {
	if q.head == q.tail && q.count > 0 {
		nodes := make([]T, len(q.nodes)+q.size)
		copy(nodes, q.nodes[q.head:])
		copy(nodes[len(q.nodes)-q.head:], q.nodes[:q.head])
		q.head = 0
		q.tail = len(q.nodes)
		q.nodes = nodes
	}
	q.nodes[q.tail] = n
	q.tail = (q.tail + 1) % len(q.nodes)
	q.count++
}

// Pop removes and returns an item from the queue in first to last order.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	if q.count == 0 {
		return zero, false
	}
	node := q.nodes[q.head]
	q.nodes[q.head] = zero
	q.head = (q.head + 1) % len(q.nodes)
	q.count--
	return node, true
}

func (q *Queue[T]) Len() int {
	return q.count
}

// Drain pops everything currently queued.
func (q *Queue[T]) Drain() []T {
	out := make([]T, 0, q.count)
	for {
		n, ok := q.Pop()
		if !ok {
			return out
		}
		out = append(out, n)
	}
}
