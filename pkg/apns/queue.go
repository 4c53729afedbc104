package apns

// queue is a FIFO of envelopes with front insertion for token refresh
// re-queues. It is not safe for concurrent use; the engine guards it.
type queue struct {
	items []*Envelope
	head  int
}

func (q *queue) Len() int {
	return len(q.items) - q.head
}

func (q *queue) PushBack(e *Envelope) {
	q.items = append(q.items, e)
}

func (q *queue) PushFront(e *Envelope) {
	if q.head > 0 {
		q.head--
		q.items[q.head] = e
		return
	}
	q.items = append([]*Envelope{e}, q.items...)
}

func (q *queue) PopFront() (*Envelope, bool) {
	if q.Len() == 0 {
		return nil, false
	}
	e := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return e, true
}
