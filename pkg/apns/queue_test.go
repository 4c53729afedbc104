package apns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_Order(t *testing.T) {
	var q queue
	a := &Envelope{deviceToken: "a"}
	b := &Envelope{deviceToken: "b"}
	c := &Envelope{deviceToken: "c"}

	_, ok := q.PopFront()
	assert.False(t, ok)

	q.PushBack(a)
	q.PushBack(b)
	q.PushFront(c)
	require.Equal(t, 3, q.Len())

	got, _ := q.PopFront()
	assert.Same(t, c, got)

	q.PushFront(got)
	var order []string
	for q.Len() > 0 {
		e, _ := q.PopFront()
		order = append(order, e.deviceToken)
	}
	assert.Equal(t, []string{"c", "a", "b"}, order)

	q.PushBack(a)
	got, ok = q.PopFront()
	assert.True(t, ok)
	assert.Same(t, a, got)
}
