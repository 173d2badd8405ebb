package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerRegistry_OrderAndWildcards(t *testing.T) {
	r := NewHandlerRegistry()
	first := newTestHandler()
	second := newTestHandler()
	wild := newTestHandler()

	r.Register(first, "order.confirmed", "order.cancelled")
	r.Register(second, "order.confirmed")
	r.Register(wild)

	hs := r.HandlersFor("order.confirmed")
	assert.Len(t, hs, 3)
	assert.Same(t, first, hs[0])
	assert.Same(t, second, hs[1])
	assert.Same(t, wild, hs[2])

	assert.Len(t, r.HandlersFor("identity.linked"), 1)
	assert.Equal(t, 3, r.Len())
}

func TestHandlerRegistry_Unregister(t *testing.T) {
	r := NewHandlerRegistry()
	h := newTestHandler()
	keep := newTestHandler()
	r.Register(h, "a", "b")
	r.Register(keep, "b")
	r.Register(h)

	r.Unregister(h)

	assert.Empty(t, r.HandlersFor("a"))
	hs := r.HandlersFor("b")
	assert.Len(t, hs, 1)
	assert.Same(t, keep, hs[0])
	assert.Equal(t, 1, r.Len())
}
