package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDGenerator(t *testing.T) {
	t.Run("Next", func(t *testing.T) {
		g := NewIDGenerator()
		assert.Equal(t, UserID(1), g.Next())
		assert.Equal(t, UserID(2), g.Next())
	})

	t.Run("SawRaisesCounter", func(t *testing.T) {
		g := NewIDGenerator()
		g.Saw(100)
		assert.Equal(t, UserID(101), g.Next())
	})

	t.Run("SawBelowCounterIsNoop", func(t *testing.T) {
		g := NewIDGenerator()
		g.Saw(50)
		g.Saw(7)
		assert.Equal(t, UserID(51), g.Next())
	})

	t.Run("SawOwnOutput", func(t *testing.T) {
		g := NewIDGenerator()
		id := g.Next()
		g.Saw(id)
		assert.Greater(t, g.Next(), id)
	})
}
