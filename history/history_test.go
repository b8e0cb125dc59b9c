package history

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddAndRecall(t *testing.T) {
	h := New()

	h.Add("first")
	h.Add("second")
	h.Add("third")

	assert.Equal(t, "third", h.GoUp())
	assert.Equal(t, "second", h.GoUp())
	assert.Equal(t, "first", h.GoUp())

	// At the oldest entry, up stays put.
	assert.Equal(t, "first", h.GoUp())

	assert.Equal(t, "second", h.GoDown())
	assert.Equal(t, "third", h.GoDown())

	// Past the newest entry is the insertion end.
	assert.Equal(t, "", h.GoDown())
}

func TestRecallOnEmptyHistory(t *testing.T) {
	h := New()

	assert.Equal(t, "", h.GoUp())
	assert.Equal(t, "", h.GoDown())
}

func TestBlankCommandsIgnored(t *testing.T) {
	h := New()

	h.Add("")
	h.Add("   ")
	h.Add("\t")

	assert.Zero(t, h.Len())
	assert.Equal(t, "", h.GoUp())
}

func TestConsecutiveDuplicatesStoredOnce(t *testing.T) {
	h := New()

	h.Add("same")
	h.Add("same")

	assert.Equal(t, 1, h.Len())

	// Non-consecutive duplicates are fine.
	h.Add("other")
	h.Add("same")
	assert.Equal(t, 3, h.Len())
}

func TestEvictsOldestPastCap(t *testing.T) {
	h := New()

	for i := 0; i < 51; i++ {
		h.Add(fmt.Sprintf("command %d", i))
	}

	assert.Equal(t, 50, h.Len())

	// The oldest entry is gone; walking all the way up ends at command 1.
	var last string
	for i := 0; i < 60; i++ {
		last = h.GoUp()
	}
	assert.Equal(t, "command 1", last)
}

func TestAddResetsCursor(t *testing.T) {
	h := New()

	h.Add("one")
	h.Add("two")
	assert.Equal(t, "two", h.GoUp())
	assert.Equal(t, "one", h.GoUp())

	h.Add("three")
	assert.Equal(t, "three", h.GoUp())
}
