// Package history keeps a bounded list of entered commands with a cursor
// for up/down recall. It is plain local state, no protocol involvement.
package history

import "strings"

const maxCommands = 50

type direction int

const (
	up direction = iota
	middle
	down
)

type History struct {
	commands  []string
	cursor    int
	direction direction
}

func New() *History {
	return &History{
		direction: middle,
	}
}

// Add appends a command and resets the cursor to the insertion end.
// Blank commands and consecutive duplicates are not stored.
func (h *History) Add(command string) {
	add := strings.TrimSpace(command) != ""
	if add && len(h.commands) > 0 && command == h.commands[len(h.commands)-1] {
		add = false
	}

	if add {
		h.commands = append(h.commands, command)
		if len(h.commands) > maxCommands {
			h.commands = h.commands[1:]
		}
	}

	if len(h.commands) > 0 {
		h.cursor = len(h.commands) - 1
	}
	h.direction = middle
}

// GoUp moves the cursor towards older commands and returns the one it
// lands on, or an empty string when there is no history.
func (h *History) GoUp() string {
	if len(h.commands) == 0 {
		return ""
	}

	if h.direction != middle && h.cursor > 0 {
		h.cursor--
	}
	h.direction = up

	return h.commands[h.cursor]
}

// GoDown moves the cursor towards newer commands and returns the one it
// lands on, or an empty string at the insertion end.
func (h *History) GoDown() string {
	if len(h.commands) == 0 {
		return ""
	}

	if h.cursor < len(h.commands)-1 {
		h.cursor++
		h.direction = down
		return h.commands[h.cursor]
	}

	h.direction = middle
	return ""
}

// Len reports how many commands are stored.
func (h *History) Len() int {
	return len(h.commands)
}
