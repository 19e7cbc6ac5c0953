package api

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultCommandCapacity bounds the redirect queue. The extension polls
// frequently, so the queue only grows if the browser side is gone; beyond
// the cap the oldest commands are stale anyway.
const DefaultCommandCapacity = 64

// Command instructs the extension to navigate a tab to a target URL.
type Command struct {
	TabID int64  `json:"tabId"`
	URL   string `json:"url"`
}

// CommandQueue buffers redirect commands for the extension. The daemon
// cannot drive the browser itself; enforcement queues a command here and
// the extension picks it up on its next poll or activity report.
type CommandQueue struct {
	mu       sync.Mutex
	commands []Command
	capacity int
	logger   zerolog.Logger
}

// NewCommandQueue creates a command queue. A capacity of zero uses
// DefaultCommandCapacity.
func NewCommandQueue(capacity int, logger zerolog.Logger) *CommandQueue {
	if capacity <= 0 {
		capacity = DefaultCommandCapacity
	}
	return &CommandQueue{
		capacity: capacity,
		logger:   logger.With().Str("component", "commands").Logger(),
	}
}

// Redirect queues a redirect command for a tab. When the queue is full the
// oldest command is dropped; a redirect the extension never collected has
// already missed its moment.
func (q *CommandQueue) Redirect(ctx context.Context, tabID int64, target string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.commands) >= q.capacity {
		dropped := q.commands[0]
		q.commands = q.commands[1:]
		q.logger.Warn().
			Int64("tab_id", dropped.TabID).
			Msg("Command queue full, dropping oldest redirect")
	}

	q.commands = append(q.commands, Command{TabID: tabID, URL: target})
	return nil
}

// Drain removes and returns all queued commands.
func (q *CommandQueue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.commands
	q.commands = nil
	return out
}

// DrainTab removes and returns the commands queued for one tab.
func (q *CommandQueue) DrainTab(tabID int64) []Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out, rest []Command
	for _, cmd := range q.commands {
		if cmd.TabID == tabID {
			out = append(out, cmd)
		} else {
			rest = append(rest, cmd)
		}
	}
	q.commands = rest
	return out
}

// Len returns the number of queued commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}
