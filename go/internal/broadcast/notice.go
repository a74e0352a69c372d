// Package broadcast carries "state changed" markers between stores that
// share a repository, in the same process or across processes. Notices
// never carry state; receivers reload it themselves.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
)

// TypeStateUpdated is the only notice type on the channel.
const TypeStateUpdated = "STATE_UPDATED"

// Notice is the opaque change marker published after every save.
type Notice struct {
	Type   string `json:"type"`
	Origin string `json:"origin"`
	Source string `json:"source"`
}

// Channel is a named pub/sub fabric for notices.
type Channel interface {
	Publish(ctx context.Context, n Notice) error
	Listen(fn func(Notice)) (stop func(), err error)
}

func encode(n Notice) ([]byte, error) {
	if n.Type == "" {
		n.Type = TypeStateUpdated
	}
	b, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode notice: %w", err)
	}
	return b, nil
}

func decode(b []byte) (Notice, error) {
	var n Notice
	if err := json.Unmarshal(b, &n); err != nil {
		return Notice{}, fmt.Errorf("decode notice: %w", err)
	}
	if n.Type != TypeStateUpdated {
		return Notice{}, fmt.Errorf("decode notice: unexpected type %q", n.Type)
	}
	return n, nil
}
