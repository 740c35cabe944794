package widget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Publisher delivers a serialized payload to the widget host.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Bridge pushes payloads through a Publisher, skipping unchanged ones.
type Bridge struct {
	pub Publisher

	mu       sync.Mutex
	last     []byte
	lastView Payload
}

// NewBridge creates a Bridge. A nil Publisher records payloads without
// sending them anywhere.
func NewBridge(pub Publisher) *Bridge {
	return &Bridge{pub: pub}
}

// Push publishes p if its serialized form differs from the last successful
// push. It reports whether anything was sent.
func (b *Bridge) Push(ctx context.Context, p Payload) (bool, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return false, fmt.Errorf("encoding widget payload: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if bytes.Equal(data, b.last) {
		return false, nil
	}

	if b.pub != nil {
		if err := b.pub.Publish(ctx, data); err != nil {
			return false, fmt.Errorf("publishing widget payload: %w", err)
		}
	}

	b.last = data
	b.lastView = p
	log.Debug().Str("prayer", p.NextPrayer).Int64("fire_at", p.FireAt).Msg("widget payload pushed")
	return true, nil
}

// Last returns the last pushed payload and whether there is one.
func (b *Bridge) Last() (Payload, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastView, b.last != nil
}
