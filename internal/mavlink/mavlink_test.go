package mavlink

import (
	"sync"

	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

// recordingTransport keeps every message it is asked to send
type recordingTransport struct {
	mu       sync.Mutex
	messages []message.Message
	closed   bool
}

func (r *recordingTransport) Send(m message.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.closed {
		r.messages = append(r.messages, m)
	}
}

func (r *recordingTransport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	return nil
}

func (r *recordingTransport) sent() []message.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]message.Message(nil), r.messages...)
}

var _ Transport = (*recordingTransport)(nil)
var _ Transport = (*Link)(nil)
