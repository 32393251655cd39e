package notification

import (
	"context"
	"fmt"
	"sync"
)

type SentMessage struct {
	Template TemplateType
	Data     Data
}

// Mock records sends. Err, when set, fails every send.
type Mock struct {
	mu   sync.Mutex
	Sent []SentMessage
	Err  error
}

func (m *Mock) Send(ctx context.Context, template TemplateType, data Data) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return Result{Error: m.Err.Error()}, m.Err
	}
	m.Sent = append(m.Sent, SentMessage{Template: template, Data: data})
	return Result{Success: true, MessageID: fmt.Sprintf("mock_%d", len(m.Sent))}, nil
}

func (m *Mock) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.Sent...)
}
