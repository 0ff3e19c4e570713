// Package aitest provides a scripted eino chat model for tests.
package aitest

import (
	"context"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Model replays Chunks for Stream and their concatenation for Generate.
type Model struct {
	Chunks []string
	// Err fails the call before anything is produced.
	Err error
	// StreamErr is delivered after the chunks.
	StreamErr error
	// Block, when non-nil, holds every call until it is closed. The context is ignored.
	Block chan struct{}

	mu     sync.Mutex
	inputs [][]*schema.Message
}

var _ model.BaseChatModel = (*Model)(nil)

func (m *Model) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.record(input)
	if m.Block != nil {
		<-m.Block
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return schema.AssistantMessage(strings.Join(m.Chunks, ""), nil), nil
}

func (m *Model) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.record(input)
	if m.Err != nil {
		return nil, m.Err
	}

	reader, writer := schema.Pipe[*schema.Message](len(m.Chunks) + 1)
	go func() {
		defer writer.Close()
		if m.Block != nil {
			<-m.Block
			return
		}
		for _, chunk := range m.Chunks {
			if closed := writer.Send(&schema.Message{Role: schema.Assistant, Content: chunk}, nil); closed {
				return
			}
		}
		if m.StreamErr != nil {
			writer.Send(nil, m.StreamErr)
		}
	}()
	return reader, nil
}

// Inputs returns the message lists the model was called with.
func (m *Model) Inputs() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]*schema.Message(nil), m.inputs...)
}

func (m *Model) record(input []*schema.Message) {
	m.mu.Lock()
	m.inputs = append(m.inputs, append([]*schema.Message(nil), input...))
	m.mu.Unlock()
}
