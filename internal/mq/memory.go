package mq

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryBroker delivers messages in-process. Each channel is a buffered
// queue; a failed handler puts the message back once.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]chan memoryDelivery
	done   chan struct{}
	closed bool
	size   int
}

type memoryDelivery struct {
	msg         Message
	redelivered bool
}

func NewMemoryBroker(buffer int) *MemoryBroker {
	if buffer < 1 {
		buffer = 64
	}
	return &MemoryBroker{queues: make(map[string]chan memoryDelivery), done: make(chan struct{}), size: buffer}
}

// ErrBrokerClosed is returned by a MemoryBroker after Close.
var ErrBrokerClosed = errors.New("memory broker closed")

func (b *MemoryBroker) queue(channel string) (chan memoryDelivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	q, ok := b.queues[channel]
	if !ok {
		q = make(chan memoryDelivery, b.size)
		b.queues[channel] = q
	}
	return q, nil
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("memory channel is required")
	}
	q, err := b.queue(channel)
	if err != nil {
		return "", err
	}
	msg := Message{ID: uuid.NewString(), Data: append([]byte(nil), data...), Attributes: attrs}
	select {
	case q <- memoryDelivery{msg: msg}:
		return msg.ID, nil
	case <-b.done:
		return "", ErrBrokerClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel string, handler Handler) error {
	q, err := b.queue(channel)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return ErrBrokerClosed
		case d := <-q:
			if err := handler(ctx, d.msg); err != nil && !d.redelivered {
				select {
				case q <- memoryDelivery{msg: d.msg, redelivered: true}:
				default:
				}
			}
		}
	}
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	return nil
}
