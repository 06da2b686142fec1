package inmem

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

const DefaultBufferSize = 100

// ErrQueueFull is returned by Publish when the topic buffer has no room.
var ErrQueueFull = errors.New("queue is full")

// ErrQueueClosed is returned after Close.
var ErrQueueClosed = errors.New("queue is closed")

// QueueService is a process-local queue used when no broker is configured.
// Publish never blocks. Each topic supports a single consumer.
type QueueService struct {
	size int

	mu     sync.Mutex
	topics map[string]chan []byte
	closed bool
}

func NewQueueService(size int) *QueueService {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &QueueService{
		size:   size,
		topics: make(map[string]chan []byte),
	}
}

func (s *QueueService) topic(name string) chan []byte {
	ch, ok := s.topics[name]
	if !ok {
		ch = make(chan []byte, s.size)
		s.topics[name] = ch
	}
	return ch
}

func (s *QueueService) Publish(ctx context.Context, topic string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrQueueClosed
	}

	select {
	case s.topic(topic) <- body:
		return nil
	default:
		return errors.Wrap(ErrQueueFull, topic)
	}
}

// Consume streams messages of topic until ctx is done or the queue is closed.
func (s *QueueService) Consume(ctx context.Context, topic string) (<-chan []byte, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrQueueClosed
	}
	in := s.topic(topic)
	s.mu.Unlock()

	messages := make(chan []byte)
	go func() {
		defer close(messages)
		for {
			select {
			case <-ctx.Done():
				return
			case body, ok := <-in:
				if !ok {
					return
				}
				select {
				case messages <- body:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return messages, nil
}

func (s *QueueService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	for _, ch := range s.topics {
		close(ch)
	}
	return nil
}
