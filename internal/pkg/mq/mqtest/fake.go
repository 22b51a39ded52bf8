// Package mqtest 提供 mq.Reader / mq.Writer 的内存实现，供各服务的测试使用
package mqtest

import (
	"context"
	"io"
	"sync"

	"github.com/segmentio/kafka-go"
)

// Writer 记录所有写入的消息
type Writer struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func NewWriter() *Writer {
	return &Writer{}
}

// FailWith 让之后的写入都返回 err，传 nil 恢复
func (w *Writer) FailWith(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.err = err
}

func (w *Writer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *Writer) Messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]kafka.Message, len(w.messages))
	copy(out, w.messages)
	return out
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *Writer) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Reader 按推入顺序返回消息，队列为空时阻塞直到 ctx 结束或 Close
type Reader struct {
	topic     string
	msgs      chan kafka.Message
	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	committed []kafka.Message
}

func NewReader(topic string, msgs ...kafka.Message) *Reader {
	r := &Reader{
		topic:  topic,
		msgs:   make(chan kafka.Message, len(msgs)+64),
		closed: make(chan struct{}),
	}
	for _, m := range msgs {
		r.Push(m)
	}
	return r
}

func (r *Reader) Push(msg kafka.Message) {
	if msg.Topic == "" {
		msg.Topic = r.topic
	}
	r.msgs <- msg
}

func (r *Reader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case <-r.closed:
		return kafka.Message{}, io.EOF
	}
}

func (r *Reader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *Reader) Committed() []kafka.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]kafka.Message, len(r.committed))
	copy(out, r.committed)
	return out
}

func (r *Reader) Config() kafka.ReaderConfig {
	return kafka.ReaderConfig{Topic: r.topic}
}

func (r *Reader) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	return nil
}
