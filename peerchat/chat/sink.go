package chat

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"time"
)

// Message is one plaintext chat line, either typed locally or received.
type Message struct {
	SenderID string
	// Timestamp is the sender-supplied time, second resolution.
	Timestamp time.Time
	// Time is when this side handled the message.
	Time     time.Time
	Text     string
	Outgoing bool
}

// Sink consumes chat lines as the loop handles them. Deliver is called from
// the receiver and the sender goroutines, so implementations must be safe for
// concurrent use.
type Sink interface {
	Deliver(Message)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Message)

func (f SinkFunc) Deliver(m Message) { f(m) }

// MultiSink fans a message out to every non-nil sink in order.
type MultiSink []Sink

func (ms MultiSink) Deliver(m Message) {
	for _, s := range ms {
		if s != nil {
			s.Deliver(m)
		}
	}
}

// LineReader yields lines of user input. It returns io.EOF when input ends.
type LineReader interface {
	ReadLine() (string, error)
}

type bufReader struct {
	r *bufio.Reader
}

// NewLineReader reads newline separated lines from r. Lines have no length
// limit; the line terminator is stripped.
func NewLineReader(r io.Reader) LineReader {
	return &bufReader{r: bufio.NewReader(r)}
}

func (b *bufReader) ReadLine() (string, error) {
	l, err := b.r.ReadString('\n')
	if err != nil && (l == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimRight(l, "\r\n"), nil
}
