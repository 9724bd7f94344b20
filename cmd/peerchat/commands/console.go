package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/chzyer/readline"

	"github.com/TheusHen/p2pchat/peerchat/chat"
)

const prompt = "> "

type inputLine struct {
	text string
	err  error
}

// Console owns the terminal. A single goroutine reads input lines; chats and
// prompts borrow them through session readers so a finished chat never
// swallows a line meant for the next one.
type Console struct {
	rl  *readline.Instance
	in  chat.LineReader // used when stdin is not a terminal
	out io.Writer

	// Interrupt is called on Ctrl+C in readline mode.
	Interrupt func()

	once  sync.Once
	lines chan inputLine
	mu    sync.Mutex // serializes writes to out
}

// NewConsole uses readline on a terminal and falls back to a plain scanner.
func NewConsole() *Console {
	c := &Console{lines: make(chan inputLine)}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
	})
	if err == nil {
		c.rl = rl
		c.out = rl.Stdout()
		return c
	}
	c.in = chat.NewLineReader(os.Stdin)
	c.out = os.Stdout
	return c
}

func (c *Console) Close() error {
	if c.rl != nil {
		return c.rl.Close()
	}
	return nil
}

func (c *Console) start() {
	c.once.Do(func() { go c.pump() })
}

func (c *Console) pump() {
	for {
		text, err := c.readRaw()
		if errors.Is(err, readline.ErrInterrupt) {
			if c.Interrupt != nil {
				c.Interrupt()
			}
			err = io.EOF
		}
		c.lines <- inputLine{text, err}
		if err != nil {
			// Input is gone for good; keep answering EOF.
			for {
				c.lines <- inputLine{err: err}
			}
		}
	}
}

func (c *Console) readRaw() (string, error) {
	if c.rl != nil {
		return c.rl.Readline()
	}
	return c.in.ReadLine()
}

// Reader returns a chat.LineReader bound to ctx. Once ctx is done it reports
// io.EOF without consuming input.
func (c *Console) Reader(ctx context.Context) chat.LineReader {
	c.start()
	return &sessionReader{ctx: ctx, c: c}
}

type sessionReader struct {
	ctx context.Context
	c   *Console
}

func (r *sessionReader) ReadLine() (string, error) {
	if r.ctx.Err() != nil {
		return "", io.EOF
	}
	if r.c.in != nil {
		r.c.Printf("%s", prompt)
	}
	select {
	case l := <-r.c.lines:
		return l.text, l.err
	case <-r.ctx.Done():
		return "", io.EOF
	}
}

// Ask prints question and returns the next input line.
func (c *Console) Ask(ctx context.Context, question string) (string, error) {
	c.start()
	if c.rl != nil {
		c.rl.SetPrompt(question)
		defer c.rl.SetPrompt(prompt)
	} else {
		c.Printf("%s", question)
	}
	select {
	case l := <-c.lines:
		return l.text, l.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) Println(args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, args...)
}

// Deliver prints a chat line as "HH:MM:SS Peer: text" or "HH:MM:SS You: text".
func (c *Console) Deliver(m chat.Message) {
	who := "Peer"
	if m.Outgoing {
		who = "You"
	}
	c.Printf("%s %s: %s\n", m.Time.Local().Format("15:04:05"), who, m.Text)
}
