// Package transcript records chat sessions to lz4 compressed files.
//
// A transcript is an lz4 frame containing one JSON record per line. Writers
// flush after every record so an interrupted session still leaves a readable
// prefix.
package transcript

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/TheusHen/p2pchat/peerchat/chat"
)

const Ext = ".jsonl.lz4"

var ErrClosed = errors.New("transcript: writer closed")

// Level controls the speed/ratio tradeoff.
type Level int

const (
	LevelFast Level = iota
	LevelDefault
	LevelBest
)

func (l Level) option() lz4.Option {
	switch l {
	case LevelFast:
		return lz4.CompressionLevelOption(lz4.Fast)
	case LevelBest:
		return lz4.CompressionLevelOption(lz4.Level9)
	default:
		return lz4.CompressionLevelOption(lz4.Level4)
	}
}

type Direction string

const (
	Incoming Direction = "in"
	Outgoing Direction = "out"
)

// Record is one line of a transcript.
type Record struct {
	Time      time.Time `json:"time"`
	Direction Direction `json:"dir"`
	SenderID  string    `json:"sender"`
	Text      string    `json:"text"`
}

// Writer is a chat.Sink that appends every message to a transcript. It is
// safe for concurrent use. Write failures are sticky and reported by Close.
type Writer struct {
	mu   sync.Mutex
	dst  io.WriteCloser
	zw   *lz4.Writer
	enc  *json.Encoder
	path string
	err  error
}

var _ chat.Sink = (*Writer)(nil)

// NewWriter compresses records into dst. Close closes dst.
func NewWriter(dst io.WriteCloser, level Level) (*Writer, error) {
	zw := lz4.NewWriter(dst)
	if err := zw.Apply(level.option()); err != nil {
		return nil, fmt.Errorf("transcript: configure lz4: %w", err)
	}
	return &Writer{dst: dst, zw: zw, enc: json.NewEncoder(zw)}, nil
}

// Create starts a new transcript file in dir named after the current time
// and the session fingerprint.
func Create(dir, fingerprint string, level Level) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("transcript: create dir: %w", err)
	}
	name := time.Now().UTC().Format("20060102T150405Z")
	if fingerprint != "" {
		name += "-" + fingerprint
	}
	path := filepath.Join(dir, name+Ext)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}
	w, err := NewWriter(f, level)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.path = path
	return w, nil
}

// Path is the file backing w, if it was made by Create.
func (w *Writer) Path() string { return w.path }

func (w *Writer) Deliver(m chat.Message) {
	dir := Incoming
	if m.Outgoing {
		dir = Outgoing
	}
	_ = w.Append(Record{Time: m.Time, Direction: dir, SenderID: m.SenderID, Text: m.Text})
}

func (w *Writer) Append(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if err := w.enc.Encode(r); err != nil {
		w.err = fmt.Errorf("transcript: write: %w", err)
		return w.err
	}
	if err := w.zw.Flush(); err != nil {
		w.err = fmt.Errorf("transcript: flush: %w", err)
		return w.err
	}
	return nil
}

// Close finishes the lz4 frame and closes the destination.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if errors.Is(w.err, ErrClosed) {
		return nil
	}
	werr := w.err
	if err := w.zw.Close(); err != nil && werr == nil {
		werr = fmt.Errorf("transcript: close: %w", err)
	}
	if err := w.dst.Close(); err != nil && werr == nil {
		werr = err
	}
	w.err = ErrClosed
	return werr
}

// Read decodes every record in r. On a truncated or corrupt transcript it
// returns the records read so far together with the error.
func Read(r io.Reader) ([]Record, error) {
	sc := bufio.NewScanner(lz4.NewReader(r))
	sc.Buffer(make([]byte, 64*1024), 8<<20)
	var out []Record
	for sc.Scan() {
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return out, fmt.Errorf("transcript: record %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("transcript: %w", err)
	}
	return out, nil
}

func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// List returns the transcript files in dir, oldest first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), Ext) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}
