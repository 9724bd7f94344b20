package commands

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TheusHen/p2pchat/peerchat/chat"
	"github.com/TheusHen/p2pchat/peerchat/transcript"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func TestAddAndListPeers(t *testing.T) {
	store := filepath.Join(t.TempDir(), "peers.json")

	if out := run(t, "--store", store, "add-peer", "alice", "10.0.0.1:9000"); out != "Peer 'alice' added.\n" {
		t.Fatalf("add-peer output %q", out)
	}
	run(t, "--store", store, "add-peer", "bob", "10.0.0.2:9000")
	run(t, "--store", store, "add-peer", "alice", "10.0.0.3:9000")

	out := run(t, "--store", store, "list-peers")
	want := "Saved peers:\n  - bob: 10.0.0.2:9000\n  - alice: 10.0.0.3:9000\n"
	if out != want {
		t.Fatalf("list-peers output %q, want %q", out, want)
	}
}

func TestLoadConfigSources(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "peerchat.yaml")
	yaml := "transport: quic\ndiscovery:\n  port: 9999\n  scan_timeout: 2s\nhandshake:\n  timeout: 3s\n"
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("PEERCHAT_LOG_LEVEL", "debug")
	t.Setenv("PEERCHAT_TRANSCRIPT_DIR", dir)

	fs := newRootCmd().PersistentFlags()
	cfg, err := loadConfig(fs, file)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Transport != "quic" || cfg.Discovery.Port != 9999 || cfg.Discovery.ScanTimeout != 2*time.Second {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Handshake.Timeout != 3*time.Second {
		t.Fatalf("handshake timeout = %v", cfg.Handshake.Timeout)
	}
	if cfg.Log.Level != "debug" || cfg.Transcript.Dir != dir {
		t.Fatalf("env values not applied: %+v", cfg)
	}
	if cfg.Discovery.Interval != 5*time.Second || !cfg.Discovery.Announce || cfg.Chat.Quit != "/quit" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Store.Path == "" {
		t.Fatalf("store path not defaulted")
	}

	if err := fs.Set("transport", "tcp"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	cfg, err = loadConfig(fs, file)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Transport != "tcp" {
		t.Fatalf("flag should override file, got %q", cfg.Transport)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	fs := newRootCmd().PersistentFlags()
	t.Setenv("PEERCHAT_TRANSPORT", "smoke-signals")
	if _, err := loadConfig(fs, ""); err == nil {
		t.Fatalf("expected invalid transport error")
	}

	t.Setenv("PEERCHAT_TRANSPORT", "tcp")
	t.Setenv("PEERCHAT_LOG_LEVEL", "loud")
	if _, err := loadConfig(fs, ""); err == nil {
		t.Fatalf("expected invalid log level error")
	}
}

func newPipedConsole(input string, out io.Writer) *Console {
	return &Console{in: chat.NewLineReader(strings.NewReader(input)), out: out, lines: make(chan inputLine)}
}

func TestConsoleReaderDoesNotStealLines(t *testing.T) {
	con := newPipedConsole("first\nsecond\n", io.Discard)

	ctx1, cancel1 := context.WithCancel(context.Background())
	r1 := con.Reader(ctx1)
	if l, err := r1.ReadLine(); err != nil || l != "first" {
		t.Fatalf("first ReadLine = %q, %v", l, err)
	}
	cancel1()
	if _, err := r1.ReadLine(); err != io.EOF {
		t.Fatalf("expected EOF after cancel, got %v", err)
	}

	r2 := con.Reader(context.Background())
	if l, err := r2.ReadLine(); err != nil || l != "second" {
		t.Fatalf("second reader got %q, %v", l, err)
	}
	for i := 0; i < 2; i++ {
		if _, err := r2.ReadLine(); err != io.EOF {
			t.Fatalf("expected EOF at end of input, got %v", err)
		}
	}
}

func TestConsolePipedLongLine(t *testing.T) {
	long := strings.Repeat("z", 100<<10)
	con := newPipedConsole(long+"\nnext\n", io.Discard)
	r := con.Reader(context.Background())
	if l, err := r.ReadLine(); err != nil || l != long {
		t.Fatalf("long line: %d bytes, %v", len(l), err)
	}
	if l, err := r.ReadLine(); err != nil || l != "next" {
		t.Fatalf("line after long one = %q, %v", l, err)
	}
}

func TestConsoleAsk(t *testing.T) {
	var out bytes.Buffer
	con := newPipedConsole("2\n", &out)
	got, err := con.Ask(context.Background(), "pick: ")
	if err != nil || got != "2" {
		t.Fatalf("Ask = %q, %v", got, err)
	}
	if out.String() != "pick: " {
		t.Fatalf("prompt output %q", out.String())
	}
}

func TestConsoleDeliverFormat(t *testing.T) {
	var out bytes.Buffer
	con := newPipedConsole("", &out)
	at := time.Date(2024, 1, 2, 12, 34, 56, 0, time.Local)
	con.Deliver(chat.Message{Time: at, Text: "hi"})
	con.Deliver(chat.Message{Time: at, Text: "yo", Outgoing: true})
	if out.String() != "12:34:56 Peer: hi\n12:34:56 You: yo\n" {
		t.Fatalf("output %q", out.String())
	}
}

func TestGroupFingerprint(t *testing.T) {
	if got := groupFingerprint("0123456789abcdef0123"); got != "0123 4567 89ab cdef 0123" {
		t.Fatalf("got %q", got)
	}
	if got := groupFingerprint("abcdef"); got != "abcd ef" {
		t.Fatalf("got %q", got)
	}
}

func TestTranscriptCommands(t *testing.T) {
	dir := t.TempDir()
	w, err := transcript.Create(dir, "feedface", transcript.LevelDefault)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)
	w.Deliver(chat.Message{Time: at, Text: "hello", Outgoing: true})
	w.Deliver(chat.Message{Time: at, Text: "hey"})
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	store := filepath.Join(dir, "peers.json")
	name := filepath.Base(w.Path())

	if out := run(t, "--store", store, "--transcript-dir", dir, "transcript", "list"); out != name+"\n" {
		t.Fatalf("list output %q", out)
	}
	out := run(t, "--store", store, "--transcript-dir", dir, "transcript", "show", name)
	want := "2024-01-02 03:04:05 You: hello\n2024-01-02 03:04:05 Peer: hey\n"
	if out != want {
		t.Fatalf("show output %q, want %q", out, want)
	}
}
