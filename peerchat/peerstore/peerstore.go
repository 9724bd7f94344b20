// Package peerstore keeps the alias to address book in a JSON file,
// by default ~/.p2p-chat.json.
package peerstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const DefaultFileName = ".p2p-chat.json"

var (
	ErrNotFound   = errors.New("peerstore: alias not found")
	ErrEmptyAlias = errors.New("peerstore: alias must not be empty")
)

// Peer is a saved alias. PubKeyB64 is kept for file compatibility and is not
// used for verification.
type Peer struct {
	Name      string  `json:"name"`
	Addr      string  `json:"addr"`
	PubKeyB64 *string `json:"pubkey_b64"`
}

type file struct {
	Peers []Peer `json:"peers"`
}

// Store is a file backed address book. Methods are safe for concurrent use
// within one process.
type Store struct {
	path  string
	mu    sync.Mutex
	peers []Peer
}

// DefaultPath returns ~/.p2p-chat.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("peerstore: locate home directory: %w", err)
	}
	return filepath.Join(home, DefaultFileName), nil
}

// Load reads the store at path. A missing or unreadable file yields an empty
// store; the returned error only reports why the contents were discarded.
func Load(path string) (*Store, error) {
	s := &Store{path: path}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("peerstore: read %s: %w", path, err)
	}
	var f file
	if err := json.Unmarshal(b, &f); err != nil {
		return s, fmt.Errorf("peerstore: parse %s: %w", path, err)
	}
	s.peers = f.Peers
	return s, nil
}

func (s *Store) Path() string { return s.path }

// Add saves addr under name, replacing any existing entry with that name.
func (s *Store) Add(name, addr string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyAlias
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.peers[:0]
	for _, p := range s.peers {
		if p.Name != name {
			kept = append(kept, p)
		}
	}
	s.peers = append(kept, Peer{Name: name, Addr: addr})
	return nil
}

func (s *Store) Get(name string) (Peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.peers {
		if p.Name == name {
			return p, nil
		}
	}
	return Peer{}, ErrNotFound
}

// Resolve returns the address saved under target, or target itself when it
// is not a known alias.
func (s *Store) Resolve(target string) string {
	if p, err := s.Get(target); err == nil {
		return p.Addr
	}
	return target
}

// List returns the saved peers in insertion order.
func (s *Store) List() []Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Peer(nil), s.peers...)
}

// Save writes the store as indented JSON via a temp file and rename.
func (s *Store) Save() error {
	s.mu.Lock()
	f := file{Peers: append([]Peer{}, s.peers...)}
	s.mu.Unlock()

	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFile(s.path, b, 0o600); err != nil {
		return fmt.Errorf("peerstore: save %s: %w", s.path, err)
	}
	return nil
}

// writeFile writes b to a temp file in the target directory, then atomically
// replaces path.
func writeFile(path string, b []byte, mode os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
