// Package repro persists failure reproducers.
//
// A reproducer is self-contained: the minimal failing graph in canonical
// trace text, the captured input shapes and values, and the stage/signal of
// the original failure. Payloads are msgpack on disk, keyed by the digest
// of the canonical graph text, written atomically.
package repro

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"triage/internal/backend"
	"triage/internal/graph"
)

// Current schema version - increment when Payload format changes
const storeSchemaVersion uint16 = 1

// Digest identifies a reproducer by its canonical graph text.
type Digest [32]byte

// DigestOf hashes the canonical text of g.
func DigestOf(g *graph.Graph) Digest {
	return sha256.Sum256([]byte(graph.Text(g)))
}

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// InputRecord is one captured runtime input.
type InputRecord struct {
	Name  string
	Shape []int
	Dtype uint8
	Data  []float64
}

// Payload stores one reproducer on disk.
type Payload struct {
	// Schema version for safe invalidation when format changes
	Schema uint16

	Site      string
	Stage     string // failing pipeline stage
	Signal    string // raw error signal
	Backend   string
	Script    string // canonical trace text of the minimal graph
	Inputs    []InputRecord
	Evals     int   // predicate evaluations the minification spent
	CreatedAt int64 // unix seconds
}

// Store хранит репродьюсеры по Digest на диске.
// Thread-safe for concurrent access.
type Store struct {
	mu  sync.RWMutex
	dir string
}

// Open initializes a store at the standard cache location.
func Open(app string) (*Store, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return OpenAt(filepath.Join(base, app))
}

// OpenAt initializes a store rooted at dir.
func OpenAt(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func (s *Store) pathFor(key Digest) string {
	// Подкаталог "repros" упрощает просмотр и очистку кэша.
	return filepath.Join(s.dir, "repros", key.String()+".mp")
}

// Put serializes and writes a payload atomically.
func (s *Store) Put(key Digest, payload *Payload) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	payload.Schema = storeSchemaVersion
	if payload.CreatedAt == 0 {
		payload.CreatedAt = time.Now().Unix()
	}

	p := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		_ = os.Remove(tmp)
	}()

	enc := msgpack.NewEncoder(f)
	if err := enc.Encode(payload); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// Get reads a payload; returns os.ErrNotExist if absent and an error for
// schema mismatches.
func (s *Store) Get(key Digest) (*Payload, error) {
	if s == nil {
		return nil, os.ErrNotExist
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.pathFor(key))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var payload Payload
	if err := msgpack.NewDecoder(f).Decode(&payload); err != nil {
		return nil, fmt.Errorf("corrupt reproducer %s: %w", key, err)
	}
	if payload.Schema != storeSchemaVersion {
		return nil, fmt.Errorf("reproducer %s: schema %d, want %d", key, payload.Schema, storeSchemaVersion)
	}
	return &payload, nil
}

// List returns the stored digests in sorted order.
func (s *Store) List() ([]Digest, error) {
	if s == nil {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, "repros"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []Digest
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) != ".mp" {
			continue
		}
		raw, err := hex.DecodeString(name[:len(name)-len(".mp")])
		if err != nil || len(raw) != len(Digest{}) {
			continue
		}
		var d Digest
		copy(d[:], raw)
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// NewPayload assembles a payload from a minimal graph and its inputs.
func NewPayload(site string, g *graph.Graph, inputs backend.Inputs, stage graph.Stage, backendID, signal string, evals int) *Payload {
	p := &Payload{
		Site:    site,
		Stage:   stage.String(),
		Signal:  signal,
		Backend: backendID,
		Script:  graph.Text(g),
		Evals:   evals,
	}
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := inputs[name]
		p.Inputs = append(p.Inputs, InputRecord{
			Name:  name,
			Shape: append([]int(nil), v.Shape...),
			Dtype: uint8(v.Dtype),
			Data:  append([]float64(nil), v.Data...),
		})
	}
	return p
}
