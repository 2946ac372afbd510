package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/ragdocs/internal/apperr"
)

// memoryIndexMagic prefixes persisted MemoryIndex files.
const memoryIndexMagic uint32 = 0x52444931 // "RDI1"

// MemoryIndex is an in-process index using brute-force inner product search.
// When a path is set, the index is loaded from it at construction and rewritten
// after every mutation.
type MemoryIndex struct {
	dimensions int
	path       string
	records    []Record
	pos        map[string]int
	mu         sync.RWMutex
}

// MemoryOption configures a MemoryIndex.
type MemoryOption func(*MemoryIndex)

// WithPersistPath persists the index at path.
func WithPersistPath(path string) MemoryOption {
	return func(m *MemoryIndex) {
		m.path = path
	}
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int, opts ...MemoryOption) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	m := &MemoryIndex{
		dimensions: dimensions,
		pos:        make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.Load(m.path); err != nil {
		return nil, err
	}
	return m, nil
}

// Upsert writes records, overwriting any record with the same ID.
func (m *MemoryIndex) Upsert(ctx context.Context, records []Record) error {
	for _, r := range records {
		if len(r.Vector) != m.dimensions {
			return apperr.VectorStore(
				fmt.Sprintf("vector dimension mismatch: got %d, expected %d", len(r.Vector), m.dimensions), nil)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		rec := cloneRecord(r)
		if i, ok := m.pos[r.ID]; ok {
			m.records[i] = rec
			continue
		}
		m.pos[r.ID] = len(m.records)
		m.records = append(m.records, rec)
	}
	return m.persistLocked()
}

// Query returns the top-k records matching filter by inner product.
// Ties keep insertion order.
func (m *MemoryIndex) Query(ctx context.Context, query []float32, k int, filter Filter) ([]Match, error) {
	if len(query) != m.dimensions {
		return nil, apperr.VectorStore(
			fmt.Sprintf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions), nil)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 {
		return []Match{}, nil
	}
	matches := make([]Match, 0)
	for _, r := range m.records {
		if !filter.Matches(r.Metadata) {
			continue
		}
		matches = append(matches, Match{Record: r, Score: InnerProduct(query, r.Vector)})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// Get returns up to limit records matching filter in insertion order.
// A limit of zero or less returns all matches.
func (m *MemoryIndex) Get(ctx context.Context, filter Filter, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0)
	for _, r := range m.records {
		if limit > 0 && len(out) >= limit {
			break
		}
		if filter.Matches(r.Metadata) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Delete removes every record matching filter.
func (m *MemoryIndex) Delete(ctx context.Context, filter Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		if !filter.Matches(r.Metadata) {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(m.records) {
		return nil
	}
	m.records = kept
	m.pos = make(map[string]int, len(kept))
	for i, r := range kept {
		m.pos[r.ID] = i
	}
	return m.persistLocked()
}

// Count returns the number of records matching filter.
func (m *MemoryIndex) Count(ctx context.Context, filter Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(filter) == 0 {
		return len(m.records), nil
	}
	n := 0
	for _, r := range m.records {
		if filter.Matches(r.Metadata) {
			n++
		}
	}
	return n, nil
}

// Size returns the number of records in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close is a no-op for MemoryIndex; mutations are already persisted.
func (m *MemoryIndex) Close() error {
	return nil
}

func (m *MemoryIndex) persistLocked() error {
	if m.path == "" {
		return nil
	}
	if err := m.saveLocked(m.path); err != nil {
		return apperr.VectorStore("persist index", err)
	}
	return nil
}

func cloneRecord(r Record) Record {
	vec := make([]float32, len(r.Vector))
	copy(vec, r.Vector)
	md := make(map[string]string, len(r.Metadata))
	for k, v := range r.Metadata {
		md[k] = v
	}
	return Record{ID: r.ID, Vector: vec, Text: r.Text, Metadata: md}
}

// Save persists the index to path. Directory is created if needed. Format: magic (4),
// dimension (4), n (4), then per record: id, vector (dimension*4 bytes), text, and
// metadata as a pair count followed by key/value strings. Strings are length-prefixed (4).
func (m *MemoryIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveLocked(path)
}

func (m *MemoryIndex) saveLocked(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := m.encode(w); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush index file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace index file: %w", err)
	}
	return nil
}

func (m *MemoryIndex) encode(w io.Writer) error {
	header := []uint32{memoryIndexMagic, uint32(m.dimensions), uint32(len(m.records))}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range m.records {
		if err := writeString(w, r.ID); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := w.Write(float32SliceToBytes(r.Vector)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
		if err := writeString(w, r.Text); err != nil {
			return fmt.Errorf("write text: %w", err)
		}
		keys := make([]string, 0, len(r.Metadata))
		for k := range r.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if err := binary.Write(w, binary.LittleEndian, uint32(len(keys))); err != nil {
			return fmt.Errorf("write metadata count: %w", err)
		}
		for _, k := range keys {
			if err := writeString(w, k); err != nil {
				return fmt.Errorf("write metadata key: %w", err)
			}
			if err := writeString(w, r.Metadata[k]); err != nil {
				return fmt.Errorf("write metadata value: %w", err)
			}
		}
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents. Dimensions must match.
// If the file does not exist, no error is returned and the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var header [3]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if header[0] != memoryIndexMagic {
		return fmt.Errorf("not a vector index file: %s", path)
	}
	if int(header[1]) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", header[1], m.dimensions)
	}
	n := int(header[2])
	records := make([]Record, 0, n)
	buf := make([]byte, m.dimensions*4)
	for i := 0; i < n; i++ {
		id, err := readString(r)
		if err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		text, err := readString(r)
		if err != nil {
			return fmt.Errorf("read text: %w", err)
		}
		var pairs uint32
		if err := binary.Read(r, binary.LittleEndian, &pairs); err != nil {
			return fmt.Errorf("read metadata count: %w", err)
		}
		md := make(map[string]string, pairs)
		for j := uint32(0); j < pairs; j++ {
			k, err := readString(r)
			if err != nil {
				return fmt.Errorf("read metadata key: %w", err)
			}
			v, err := readString(r)
			if err != nil {
				return fmt.Errorf("read metadata value: %w", err)
			}
			md[k] = v
		}
		records = append(records, Record{ID: id, Vector: bytesToFloat32Slice(buf), Text: text, Metadata: md})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = records
	m.pos = make(map[string]int, len(records))
	for i, rec := range records {
		m.pos[rec.ID] = i
	}
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
