package vector

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/kotae-ai/kotae/internal/models"
	"github.com/kotae-ai/kotae/pkg/utils"
)

// MemoryIndex is an in-memory vector index using brute-force inner product
// search, persisted as a snapshot file. Suitable for a single node and small
// to mid-size corpora; use the qdrant backend beyond that.
type MemoryIndex struct {
	dimensions int
	path       string
	records    []Record
	byID       map[string]int
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory index with the given dimension.
// path is where Flush writes the snapshot; empty disables persistence.
func NewMemoryIndex(dimensions int, path string) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		path:       path,
		byID:       make(map[string]int),
	}, nil
}

// Upsert inserts records, replacing any existing record with the same ID.
func (m *MemoryIndex) Upsert(ctx context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		if len(rec.Vector) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(rec.Vector), m.dimensions)
		}
		vec := make([]float32, m.dimensions)
		copy(vec, rec.Vector)
		rec.Vector = vec
		if i, ok := m.byID[rec.ID]; ok {
			m.records[i] = rec
			continue
		}
		m.byID[rec.ID] = len(m.records)
		m.records = append(m.records, rec)
	}
	return nil
}

// Search returns the tenant's top-k records by inner product. Other tenants'
// records are skipped before scoring.
func (m *MemoryIndex) Search(ctx context.Context, tenantID string, query []float32, k int) ([]*Hit, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 {
		return nil, nil
	}
	hits := make([]*Hit, 0, k)
	for i := range m.records {
		rec := &m.records[i]
		if rec.Payload.TenantID != tenantID {
			continue
		}
		hits = append(hits, &Hit{Payload: rec.Payload, Score: utils.Dot(query, rec.Vector)})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// DeleteDocument removes all records of the tenant's document.
func (m *MemoryIndex) DeleteDocument(ctx context.Context, tenantID, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	for _, rec := range m.records {
		if rec.Payload.TenantID == tenantID && rec.Payload.DocumentID == documentID {
			continue
		}
		kept = append(kept, rec)
	}
	m.records = kept
	m.byID = make(map[string]int, len(m.records))
	for i, rec := range m.records {
		m.byID[rec.ID] = i
	}
	return nil
}

// Flush writes the snapshot to a temp file and renames it into place, so a
// crash mid-write never corrupts the previous snapshot.
func (m *MemoryIndex) Flush() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	if err := m.writeSnapshot(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Snapshot format: dimension (4), n (4), then per record: idLen (4), id,
// payloadLen (4), payload JSON, vector (dimension*4 bytes). Little endian.
func (m *MemoryIndex) writeSnapshot(f *os.File) error {
	if err := binary.Write(f, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(m.records))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i := range m.records {
		rec := &m.records[i]
		idBytes := []byte(rec.ID)
		if err := binary.Write(f, binary.LittleEndian, uint32(len(idBytes))); err != nil {
			return fmt.Errorf("write id len: %w", err)
		}
		if _, err := f.Write(idBytes); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		if err := binary.Write(f, binary.LittleEndian, uint32(len(payload))); err != nil {
			return fmt.Errorf("write payload len: %w", err)
		}
		if _, err := f.Write(payload); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
		if _, err := f.Write(float32SliceToBytes(rec.Vector)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads the snapshot and replaces the in-memory contents. Dimensions
// must match. A missing file is not an error; the index starts empty.
func (m *MemoryIndex) Load() error {
	if m.path == "" {
		return nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	var dim, n uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("dimension mismatch: snapshot has %d, index expects %d", dim, m.dimensions)
	}
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make([]Record, 0, n)
	m.byID = make(map[string]int, n)
	vecBuf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var idLen uint32
		if err := binary.Read(f, binary.LittleEndian, &idLen); err != nil {
			return fmt.Errorf("read id len: %w", err)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(f, idBytes); err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		var payloadLen uint32
		if err := binary.Read(f, binary.LittleEndian, &payloadLen); err != nil {
			return fmt.Errorf("read payload len: %w", err)
		}
		payloadBytes := make([]byte, payloadLen)
		if _, err := io.ReadFull(f, payloadBytes); err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		var payload models.ChunkPayload
		if err := json.Unmarshal(payloadBytes, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		if _, err := io.ReadFull(f, vecBuf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		rec := Record{
			ID:      string(idBytes),
			Vector:  bytesToFloat32Slice(vecBuf),
			Payload: payload,
		}
		m.byID[rec.ID] = len(m.records)
		m.records = append(m.records, rec)
	}
	return nil
}

// Size returns the number of records in the index across all tenants.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close flushes the snapshot.
func (m *MemoryIndex) Close() error {
	return m.Flush()
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
