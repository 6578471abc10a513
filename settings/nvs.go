package settings

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"gorbl/protocol"
)

var (
	// ErrNotFound is returned when a block was never written
	ErrNotFound = errors.New("nvs block not found")

	// ErrChecksum is returned when a block fails its CRC check
	ErrChecksum = errors.New("nvs block checksum mismatch")
)

// Backend stores named NVS blocks
type Backend interface {
	Load(name string) ([]byte, error)
	Save(name string, data []byte) error
}

// MemoryBackend keeps blocks in memory
type MemoryBackend struct {
	mu     sync.Mutex
	blocks map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{blocks: make(map[string][]byte)}
}

func (m *MemoryBackend) Load(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blocks[name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *MemoryBackend) Save(name string, data []byte) error {
	m.mu.Lock()
	m.blocks[name] = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}

// Corrupt flips a byte of a stored block; used to exercise checksum handling
func (m *MemoryBackend) Corrupt(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b := m.blocks[name]; len(b) > 0 {
		b[0] ^= 0xFF
	}
}

// FileBackend stores each block as a file below Dir
type FileBackend struct {
	Dir string
}

func (f FileBackend) path(name string) string {
	return filepath.Join(f.Dir, name+".nvs")
}

func (f FileBackend) Load(name string) ([]byte, error) {
	data, err := os.ReadFile(f.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Save writes a temp file and renames it so a block is never half written
func (f FileBackend) Save(name string, data []byte) error {
	if err := os.MkdirAll(f.Dir, 0o755); err != nil {
		return err
	}
	tmp := f.path(name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path(name))
}

// writeBlock encodes v with msgpack and appends a CRC16 trailer
func writeBlock(b Backend, name string, v interface{}) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	data = binary.LittleEndian.AppendUint16(data, protocol.Checksum(data))
	if err := b.Save(name, data); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// readBlock loads and verifies a block and decodes it into v
func readBlock(b Backend, name string, v interface{}) error {
	data, err := b.Load(name)
	if err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	if len(data) < 2 {
		return fmt.Errorf("load %s: %w", name, ErrChecksum)
	}
	body, trailer := data[:len(data)-2], data[len(data)-2:]
	if protocol.Checksum(body) != binary.LittleEndian.Uint16(trailer) {
		return fmt.Errorf("load %s: %w", name, ErrChecksum)
	}
	if err := msgpack.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}
