package vector

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Payload layout (little-endian):
//
//	magic   [4]byte "EMIX"
//	version uint32
//	dim     uint32
//	count   uint32
//	data    count*dim float32
//
// The examples live in a JSON sidecar at <path>.meta.
const (
	payloadVersion = 1
	headerSize     = 16

	// MetaSuffix is appended to the payload path to name the metadata sidecar.
	MetaSuffix = ".meta"

	normTolerance = 1e-3
)

var payloadMagic = [4]byte{'E', 'M', 'I', 'X'}

// MetaPath returns the sidecar path for an index payload path.
func MetaPath(path string) string {
	return path + MetaSuffix
}

// Persist writes the vector payload to path and the examples to path.meta.
// Both files are written to temporaries first and renamed into place.
func (x *Index) Persist(path string) error {
	if x.Size() == 0 {
		return ErrEmptyIndex
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	var payload bytes.Buffer
	w := bufio.NewWriter(&payload)
	header := []uint32{payloadVersion, uint32(x.dim), uint32(len(x.examples))}
	if _, err := w.Write(payloadMagic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, x.data); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush vectors: %w", err)
	}

	meta, err := json.Marshal(x.examples)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	if err := writeFileAtomic(path, payload.Bytes()); err != nil {
		return fmt.Errorf("write index payload: %w", err)
	}
	if err := writeFileAtomic(MetaPath(path), meta); err != nil {
		return fmt.Errorf("write index metadata: %w", err)
	}
	return nil
}

// Load reads an index written by Persist. It fails with ErrCorruptIndex when
// the payload is malformed, a stored vector is not unit length, or the vector
// count differs from the number of metadata records.
func Load(path string) (*Index, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read index payload: %w", err)
	}
	metaRaw, err := os.ReadFile(MetaPath(path))
	if err != nil {
		return nil, fmt.Errorf("read index metadata: %w", err)
	}

	if len(raw) < headerSize || !bytes.Equal(raw[:4], payloadMagic[:]) {
		return nil, fmt.Errorf("%w: bad header in %s", ErrCorruptIndex, path)
	}
	version := binary.LittleEndian.Uint32(raw[4:8])
	dim := int(binary.LittleEndian.Uint32(raw[8:12]))
	count := int(binary.LittleEndian.Uint32(raw[12:16]))
	if version != payloadVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, version)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("%w: dimension %d", ErrCorruptIndex, dim)
	}
	if want := headerSize + count*dim*4; len(raw) != want {
		return nil, fmt.Errorf("%w: payload is %d bytes, header implies %d", ErrCorruptIndex, len(raw), want)
	}

	var examples []Example
	if err := json.Unmarshal(metaRaw, &examples); err != nil {
		return nil, fmt.Errorf("%w: decode metadata: %v", ErrCorruptIndex, err)
	}
	if len(examples) != count {
		return nil, fmt.Errorf("%w: %d vectors but %d metadata records", ErrCorruptIndex, count, len(examples))
	}
	if count == 0 {
		return nil, ErrEmptyIndex
	}

	data := make([]float32, count*dim)
	for i := range data {
		off := headerSize + i*4
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off : off+4]))
	}

	for i := 0; i < count; i++ {
		n := norm(data[i*dim : (i+1)*dim])
		if math.IsNaN(n) || math.Abs(n-1) > normTolerance {
			return nil, fmt.Errorf("%w: vector %d has norm %f", ErrCorruptIndex, i, n)
		}
	}

	return &Index{dim: dim, data: data, examples: examples}, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
