// Package archive implements the named-property container used to persist
// field data. An archive is a flat map of property name to raw bytes; typed
// accessors encode scalars little-endian. On disk the archive is a JSON
// header line followed by a gob-encoded property map, zstd-compressed.
package archive

import (
	"bufio"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
)

// Version is the archive format version written into the header.
const Version = 1

// ErrMissingProperty is returned by the Get accessors when a property is absent.
var ErrMissingProperty = errors.New("archive: missing property")

// Header is the uncompressed-looking first line of an archive stream.
type Header struct {
	Version    int      `json:"version"`
	Kind       string   `json:"kind"`
	Properties []string `json:"properties"`
}

// Archive is an ordered-on-write set of named binary properties.
type Archive struct {
	Kind  string
	props map[string][]byte
}

// New returns an empty archive tagged with kind (for example "volume").
func New(kind string) *Archive {
	return &Archive{Kind: kind, props: make(map[string][]byte)}
}

// Has reports whether the named property is present.
func (a *Archive) Has(name string) bool {
	_, ok := a.props[name]
	return ok
}

// Names returns the property names in sorted order.
func (a *Archive) Names() []string {
	names := make([]string, 0, len(a.props))
	for k := range a.props {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// PutBytes stores raw bytes under name.
func (a *Archive) PutBytes(name string, b []byte) {
	a.props[name] = b
}

// GetBytes returns the raw bytes stored under name.
func (a *Archive) GetBytes(name string) ([]byte, error) {
	b, ok := a.props[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingProperty, name)
	}
	return b, nil
}

// PutUint32 stores a little-endian uint32.
func (a *Archive) PutUint32(name string, v uint32) {
	a.props[name] = binary.LittleEndian.AppendUint32(nil, v)
}

// GetUint32 reads a property written by PutUint32.
func (a *Archive) GetUint32(name string) (uint32, error) {
	b, err := a.GetBytes(name)
	if err != nil {
		return 0, err
	}
	if len(b) != 4 {
		return 0, fmt.Errorf("archive: property %q: want 4 bytes, have %d", name, len(b))
	}
	return binary.LittleEndian.Uint32(b), nil
}

// PutFloat32 stores a float32 by its IEEE-754 bits.
func (a *Archive) PutFloat32(name string, v float32) {
	a.PutUint32(name, math.Float32bits(v))
}

// GetFloat32 reads a property written by PutFloat32.
func (a *Archive) GetFloat32(name string) (float32, error) {
	u, err := a.GetUint32(name)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(u), nil
}

// PutString stores a UTF-8 string.
func (a *Archive) PutString(name, v string) {
	a.props[name] = []byte(v)
}

// GetString reads a property written by PutString.
func (a *Archive) GetString(name string) (string, error) {
	b, err := a.GetBytes(name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// PutJSON stores v as JSON. Used for small structured properties.
func (a *Archive) PutJSON(name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("archive: encode %q: %w", name, err)
	}
	a.props[name] = b
	return nil
}

// GetJSON decodes a property written by PutJSON into v.
func (a *Archive) GetJSON(name string, v any) error {
	b, err := a.GetBytes(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("archive: decode %q: %w", name, err)
	}
	return nil
}

// Write serializes the archive to w.
func (a *Archive) Write(w io.Writer) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("archive: zstd writer: %w", err)
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, err := json.Marshal(Header{Version: Version, Kind: a.Kind, Properties: a.Names()})
	if err != nil {
		enc.Close()
		return fmt.Errorf("archive: header: %w", err)
	}
	hb = append(hb, '\n')
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return fmt.Errorf("archive: header: %w", err)
	}
	if err := gob.NewEncoder(bw).Encode(a.props); err != nil {
		enc.Close()
		return fmt.Errorf("archive: gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return fmt.Errorf("archive: flush: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("archive: zstd close: %w", err)
	}
	return nil
}

// Read deserializes an archive written by Write.
func Read(r io.Reader) (*Archive, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("archive: zstd reader: %w", err)
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("archive: header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return nil, fmt.Errorf("archive: header: %w", err)
	}
	if h.Version != Version {
		return nil, fmt.Errorf("archive: unsupported version %d", h.Version)
	}

	a := New(h.Kind)
	if err := gob.NewDecoder(br).Decode(&a.props); err != nil {
		return nil, fmt.Errorf("archive: gob decode: %w", err)
	}
	if a.props == nil {
		a.props = make(map[string][]byte)
	}
	return a, nil
}

// WriteFile writes the archive to path, creating parent directories.
func (a *Archive) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if err := a.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile reads an archive from path.
func ReadFile(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	defer f.Close()
	return Read(f)
}
