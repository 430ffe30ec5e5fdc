package corssh

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Persisted descriptor catalog. Scanning a large directory reads every pass
// header of every file; the catalog memoizes descriptors across runs so only
// new or changed files are rescanned. It is an optimization only: a missing,
// stale, or corrupt catalog is rebuilt from scratch.
//
// File structure:
//   Header (16 bytes):
//     - Magic (4): "CSCT"
//     - Version (2): 1
//     - Reserved (2)
//     - EntryCount (4)
//     - Checksum (4): CRC32 of the uncompressed body
//   Body (zstd):
//     - per entry: u16 path length, path bytes, i64 size, i64 mtime ms,
//       i64 start ms, i64 end ms, i32 passes, i64 records

const (
	catalogMagic      = "CSCT"
	catalogVersion    = 1
	catalogHeaderSize = 16

	// catalogMaxEntries bounds the persisted cache; oldest entries are
	// evicted first.
	catalogMaxEntries = 65536
)

// Catalog is a bounded, process-wide cache of file descriptors, loaded once
// on first use and rewritten only when a scan adds entries.
type Catalog struct {
	mu      sync.Mutex
	path    string
	entries map[string]FileDescriptor
	order   []string
	loaded  bool
	dirty   bool
}

// OpenCatalog returns a catalog backed by the given file. The file is not
// read until the first lookup.
func OpenCatalog(path string) *Catalog {
	return &Catalog{path: path, entries: make(map[string]FileDescriptor)}
}

var (
	defaultCatalogOnce sync.Once
	defaultCatalog     *Catalog
)

// DefaultCatalog returns the process-wide catalog stored under the user
// cache directory, or nil when no cache directory is available.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		dir, err := os.UserCacheDir()
		if err != nil {
			return
		}
		defaultCatalog = OpenCatalog(filepath.Join(dir, "corssh", "catalog.zst"))
	})
	return defaultCatalog
}

// Lookup returns the cached descriptor for path when the file's size and
// modification time still match the entry.
func (c *Catalog) Lookup(path string) (FileDescriptor, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return FileDescriptor{}, false
	}
	st, err := os.Stat(path)
	if err != nil {
		return FileDescriptor{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load()
	desc, ok := c.entries[abs]
	if !ok || desc.Size != st.Size() || desc.ModTimeMs != st.ModTime().UnixMilli() {
		return FileDescriptor{}, false
	}
	desc.Path = path
	return desc, true
}

// Put records a freshly scanned descriptor.
func (c *Catalog) Put(desc FileDescriptor) {
	abs, err := filepath.Abs(desc.Path)
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.load()
	if _, exists := c.entries[abs]; !exists {
		for len(c.entries) >= catalogMaxEntries && len(c.order) > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, abs)
	}
	desc.Path = abs
	c.entries[abs] = desc
	c.dirty = true
}

// Flush rewrites the catalog file if any entries were added since the last
// load or flush.
func (c *Catalog) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty {
		return nil
	}
	if err := c.save(); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// load reads the catalog file once per process. Any validation failure
// (magic, version, checksum, malformed body) discards the file.
func (c *Catalog) load() {
	if c.loaded {
		return
	}
	c.loaded = true
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return
	}
	entries, order, err := decodeCatalog(raw)
	if err != nil {
		return
	}
	c.entries = entries
	c.order = order
}

func decodeCatalog(raw []byte) (map[string]FileDescriptor, []string, error) {
	if len(raw) < catalogHeaderSize {
		return nil, nil, errors.New("catalog too short")
	}
	if string(raw[0:4]) != catalogMagic {
		return nil, nil, errors.New("bad catalog magic")
	}
	if binary.LittleEndian.Uint16(raw[4:6]) != catalogVersion {
		return nil, nil, errors.New("catalog version mismatch")
	}
	count := binary.LittleEndian.Uint32(raw[8:12])
	sum := binary.LittleEndian.Uint32(raw[12:16])

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, nil, err
	}
	defer dec.Close()
	body, err := dec.DecodeAll(raw[catalogHeaderSize:], nil)
	if err != nil {
		return nil, nil, err
	}
	if crc32.ChecksumIEEE(body) != sum {
		return nil, nil, errors.New("catalog checksum mismatch")
	}

	entries := make(map[string]FileDescriptor, count)
	order := make([]string, 0, count)
	off := 0
	for i := uint32(0); i < count; i++ {
		if off+2 > len(body) {
			return nil, nil, errors.New("catalog body truncated")
		}
		plen := int(binary.LittleEndian.Uint16(body[off : off+2]))
		off += 2
		if off+plen+44 > len(body) {
			return nil, nil, errors.New("catalog body truncated")
		}
		path := string(body[off : off+plen])
		off += plen
		desc := FileDescriptor{Path: path}
		desc.Size = int64(binary.LittleEndian.Uint64(body[off : off+8]))
		desc.ModTimeMs = int64(binary.LittleEndian.Uint64(body[off+8 : off+16]))
		desc.StartMs = int64(binary.LittleEndian.Uint64(body[off+16 : off+24]))
		desc.EndMs = int64(binary.LittleEndian.Uint64(body[off+24 : off+32]))
		desc.Passes = int(int32(binary.LittleEndian.Uint32(body[off+32 : off+36])))
		desc.Records = int64(binary.LittleEndian.Uint64(body[off+36 : off+44]))
		off += 44
		entries[path] = desc
		order = append(order, path)
	}
	return entries, order, nil
}

func (c *Catalog) save() error {
	var body bytes.Buffer
	var scratch [44]byte
	written := 0
	for _, path := range c.order {
		desc, ok := c.entries[path]
		if !ok || len(path) > 0xFFFF {
			continue
		}
		written++
		binary.LittleEndian.PutUint16(scratch[:2], uint16(len(path)))
		body.Write(scratch[:2])
		body.WriteString(path)
		binary.LittleEndian.PutUint64(scratch[0:8], uint64(desc.Size))
		binary.LittleEndian.PutUint64(scratch[8:16], uint64(desc.ModTimeMs))
		binary.LittleEndian.PutUint64(scratch[16:24], uint64(desc.StartMs))
		binary.LittleEndian.PutUint64(scratch[24:32], uint64(desc.EndMs))
		binary.LittleEndian.PutUint32(scratch[32:36], uint32(int32(desc.Passes)))
		binary.LittleEndian.PutUint64(scratch[36:44], uint64(desc.Records))
		body.Write(scratch[:44])
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return err
	}
	compressed := enc.EncodeAll(body.Bytes(), nil)
	if err := enc.Close(); err != nil {
		return err
	}

	out := make([]byte, catalogHeaderSize, catalogHeaderSize+len(compressed))
	copy(out[0:4], catalogMagic)
	binary.LittleEndian.PutUint16(out[4:6], catalogVersion)
	binary.LittleEndian.PutUint32(out[8:12], uint32(written))
	binary.LittleEndian.PutUint32(out[12:16], crc32.ChecksumIEEE(body.Bytes()))
	out = append(out, compressed...)

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("corssh: catalog dir: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("corssh: write catalog: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("corssh: replace catalog: %w", err)
	}
	return nil
}
