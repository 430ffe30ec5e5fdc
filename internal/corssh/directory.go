package corssh

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileDescriptor is the memoized summary of one data file: computed once by
// a full scan and immutable afterwards.
type FileDescriptor struct {
	Path    string
	StartMs int64
	EndMs   int64
	Passes  int
	Records int64

	// Size and ModTimeMs validate persisted catalog entries against the
	// file on disk.
	Size      int64
	ModTimeMs int64
}

// DiscoverFiles recursively enumerates data files beneath root. A root that
// is itself a data file is returned as-is.
func DiscoverFiles(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err == nil && !info.IsDir() {
		if strings.EqualFold(filepath.Ext(root), DataFileExt) {
			return []string{root}, nil
		}
		return nil, fmt.Errorf("corssh: %s is not a %s file", root, DataFileExt)
	}
	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), DataFileExt) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("corssh: walk %s: %w", root, err)
	}
	return paths, nil
}

// ScanFile builds the descriptor for one file by a full header scan.
func ScanFile(path string) (FileDescriptor, error) {
	st, err := os.Stat(path)
	if err != nil {
		return FileDescriptor{}, fmt.Errorf("corssh: stat %s: %w", path, err)
	}
	dec, err := OpenFile(path)
	if err != nil {
		return FileDescriptor{}, err
	}
	defer dec.Close()
	if err := dec.scan(); err != nil {
		return FileDescriptor{}, err
	}
	return FileDescriptor{
		Path:      path,
		StartMs:   dec.startMs,
		EndMs:     dec.endMs,
		Passes:    dec.passes,
		Records:   dec.records,
		Size:      st.Size(),
		ModTimeMs: st.ModTime().UnixMilli(),
	}, nil
}

// DirectorySource presents every data file beneath one or more roots as a
// single chronological RecordSource. Only one underlying decoder is open at
// a time.
type DirectorySource struct {
	descs []FileDescriptor
	idx   int
	dec   *FileDecoder
	cur   Record
	blank bool
}

// OpenDirectory scans root recursively and builds a directory source,
// consulting the process-wide descriptor catalog when available.
func OpenDirectory(root string) (*DirectorySource, error) {
	return OpenDirectories([]string{root})
}

// OpenDirectories builds a directory source over several roots (directories
// or individual data files).
func OpenDirectories(roots []string) (*DirectorySource, error) {
	return openDirectories(roots, DefaultCatalog())
}

// OpenDirectoriesNoCache builds a directory source without touching the
// persisted descriptor catalog.
func OpenDirectoriesNoCache(roots []string) (*DirectorySource, error) {
	return openDirectories(roots, nil)
}

func openDirectories(roots []string, cat *Catalog) (*DirectorySource, error) {
	var descs []FileDescriptor
	for _, root := range roots {
		paths, err := DiscoverFiles(root)
		if err != nil {
			return nil, err
		}
		for _, path := range paths {
			desc, err := describeFile(path, cat)
			if err != nil {
				return nil, err
			}
			if desc.Records == 0 {
				continue
			}
			descs = append(descs, desc)
		}
	}
	if cat != nil {
		if err := cat.Flush(); err != nil {
			return nil, err
		}
	}
	return NewDirectorySource(descs)
}

func describeFile(path string, cat *Catalog) (FileDescriptor, error) {
	if cat != nil {
		if desc, ok := cat.Lookup(path); ok {
			return desc, nil
		}
	}
	desc, err := ScanFile(path)
	if err != nil {
		return FileDescriptor{}, err
	}
	if cat != nil {
		cat.Put(desc)
	}
	return desc, nil
}

// NewDirectorySource sorts the descriptors by end time and rejects any pair
// with intersecting [start,end] ranges before any record is read.
func NewDirectorySource(descs []FileDescriptor) (*DirectorySource, error) {
	sorted := make([]FileDescriptor, len(descs))
	copy(sorted, descs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EndMs < sorted[j].EndMs })
	for i := 1; i < len(sorted); i++ {
		a, b := sorted[i-1], sorted[i]
		if b.StartMs <= a.EndMs {
			return nil, &OverlapError{PathA: a.Path, PathB: b.Path, EndA: a.EndMs, StartB: b.StartMs}
		}
	}
	return &DirectorySource{descs: sorted, idx: 0, blank: true}, nil
}

// Descriptors returns the sorted file descriptors.
func (d *DirectorySource) Descriptors() []FileDescriptor { return d.descs }

// Close releases the currently open decoder, if any.
func (d *DirectorySource) Close() error {
	if d.dec == nil {
		return nil
	}
	err := d.dec.Close()
	d.dec = nil
	return err
}

// predecessors returns an iterator over the files before index i, most
// recent first, for cross-file predecessor lookups during seeks.
func (d *DirectorySource) predecessors(i int) PredecessorIter {
	j := i
	return func() (string, bool) {
		j--
		if j < 0 {
			return "", false
		}
		return d.descs[j].Path, true
	}
}

// Seek binary-searches the descriptors for the first file whose range can
// contain ms, opens it, and seeks within it.
func (d *DirectorySource) Seek(ms int64) error {
	if err := d.Close(); err != nil {
		return err
	}
	d.cur = Record{}
	d.blank = true
	if len(d.descs) == 0 {
		return &SeekNotFoundError{Want: ms}
	}
	i := sort.Search(len(d.descs), func(i int) bool { return d.descs[i].EndMs >= ms })
	if i == len(d.descs) {
		// Past every file: delegate to the last file so the stream is left
		// at its final record, and surface its not-found diagnostics.
		i = len(d.descs) - 1
	}
	dec, err := OpenFileWithPredecessors(d.descs[i].Path, d.predecessors(i))
	if err != nil {
		return err
	}
	d.dec = dec
	d.idx = i
	err = dec.Seek(ms)
	d.cur, _ = dec.Current()
	d.blank = d.cur.IsBlank()
	return err
}

// NextRecord exhausts the current file's decoder, then continues into the
// following file in end-time order.
func (d *DirectorySource) NextRecord() (bool, error) {
	for {
		if d.dec == nil {
			if d.idx >= len(d.descs) {
				return false, nil
			}
			dec, err := OpenFile(d.descs[d.idx].Path)
			if err != nil {
				return false, err
			}
			d.dec = dec
		}
		ok, err := d.dec.NextRecord()
		if err != nil {
			return false, err
		}
		if ok {
			d.cur, _ = d.dec.Current()
			d.blank = false
			return true, nil
		}
		if err := d.Close(); err != nil {
			return false, err
		}
		d.idx++
		if d.idx >= len(d.descs) {
			return false, nil
		}
	}
}

// IsBlank reports whether the current record is the blank sentinel.
func (d *DirectorySource) IsBlank() bool { return d.blank }

// Field returns the current record's raw codeword.
func (d *DirectorySource) Field(f Field) int32 { return d.cur.Field(f) }

// Value returns the current record's field in physical units.
func (d *DirectorySource) Value(f Field) float64 { return d.cur.Value(f) }

// Date returns the current record's time, ok=false for the blank record.
func (d *DirectorySource) Date() (int64, bool) {
	if d.blank {
		return 0, false
	}
	return d.cur.TimeMs(), true
}

// StartTime returns the earliest record time across all files.
func (d *DirectorySource) StartTime() (int64, error) {
	if len(d.descs) == 0 {
		return 0, nil
	}
	return d.descs[0].StartMs, nil
}

// EndTime returns the latest record time across all files.
func (d *DirectorySource) EndTime() (int64, error) {
	if len(d.descs) == 0 {
		return 0, nil
	}
	return d.descs[len(d.descs)-1].EndMs, nil
}

// PassCount returns the total pass count across all files.
func (d *DirectorySource) PassCount() (int, error) {
	n := 0
	for _, desc := range d.descs {
		n += desc.Passes
	}
	return n, nil
}

// RecordCount returns the total record count across all files.
func (d *DirectorySource) RecordCount() (int64, error) {
	var n int64
	for _, desc := range d.descs {
		n += desc.Records
	}
	return n, nil
}
