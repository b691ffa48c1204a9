package trajectory

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/blinkfit/internal/fsutil"
	"github.com/banshee-data/blinkfit/internal/statespace"
)

// Header is the required first row of a trajectory CSV.
var Header = []string{"class", "dwell time"}

// maxFileSize bounds trajectory and collection files.
const maxFileSize = 64 << 20

// ReadCSV parses a trajectory from r. The first row must be Header; every
// following row is "dark|bright,<seconds>".
func ReadCSV(r io.Reader, name string) (*Trajectory, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: %s is empty", ErrMalformed, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s header: %v", ErrMalformed, name, err)
	}
	for i, h := range Header {
		if !strings.EqualFold(strings.TrimSpace(head[i]), h) {
			return nil, fmt.Errorf("%w: %s header %q, want %q", ErrMalformed, name, strings.Join(head, ","), strings.Join(Header, ","))
		}
	}

	var segs []Segment
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrMalformed, name, line, err)
		}
		class, err := statespace.ParseClass(rec[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrMalformed, name, line, err)
		}
		d, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: duration %q", ErrMalformed, name, line, rec[1])
		}
		segs = append(segs, Segment{Class: class, Duration: d})
	}
	return New(name, segs)
}

// WriteCSV writes t in the format ReadCSV accepts.
func WriteCSV(w io.Writer, t *Trajectory) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, s := range t.Segments {
		if err := cw.Write([]string{s.Class.String(), strconv.FormatFloat(s.Duration, 'g', -1, 64)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Load reads one trajectory file. The trajectory is named after the path.
func Load(fsys fsutil.FileSystem, path string) (*Trajectory, error) {
	data, err := readBounded(fsys, path)
	if err != nil {
		return nil, err
	}
	return ReadCSV(strings.NewReader(string(data)), path)
}

// LoadCollection reads a collection file: one trajectory path per line.
// Blank lines and lines starting with '#' are skipped; relative paths are
// resolved against the collection file's directory.
func LoadCollection(fsys fsutil.FileSystem, path string) ([]*Trajectory, error) {
	paths, err := CollectionPaths(fsys, path)
	if err != nil {
		return nil, err
	}
	trajs := make([]*Trajectory, 0, len(paths))
	for _, p := range paths {
		t, err := Load(fsys, p)
		if err != nil {
			return nil, err
		}
		trajs = append(trajs, t)
	}
	return trajs, nil
}

// CollectionPaths returns the resolved trajectory paths of a collection
// file without reading them.
func CollectionPaths(fsys fsutil.FileSystem, path string) ([]string, error) {
	data, err := readBounded(fsys, path)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	var paths []string
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(dir, line)
		}
		paths = append(paths, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: collection %s lists no trajectories", ErrMalformed, path)
	}
	return paths, nil
}

func readBounded(fsys fsutil.FileSystem, path string) ([]byte, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrMalformed, path)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("%w: %s is too large: %d bytes (max %d)", ErrMalformed, path, info.Size(), maxFileSize)
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
