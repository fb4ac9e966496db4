// Package session lays out generated images and their JSON logs on disk.
//
// A session is a timestamped directory under a base output directory:
//
//	output/
//	  session_20250301_142233/
//	    art_hello_world.png
//	    art_hello_world_log.json
//	    variations_hello_world/
//	      variation_01.png
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	// DirPrefix starts every session directory name.
	DirPrefix = "session_"
	// TimeLayout formats the session timestamp.
	TimeLayout = "20060102_150405"
	// LogSuffix ends every generation log file name.
	LogSuffix = "_log.json"
)

// Session is one output directory.
type Session struct {
	Name    string
	Dir     string
	Created time.Time
}

// New creates base/session_<timestamp>. When that directory already exists,
// a numeric suffix is appended: session_<timestamp>_2, _3 and so on.
func New(base string, now time.Time) (*Session, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	stamp := DirPrefix + now.Format(TimeLayout)
	name := stamp
	for n := 2; ; n++ {
		dir := filepath.Join(base, name)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return &Session{Name: name, Dir: dir, Created: now}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("failed to create session dir: %w", err)
		}
		name = fmt.Sprintf("%s_%d", stamp, n)
	}
}

// Open returns an existing session by directory name.
func Open(base, name string) (*Session, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid session name %q", name)
	}
	dir := filepath.Join(base, name)
	st, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("session %q not found: %w", name, err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("session %q is not a directory", name)
	}
	created, _ := ParseName(name)
	return &Session{Name: name, Dir: dir, Created: created}, nil
}

// ParseName extracts the timestamp from a session directory name.
func ParseName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, DirPrefix) {
		return time.Time{}, false
	}
	rest := strings.TrimPrefix(name, DirPrefix)
	if len(rest) > len(TimeLayout) {
		suffix := rest[len(TimeLayout):]
		if _, err := strconv.Atoi(strings.TrimPrefix(suffix, "_")); err != nil || suffix[0] != '_' {
			return time.Time{}, false
		}
		rest = rest[:len(TimeLayout)]
	}
	t, err := time.ParseInLocation(TimeLayout, rest, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Subdir creates and returns a directory inside the session.
func (s *Session) Subdir(name string) (string, error) {
	dir := filepath.Join(s.Dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}
	return dir, nil
}

// Info summarizes a session for listing.
type Info struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Created time.Time `json:"created"`
	Images  int       `json:"images"`
	Logs    int       `json:"logs"`
	Subdirs []string  `json:"subdirs,omitempty"`
}

// List returns every session under base, oldest first. A missing base yields none.
func List(base string) ([]Info, error) {
	entries, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", base, err)
	}

	var out []Info
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), DirPrefix) {
			continue
		}
		info := Info{Name: e.Name(), Path: filepath.Join(base, e.Name())}
		info.Created, _ = ParseName(e.Name())

		items, err := Contents(info.Path)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			switch it.Kind {
			case KindImage:
				info.Images++
			case KindLog:
				info.Logs++
			case KindDir:
				info.Subdirs = append(info.Subdirs, it.Name)
			}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Kind classifies a file inside a session.
type Kind string

const (
	KindDir   Kind = "dir"
	KindImage Kind = "image"
	KindLog   Kind = "log"
	KindOther Kind = "other"
)

// Item is one entry of a session directory.
type Item struct {
	Name  string `json:"name"`
	Kind  Kind   `json:"kind"`
	Size  int64  `json:"size"`
	Count int    `json:"count,omitempty"` // files inside a directory
}

// Contents lists dir with directories first, then files, each by name.
func Contents(dir string) ([]Item, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		it := Item{Name: e.Name()}
		switch {
		case e.IsDir():
			it.Kind = KindDir
			sub, err := os.ReadDir(filepath.Join(dir, e.Name()))
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", e.Name(), err)
			}
			it.Count = len(sub)
		case strings.HasSuffix(e.Name(), LogSuffix):
			it.Kind = KindLog
		case strings.EqualFold(filepath.Ext(e.Name()), ".png"):
			it.Kind = KindImage
		default:
			it.Kind = KindOther
		}
		if !e.IsDir() {
			if fi, err := e.Info(); err == nil {
				it.Size = fi.Size()
			}
		}
		items = append(items, it)
	}

	sort.SliceStable(items, func(i, j int) bool {
		di, dj := items[i].Kind == KindDir, items[j].Kind == KindDir
		if di != dj {
			return di
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

// SafeName turns the first limit runes of text into a file name fragment:
// letters, digits, '-' and '_' are kept, spaces become '_', the rest is dropped.
func SafeName(text string, limit int) string {
	var b strings.Builder
	n := 0
	for _, r := range text {
		if n >= limit {
			break
		}
		n++
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune(' ')
		}
	}
	return strings.ReplaceAll(strings.TrimSpace(b.String()), " ", "_")
}
