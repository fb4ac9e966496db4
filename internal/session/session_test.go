package session

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndList(t *testing.T) {
	base := t.TempDir()
	first := time.Date(2025, 3, 1, 14, 22, 33, 0, time.Local)

	s, err := New(base, first)
	require.NoError(t, err)
	assert.Equal(t, "session_20250301_142233", s.Name)
	assert.DirExists(t, s.Dir)

	_, err = New(base, first.Add(time.Hour))
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	require.NoError(t, WritePNG(filepath.Join(s.Dir, "art.png"), img, png.BestSpeed))
	_, err = WriteLog(s.Dir, "art", map[string]any{"seed": 1}, CurrentSystem(first))
	require.NoError(t, err)
	sub, err := s.Subdir("variations_x")
	require.NoError(t, err)
	require.NoError(t, WritePNG(filepath.Join(sub, "variation_01.png"), img, png.DefaultCompression))

	// noise that must be ignored
	require.NoError(t, os.MkdirAll(filepath.Join(base, "not_a_session"), 0o755))

	infos, err := List(base)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "session_20250301_142233", infos[0].Name)
	assert.Equal(t, "session_20250301_152233", infos[1].Name)
	assert.True(t, infos[0].Created.Equal(first))
	assert.Equal(t, 1, infos[0].Images)
	assert.Equal(t, 1, infos[0].Logs)
	assert.Equal(t, []string{"variations_x"}, infos[0].Subdirs)
}

func TestNewSameSecondGetsSuffix(t *testing.T) {
	base := t.TempDir()
	now := time.Date(2025, 3, 1, 14, 22, 33, 0, time.Local)

	a, err := New(base, now)
	require.NoError(t, err)
	b, err := New(base, now)
	require.NoError(t, err)
	c, err := New(base, now)
	require.NoError(t, err)

	assert.Equal(t, "session_20250301_142233", a.Name)
	assert.Equal(t, "session_20250301_142233_2", b.Name)
	assert.Equal(t, "session_20250301_142233_3", c.Name)
	assert.NotEqual(t, a.Dir, b.Dir)

	created, ok := ParseName(b.Name)
	require.True(t, ok)
	assert.True(t, created.Equal(now))
	_, ok = ParseName("session_20250301_142233x2")
	assert.False(t, ok)

	infos, err := List(base)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, a.Name, infos[0].Name)
}

func TestListMissingBase(t *testing.T) {
	infos, err := List(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestOpen(t *testing.T) {
	base := t.TempDir()
	s, err := New(base, time.Date(2024, 7, 10, 18, 4, 56, 0, time.Local))
	require.NoError(t, err)

	got, err := Open(base, s.Name)
	require.NoError(t, err)
	assert.Equal(t, s.Dir, got.Dir)
	assert.True(t, got.Created.Equal(s.Created))

	_, err = Open(base, "session_missing")
	assert.Error(t, err)
	_, err = Open(base, "../etc")
	assert.Error(t, err)
}

func TestContentsOrdering(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_log.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "zz"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zz", "1.png"), []byte("x"), 0o644))

	items, err := Contents(dir)
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, Item{Name: "zz", Kind: KindDir, Count: 1}, items[0])
	assert.Equal(t, KindLog, items[1].Kind)
	assert.Equal(t, KindImage, items[2].Kind)
	assert.Equal(t, KindOther, items[3].Kind)
	assert.Equal(t, int64(2), items[3].Size)
}

func TestWritePNGRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "img.png")
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.SetRGBA(1, 1, color.RGBA{10, 20, 30, 255})

	for _, name := range []string{"default", "none", "fast", "best"} {
		level, err := ParseCompression(name)
		require.NoError(t, err)
		require.NoError(t, WritePNG(path, img, level))

		f, err := os.Open(path)
		require.NoError(t, err)
		decoded, err := png.Decode(f)
		f.Close()
		require.NoError(t, err)

		r, g, b, _ := decoded.At(1, 1).RGBA()
		assert.Equal(t, []uint32{10, 20, 30}, []uint32{r >> 8, g >> 8, b >> 8})
	}

	_, err := ParseCompression("ultra")
	assert.Error(t, err)
}

func TestWriteAndReadLog(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	path, err := WriteLog(dir, "art_hello", map[string]any{"seed": 42, "algorithm": "fbm"}, CurrentSystem(now))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "art_hello_log.json"), path)

	l, err := ReadLog(path)
	require.NoError(t, err)
	assert.True(t, l.SystemInfo.Timestamp.Equal(now))
	assert.Equal(t, Version, l.SystemInfo.Version)

	info, ok := l.GenerationInfo.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 42.0, info["seed"])
	assert.Equal(t, "fbm", info["algorithm"])
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello, world!", "Hello_world"},
		{"  spaced out  ", "spaced_out"},
		{"über-cool_text", "über-cool_text"},
		{"!!!", ""},
		{"a very long sentence that keeps going on and on", "a_very_long_sentence_that_keep"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeName(tt.in, 30), tt.in)
	}
}
