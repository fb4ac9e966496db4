package session

import (
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Version is reported in every generation log.
var Version = "dev"

// ParseCompression maps a flag value to a PNG compression level.
func ParseCompression(name string) (png.CompressionLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return png.DefaultCompression, nil
	case "none", "no":
		return png.NoCompression, nil
	case "fast", "speed":
		return png.BestSpeed, nil
	case "best", "size":
		return png.BestCompression, nil
	default:
		return 0, fmt.Errorf("unknown png compression %q (want default, none, fast or best)", name)
	}
}

// WritePNG encodes img to path, creating parent directories.
func WritePNG(path string, img image.Image, level png.CompressionLevel) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	enc := png.Encoder{CompressionLevel: level}
	if err := enc.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}

// SystemInfo records where and how a log was produced.
type SystemInfo struct {
	Timestamp        time.Time `json:"timestamp"`
	Command          string    `json:"command"`
	WorkingDirectory string    `json:"working_directory"`
	Version          string    `json:"cue_version"`
	GoVersion        string    `json:"go_version"`
}

// CurrentSystem describes the running process.
func CurrentSystem(now time.Time) SystemInfo {
	wd, _ := os.Getwd()
	return SystemInfo{
		Timestamp:        now,
		Command:          strings.Join(os.Args, " "),
		WorkingDirectory: wd,
		Version:          Version,
		GoVersion:        runtime.Version(),
	}
}

// Log is the on-disk shape of a generation log.
type Log struct {
	GenerationInfo any        `json:"generation_info"`
	SystemInfo     SystemInfo `json:"system_info"`
}

// WriteLog writes dir/<prefix>_log.json and returns its path.
func WriteLog(dir, prefix string, info any, sys SystemInfo) (string, error) {
	path := filepath.Join(dir, prefix+LogSuffix)
	data, err := json.MarshalIndent(Log{GenerationInfo: info, SystemInfo: sys}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode log: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("failed to write log: %w", err)
	}
	return path, nil
}

// ReadLog decodes a generation log; GenerationInfo comes back as generic JSON.
func ReadLog(path string) (*Log, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read log: %w", err)
	}
	var l Log
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to decode log %s: %w", path, err)
	}
	return &l, nil
}
