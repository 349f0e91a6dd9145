// Package files implements workspace-scoped file access for the file
// browser API: listing, markdown read/write with backups, and binary reads
// for PDFs and images. Every path is resolved and checked against the
// workspace root before any filesystem access.
package files

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxMarkdownSize bounds both reads and writes of .md files.
	MaxMarkdownSize = 500_000
	MaxPDFSize      = 10_000_000
	MaxImageSize    = 100_000_000
)

var (
	ErrInvalidPath      = errors.New("path traversal detected")
	ErrInvalidExtension = errors.New("extension not allowed")
	ErrNotFound         = errors.New("file not found")
	ErrNotUTF8          = errors.New("file is not valid UTF-8 text")
)

// SizeExceededError reports a file or payload over its limit.
type SizeExceededError struct {
	Size  int64
	Limit int64
}

func (e *SizeExceededError) Error() string {
	return fmt.Sprintf("file exceeds %d bytes (got %d)", e.Limit, e.Size)
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".heic": true,
}

// Resolve validates a client-supplied relative path and returns the
// absolute target inside the workspace. The path is URL-decoded twice to
// defuse double-encoded traversal sequences, backslashes are normalized,
// and symlinked targets must still land under the workspace root.
func Resolve(workspacePath, relativePath string) (string, error) {
	decoded := decodeTwice(relativePath)
	normalized := strings.ReplaceAll(decoded, "\\", "/")

	base, err := filepath.Abs(workspacePath)
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(base); err == nil {
		base = resolved
	}

	target := filepath.Join(base, filepath.FromSlash(normalized))
	if !within(target, base) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, relativePath)
	}
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		if !within(resolved, base) {
			return "", fmt.Errorf("%w: %s", ErrInvalidPath, relativePath)
		}
		target = resolved
	}
	return target, nil
}

func decodeTwice(raw string) string {
	out := raw
	for i := 0; i < 2; i++ {
		decoded, err := url.PathUnescape(out)
		if err != nil {
			break
		}
		out = decoded
	}
	return out
}

func within(path, base string) bool {
	return path == base || strings.HasPrefix(path, base+string(os.PathSeparator))
}

// Item is one directory entry in a listing. Size is nil for directories.
type Item struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Path       string    `json:"path"`
	Size       *int64    `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// List returns the browsable entries of a workspace directory, sorted by
// lowercased name. Backup files and unsupported extensions are skipped.
func List(workspacePath, relativePath string) ([]Item, error) {
	dir, err := Resolve(workspacePath, relativePath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: directory %s", ErrNotFound, relativePath)
	}

	base, err := filepath.Abs(workspacePath)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(base); err == nil {
		base = resolved
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})

	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".bak") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(base, filepath.Join(dir, name))
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			items = append(items, Item{
				ID:         rel,
				Name:       name,
				Type:       "directory",
				Path:       rel,
				ModifiedAt: info.ModTime().UTC(),
			})
			continue
		}

		var fileType string
		switch ext := strings.ToLower(filepath.Ext(name)); {
		case ext == ".md":
			fileType = "markdown_file"
		case ext == ".pdf":
			fileType = "pdf_file"
		case imageExtensions[ext]:
			fileType = "image_file"
		default:
			continue
		}
		size := info.Size()
		items = append(items, Item{
			ID:         rel,
			Name:       name,
			Type:       fileType,
			Path:       rel,
			Size:       &size,
			ModifiedAt: info.ModTime().UTC(),
		})
	}
	return items, nil
}

// ReadMarkdown returns the UTF-8 content of a .md file under the workspace.
func ReadMarkdown(workspacePath, filePath string) (string, error) {
	target, err := resolveFile(workspacePath, filePath)
	if err != nil {
		return "", err
	}
	if ext := strings.ToLower(filepath.Ext(target)); ext != ".md" {
		return "", fmt.Errorf("%w: only .md files are allowed", ErrInvalidExtension)
	}
	if err := checkSize(target, MaxMarkdownSize); err != nil {
		return "", err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	if !utf8.Valid(data) {
		return "", ErrNotUTF8
	}
	return string(data), nil
}

// WriteResult reports a completed markdown write.
type WriteResult struct {
	Size          int  `json:"size"`
	BackupCreated bool `json:"backup_created"`
}

// WriteMarkdown replaces a .md file, keeping the previous content as a
// sibling .md.bak and preserving the original file mode.
func WriteMarkdown(workspacePath, filePath, content string) (WriteResult, error) {
	target, err := Resolve(workspacePath, filePath)
	if err != nil {
		return WriteResult{}, err
	}
	if ext := strings.ToLower(filepath.Ext(target)); ext != ".md" {
		return WriteResult{}, fmt.Errorf("%w: only .md files are allowed", ErrInvalidExtension)
	}

	encoded := []byte(content)
	if int64(len(encoded)) > MaxMarkdownSize {
		return WriteResult{}, &SizeExceededError{Size: int64(len(encoded)), Limit: MaxMarkdownSize}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return WriteResult{}, fmt.Errorf("create parent dir: %w", err)
	}

	backupCreated := false
	var origMode os.FileMode
	if info, err := os.Stat(target); err == nil {
		origMode = info.Mode()
		backup := target + ".bak"
		if _, err := os.Stat(backup); err == nil {
			if err := os.Remove(backup); err != nil {
				return WriteResult{}, fmt.Errorf("remove old backup: %w", err)
			}
		}
		if err := os.Rename(target, backup); err != nil {
			return WriteResult{}, fmt.Errorf("back up file: %w", err)
		}
		backupCreated = true
	}

	if err := os.WriteFile(target, encoded, 0o644); err != nil {
		return WriteResult{}, fmt.Errorf("write file: %w", err)
	}
	if backupCreated {
		if err := os.Chmod(target, origMode); err != nil {
			return WriteResult{}, fmt.Errorf("restore mode: %w", err)
		}
	}

	return WriteResult{Size: len(encoded), BackupCreated: backupCreated}, nil
}

// ReadPDF returns the raw bytes of a .pdf file under the workspace.
func ReadPDF(workspacePath, filePath string) ([]byte, error) {
	target, err := resolveFile(workspacePath, filePath)
	if err != nil {
		return nil, err
	}
	if ext := strings.ToLower(filepath.Ext(target)); ext != ".pdf" {
		return nil, fmt.Errorf("%w: only .pdf files are allowed", ErrInvalidExtension)
	}
	if err := checkSize(target, MaxPDFSize); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// ReadImage returns the raw bytes of an allowed image file.
func ReadImage(workspacePath, filePath string) ([]byte, error) {
	target, err := resolveFile(workspacePath, filePath)
	if err != nil {
		return nil, err
	}
	if ext := strings.ToLower(filepath.Ext(target)); !imageExtensions[ext] {
		return nil, fmt.Errorf("%w: only image files are allowed", ErrInvalidExtension)
	}
	if err := checkSize(target, MaxImageSize); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// ImageWriteResult reports a completed image write, including the path the
// data actually landed at after conflict renaming.
type ImageWriteResult struct {
	Size      int    `json:"size"`
	SavedPath string `json:"saved_path"`
}

// WriteImage stores an uploaded image in a workspace directory, appending
// _1, _2, ... to the name when it collides with an existing file.
func WriteImage(workspacePath, directoryPath, filename string, data []byte) (ImageWriteResult, error) {
	dir, err := Resolve(workspacePath, directoryPath)
	if err != nil {
		return ImageWriteResult{}, err
	}
	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return ImageWriteResult{}, fmt.Errorf("%w: target is not a directory", ErrNotFound)
		}
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return ImageWriteResult{}, fmt.Errorf("create directory: %w", err)
	}

	if ext := strings.ToLower(filepath.Ext(filename)); !imageExtensions[ext] {
		return ImageWriteResult{}, fmt.Errorf("%w: only image files are allowed", ErrInvalidExtension)
	}
	if int64(len(data)) > MaxImageSize {
		return ImageWriteResult{}, &SizeExceededError{Size: int64(len(data)), Limit: MaxImageSize}
	}

	target := uniqueName(filepath.Join(dir, filepath.Base(filename)))
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return ImageWriteResult{}, fmt.Errorf("write image: %w", err)
	}

	base, err := filepath.Abs(workspacePath)
	if err != nil {
		return ImageWriteResult{}, fmt.Errorf("resolve workspace: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(base); err == nil {
		base = resolved
	}
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return ImageWriteResult{}, fmt.Errorf("relativize saved path: %w", err)
	}
	return ImageWriteResult{Size: len(data), SavedPath: filepath.ToSlash(rel)}, nil
}

func uniqueName(target string) string {
	if _, err := os.Stat(target); err != nil {
		return target
	}
	ext := filepath.Ext(target)
	stem := strings.TrimSuffix(target, ext)
	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, counter, ext)
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}

func resolveFile(workspacePath, filePath string) (string, error) {
	target, err := Resolve(workspacePath, filePath)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, filePath)
	}
	return target, nil
}

func checkSize(target string, limit int64) error {
	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > limit {
		return &SizeExceededError{Size: info.Size(), Limit: limit}
	}
	return nil
}
