package storage

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Store is the local asset root. Uploads, rendered previews, committed plan
// images and exports all live under one directory that the router serves
// statically. Filenames are randomized or carry the owning session/plan id,
// so concurrent workflows never collide.
type Store struct {
	root string
}

const uploadDir = "uploads"

var ErrUnsafePath = errors.New("path escapes asset root")

func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, uploadDir), 0o755); err != nil {
		return nil, err
	}
	return &Store{root: abs}, nil
}

func (s *Store) Root() string { return s.root }

// Abs resolves a relative asset path, rejecting anything that would escape
// the root.
func (s *Store) Abs(rel string) (string, error) {
	clean := filepath.Clean("/" + rel)
	if strings.Contains(clean, "..") {
		return "", ErrUnsafePath
	}
	return filepath.Join(s.root, clean), nil
}

// SaveUpload writes an incoming drawing under uploads/ with a randomized
// name so original filenames never leak into storage.
func (s *Store) SaveUpload(r io.Reader, originalName string) (string, error) {
	ext := filepath.Ext(originalName)
	rel := filepath.Join(uploadDir, uuid.NewString()+ext)
	abs, err := s.Abs(rel)
	if err != nil {
		return "", err
	}
	f, err := os.Create(abs)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	return rel, nil
}

func (s *Store) ReadFile(rel string) ([]byte, error) {
	abs, err := s.Abs(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(abs)
}

// WritePNG encodes img at rel and returns the MD5 of the encoded bytes,
// which callers use to drop duplicate renders within one session.
func (s *Store) WritePNG(rel string, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	sum := md5.Sum(buf.Bytes())

	abs, err := s.Abs(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(abs, buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	return hex.EncodeToString(sum[:]), nil
}

// Copy duplicates an asset inside the root and returns the destination's
// absolute path. Overwrites an existing destination, which keeps export
// idempotent.
func (s *Store) Copy(relSrc, relDst string) (string, error) {
	src, err := s.Abs(relSrc)
	if err != nil {
		return "", err
	}
	dst, err := s.Abs(relDst)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("read source asset: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", err
	}
	return dst, nil
}

func (s *Store) Remove(rel string) error {
	abs, err := s.Abs(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveAll drops an asset directory and everything below it.
func (s *Store) RemoveAll(rel string) error {
	abs, err := s.Abs(rel)
	if err != nil {
		return err
	}
	if abs == s.root {
		return ErrUnsafePath
	}
	return os.RemoveAll(abs)
}

func (s *Store) Exists(rel string) bool {
	abs, err := s.Abs(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

func (s *Store) ListDir(rel string) ([]fs.DirEntry, error) {
	abs, err := s.Abs(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadDir(abs)
}

// MIME sniffs an asset's content type from its bytes.
func (s *Store) MIME(rel string) (string, error) {
	abs, err := s.Abs(rel)
	if err != nil {
		return "", err
	}
	mt, err := mimetype.DetectFile(abs)
	if err != nil {
		return "", err
	}
	return mt.String(), nil
}

func (s *Store) WriteFile(rel string, data []byte) error {
	abs, err := s.Abs(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	return os.WriteFile(abs, data, 0o644)
}
