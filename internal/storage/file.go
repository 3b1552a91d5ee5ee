package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// FileStore keeps one document per key under a directory, as <key>.json or <key>.json.zst.
type FileStore struct {
	dir      string
	compress bool
}

func NewFileStore(dir string, compress bool) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}
	return &FileStore{dir: dir, compress: compress}, nil
}

func (f *FileStore) Name() string { return "file" }

func (f *FileStore) Path(key string) string {
	if f.compress {
		return filepath.Join(f.dir, key+".json.zst")
	}
	return filepath.Join(f.dir, key+".json")
}

// Get reads the compressed file first when compression is on, then the plain one, so a directory
// written before compression was enabled stays readable.
func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	candidates := []string{filepath.Join(f.dir, key+".json")}
	if f.compress {
		candidates = append([]string{f.Path(key)}, candidates...)
	}

	for _, path := range candidates {
		raw, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if filepath.Ext(path) == ".zst" {
			return decompress(raw)
		}
		return raw, nil
	}
	return nil, ErrNotFound
}

func (f *FileStore) Put(_ context.Context, key string, value []byte) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	data := value
	if f.compress {
		var err error
		if data, err = compress(value); err != nil {
			return err
		}
	}

	// write then rename so readers never see a partial document
	path := f.Path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}

	log.Debug().Str("path", path).Int("bytes", len(data)).Msg("wrote local backup")
	return nil
}

func compress(raw []byte) ([]byte, error) {
	w, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	defer w.Close()
	return w.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

func decompress(raw []byte) ([]byte, error) {
	r, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer r.Close()
	out, err := r.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return out, nil
}
