package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// FilePersister stores all keys in a single JSON document so that a write
// replaces every key at once. The document is written to a temporary file and
// renamed into place.
type FilePersister struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewFilePersister stores the session document at path on fs.
func NewFilePersister(fs afero.Fs, path string) *FilePersister {
	return &FilePersister{fs: fs, path: path}
}

// Path returns the document location.
func (p *FilePersister) Path() string {
	return p.path
}

// Load implements Persister.
func (p *FilePersister) Load(_ context.Context, keys ...string) (map[string][]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, err := p.read()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := doc[k]; ok {
			out[k] = []byte(v)
		}
	}
	return out, nil
}

// Save implements Persister.
func (p *FilePersister) Save(_ context.Context, values map[string][]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, err := p.read()
	if err != nil {
		// An unreadable document is replaced rather than blocking logins.
		doc = make(map[string]string)
	}
	for k, v := range values {
		doc[k] = string(v)
	}
	return p.write(doc)
}

// Delete implements Persister.
func (p *FilePersister) Delete(_ context.Context, keys ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, err := p.read()
	if err != nil {
		doc = make(map[string]string)
	}
	for _, k := range keys {
		delete(doc, k)
	}
	if len(doc) == 0 {
		if err := p.fs.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("session: remove %s: %w", p.path, err)
		}
		return nil
	}
	return p.write(doc)
}

// read returns an empty document when the file does not exist. A document
// that is not valid JSON is reported as ErrMalformed.
func (p *FilePersister) read() (map[string]string, error) {
	data, err := afero.ReadFile(p.fs, p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]string), nil
		}
		return nil, fmt.Errorf("session: read %s: %w", p.path, err)
	}
	doc := make(map[string]string)
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, p.path, err)
	}
	return doc, nil
}

func (p *FilePersister) write(doc map[string]string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := p.fs.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("session: mkdir: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := afero.WriteFile(p.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("session: write %s: %w", tmp, err)
	}
	if err := p.fs.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("session: rename %s: %w", tmp, err)
	}
	return nil
}

var _ Persister = (*FilePersister)(nil)
