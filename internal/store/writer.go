package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Writer persists a container to a single file.
type Writer interface {
	// Name returns the format name used in configuration and flags.
	Name() string
	// Extension returns the file extension, including the dot.
	Extension() string
	// Write stores c at path. Either the complete file appears at path or
	// nothing does.
	Write(ctx context.Context, path string, c *Container) error
}

// StoreError reports a failure in the persistence step.
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// DefaultFormat is used when no format is configured.
const DefaultFormat = "msgpack"

// Registry holds the available writers.
type Registry struct {
	writers []Writer
}

// NewRegistry returns a registry with the built-in writers.
func NewRegistry() *Registry {
	return &Registry{
		writers: []Writer{
			NewMsgpackWriter(),
			NewDuckDBWriter(),
		},
	}
}

// Register adds a writer. A writer with the same name replaces the old one.
func (r *Registry) Register(w Writer) {
	for i, existing := range r.writers {
		if strings.EqualFold(existing.Name(), w.Name()) {
			r.writers[i] = w
			return
		}
	}
	r.writers = append(r.writers, w)
}

// Get returns a writer by name. An empty name selects DefaultFormat.
func (r *Registry) Get(name string) (Writer, error) {
	if name == "" {
		name = DefaultFormat
	}
	for _, w := range r.writers {
		if strings.EqualFold(w.Name(), name) {
			return w, nil
		}
	}
	return nil, fmt.Errorf("unknown output format %q (available: %s)", name, strings.Join(r.Names(), ", "))
}

// Names lists the registered formats.
func (r *Registry) Names() []string {
	names := make([]string, len(r.writers))
	for i, w := range r.writers {
		names[i] = w.Name()
	}
	return names
}

// tempPath returns a hidden sibling of dest so the final rename stays on one
// filesystem.
func tempPath(dest string) string {
	return filepath.Join(filepath.Dir(dest), ".tmp-"+uuid.NewString()+"-"+filepath.Base(dest))
}

// commit moves a finished temporary file into place.
func commit(ctx context.Context, tmp, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return err
	}
	syncDir(filepath.Dir(dest))
	return nil
}

// syncDir best-effort fsyncs a directory so the rename is durable.
func syncDir(dir string) {
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	defer f.Close()
	_ = f.Sync()
}
