package store

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	// ContainerMagic identifies a msgpack spectrum container.
	ContainerMagic = "KNSPEC"
	// ContainerVersion is the current layout version.
	ContainerVersion = 1
)

// envelope is the top-level msgpack document.
type envelope struct {
	Magic     string `msgpack:"magic"`
	Version   int    `msgpack:"version"`
	CreatedBy string `msgpack:"created_by"`
	Container `msgpack:",inline"`
}

// MsgpackWriter writes containers as a single msgpack document.
type MsgpackWriter struct {
	perm      os.FileMode
	createdBy string
}

// NewMsgpackWriter returns a writer with 0644 files.
func NewMsgpackWriter() *MsgpackWriter {
	return &MsgpackWriter{perm: 0o644, createdBy: "specconv"}
}

// WithFileMode returns a copy of w that creates files with perm.
func (w *MsgpackWriter) WithFileMode(perm os.FileMode) *MsgpackWriter {
	cp := *w
	cp.perm = perm
	return &cp
}

func (w *MsgpackWriter) Name() string      { return "msgpack" }
func (w *MsgpackWriter) Extension() string { return ".knspec" }

// Write encodes c into a temporary sibling of path and renames it into place.
func (w *MsgpackWriter) Write(ctx context.Context, path string, c *Container) error {
	if err := c.Validate(); err != nil {
		return &StoreError{Op: "validate", Path: path, Err: err}
	}

	tmp := tempPath(path)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, w.perm)
	if err != nil {
		return &StoreError{Op: "create", Path: path, Err: err}
	}
	cleanup := func() {
		f.Close()
		os.Remove(tmp)
	}

	bw := bufio.NewWriterSize(f, 256*1024)
	if err := w.encode(bw, c); err != nil {
		cleanup()
		return &StoreError{Op: "encode", Path: path, Err: err}
	}
	if err := bw.Flush(); err != nil {
		cleanup()
		return &StoreError{Op: "write", Path: path, Err: err}
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return &StoreError{Op: "sync", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return &StoreError{Op: "close", Path: path, Err: err}
	}
	if err := commit(ctx, tmp, path); err != nil {
		os.Remove(tmp)
		return &StoreError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

func (w *MsgpackWriter) encode(out io.Writer, c *Container) error {
	enc := msgpack.NewEncoder(out)
	enc.SetSortMapKeys(true)
	return enc.Encode(&envelope{
		Magic:     ContainerMagic,
		Version:   ContainerVersion,
		CreatedBy: w.createdBy,
		Container: *c,
	})
}

// Decode reads a msgpack container.
func Decode(r io.Reader) (*Container, error) {
	var env envelope
	if err := msgpack.NewDecoder(r).Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding container: %w", err)
	}
	if env.Magic != ContainerMagic {
		return nil, fmt.Errorf("not a spectrum container (magic %q)", env.Magic)
	}
	if env.Version != ContainerVersion {
		return nil, fmt.Errorf("unsupported container version %d", env.Version)
	}
	c := env.Container
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ReadContainer opens and decodes a msgpack container file.
func ReadContainer(path string) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(bufio.NewReader(f))
}
