// Package packager builds the deployment archive shipped on redeploy: a zip
// of named payloads, stored uncompressed with executable permissions.
package packager

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"

	"github.com/saiset-co/sai-lru/types"
)

const EntryMode os.FileMode = 0777

// entryTime is the zip epoch. Every entry carries it so identical payloads
// always produce identical archives.
var entryTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Source yields the bytes of one payload.
type Source interface {
	Bytes() ([]byte, error)
}

type Payload struct {
	Name   string
	Source Source
}

type bytesSource []byte

func (b bytesSource) Bytes() ([]byte, error) {
	return b, nil
}

// FromBytes uses data as is.
func FromBytes(data []byte) Source {
	return bytesSource(data)
}

type fileSource string

func (f fileSource) Bytes() ([]byte, error) {
	return os.ReadFile(string(f))
}

// FromFile reads path when the archive is built.
func FromFile(path string) Source {
	return fileSource(path)
}

// PackagingError reports which payload could not be packaged. It matches
// types.ErrPackagingFailed and carries the stack of the failure site.
type PackagingError struct {
	Name string
	err  error
}

func newPackagingError(name string, cause error, format string, args ...interface{}) *PackagingError {
	if cause == nil {
		return &PackagingError{Name: name, err: errors.Errorf(format, args...)}
	}
	return &PackagingError{Name: name, err: errors.Wrapf(cause, format, args...)}
}

func (e *PackagingError) Error() string {
	if e.Name == "" {
		return types.ErrPackagingFailed.Error() + ": " + e.err.Error()
	}
	return types.ErrPackagingFailed.Error() + ": " + e.Name + ": " + e.err.Error()
}

func (e *PackagingError) Unwrap() error {
	return e.err
}

func (e *PackagingError) Is(target error) bool {
	return target == types.ErrPackagingFailed
}

func (e *PackagingError) StackTrace() errors.StackTrace {
	if st, ok := e.err.(interface{ StackTrace() errors.StackTrace }); ok {
		return st.StackTrace()
	}
	return nil
}

// Build writes payloads into a zip archive in the given order.
func Build(payloads []Payload) ([]byte, error) {
	if len(payloads) == 0 {
		return nil, newPackagingError("", nil, "no payloads")
	}

	seen := make(map[string]struct{}, len(payloads))
	for _, p := range payloads {
		if p.Name == "" {
			return nil, newPackagingError("", nil, "payload name is empty")
		}
		if _, dup := seen[p.Name]; dup {
			return nil, newPackagingError(p.Name, nil, "duplicate payload name")
		}
		if p.Source == nil {
			return nil, newPackagingError(p.Name, nil, "payload has no source")
		}
		seen[p.Name] = struct{}{}
	}

	buf := new(bytes.Buffer)
	writer := zip.NewWriter(buf)

	for _, p := range payloads {
		data, err := p.Source.Bytes()
		if err != nil {
			_ = writer.Close()
			return nil, newPackagingError(p.Name, err, "failed to read payload")
		}

		header := &zip.FileHeader{
			Name:     p.Name,
			Method:   zip.Store,
			Modified: entryTime,
		}
		header.SetMode(EntryMode)

		w, err := writer.CreateHeader(header)
		if err != nil {
			_ = writer.Close()
			return nil, newPackagingError(p.Name, err, "failed to create archive entry")
		}

		if _, err := w.Write(data); err != nil {
			_ = writer.Close()
			return nil, newPackagingError(p.Name, err, "failed to write archive entry")
		}
	}

	if err := writer.Close(); err != nil {
		return nil, newPackagingError("", err, "failed to finish archive")
	}

	return buf.Bytes(), nil
}

// Entry is one extracted archive member.
type Entry struct {
	Name   string
	Mode   os.FileMode
	Method uint16
	Data   []byte
}

// Extract returns the archive's entries in archive order.
func Extract(archive []byte) ([]Entry, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, newPackagingError("", err, "failed to open archive")
	}

	entries := make([]Entry, 0, len(reader.File))
	for _, f := range reader.File {
		rc, err := f.Open()
		if err != nil {
			return nil, newPackagingError(f.Name, err, "failed to open archive entry")
		}

		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, newPackagingError(f.Name, err, "failed to read archive entry")
		}

		entries = append(entries, Entry{
			Name:   f.Name,
			Mode:   f.Mode(),
			Method: f.Method,
			Data:   data,
		})
	}

	return entries, nil
}
