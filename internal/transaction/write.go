package transaction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// DefaultEncoding is applied to text writes that name no encoding.
const DefaultEncoding = "utf-8"

// Write backs path up on first touch and then replaces its content, or
// appends to it when appendMode is set. Bytes are written as given.
func (s *Store) Write(path string, content []byte, appendMode bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op := "write"
	if appendMode {
		op = "append"
	}
	if err := s.requireActive(op); err != nil {
		return err
	}
	abs, err := s.backup(path)
	if err != nil {
		return err
	}
	return s.write(abs, content, appendMode)
}

// Append is Write in append mode.
func (s *Store) Append(path string, content []byte) error {
	return s.Write(path, content, true)
}

// WriteString writes text encoded in the named charset (any IANA or WHATWG
// label, e.g. "euc-kr"). UTF-8 text is written without transcoding.
func (s *Store) WriteString(path, text, encoding string, appendMode bool) error {
	if !s.IsActive() {
		return fmt.Errorf("write: %w", ErrNotActive)
	}
	content, err := encodeText(text, encoding)
	if err != nil {
		return &SerializationError{Path: path, Err: err}
	}
	return s.Write(path, content, appendMode)
}

// AppendString is WriteString in append mode.
func (s *Store) AppendString(path, text, encoding string) error {
	return s.WriteString(path, text, encoding, true)
}

// WriteStructuredRecord replaces path with value encoded as indented JSON.
// Encoding happens before anything is backed up or written.
func (s *Store) WriteStructuredRecord(path string, value any) error {
	if !s.IsActive() {
		return fmt.Errorf("write record: %w", ErrNotActive)
	}
	content, err := encodeRecord(value)
	if err != nil {
		return &SerializationError{Path: path, Err: err}
	}
	return s.Write(path, content, false)
}

func (s *Store) write(abs string, content []byte, appendMode bool) error {
	if err := s.fs.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return &IOError{Op: "mkdir", Path: filepath.Dir(abs), Err: err}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := s.fs.OpenFile(abs, flags, 0644)
	if err != nil {
		return &IOError{Op: "open", Path: abs, Err: err}
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return &IOError{Op: "write", Path: abs, Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "close", Path: abs, Err: err}
	}

	s.logger.WithField("tx", s.tx.ID).WithField("path", abs).WithField("bytes", len(content)).Debug("file written")
	return nil
}

// encodeRecord keeps non-ASCII text readable: no HTML escaping, two-space indent.
func encodeRecord(value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadString returns the content of path decoded from the named charset.
// A missing file reads as empty text.
func (s *Store) ReadString(path, charset string) (string, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", &IOError{Op: "read", Path: path, Err: err}
	}
	enc, err := lookupEncoding(charset)
	if err != nil {
		return "", &SerializationError{Path: path, Err: err}
	}
	if enc == nil {
		return string(data), nil
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", &SerializationError{Path: path, Err: fmt.Errorf("decode as %s: %w", charset, err)}
	}
	return string(out), nil
}

// CheckEncoding reports whether charset names a supported text encoding.
func CheckEncoding(charset string) error {
	_, err := lookupEncoding(charset)
	return err
}

// lookupEncoding resolves a charset label. A nil encoding means UTF-8.
func lookupEncoding(charset string) (encoding.Encoding, error) {
	label := strings.ToLower(strings.TrimSpace(charset))
	if label == "" || label == DefaultEncoding || label == "utf8" {
		return nil, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", charset, err)
	}
	if name, _ := htmlindex.Name(enc); name == DefaultEncoding {
		return nil, nil
	}
	return enc, nil
}

func encodeText(text, label string) ([]byte, error) {
	enc, err := lookupEncoding(label)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return []byte(text), nil
	}
	out, err := enc.NewEncoder().String(text)
	if err != nil {
		return nil, fmt.Errorf("encode as %s: %w", label, err)
	}
	return []byte(out), nil
}
