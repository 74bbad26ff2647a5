// Package output materializes facts of output record types as files.
//
// An output record type is declared with `output: true` and must carry
// string fields named path and content. Paths are relative to the
// writer's directory and may not escape it.
package output

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/roach88/rulescript/internal/fact"
	"github.com/roach88/rulescript/internal/ir"
)

// Field names every output record type must declare.
const (
	PathField    = "path"
	ContentField = "content"
)

// Writer writes output facts below Dir on Fs.
type Writer struct {
	Fs  afero.Fs
	Dir string
}

// NewWriter returns a Writer on the operating system filesystem.
func NewWriter(dir string) *Writer {
	return &Writer{Fs: afero.NewOsFs(), Dir: dir}
}

// CheckType reports whether rt has the shape of an output type.
func CheckType(rt *ir.RecordType) error {
	for _, name := range []string{PathField, ContentField} {
		fd, ok := rt.Field(name)
		if !ok {
			return fmt.Errorf("output type %s: missing field %q", rt.Name, name)
		}
		if fd.Type != ir.TypeString {
			return fmt.Errorf("output type %s: field %q must be string, got %s", rt.Name, name, fd.Type)
		}
	}
	return nil
}

// WriteOutputs writes every fact whose type is an output type and
// returns the written paths (relative to Dir) in fact-id order. Facts
// of other types are ignored. When two facts name the same path the
// later fact wins.
func (w *Writer) WriteOutputs(facts []*fact.Fact) ([]string, error) {
	outs := make([]*fact.Fact, 0, len(facts))
	for _, f := range facts {
		if f.Type.Output {
			outs = append(outs, f)
		}
	}
	slices.SortFunc(outs, func(a, b *fact.Fact) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	var written []string
	for _, f := range outs {
		if err := CheckType(f.Type); err != nil {
			return written, err
		}
		rel, err := stringField(f, PathField)
		if err != nil {
			return written, err
		}
		content, err := stringField(f, ContentField)
		if err != nil {
			return written, err
		}
		target, err := w.resolve(rel)
		if err != nil {
			return written, fmt.Errorf("%s: %w", f, err)
		}
		if err := w.Fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return written, fmt.Errorf("%s: %w", f, err)
		}
		if err := afero.WriteFile(w.Fs, target, []byte(content), 0o644); err != nil {
			return written, fmt.Errorf("%s: %w", f, err)
		}
		slog.Debug("output written", "fact_id", f.ID, "path", rel, "bytes", len(content))
		written = append(written, filepath.ToSlash(filepath.Clean(rel)))
	}
	return written, nil
}

// resolve joins rel onto Dir and rejects anything outside it.
func (w *Writer) resolve(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty output path")
	}
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("output path %q is absolute", rel)
	}
	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("output path %q escapes %s", rel, w.Dir)
	}
	if clean == "." {
		return "", fmt.Errorf("output path %q names the output directory", rel)
	}
	return filepath.Join(w.Dir, clean), nil
}

func stringField(f *fact.Fact, name string) (string, error) {
	v, ok := f.Get(name)
	if !ok {
		return "", fmt.Errorf("%s: field %q not set", f, name)
	}
	s, ok := v.(ir.IRString)
	if !ok {
		return "", fmt.Errorf("%s: field %q is %T, want string", f, name, v)
	}
	return string(s), nil
}
