// Package snapshotio reads and writes snapshot documents.
//
// Documents are JSON or YAML. Every document is checked against an
// embedded CUE schema before it is decoded, so a malformed capture is
// rejected with the position of the offending value instead of surfacing
// later as a diff or metric anomaly.
package snapshotio

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/fault"
)

//go:embed schema.cue
var schemaSource string

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension. Anything that is
// not .yaml or .yml is JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// schema is compiled once; cue.Value is safe for concurrent reads but the
// context that builds values is not.
var (
	schemaOnce sync.Once
	schemaMu   sync.Mutex
	cueCtx     *cue.Context
	snapSchema cue.Value
	schemaErr  error
)

func loadSchema() error {
	schemaOnce.Do(func() {
		cueCtx = cuecontext.New()
		v := cueCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile snapshot schema: %w", err)
			return
		}
		snapSchema = v.LookupPath(cue.ParsePath("#Snapshot"))
		if err := snapSchema.Err(); err != nil {
			schemaErr = fmt.Errorf("lookup #Snapshot: %w", err)
		}
	})
	return schemaErr
}

// CheckSchema validates a JSON document against the snapshot schema.
func CheckSchema(name string, data []byte) error {
	if err := loadSchema(); err != nil {
		return err
	}
	schemaMu.Lock()
	defer schemaMu.Unlock()

	doc := cueCtx.CompileBytes(data, cue.Filename(name))
	if err := doc.Err(); err != nil {
		return schemaError(name, err)
	}
	if err := snapSchema.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return schemaError(name, err)
	}
	return nil
}

// schemaError reports the first CUE error with its position.
func schemaError(name string, err error) error {
	f := fault.Wrap(fault.InvalidSnapshot, err, "%s does not match the snapshot schema", name)
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return f
	}
	f = f.With("reason", errs[0].Error())
	if pos := cueerrors.Positions(errs[0]); len(pos) > 0 && pos[0].IsValid() {
		f = f.With("position", pos[0].String())
	}
	return f
}

// toJSON converts a YAML document to JSON.
func toJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// Decode reads one snapshot document. name labels errors.
func Decode(r io.Reader, format Format, name string) (*evidence.Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if format == FormatYAML {
		data, err = toJSON(data)
		if err != nil {
			return nil, fault.Wrap(fault.InvalidSnapshot, err, "parse %s", name)
		}
	}
	if err := CheckSchema(name, data); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var s evidence.Snapshot
	if err := dec.Decode(&s); err != nil {
		return nil, fault.Wrap(fault.InvalidSnapshot, err, "decode %s", name)
	}
	if s.Payload == nil {
		s.Payload = evidence.Payload{}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile reads a snapshot document from path.
func LoadFile(path string) (*evidence.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	return Decode(f, FormatFromPath(path), path)
}

// LoadDir reads every .json, .yaml and .yml document in dir, ordered by
// captured_at and then snapshot_id.
func LoadDir(dir string) ([]*evidence.Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read snapshot directory: %w", err)
	}
	var out []*evidence.Snapshot
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		s, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	SortByCapture(out)
	return out, nil
}

// LoadPaths loads each path, expanding directories.
func LoadPaths(paths []string) ([]*evidence.Snapshot, error) {
	var out []*evidence.Snapshot
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if info.IsDir() {
			snaps, err := LoadDir(p)
			if err != nil {
				return nil, err
			}
			out = append(out, snaps...)
			continue
		}
		s, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	SortByCapture(out)
	return out, nil
}

// SortByCapture orders snapshots by captured_at, then snapshot_id.
func SortByCapture(snaps []*evidence.Snapshot) {
	slices.SortStableFunc(snaps, func(a, b *evidence.Snapshot) int {
		if c := a.CapturedAt.Compare(b.CapturedAt); c != 0 {
			return c
		}
		return strings.Compare(a.SnapshotID, b.SnapshotID)
	})
}

// Encode writes s as an indented document.
func Encode(w io.Writer, s *evidence.Snapshot, format Format) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if format == FormatYAML {
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		return enc.Close()
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
