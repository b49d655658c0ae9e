// Package loader reads entity records from an input directory. Each file
// holds one object, a list of objects, or one object per line.
package loader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agenthands/claimgraph/internal/core/model"
	"github.com/agenthands/claimgraph/internal/logger"
)

// FileError records an input file that could not be parsed.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }
func (e *FileError) Unwrap() error { return e.Err }

// Result is everything read from one directory, in file order.
type Result struct {
	Records  []model.LoadedRecord
	BadFiles []*FileError
	Missing  bool
}

// Supported reports whether the file extension is one the loader reads.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl", ".ndjson", ".yaml", ".yml":
		return true
	}
	return false
}

// LoadDir reads every supported file under dir, sorted by name. Dotfiles
// are ignored. A missing directory is not an error: the result is marked
// Missing and empty. Unparseable files are reported in BadFiles and skipped.
func LoadDir(dir string, log *logger.Logger) (*Result, error) {
	log = logger.OrNop(log).With("dir", dir)
	res := &Result{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn("input directory does not exist")
			res.Missing = true
			return res, nil
		}
		return nil, fmt.Errorf("read input dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if !Supported(name) {
			log.Debug("skipping unsupported file", "file", name)
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		records, err := LoadFile(path)
		if err != nil {
			log.Error("failed to parse input file", "file", name, "error", err)
			res.BadFiles = append(res.BadFiles, &FileError{Path: path, Err: err})
			continue
		}
		for i, r := range records {
			res.Records = append(res.Records, model.LoadedRecord{Source: name, Index: i, Record: r})
		}
		log.Info("file processed", "file", name, "records", len(records))
	}
	return res, nil
}

// LoadFile parses one file according to its extension.
func LoadFile(path string) ([]model.EntityRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return parseJSON(data)
	case ".jsonl", ".ndjson":
		return parseJSONLines(data)
	case ".yaml", ".yml":
		return parseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

func parseJSON(data []byte) ([]model.EntityRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("failed to parse JSON: trailing data after top-level value")
	}
	return asRecords(v)
}

func parseJSONLines(data []byte) ([]model.EntityRecord, error) {
	var out []model.EntityRecord
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(text))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if obj == nil {
			return nil, fmt.Errorf("line %d: not an object", line)
		}
		out = append(out, model.EntityRecord(obj))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseYAML(data []byte) ([]model.EntityRecord, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return asRecords(fromYAML(v))
}

// fromYAML converts yaml.v3 output into the shapes the JSON decoder
// produces: string-keyed maps and int64/float64 numbers.
func fromYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = fromYAML(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = fromYAML(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = fromYAML(item)
		}
		return out
	case int:
		return int64(t)
	case uint64:
		if t > math.MaxInt64 {
			return strconv.FormatUint(t, 10)
		}
		return int64(t)
	default:
		return v
	}
}

func asRecords(v any) ([]model.EntityRecord, error) {
	switch t := v.(type) {
	case map[string]any:
		return []model.EntityRecord{t}, nil
	case []any:
		out := make([]model.EntityRecord, 0, len(t))
		for i, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("element %d is %T, not an object", i, item)
			}
			out = append(out, m)
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("top-level value is %T, not an object or list", v)
	}
}
