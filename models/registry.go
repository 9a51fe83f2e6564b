package models

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrRegistryLoad is returned when a class list cannot be read or parsed.
	ErrRegistryLoad = errors.New("class registry load failed")
	// ErrClassRegistryMismatch is returned when a model emits a class index the registry lacks.
	ErrClassRegistryMismatch = errors.New("class index out of range for registry")
)

// ClassRegistry is an immutable, index-addressed list of class names.
type ClassRegistry struct {
	names     []string
	nameToIdx map[string]int
}

// NewClassRegistry builds a registry from names in model output order.
//
// Arguments:
//   - names: The class names; index i is class i.
//
// Returns:
//   - *ClassRegistry: The registry, holding its own copy of names.
//   - error: ErrRegistryLoad if the list is empty or holds a blank name.
func NewClassRegistry(names []string) (*ClassRegistry, error) {
	if len(names) == 0 {
		return nil, errors.Wrap(ErrRegistryLoad, "class list is empty")
	}

	r := &ClassRegistry{
		names:     make([]string, len(names)),
		nameToIdx: make(map[string]int, len(names)),
	}
	for i, name := range names {
		if strings.TrimSpace(name) == "" {
			return nil, errors.Wrapf(ErrRegistryLoad, "class %d has an empty name", i)
		}
		r.names[i] = name
		if _, dup := r.nameToIdx[name]; !dup {
			r.nameToIdx[name] = i
		}
	}

	return r, nil
}

// Len returns the number of classes.
func (r *ClassRegistry) Len() int {
	return len(r.names)
}

// Name returns the class name for an index.
func (r *ClassRegistry) Name(idx int) (string, error) {
	if idx < 0 || idx >= len(r.names) {
		return "", errors.Wrapf(ErrClassRegistryMismatch, "index %d out of range for %d classes", idx, len(r.names))
	}

	return r.names[idx], nil
}

// Index returns the first index registered under name.
func (r *ClassRegistry) Index(name string) (int, bool) {
	idx, ok := r.nameToIdx[name]
	return idx, ok
}

// Names returns a copy of the class names.
func (r *ClassRegistry) Names() []string {
	return append([]string(nil), r.names...)
}

// ParseClassList reads class names from a plain-text list (one name per line, blank lines
// and lines starting with '#' skipped) or, when the data starts with '[', a JSON array.
func ParseClassList(data []byte) (*ClassRegistry, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var names []string
		if err := json.Unmarshal(trimmed, &names); err != nil {
			return nil, errors.Wrapf(ErrRegistryLoad, "parse JSON class list: %v", err)
		}
		return NewClassRegistry(names)
	}

	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(ErrRegistryLoad, "scan class list: %v", err)
	}

	return NewClassRegistry(names)
}

// LoadClassRegistry reads a class list file.
func LoadClassRegistry(path string) (*ClassRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrRegistryLoad, "read %s: %v", path, err)
	}

	r, err := ParseClassList(data)
	if err != nil {
		return nil, errors.Wrapf(err, "class list %s", filepath.Base(path))
	}

	return r, nil
}

// ClassSource supplies a class registry to a pipeline.
type ClassSource interface {
	LoadClasses() (*ClassRegistry, error)
}

// ClassSourceFunc adapts a function to a ClassSource.
type ClassSourceFunc func() (*ClassRegistry, error)

// LoadClasses implements ClassSource.
func (f ClassSourceFunc) LoadClasses() (*ClassRegistry, error) {
	return f()
}

// FileSource loads classes from path, or returns the bundled COCO registry when path is empty.
func FileSource(path string) ClassSource {
	return ClassSourceFunc(func() (*ClassRegistry, error) {
		if path == "" {
			return COCOClasses(), nil
		}
		return LoadClassRegistry(path)
	})
}

// StaticSource returns a fixed registry.
func StaticSource(r *ClassRegistry) ClassSource {
	return ClassSourceFunc(func() (*ClassRegistry, error) {
		if r == nil {
			return nil, errors.Wrap(ErrRegistryLoad, "registry is nil")
		}
		return r, nil
	})
}
