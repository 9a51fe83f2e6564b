package util

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrModelNotFound is returned when no model file matches.
	ErrModelNotFound = errors.New("model not found")
	// ErrAmbiguousModel is returned when a directory holds more than one detector model.
	ErrAmbiguousModel = errors.New("ambiguous model directory")
)

// NMSModelName is the NMS model expected beside the detector when none is given.
const NMSModelName = "nms-yolov8.onnx"

const (
	nmsPrefix      = "nms-"
	classesFile    = "classes.txt"
	classesSuffix  = ".classes.txt"
	modelExtension = ".onnx"
)

// ModelPaths are the files a detection pipeline needs. Classes is empty when the bundled
// class list should be used.
type ModelPaths struct {
	Model   string `json:"model"   yaml:"model"`
	NMS     string `json:"nms"     yaml:"nms"`
	Classes string `json:"classes" yaml:"classes"`
}

// Resolve locates the detector, NMS model, and class list.
//
// Arguments:
//   - model: A detector .onnx file, or a directory holding exactly one. Files prefixed
//     "nms-" are ignored when scanning.
//   - nms: An explicit NMS model, or empty for NMSModelName beside the detector.
//   - classes: An explicit class list, or empty to search <model>.classes.txt, then
//     classes.txt beside the model, then classes.txt in the parent directory.
//
// Returns:
//   - ModelPaths: The resolved paths.
//   - error: ErrModelNotFound or ErrAmbiguousModel.
func Resolve(model, nms, classes string) (ModelPaths, error) {
	modelPath, err := resolveModel(model)
	if err != nil {
		return ModelPaths{}, err
	}

	if nms == "" {
		nms = filepath.Join(filepath.Dir(modelPath), NMSModelName)
	}
	if !isFile(nms) {
		return ModelPaths{}, errors.Wrapf(ErrModelNotFound, "nms model %s", nms)
	}

	if classes != "" {
		if !isFile(classes) {
			return ModelPaths{}, errors.Wrapf(ErrModelNotFound, "class list %s", classes)
		}
	} else {
		classes = findClasses(modelPath)
	}

	return ModelPaths{Model: modelPath, NMS: nms, Classes: classes}, nil
}

func resolveModel(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", errors.Wrapf(ErrModelNotFound, "%s: %v", path, err)
	}

	if !info.IsDir() {
		return path, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", errors.Wrapf(ErrModelNotFound, "%s: %v", path, err)
	}

	var candidates []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), modelExtension) {
			continue
		}
		if strings.HasPrefix(strings.ToLower(name), nmsPrefix) {
			continue
		}
		candidates = append(candidates, filepath.Join(path, name))
	}

	sort.Strings(candidates)

	switch len(candidates) {
	case 0:
		return "", errors.Wrapf(ErrModelNotFound, "no detector model in %s", path)
	case 1:
		return candidates[0], nil
	default:
		return "", errors.Wrapf(ErrAmbiguousModel, "%s holds %d models: %s",
			path, len(candidates), strings.Join(candidates, ", "))
	}
}

func findClasses(modelPath string) string {
	dir := filepath.Dir(modelPath)
	for _, candidate := range []string{
		strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + classesSuffix,
		filepath.Join(dir, classesFile),
		filepath.Join(filepath.Dir(dir), classesFile),
	} {
		if isFile(candidate) {
			return candidate
		}
	}

	return ""
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
