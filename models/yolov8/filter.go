package yolov8

import (
	"strings"

	"github.com/nvr-ai/go-yolo/models"
	"github.com/pkg/errors"
)

// ClassFilter keeps detections whose class is in the set. An empty filter keeps everything.
type ClassFilter map[int]struct{}

// NewClassFilter resolves class names against the registry.
//
// Arguments:
//   - registry: The class registry the detections are decoded with.
//   - names: Class names to keep. Surrounding whitespace and blank entries are ignored.
//
// Returns:
//   - ClassFilter: The class indices to keep.
//   - error: An error naming the first class the registry does not know.
func NewClassFilter(registry *models.ClassRegistry, names []string) (ClassFilter, error) {
	filter := ClassFilter{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if registry == nil {
			return nil, errors.Errorf("cannot filter on %q without a class registry", name)
		}

		idx, ok := registry.Index(name)
		if !ok {
			return nil, errors.Errorf("unknown class %q", name)
		}
		filter[idx] = struct{}{}
	}

	return filter, nil
}

// Apply returns the boxes the filter keeps, in their original order.
func (f ClassFilter) Apply(boxes []DetectionBox) []DetectionBox {
	if len(f) == 0 {
		return boxes
	}

	kept := make([]DetectionBox, 0, len(boxes))
	for _, b := range boxes {
		if _, ok := f[b.ClassID]; ok {
			kept = append(kept, b)
		}
	}

	return kept
}
