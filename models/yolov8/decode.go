package yolov8

import (
	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/models"
	"github.com/pkg/errors"
)

// BoxTypeRect is the only box type the decoder emits.
const BoxTypeRect = "rect"

// Row is one NMS survivor: [cx, cy, w, h, s_0 ... s_{C-1}] in canvas pixels.
type Row []float32

// DetectionBox is a detection in source image pixel coordinates.
type DetectionBox struct {
	Type        string     `json:"type"`
	ClassID     int        `json:"classId"`
	ClassName   string     `json:"className"`
	Probability float64    `json:"probability"`
	BBox        [4]float64 `json:"bbox"`
	Label       string     `json:"label"`
}

// X returns the left edge.
func (b DetectionBox) X() float64 { return b.BBox[0] }

// Y returns the top edge.
func (b DetectionBox) Y() float64 { return b.BBox[1] }

// Width returns the box width.
func (b DetectionBox) Width() float64 { return b.BBox[2] }

// Height returns the box height.
func (b DetectionBox) Height() float64 { return b.BBox[3] }

// RowsFromTensor splits the NMS "selected" output of shape [1, N, 4+C] into rows.
//
// Arguments:
//   - t: The selected tensor.
//
// Returns:
//   - []Row: N rows sharing the tensor's backing array.
//   - error: inference.ErrInference if the shape is not [1, N, 4+C] with C >= 1.
func RowsFromTensor(t inference.Tensor) ([]Row, error) {
	s := t.Shape
	if len(s) != 3 || s[0] != 1 || s[1] < 0 || s[2] < 5 {
		return nil, errors.Wrapf(inference.ErrInference, "tensor %q has shape %v, want (1, N, 4+C) with C >= 1", t.Name, s)
	}

	n, width := s[1], s[2]
	if len(t.Data) != n*width {
		return nil, errors.Wrapf(inference.ErrInference, "tensor %q holds %d values, want %d", t.Name, len(t.Data), n*width)
	}

	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row(t.Data[i*width : (i+1)*width : (i+1)*width])
	}

	return rows, nil
}

// Decode maps NMS rows from canvas space back to the source image and attaches class
// names. Rows are neither filtered nor reordered.
//
// Arguments:
//   - rows: The NMS survivors.
//   - width, height: The source image dimensions.
//   - edge: The canvas side length the rows are expressed in.
//   - registry: The class names indexed by the model.
//
// Returns:
//   - []DetectionBox: One box per row, in row order.
//   - error: models.ErrClassRegistryMismatch for an unknown class, inference.ErrInference for
//     malformed rows, images.ErrInvalidImage for non-positive dimensions.
//
// @example
// boxes, err := yolov8.Decode(rows, 1280, 640, 640, models.COCOClasses())
func Decode(rows []Row, width, height, edge int, registry *models.ClassRegistry) ([]DetectionBox, error) {
	if width <= 0 || height <= 0 || edge <= 0 {
		return nil, errors.Wrapf(images.ErrInvalidImage, "invalid geometry: %dx%d on edge %d", width, height, edge)
	}

	if registry == nil {
		return nil, errors.Wrap(models.ErrRegistryLoad, "no class registry")
	}

	scale := float64(max(width, height)) / float64(edge)
	boxes := make([]DetectionBox, 0, len(rows))

	for i, row := range rows {
		if len(row) < 5 {
			return nil, errors.Wrapf(inference.ErrInference, "row %d has %d values, want at least 5", i, len(row))
		}

		classID, score := bestClass(row[4:])
		if classID < 0 {
			return nil, errors.Wrapf(inference.ErrInference, "row %d has no comparable class score", i)
		}

		name, err := registry.Name(classID)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}

		cx, cy := float64(row[0]), float64(row[1])
		w, h := float64(row[2]), float64(row[3])
		prob := float64(score)

		boxes = append(boxes, DetectionBox{
			Type:        BoxTypeRect,
			ClassID:     classID,
			ClassName:   name,
			Probability: prob,
			BBox:        [4]float64{(cx - 0.5*w) * scale, (cy - 0.5*h) * scale, w * scale, h * scale},
			Label:       FormatLabel(name, prob),
		})
	}

	return boxes, nil
}

// bestClass returns the first index holding the maximum score. NaN scores are skipped;
// -1 means every score was NaN.
func bestClass(scores []float32) (int, float32) {
	idx, best := -1, float32(0)
	for i, s := range scores {
		if math32.IsNaN(s) {
			continue
		}
		if idx < 0 || s > best {
			idx, best = i, s
		}
	}

	return idx, best
}

// Labels returns the unique box labels in first-seen order.
func Labels(boxes []DetectionBox) []string {
	seen := make(map[string]struct{}, len(boxes))
	labels := make([]string, 0, len(boxes))
	for _, b := range boxes {
		if _, ok := seen[b.Label]; ok {
			continue
		}
		seen[b.Label] = struct{}{}
		labels = append(labels, b.Label)
	}

	return labels
}

// Annotations converts boxes for images.Annotate.
func Annotations(boxes []DetectionBox) []images.Annotation {
	out := make([]images.Annotation, len(boxes))
	for i, b := range boxes {
		out[i] = images.Annotation{
			X:       b.X(),
			Y:       b.Y(),
			Width:   b.Width(),
			Height:  b.Height(),
			ClassID: b.ClassID,
			Label:   b.Label,
		}
	}

	return out
}
