package yolov8

import (
	"math"
	"testing"

	"github.com/nvr-ai/go-yolo/images"
	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func row(cx, cy, w, h float32, scores ...float32) Row {
	return append(Row{cx, cy, w, h}, scores...)
}

func oneHot(n, idx int, score float32) []float32 {
	s := make([]float32, n)
	s[idx] = score
	return s
}

// TestDecode_Landscape maps a canvas box back onto a 1280x640 image.
func TestDecode_Landscape(t *testing.T) {
	rows := []Row{row(320, 320, 100, 100, oneHot(80, 0, 0.9)...)}

	boxes, err := Decode(rows, 1280, 640, 640, models.COCOClasses())
	require.NoError(t, err)
	require.Len(t, boxes, 1)

	b := boxes[0]
	assert.Equal(t, BoxTypeRect, b.Type)
	assert.Equal(t, 0, b.ClassID)
	assert.Equal(t, "person", b.ClassName)
	assert.Equal(t, float64(float32(0.9)), b.Probability)
	assert.Equal(t, [4]float64{540, 540, 200, 200}, b.BBox)
	assert.Equal(t, "person (90.00%)", b.Label)
}

// TestDecode_Identity keeps coordinates when the image already matches the canvas.
func TestDecode_Identity(t *testing.T) {
	rows := []Row{row(100.5, 50.25, 20, 10, oneHot(80, 2, 0.5)...)}

	boxes, err := Decode(rows, 640, 640, 640, models.COCOClasses())
	require.NoError(t, err)
	require.Len(t, boxes, 1)

	assert.Equal(t, [4]float64{90.5, 45.25, 20, 10}, boxes[0].BBox)
	assert.Equal(t, "car", boxes[0].ClassName)
}

// TestDecode_Portrait uses the longer side for the scale.
func TestDecode_Portrait(t *testing.T) {
	rows := []Row{row(64, 64, 32, 16, oneHot(80, 16, 0.7)...)}

	boxes, err := Decode(rows, 300, 600, 640, models.COCOClasses())
	require.NoError(t, err)

	scale := 600.0 / 640.0
	assert.InDeltaSlice(t, []float64{48 * scale, 56 * scale, 32 * scale, 16 * scale}, boxes[0].BBox[:], 1e-9)
	assert.Equal(t, "dog", boxes[0].ClassName)
}

// TestDecode_KeepsOrderAndCount verifies no filtering or sorting.
func TestDecode_KeepsOrderAndCount(t *testing.T) {
	rows := []Row{
		row(10, 10, 4, 4, oneHot(80, 5, 0.3)...),
		row(20, 20, 4, 4, oneHot(80, 1, 0.95)...),
		row(30, 30, 4, 4, oneHot(80, 5, 0.01)...),
	}

	boxes, err := Decode(rows, 640, 640, 640, models.COCOClasses())
	require.NoError(t, err)
	require.Len(t, boxes, 3)

	assert.Equal(t, []int{5, 1, 5}, []int{boxes[0].ClassID, boxes[1].ClassID, boxes[2].ClassID})
}

// TestDecode_Argmax picks the first maximum and skips NaN scores.
func TestDecode_Argmax(t *testing.T) {
	registry, err := models.NewClassRegistry([]string{"a", "b", "c"})
	require.NoError(t, err)

	nan := float32(math.NaN())
	rows := []Row{
		row(1, 1, 1, 1, 0.4, 0.6, 0.6),
		row(1, 1, 1, 1, nan, 0.2, 0.1),
	}

	boxes, err := Decode(rows, 10, 10, 10, registry)
	require.NoError(t, err)

	assert.Equal(t, 1, boxes[0].ClassID)
	assert.Equal(t, 1, boxes[1].ClassID)

	_, err = Decode([]Row{row(1, 1, 1, 1, nan, nan, nan)}, 10, 10, 10, registry)
	assert.True(t, errors.Is(err, inference.ErrInference))
}

// TestDecode_TieKeepsLowestIndex resolves equal top scores at classes 2 and 5 to class 2.
func TestDecode_TieKeepsLowestIndex(t *testing.T) {
	registry, err := models.NewClassRegistry([]string{"a", "b", "c", "d", "e", "f"})
	require.NoError(t, err)

	boxes, err := Decode([]Row{row(5, 5, 2, 2, 0.1, 0.2, 0.7, 0.3, 0.4, 0.7)}, 10, 10, 10, registry)
	require.NoError(t, err)
	require.Len(t, boxes, 1)

	assert.Equal(t, 2, boxes[0].ClassID)
	assert.Equal(t, "c", boxes[0].ClassName)
	assert.Equal(t, "c (70.00%)", boxes[0].Label)
}

// TestDecode_Errors covers the failure modes.
func TestDecode_Errors(t *testing.T) {
	small, err := models.NewClassRegistry([]string{"cat", "dog"})
	require.NoError(t, err)

	_, err = Decode([]Row{row(1, 1, 1, 1, 0, 0, 0, 0.9)}, 10, 10, 10, small)
	assert.True(t, errors.Is(err, models.ErrClassRegistryMismatch))
	assert.Contains(t, err.Error(), "index 3 out of range for 2 classes")

	_, err = Decode([]Row{{1, 2, 3, 4}}, 10, 10, 10, small)
	assert.True(t, errors.Is(err, inference.ErrInference))

	_, err = Decode(nil, 0, 10, 10, small)
	assert.True(t, errors.Is(err, images.ErrInvalidImage))

	boxes, err := Decode(nil, 10, 10, 10, small)
	require.NoError(t, err)
	assert.Empty(t, boxes)
}

// TestRowsFromTensor validates the selected tensor shape.
func TestRowsFromTensor(t *testing.T) {
	data := []float32{
		1, 2, 3, 4, 0.5, 0.1,
		5, 6, 7, 8, 0.2, 0.9,
	}

	rows, err := RowsFromTensor(inference.Tensor{Name: NMSOutputName, Shape: tensor.Shape{1, 2, 6}, Data: data})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{5, 6, 7, 8, 0.2, 0.9}, rows[1])

	rows, err = RowsFromTensor(inference.Tensor{Name: NMSOutputName, Shape: tensor.Shape{1, 0, 84}})
	require.NoError(t, err)
	assert.Empty(t, rows)

	testCases := []struct {
		name  string
		shape tensor.Shape
		data  []float32
	}{
		{name: "rank 2", shape: tensor.Shape{2, 6}, data: data},
		{name: "batch 2", shape: tensor.Shape{2, 1, 6}, data: data},
		{name: "no classes", shape: tensor.Shape{1, 3, 4}, data: data},
		{name: "short data", shape: tensor.Shape{1, 3, 6}, data: data},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := RowsFromTensor(inference.Tensor{Name: NMSOutputName, Shape: tc.shape, Data: tc.data})
			assert.True(t, errors.Is(err, inference.ErrInference), "got %v", err)
		})
	}
}

// TestLabels returns unique labels in first-seen order.
func TestLabels(t *testing.T) {
	boxes := []DetectionBox{{Label: "dog (50.00%)"}, {Label: "cat (20.00%)"}, {Label: "dog (50.00%)"}}
	assert.Equal(t, []string{"dog (50.00%)", "cat (20.00%)"}, Labels(boxes))
	assert.Empty(t, Labels(nil))
}

// TestAnnotations converts boxes for drawing.
func TestAnnotations(t *testing.T) {
	anns := Annotations([]DetectionBox{{ClassID: 4, BBox: [4]float64{1, 2, 3, 4}, Label: "x"}})
	require.Len(t, anns, 1)
	assert.Equal(t, images.Annotation{X: 1, Y: 2, Width: 3, Height: 4, ClassID: 4, Label: "x"}, anns[0])
}
