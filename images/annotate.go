package images

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Annotation is a labelled rectangle in image coordinates.
type Annotation struct {
	X       float64
	Y       float64
	Width   float64
	Height  float64
	ClassID int
	Label   string
}

const strokeWidth = 2

// ClassColor returns a stable, saturated color for a class index.
func ClassColor(classID int) color.NRGBA {
	hue := math.Mod(float64(classID)*137.508, 360)
	if hue < 0 {
		hue += 360
	}

	r, g, b := colorful.Hsv(hue, 0.75, 0.95).Clamped().RGB255()

	return color.NRGBA{R: r, G: g, B: b, A: 0xff}
}

// Annotate draws each annotation's box and label on a copy of img.
//
// Arguments:
//   - img: The source image, left unmodified.
//   - annotations: Boxes in the source image's pixel space.
//
// Returns:
//   - *image.NRGBA: The annotated copy.
func Annotate(img image.Image, annotations []Annotation) *image.NRGBA {
	dst := imaging.Clone(img)
	face := basicfont.Face7x13

	for _, a := range annotations {
		col := image.NewUniform(ClassColor(a.ClassID))
		box := image.Rect(
			int(math.Floor(a.X)),
			int(math.Floor(a.Y)),
			int(math.Ceil(a.X+a.Width)),
			int(math.Ceil(a.Y+a.Height)),
		).Intersect(dst.Bounds())
		if box.Empty() {
			continue
		}

		for _, edge := range []image.Rectangle{
			image.Rect(box.Min.X, box.Min.Y, box.Max.X, box.Min.Y+strokeWidth),
			image.Rect(box.Min.X, box.Max.Y-strokeWidth, box.Max.X, box.Max.Y),
			image.Rect(box.Min.X, box.Min.Y, box.Min.X+strokeWidth, box.Max.Y),
			image.Rect(box.Max.X-strokeWidth, box.Min.Y, box.Max.X, box.Max.Y),
		} {
			draw.Draw(dst, edge.Intersect(box), col, image.Point{}, draw.Src)
		}

		if a.Label == "" {
			continue
		}

		textW := font.MeasureString(face, a.Label).Ceil()
		textH := face.Metrics().Height.Ceil()
		top := box.Min.Y - textH - 2
		if top < dst.Bounds().Min.Y {
			top = box.Min.Y
		}

		bg := image.Rect(box.Min.X, top, box.Min.X+textW+4, top+textH+2).Intersect(dst.Bounds())
		draw.Draw(dst, bg, col, image.Point{}, draw.Src)

		d := font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(color.White),
			Face: face,
			Dot:  fixed.P(box.Min.X+2, top+1+face.Metrics().Ascent.Ceil()),
		}
		d.DrawString(a.Label)
	}

	return dst
}
