//go:build cgo
// +build cgo

// Package overlay renders the challenge orchestrator's text and icon
// requests onto outgoing frames, along with the optional face-box
// presentation modes.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"

	"gocv.io/x/gocv"
)

// FaceBoxMode selects how the detected face region is presented on the
// annotated frame.
type FaceBoxMode int

const (
	// FaceBoxNone draws nothing around the face.
	FaceBoxNone FaceBoxMode = iota
	// FaceBoxOutline draws a rectangle around the face region.
	FaceBoxOutline
	// FaceBoxPixelate pixelates everything outside the face region.
	FaceBoxPixelate
)

// FaceBox is the normalized (0..1) bounding box of the tracked face,
// as reported by the face processor.
type FaceBox struct {
	Top, Left, Right, Bottom float64
}

var (
	textColor       = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	textBgColor     = color.RGBA{R: 0, G: 0, B: 0, A: 0}
	warningColor    = color.RGBA{R: 0, G: 255, B: 255, A: 0}
	faceBoxColor    = color.RGBA{G: 255, A: 0}
	fontFace        = gocv.FontHersheySimplex
	fontScale       = 1.0
	textThickness   = 2
	textMargin      = 10
)

// Renderer draws a Gesture Orchestrator's current overlay request onto
// an outgoing frame.
type Renderer struct {
	fontPath string
}

// New builds a Renderer. fontPath is accepted for configuration parity
// with the reference FreeType-based renderer, but this renderer always
// falls back to OpenCV's built-in Hershey font: FreeType2 bindings are
// not part of the gocv surface the rest of the engine already depends on.
func New(fontPath string) *Renderer {
	if fontPath != "" {
		if _, err := os.Stat(fontPath); err != nil {
			fmt.Fprintf(os.Stderr, "overlay: font file does not exist: %s\n", fontPath)
		}
	}
	return &Renderer{fontPath: fontPath}
}

// Render draws face-box presentation, overlay text, an optional icon,
// and an optional warning message onto a clone of img, returning the
// annotated copy. img is not modified.
func (r *Renderer) Render(img gocv.Mat, mode FaceBoxMode, box *FaceBox, text, iconPath, warning string) gocv.Mat {
	out := img.Clone()

	if box != nil {
		switch mode {
		case FaceBoxOutline:
			drawSquare(&out, *box)
		case FaceBoxPixelate:
			pixelateOutsideSquare(&out, *box)
		}
	}

	addText(&out, text, 8.3333, textColor, textBgColor)

	if iconPath != "" {
		if icon := gocv.IMRead(iconPath, gocv.IMReadUnchanged); !icon.Empty() {
			addIcon(&out, icon, 550, 400, 64, 64)
			icon.Close()
		}
	}

	if warning != "" {
		addText(&out, warning, 80, warningColor, textBgColor)
	}

	return out
}

func drawSquare(img *gocv.Mat, box FaceBox) {
	h, w := img.Rows(), img.Cols()
	top := int(box.Top * float64(h))
	left := int(box.Left * float64(w))
	right := int(box.Right * float64(w))
	bottom := int(box.Bottom * float64(h))
	gocv.Rectangle(img, image.Rect(left, top, right, bottom), faceBoxColor, 2)
}

func pixelateOutsideSquare(img *gocv.Mat, box FaceBox) {
	h, w := img.Rows(), img.Cols()
	top := int(box.Top * float64(h))
	left := int(box.Left * float64(w))
	right := int(box.Right * float64(w))
	bottom := int(box.Bottom * float64(h))

	mask := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8U)
	defer mask.Close()
	gocv.Rectangle(&mask, image.Rect(left, top, right, bottom), color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)

	pixelated := gocv.NewMat()
	defer pixelated.Close()
	gocv.Resize(*img, &pixelated, image.Pt(w/10, h/10), 0, 0, gocv.InterpolationNearestNeighbor)
	gocv.Resize(pixelated, &pixelated, image.Pt(w, h), 0, 0, gocv.InterpolationNearestNeighbor)

	notMask := gocv.NewMat()
	defer notMask.Close()
	gocv.BitwiseNot(mask, &notMask)

	result := gocv.NewMatWithSize(h, w, img.Type())
	img.CopyToWithMask(&result, mask)
	pixelated.CopyToWithMask(&result, notMask)
	result.CopyTo(img)
	result.Close()
}

func addIcon(img *gocv.Mat, icon gocv.Mat, x, y, width, height int) {
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(icon, &resized, image.Pt(width, height), 0, 0, gocv.InterpolationDefault)

	roi := img.Region(image.Rect(x, y, x+width, y+height))
	defer roi.Close()

	if resized.Channels() == 4 {
		channels := gocv.Split(resized)
		defer func() {
			for _, c := range channels {
				c.Close()
			}
		}()
		alpha := channels[3]
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.Merge(channels[:3], &bgr)
		bgr.CopyToWithMask(&roi, alpha)
		return
	}
	resized.CopyTo(&roi)
}

// addText centers possibly multi-line text at y_pos_percent of the
// frame height, drawing a thicker background pass before the
// foreground pass for legibility against any background.
func addText(img *gocv.Mat, text string, yPosPercent float64, fg, bg color.RGBA) {
	lines := splitText(text, img.Cols(), fontFace, fontScale, textThickness, textMargin)
	y := int(yPosPercent * float64(img.Rows()) / 100.0)

	for i, line := range lines {
		size := gocv.GetTextSize(line, fontFace, fontScale, textThickness)
		x := (img.Cols() - size.X) / 2
		pt := image.Pt(x, y+i*40)

		gocv.PutText(img, line, pt, fontFace, fontScale, bg, textThickness+3)
		gocv.PutText(img, line, pt, fontFace, fontScale, fg, textThickness)
	}
}

// splitText wraps text to image_width, honoring explicit newlines,
// then greedily packing words onto lines that fit within the margin.
func splitText(text string, imageWidth int, font gocv.HersheyFont, scale float64, thickness, margin int) []string {
	var lines []string
	maxWidth := imageWidth - 2*margin

	for _, inputLine := range strings.Split(text, "\n") {
		size := gocv.GetTextSize(inputLine, font, scale, thickness)
		if size.X <= maxWidth {
			lines = append(lines, inputLine)
			continue
		}

		words := strings.Split(inputLine, " ")
		var current string
		for _, word := range words {
			test := word
			if current != "" {
				test = current + " " + word
			}
			testSize := gocv.GetTextSize(test, font, scale, thickness)
			if testSize.X <= maxWidth {
				current = test
				continue
			}
			if current != "" {
				lines = append(lines, current)
			}
			current = word
		}
		if current != "" {
			lines = append(lines, current)
		}
	}
	return lines
}
