// Package overlay draws recognition results onto frames and saves them as JPEG snapshots.
package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/andresmejia3/facelookup/internal/recognize"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	boxColor     = color.RGBA{G: 255, A: 255}
	unknownColor = color.RGBA{R: 255, A: 255}
	textColor    = color.RGBA{R: 255, G: 255, A: 255}
)

const (
	boxThickness = 2
	labelGap     = 4
)

// Annotate decodes a frame, draws a box and label per detection and re-encodes it as JPEG.
func Annotate(frame []byte, dets []recognize.Detection) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	img := image.NewRGBA(src.Bounds())
	draw.Draw(img, img.Bounds(), src, src.Bounds().Min, draw.Src)

	for _, d := range dets {
		if len(d.Loc) != 4 {
			continue
		}
		top, right, bottom, left := d.Loc[0], d.Loc[1], d.Loc[2], d.Loc[3]
		rect := image.Rect(left, top, right, bottom).Add(img.Bounds().Min)

		c := boxColor
		if !d.Result.Matched {
			c = unknownColor
		}
		drawBox(img, rect, c)
		drawLabel(img, d.Result.Label, rect.Min.X, rect.Max.Y+labelGap)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawBox(img *image.RGBA, r image.Rectangle, c color.Color) {
	u := image.NewUniform(c)
	for i := 0; i < boxThickness; i++ {
		edges := []image.Rectangle{
			image.Rect(r.Min.X, r.Min.Y+i, r.Max.X, r.Min.Y+i+1),
			image.Rect(r.Min.X, r.Max.Y-i-1, r.Max.X, r.Max.Y-i),
			image.Rect(r.Min.X+i, r.Min.Y, r.Min.X+i+1, r.Max.Y),
			image.Rect(r.Max.X-i-1, r.Min.Y, r.Max.X-i, r.Max.Y),
		}
		for _, e := range edges {
			draw.Draw(img, e.Intersect(img.Bounds()), u, image.Point{}, draw.Src)
		}
	}
}

// drawLabel writes text with its top-left corner at (x, y), moved inside the frame if needed.
func drawLabel(img *image.RGBA, text string, x, y int) {
	face := basicfont.Face7x13
	b := img.Bounds()
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()

	if x+width > b.Max.X {
		x = b.Max.X - width
	}
	if x < b.Min.X {
		x = b.Min.X
	}
	if y+height > b.Max.Y {
		y = b.Max.Y - height
	}
	if y < b.Min.Y {
		y = b.Min.Y
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(textColor),
		Face: face,
		Dot:  fixed.P(x, y+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}

// Snapshots saves annotated frames under Dir, at most one every Every processed frames.
// Frames without detections are never saved.
type Snapshots struct {
	Dir   string
	Every int

	lastSaved int
}

// Maybe annotates and saves frame if it is due. It returns the written path, or "" if skipped.
func (s *Snapshots) Maybe(frame recognize.Frame) (string, error) {
	if s == nil || s.Dir == "" || len(frame.Detections) == 0 {
		return "", nil
	}
	if s.lastSaved > 0 && s.Every > 0 && frame.Index-s.lastSaved < s.Every {
		return "", nil
	}

	out, err := Annotate(frame.Image, frame.Detections)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(s.Dir, fmt.Sprintf("frame_%06d.jpg", frame.Index))
	if err := os.WriteFile(path, out, 0644); err != nil {
		return "", err
	}
	s.lastSaved = frame.Index
	return path, nil
}
