// Package imaging builds gallery grid images and picks accent colours.
package imaging

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// MaxGridWidth is the widest composite ever produced.
const MaxGridWidth = 1920

// GridDims returns a near-square grid with room for n cells.
func GridDims(n int) (rows, cols int) {
	if n <= 0 {
		return 0, 0
	}
	rows = int(math.Round(math.Sqrt(float64(n))))
	cols = int(math.Ceil(float64(n) / float64(rows)))
	for rows*cols < n {
		rows++
	}
	return rows, cols
}

// Layout describes where each source image lands in the composite, before
// the final downscale.
type Layout struct {
	Rows, Cols int
	Cell       image.Point
	// Rects are the scaled image bounds, one per source, in grid coordinates.
	Rects []image.Rectangle
	// Size is the full grid size before downscaling.
	Size image.Point
	// Out is the final output size.
	Out image.Point
}

// Plan computes the layout for images of the given sizes. Every cell is as
// wide as the widest image and as tall as the tallest one. Each image is
// scaled to fit its cell and centred. Nothing is cropped.
func Plan(sizes []image.Point, maxWidth int) Layout {
	var l Layout
	l.Rows, l.Cols = GridDims(len(sizes))
	if l.Cols == 0 {
		return l
	}
	for _, s := range sizes {
		l.Cell.X = max(l.Cell.X, s.X)
		l.Cell.Y = max(l.Cell.Y, s.Y)
	}
	for i, s := range sizes {
		if s.X <= 0 || s.Y <= 0 {
			l.Rects = append(l.Rects, image.Rectangle{})
			continue
		}
		scale := math.Min(float64(l.Cell.X)/float64(s.X), float64(l.Cell.Y)/float64(s.Y))
		w := int(float64(s.X) * scale)
		h := int(float64(s.Y) * scale)
		origin := image.Pt((i%l.Cols)*l.Cell.X, (i/l.Cols)*l.Cell.Y)
		off := image.Pt((l.Cell.X-w)/2, (l.Cell.Y-h)/2)
		at := origin.Add(off)
		l.Rects = append(l.Rects, image.Rectangle{Min: at, Max: at.Add(image.Pt(w, h))})
	}
	l.Size = image.Pt(l.Cols*l.Cell.X, l.Rows*l.Cell.Y)
	l.Out = l.Size
	if maxWidth > 0 && l.Size.X > maxWidth {
		ratio := float64(maxWidth) / float64(l.Size.X)
		l.Out = image.Pt(maxWidth, int(math.Round(float64(l.Size.Y)*ratio)))
	}
	return l
}

// Grid composes images into a single RGBA image on a transparent
// background. Empty images are skipped. It returns nil when nothing is left.
func Grid(imgs []image.Image, maxWidth int) *image.RGBA {
	kept := make([]image.Image, 0, len(imgs))
	sizes := make([]image.Point, 0, len(imgs))
	for _, img := range imgs {
		if size := img.Bounds().Size(); size.X > 0 && size.Y > 0 {
			kept = append(kept, img)
			sizes = append(sizes, size)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	imgs = kept
	l := Plan(sizes, maxWidth)

	canvas := image.NewRGBA(image.Rectangle{Max: l.Size})
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)
	for i, img := range imgs {
		draw.CatmullRom.Scale(canvas, l.Rects[i], img, img.Bounds(), draw.Over, nil)
	}
	if l.Out == l.Size {
		return canvas
	}
	out := image.NewRGBA(image.Rectangle{Max: l.Out})
	draw.CatmullRom.Scale(out, out.Bounds(), canvas, canvas.Bounds(), draw.Src, nil)
	return out
}
