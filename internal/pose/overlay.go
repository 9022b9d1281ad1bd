package pose

import (
	"image"
	"image/color"
	"image/draw"
)

const pointRadius = 4

// DrawOverlay returns a copy of img with keypoints and skeleton lines drawn
// in c. Points below DrawConfidence are skipped, as are connections with a
// missing or low-confidence end.
func DrawOverlay(img image.Image, points []Keypoint, c color.Color) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	w, h := float64(b.Dx()), float64(b.Dy())
	idx := Index(points)

	for _, conn := range Connections {
		p1, ok1 := idx[conn.From]
		p2, ok2 := idx[conn.To]
		if !ok1 || !ok2 || p1.Confidence <= DrawConfidence || p2.Confidence <= DrawConfidence {
			continue
		}
		drawLine(dst, int(p1.X*w), int(p1.Y*h), int(p2.X*w), int(p2.Y*h), c)
	}

	for _, p := range points {
		if p.Confidence <= DrawConfidence {
			continue
		}
		drawDot(dst, int(p.X*w), int(p.Y*h), pointRadius, c)
	}

	return dst
}

// drawLine rasterizes a 2px-wide segment with Bresenham's algorithm.
func drawLine(dst *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		dst.Set(x0, y0, c)
		dst.Set(x0+1, y0, c)
		dst.Set(x0, y0+1, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func drawDot(dst *image.RGBA, cx, cy, r int, c color.Color) {
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			if x*x+y*y <= r*r {
				dst.Set(cx+x, cy+y, c)
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
