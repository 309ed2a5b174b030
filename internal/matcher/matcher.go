// Package matcher finds template images inside device screenshots. It
// mirrors the template cache, threshold, and find/find_all/crop/grayscale/
// threshold/similarity operations of the original image processor, built on
// Go's standard image decoders since no third-party template-matching
// library is carried by the reference stack this module draws from; the
// cache itself uses github.com/cornelk/hashmap so concurrent step
// executions across devices never block each other on a shared mutex.
package matcher

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/cornelk/hashmap"

	"github.com/srg/adbfleet/internal/ferr"
)

// Match is one located template occurrence, in source-image pixel space.
type Match struct {
	X, Y, W, H int
	Score      float64
}

// Center returns the midpoint of m.
func (m Match) Center() (int, int) {
	return m.X + m.W/2, m.Y + m.H/2
}

// Matcher loads and caches template images from Dir and searches screenshots
// for them.
type Matcher struct {
	Dir       string
	Threshold float64
	cache     *hashmap.Map[string, *image.Gray]
}

// New builds a Matcher rooted at templateDir with the given default
// match threshold.
func New(templateDir string, threshold float64) *Matcher {
	return &Matcher{
		Dir:       templateDir,
		Threshold: threshold,
		cache:     hashmap.New[string, *image.Gray](),
	}
}

func (m *Matcher) templatePath(name string) (string, error) {
	ext := filepath.Ext(name)
	if ext == ".png" || ext == ".jpg" || ext == ".jpeg" {
		p := filepath.Join(m.Dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
		return "", ferr.New(ferr.KindTemplateMissing, name)
	}
	for _, candidate := range []string{name + ".png", name + ".jpg"} {
		p := filepath.Join(m.Dir, candidate)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", ferr.New(ferr.KindTemplateMissing, name)
}

// Load returns the grayscale pixels of template name, loading and caching
// it on first use.
func (m *Matcher) Load(name string) (*image.Gray, error) {
	if gray, ok := m.cache.Get(name); ok {
		return gray, nil
	}

	path, err := m.templatePath(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, ferr.Wrap(ferr.KindIOFailure, err, path)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, ferr.Wrap(ferr.KindLoadFailure, err, path)
	}

	gray := ToGray(img)
	gray, _ = m.cache.GetOrInsert(name, gray)
	return gray, nil
}

// Invalidate drops name from the template cache, forcing the next Load to
// re-read it from disk.
func (m *Matcher) Invalidate(name string) {
	m.cache.Del(name)
}

// ToGray converts any image.Image to 8-bit grayscale.
func ToGray(img image.Image) *image.Gray {
	if gray, ok := img.(*image.Gray); ok {
		return gray
	}
	b := img.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x, y, img.At(x, y))
		}
	}
	return gray
}

// Crop returns the sub-rectangle of img at (x,y,w,h), clamped to bounds.
func Crop(img *image.Gray, x, y, w, h int) *image.Gray {
	b := img.Bounds()
	x0 := clamp(x, b.Min.X, b.Max.X-1)
	y0 := clamp(y, b.Min.Y, b.Max.Y-1)
	x1 := clamp(x+w, x0, b.Max.X)
	y1 := clamp(y+h, y0, b.Max.Y)
	return img.SubImage(image.Rect(x0, y0, x1, y1)).(*image.Gray)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Threshold applies a binary threshold, matching apply_threshold's default
// BINARY mode: pixels >= cut become 255, else 0.
func Threshold(img *image.Gray, cut uint8) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.GrayAt(x, y).Y >= cut {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out
}

// Similarity compares two images by normalized mean-squared pixel error,
// resizing b to a's bounds first when they differ. 1.0 is identical.
func Similarity(a, b image.Image) float64 {
	ga, gb := ToGray(a), ToGray(b)
	ba := ga.Bounds()
	if gb.Bounds().Dx() != ba.Dx() || gb.Bounds().Dy() != ba.Dy() {
		gb = resize(gb, ba.Dx(), ba.Dy())
	}

	var sumSq float64
	n := 0
	for y := ba.Min.Y; y < ba.Max.Y; y++ {
		for x := ba.Min.X; x < ba.Max.X; x++ {
			va := float64(ga.GrayAt(x, y).Y)
			vb := float64(gb.GrayAt(x+gb.Bounds().Min.X-ba.Min.X, y+gb.Bounds().Min.Y-ba.Min.Y).Y)
			d := va - vb
			sumSq += d * d
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mse := sumSq / float64(n)
	similarity := 1 - mse/65025.0 // max squared error for 8-bit grayscale
	return clampFloat(similarity, 0, 1)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func resize(img *image.Gray, w, h int) *image.Gray {
	src := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		sy := src.Min.Y + y*src.Dy()/h
		for x := 0; x < w; x++ {
			sx := src.Min.X + x*src.Dx()/w
			out.SetGray(x, y, img.GrayAt(sx, sy))
		}
	}
	return out
}

// score is a normalized cross-correlation of template over screen at
// offset (ox, oy), in [-1, 1] for well-formed inputs.
func score(screen, tmpl *image.Gray, ox, oy int) float64 {
	tb := tmpl.Bounds()
	var sumS, sumT, sumST, sumSS, sumTT float64
	n := float64(tb.Dx() * tb.Dy())

	for y := tb.Min.Y; y < tb.Max.Y; y++ {
		for x := tb.Min.X; x < tb.Max.X; x++ {
			sv := float64(screen.GrayAt(ox+x-tb.Min.X, oy+y-tb.Min.Y).Y)
			tv := float64(tmpl.GrayAt(x, y).Y)
			sumS += sv
			sumT += tv
			sumST += sv * tv
			sumSS += sv * sv
			sumTT += tv * tv
		}
	}

	meanS, meanT := sumS/n, sumT/n
	numer := sumST - n*meanS*meanT
	varS, varT := sumSS-n*meanS*meanS, sumTT-n*meanT*meanT
	denom := math.Sqrt(varS * varT)
	if denom == 0 {
		// Correlation is undefined for a flat template or window; a flat
		// window equal to a flat template is an exact match.
		if varS == 0 && varT == 0 && meanS == meanT {
			return 1
		}
		return 0
	}
	return numer / denom
}

// Find locates the best-scoring occurrence of the template above threshold.
// threshold <= 0 uses m.Threshold.
func (m *Matcher) Find(screen image.Image, templateName string, threshold float64) (Match, error) {
	if threshold <= 0 {
		threshold = m.Threshold
	}
	tmpl, err := m.Load(templateName)
	if err != nil {
		return Match{}, err
	}
	gray := ToGray(screen)

	best := Match{Score: -2}
	sb, tb := gray.Bounds(), tmpl.Bounds()
	maxX, maxY := sb.Dx()-tb.Dx(), sb.Dy()-tb.Dy()
	if maxX < 0 || maxY < 0 {
		return Match{}, ferr.New(ferr.KindNoMatch, templateName)
	}

	for oy := sb.Min.Y; oy <= sb.Min.Y+maxY; oy++ {
		for ox := sb.Min.X; ox <= sb.Min.X+maxX; ox++ {
			s := score(gray, tmpl, ox, oy)
			if s > best.Score {
				best = Match{X: ox, Y: oy, W: tb.Dx(), H: tb.Dy(), Score: s}
			}
		}
	}

	if best.Score < threshold {
		return Match{}, ferr.New(ferr.KindNoMatch, fmt.Sprintf("%s (best=%.3f threshold=%.3f)", templateName, best.Score, threshold))
	}
	return best, nil
}

// FindAll returns up to maxResults occurrences of the template above
// threshold, using iterative best-then-suppress: after taking the
// strongest remaining match, every candidate position within one template
// width and height of that match's center (a 2w x 2h window centered on the
// match center) is excluded from further consideration before searching
// again. A second match whose top-left corner lies inside that window, such
// as one half a template-width to the side, is not reported.
func (m *Matcher) FindAll(screen image.Image, templateName string, threshold float64, maxResults int) ([]Match, error) {
	if threshold <= 0 {
		threshold = m.Threshold
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	tmpl, err := m.Load(templateName)
	if err != nil {
		return nil, err
	}
	gray := ToGray(screen)
	sb, tb := gray.Bounds(), tmpl.Bounds()
	maxX, maxY := sb.Dx()-tb.Dx(), sb.Dy()-tb.Dy()
	if maxX < 0 || maxY < 0 {
		return nil, nil
	}

	suppressed := make([][]bool, sb.Dy())
	for i := range suppressed {
		suppressed[i] = make([]bool, sb.Dx())
	}

	var results []Match
	for len(results) < maxResults {
		best := Match{Score: -2}
		for oy := 0; oy <= maxY; oy++ {
			for ox := 0; ox <= maxX; ox++ {
				if suppressed[oy][ox] {
					continue
				}
				s := score(gray, tmpl, sb.Min.X+ox, sb.Min.Y+oy)
				if s > best.Score {
					best = Match{X: sb.Min.X + ox, Y: sb.Min.Y + oy, W: tb.Dx(), H: tb.Dy(), Score: s}
				}
			}
		}
		if best.Score < threshold {
			break
		}
		results = append(results, best)

		cx, cy := best.X-sb.Min.X+tb.Dx()/2, best.Y-sb.Min.Y+tb.Dy()/2
		x0, x1 := clamp(cx-tb.Dx(), 0, sb.Dx()), clamp(cx+tb.Dx(), 0, sb.Dx())
		y0, y1 := clamp(cy-tb.Dy(), 0, sb.Dy()), clamp(cy+tb.Dy(), 0, sb.Dy())
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				suppressed[y][x] = true
			}
		}
	}
	return results, nil
}

// DecodePNG is a convenience decoder for screenshots pulled from the bridge.
func DecodePNG(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ferr.Wrap(ferr.KindLoadFailure, err, "decode screenshot")
	}
	return img, nil
}
