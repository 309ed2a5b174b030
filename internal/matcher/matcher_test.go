package matcher

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestThreshold(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 1))
	img.SetGray(0, 0, color.Gray{Y: 100})
	img.SetGray(1, 0, color.Gray{Y: 200})

	out := Threshold(img, 150)
	assert.Equal(t, uint8(0), out.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), out.GrayAt(1, 0).Y)
}

func TestSimilarity_Identical(t *testing.T) {
	img := solidGray(10, 10, 128)
	assert.InDelta(t, 1.0, Similarity(img, img), 1e-9)
}

func TestSimilarity_Different(t *testing.T) {
	a := solidGray(4, 4, 0)
	b := solidGray(4, 4, 255)
	assert.InDelta(t, 0.0, Similarity(a, b), 1e-9)
}

func TestCrop_ClampsToBounds(t *testing.T) {
	img := solidGray(10, 10, 1)
	out := Crop(img, 8, 8, 5, 5)
	b := out.Bounds()
	assert.Equal(t, 10, b.Max.X)
	assert.Equal(t, 10, b.Max.Y)
}

func TestMatcher_FindLocatesTemplate(t *testing.T) {
	dir := t.TempDir()
	tmpl := solidGray(4, 4, 200)
	writePNG(t, filepath.Join(dir, "button.png"), tmpl)

	screen := solidGray(20, 20, 50)
	for y := 5; y < 9; y++ {
		for x := 3; x < 7; x++ {
			screen.SetGray(x, y, color.Gray{Y: 200})
		}
	}

	m := New(dir, 0.9)
	match, err := m.Find(screen, "button", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, match.X)
	assert.Equal(t, 5, match.Y)
}

func TestMatcher_FindNoMatchAboveThreshold(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "button.png"), solidGray(4, 4, 255))

	screen := solidGray(10, 10, 0)
	m := New(dir, 0.99)
	_, err := m.Find(screen, "button", 0)
	assert.Error(t, err)
}

func TestMatcher_LoadCachesTemplate(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "icon.png"), solidGray(3, 3, 10))

	m := New(dir, 0.5)
	first, err := m.Load("icon")
	require.NoError(t, err)
	second, err := m.Load("icon")
	require.NoError(t, err)
	assert.Same(t, first, second)

	m.Invalidate("icon")
	third, err := m.Load("icon")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestMatcher_FindAllSuppressesAroundMatchCenter(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "dot.png"), solidGray(2, 2, 255))

	screen := solidGray(20, 4, 0)
	for _, x := range []int{2, 10} {
		for dy := 0; dy < 2; dy++ {
			for dx := 0; dx < 2; dx++ {
				screen.SetGray(x+dx, dy, color.Gray{Y: 255})
			}
		}
	}

	m := New(dir, 0.9)
	matches, err := m.FindAll(screen, "dot", 0, 5)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}
