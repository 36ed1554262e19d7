package imaging

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestGridDims(t *testing.T) {
	tests := []struct {
		n          int
		rows, cols int
	}{
		{1, 1, 1},
		{2, 1, 2},
		{3, 2, 2},
		{4, 2, 2},
		{5, 2, 3},
		{7, 3, 3},
		{12, 3, 4},
	}
	for _, tt := range tests {
		rows, cols := GridDims(tt.n)
		assert.Equal(t, tt.rows, rows, "rows for n=%d", tt.n)
		assert.Equal(t, tt.cols, cols, "cols for n=%d", tt.n)
		assert.GreaterOrEqual(t, rows*cols, tt.n)
	}

	rows, cols := GridDims(0)
	assert.Zero(t, rows)
	assert.Zero(t, cols)
}

// varied returns n sizes cycling through portrait, landscape and square.
func varied(n int) []image.Point {
	shapes := []image.Point{{400, 800}, {1600, 900}, {500, 500}, {1080, 1350}, {2000, 400}}
	sizes := make([]image.Point, n)
	for i := range sizes {
		sizes[i] = shapes[i%len(shapes)]
	}
	return sizes
}

func TestPlan_Invariants(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 12} {
		sizes := varied(n)
		l := Plan(sizes, MaxGridWidth)

		assert.GreaterOrEqual(t, l.Rows*l.Cols, n, "n=%d", n)
		assert.LessOrEqual(t, l.Out.X, MaxGridWidth, "n=%d", n)
		require.Len(t, l.Rects, n)

		for i, r := range l.Rects {
			cell := image.Rect(0, 0, l.Cell.X, l.Cell.Y).
				Add(image.Pt((i%l.Cols)*l.Cell.X, (i/l.Cols)*l.Cell.Y))
			assert.True(t, r.In(cell), "n=%d image %d outside its cell", n, i)

			// scaled to fit: one side touches the cell edge, aspect kept
			src := sizes[i]
			touches := r.Dx() >= l.Cell.X-1 || r.Dy() >= l.Cell.Y-1
			assert.True(t, touches, "n=%d image %d not scaled to fit", n, i)
			want := float64(src.X) / float64(src.Y)
			got := float64(r.Dx()) / float64(r.Dy())
			assert.InDelta(t, want, got, want*0.02, "n=%d image %d aspect changed", n, i)

			// centred
			assert.InDelta(t, cell.Min.X+(l.Cell.X-r.Dx())/2, r.Min.X, 1)
			assert.InDelta(t, cell.Min.Y+(l.Cell.Y-r.Dy())/2, r.Min.Y, 1)
		}
	}
}

func TestPlan_Downscale(t *testing.T) {
	l := Plan([]image.Point{{1500, 1000}, {1500, 1000}}, MaxGridWidth)
	assert.Equal(t, image.Pt(3000, 1000), l.Size)
	assert.Equal(t, image.Pt(1920, 640), l.Out)

	l = Plan([]image.Point{{800, 600}}, MaxGridWidth)
	assert.Equal(t, l.Size, l.Out)
}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestGrid_Pixels(t *testing.T) {
	red := color.RGBA{255, 0, 0, 255}
	blue := color.RGBA{0, 0, 255, 255}
	out := Grid([]image.Image{solid(100, 100, red), solid(100, 50, blue)}, MaxGridWidth)
	require.NotNil(t, out)
	assert.Equal(t, image.Pt(200, 100), out.Bounds().Size())

	assertNear(t, red, out.RGBAAt(50, 50))
	assertNear(t, blue, out.RGBAAt(150, 50))
	// letterbox around the short image stays transparent
	assert.Equal(t, uint8(0), out.RGBAAt(150, 5).A)

	assert.Nil(t, Grid(nil, MaxGridWidth))
}

func TestGrid_SkipsEmptyImages(t *testing.T) {
	red := color.RGBA{255, 0, 0, 255}
	empty := image.NewRGBA(image.Rect(0, 0, 0, 10))
	out := Grid([]image.Image{empty, solid(100, 100, red)}, MaxGridWidth)
	require.NotNil(t, out)
	assert.Equal(t, image.Pt(100, 100), out.Bounds().Size())
	assertNear(t, red, out.RGBAAt(50, 50))

	assert.Nil(t, Grid([]image.Image{empty}, MaxGridWidth))
}

func TestPlan_ZeroSize(t *testing.T) {
	l := Plan([]image.Point{{X: 0, Y: 0}, {X: 100, Y: 50}}, 0)
	require.Len(t, l.Rects, 2)
	assert.True(t, l.Rects[0].Empty())
	assert.Equal(t, image.Rect(100, 0, 200, 50), l.Rects[1])
}

func assertNear(t *testing.T, want, got color.RGBA) {
	t.Helper()
	assert.InDelta(t, want.R, got.R, 2)
	assert.InDelta(t, want.G, got.G, 2)
	assert.InDelta(t, want.B, got.B, 2)
	assert.InDelta(t, want.A, got.A, 2)
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestComposeGrid_DropsFailures(t *testing.T) {
	good := pngBytes(t, solid(40, 30, color.RGBA{0, 255, 0, 255}))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/ok"):
			_, _ = w.Write(good)
		case r.URL.Path == "/garbage":
			_, _ = w.Write([]byte("not an image"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewComposer(time.Second, testLogger())
	imgs := c.Fetch(context.Background(), []string{srv.URL + "/ok1", srv.URL + "/missing", srv.URL + "/garbage", srv.URL + "/ok2"})
	assert.Len(t, imgs, 2)

	out, err := c.ComposeGrid(context.Background(), []string{srv.URL + "/ok1", srv.URL + "/ok2", srv.URL + "/ok3"})
	require.NoError(t, err)
	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	// three images: 2 rows x 2 cols of 40x30
	assert.Equal(t, image.Pt(80, 60), decoded.Bounds().Size())

	out, err = c.ComposeGrid(context.Background(), []string{srv.URL + "/missing"})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestFetch_MaxCount(t *testing.T) {
	good := pngBytes(t, solid(4, 4, color.White))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(good)
	}))
	defer srv.Close()

	urls := make([]string, 20)
	for i := range urls {
		urls[i] = srv.URL
	}
	c := NewComposer(time.Second, testLogger())
	assert.Len(t, c.Fetch(context.Background(), urls), DefaultMaxCount)
}

func TestDominantColor_Fallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	p := NewPalette(time.Second, nil, testLogger())
	assert.Equal(t, DefaultColor, p.DominantColor(context.Background(), srv.URL+"/x.png"))
	assert.Equal(t, DefaultColor, p.DominantColor(context.Background(), ""))
}

func TestShrinkAvatar(t *testing.T) {
	assert.Equal(t,
		"https://cdn.discordapp.com/avatars/1/abc.png?size=16",
		shrinkAvatar("https://cdn.discordapp.com/avatars/1/abc.png?size=1024"))
	assert.Equal(t,
		"https://example.com/a.png?size=1024",
		shrinkAvatar("https://example.com/a.png?size=1024"))
}
