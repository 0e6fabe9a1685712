package capture

import (
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/render3/backend/soft"
	"github.com/gogpu/render3/graph"
	"github.com/gogpu/render3/rhi"
)

func TestScreenshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dev := soft.NewDevice()
	shots, err := NewScreenshotter(dev, dir)
	if err != nil {
		t.Fatal(err)
	}

	// Render a tiny solid target through a graph and capture it.
	pool := graph.NewPool(dev)
	g := graph.New(dev, pool)

	target := g.Create("Final", rhi.Create2D(4, 4, gputypes.TextureFormatRGBA8Unorm, 1))
	g.AddPass("Fill", graph.Compute).
		Write(target).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
			tex := res.Get(target).(*soft.Texture)
			for y := uint32(0); y < 4; y++ {
				for x := uint32(0); x < 4; x++ {
					tex.Store(0, x, y, 0, [4]float32{1, 0, 0, 1})
				}
			}
		})

	if err := shots.Capture(g, target); err != nil {
		t.Fatal(err)
	}
	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	fence, err := g.Execute()
	if err != nil {
		t.Fatal(err)
	}
	shots.NotifySubmitted(fence)

	written, err := shots.Poll()
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != 1 {
		t.Fatalf("wrote %d files, want 1", len(written))
	}
	if shots.PendingCount() != 0 {
		t.Error("capture still pending after poll")
	}

	name := filepath.Base(written[0])
	if !strings.HasPrefix(name, "Screenshot_") || !strings.HasSuffix(name, ".png") {
		t.Errorf("file name %q does not match Screenshot_*.png", name)
	}

	f, err := os.Open(written[0])
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 4 {
		t.Errorf("image size = %v", img.Bounds())
	}
	r, g8, b, a := img.At(1, 1).RGBA()
	if r != 0xffff || g8 != 0 || b != 0 || a != 0xffff {
		t.Errorf("pixel = (%d, %d, %d, %d), want solid red", r, g8, b, a)
	}
}

func TestPollWaitsForFence(t *testing.T) {
	dir := t.TempDir()
	dev := soft.NewDevice()
	shots, err := NewScreenshotter(dev, dir)
	if err != nil {
		t.Fatal(err)
	}

	pool := graph.NewPool(dev)
	g := graph.New(dev, pool)
	target := g.Create("Final", rhi.Create2D(2, 2, gputypes.TextureFormatRGBA8Unorm, 1))
	g.AddPass("Touch", graph.Compute).
		Write(target).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {})
	if err := shots.Capture(g, target); err != nil {
		t.Fatal(err)
	}

	// No fence assigned yet: the capture must stay pending.
	written, err := shots.Poll()
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != 0 || shots.PendingCount() != 1 {
		t.Errorf("unfenced capture completed: wrote %d, pending %d", len(written), shots.PendingCount())
	}
}
