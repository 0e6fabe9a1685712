// Package capture persists renderer output: it copies the final tonemapped
// LDR target into a readback buffer and, once the GPU fence completes,
// encodes it as a timestamped PNG in the screenshot directory.
//
// Captures never block: Poll checks the fence and performs the encode on
// the calling goroutine only when the data is ready.
package capture

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/render3/graph"
	"github.com/gogpu/render3/rhi"
)

// Screenshotter owns the readback buffer of each pending capture (a fresh
// buffer per Capture, released after encoding) and the pending capture
// bookkeeping.
type Screenshotter struct {
	device rhi.Device
	dir    string

	pending []pendingCapture
}

type pendingCapture struct {
	buffer        rhi.Resource
	fence         rhi.FenceValue
	width, height uint32
	requested     time.Time
}

// NewScreenshotter creates a screenshotter writing PNGs into dir, creating
// it if needed.
func NewScreenshotter(device rhi.Device, dir string) (*Screenshotter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("capture: screenshot dir: %w", err)
	}
	return &Screenshotter{device: device, dir: dir}, nil
}

// Capture schedules a copy of target (an RGBA8 LDR texture) into a fresh
// readback buffer. Call NotifySubmitted with the graph's fence after
// Execute, then Poll each frame.
func (s *Screenshotter) Capture(g *graph.Graph, target *graph.Resource) error {
	desc := target.Desc()
	size := uint64(desc.Width) * uint64(desc.Height) * 4
	rb, err := s.device.CreateBuffer(rhi.CreateReadback(size), "Screenshot Readback")
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	imported := g.Import("Screenshot.Readback", rb)
	g.AddCopyPass(target, imported)

	s.pending = append(s.pending, pendingCapture{
		buffer:    rb,
		width:     desc.Width,
		height:    desc.Height,
		requested: time.Now(),
	})
	return nil
}

// NotifySubmitted stamps all unfenced captures with the submission fence.
func (s *Screenshotter) NotifySubmitted(fence rhi.FenceValue) {
	for i := range s.pending {
		if s.pending[i].fence == 0 {
			s.pending[i].fence = fence
		}
	}
}

// Poll encodes every capture whose fence has completed and returns the
// written file paths.
func (s *Screenshotter) Poll() ([]string, error) {
	var written []string
	kept := s.pending[:0]
	for _, p := range s.pending {
		if p.fence == 0 || !s.device.IsFenceComplete(p.fence) {
			kept = append(kept, p)
			continue
		}
		path, err := s.encode(p)
		p.buffer.Release()
		if err != nil {
			s.pending = kept
			return written, err
		}
		written = append(written, path)
	}
	s.pending = kept
	return written, nil
}

// readbackBuffer is implemented by readback-capable buffers.
type readbackBuffer interface {
	Bytes() []byte
}

func (s *Screenshotter) encode(p pendingCapture) (string, error) {
	rb, ok := p.buffer.(readbackBuffer)
	if !ok {
		return "", fmt.Errorf("capture: buffer does not support CPU readback")
	}
	data := rb.Bytes()

	src := &image.NRGBA{
		Pix:    data,
		Stride: int(p.width) * 4,
		Rect:   image.Rect(0, 0, int(p.width), int(p.height)),
	}
	dst := image.NewNRGBA(src.Rect)
	xdraw.Draw(dst, dst.Rect, src, image.Point{}, xdraw.Src)
	// Screenshots are opaque; force full alpha in case the target
	// carried blending residue.
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}

	name := fmt.Sprintf("%s_%03d.png",
		p.requested.Format("Screenshot_2006_01_02__15_04_05"),
		p.requested.Nanosecond()/1e6)
	path := filepath.Join(s.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("capture: %w", err)
	}
	defer f.Close()
	if err := png.Encode(f, dst); err != nil {
		return "", fmt.Errorf("capture: encode: %w", err)
	}
	return path, nil
}

// PendingCount returns how many captures await their fence.
func (s *Screenshotter) PendingCount() int { return len(s.pending) }
