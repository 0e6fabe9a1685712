package lighting

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/render3/graph"
	"github.com/gogpu/render3/internal/blob"
	"github.com/gogpu/render3/math3"
	"github.com/gogpu/render3/rhi"
	"github.com/gogpu/render3/scene"
)

// Tile configuration for the tiled (2D) alternative.
const (
	// TileSize is the screen-space footprint of one tile.
	TileSize = 16

	// MaxLightsPerTile bounds each tile's index window.
	MaxLightsPerTile = 256
)

// TileCounts returns the tile grid dimensions for a viewport.
func TileCounts(width, height uint32) (tx, ty uint32) {
	return math3.DivideAndRoundUp(width, TileSize),
		math3.DivideAndRoundUp(height, TileSize)
}

// Tiled implements the screen-tile light culling alternative: per-tile
// depth bounds from the depth target, separate opaque and transparent
// light lists, and an atomic counter allocating index windows.
type Tiled struct {
	device rhi.Device
	sig    *rhi.RootSignature

	cullPSO rhi.Pipeline

	frame *scene.View
}

// TiledOutput exposes the tiled culling products.
type TiledOutput struct {
	// LightGridOpaque and LightGridTransparent store (offset, count) per
	// tile in the red and green channels.
	LightGridOpaque      *graph.Resource
	LightGridTransparent *graph.Resource

	LightIndexList *graph.Resource
}

// NewTiled creates the tiled light-culling pipeline.
func NewTiled(device rhi.Device) (*Tiled, error) {
	t := &Tiled{
		device: device,
		sig:    &rhi.RootSignature{Name: "Common", NumRootConstants: rhi.MaxRootConstants},
	}
	var err error
	t.cullPSO, err = device.CreateComputePipeline(rhi.ComputePipelineDesc{
		Name: "Tiled Light Culling", EntryPoint: "LightCulling", Kernel: t.kernelTiledCulling,
	})
	if err != nil {
		return nil, fmt.Errorf("lighting: %w", err)
	}
	return t, nil
}

type tiledConstants struct {
	TilesX uint32
	TilesY uint32
}

// Execute schedules tiled light culling against the frame's depth target.
func (t *Tiled) Execute(g *graph.Graph, view *scene.View, depth *graph.Resource) TiledOutput {
	g.PushScope("Tiled Lighting")
	defer g.PopScope()

	tx, ty := TileCounts(view.Width, view.Height)

	out := TiledOutput{
		LightGridOpaque: g.Create("Tiled.LightGridOpaque",
			rhi.Create2D(tx, ty, gputypes.TextureFormatRG32Float, 1)),
		LightGridTransparent: g.Create("Tiled.LightGridTransparent",
			rhi.Create2D(tx, ty, gputypes.TextureFormatRG32Float, 1)),
		LightIndexList: g.Create("Tiled.LightIndexList",
			rhi.CreateStructured(2*MaxLightsPerTile*tx*ty, 4, 0)),
	}
	counter := g.Create("Tiled.LightIndexCounter", rhi.CreateStructured(2, 4, 0))

	g.AddPass("Tiled Light Culling", graph.Compute).
		Read(depth).
		Write(out.LightGridOpaque, out.LightGridTransparent, out.LightIndexList, counter).
		Bind(func(ctx rhi.CommandContext, res *graph.Resources) {
			t.frame = view
			ctx.SetComputeRootSignature(t.sig)
			ctx.SetPipeline(t.cullPSO)
			ctx.ClearUAVUint(res.Get(counter))
			k := tiledConstants{TilesX: tx, TilesY: ty}
			ctx.SetRootConstants(rhi.SlotRootConstants, blob.StructToBytes(&k))
			ctx.SetRootCBV(rhi.SlotViewCBV, view.UniformBytes())
			ctx.BindResources(rhi.SlotSRVs, []rhi.ResourceView{res.SRV(depth)})
			ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{
				res.UAV(out.LightGridOpaque),
				res.UAV(out.LightGridTransparent),
				res.UAV(out.LightIndexList),
				res.UAV(counter),
			})
			ctx.Dispatch(tx, ty, 1)
		})

	g.Blackboard().Put(out)
	return out
}

// kernelTiledCulling computes per-tile depth bounds, then tests each
// light's sphere against the tile's world-space bounds. Opaque lists cull
// against [tileMin, tileMax]; transparent lists keep everything in front
// of the far bound.
func (t *Tiled) kernelTiledCulling(d rhi.Dispatch) {
	var k tiledConstants
	copy(blob.StructToBytes(&k), d.Constants())

	view := t.frame
	depth := d.Texture(rhi.SlotSRVs, 0)
	gridOpaque := d.Texture(rhi.SlotUAVs, 0)
	gridTransparent := d.Texture(rhi.SlotUAVs, 1)
	indexList := blob.BytesToSlice[uint32](d.Buffer(rhi.SlotUAVs, 2))
	counter := blob.BytesToSlice[uint32](d.Buffer(rhi.SlotUAVs, 3))

	dw, dh, _ := depth.Dims(0)
	n := math32.Min(view.Near, view.Far)
	f := math32.Max(view.Near, view.Far)
	cam := view.CameraPosition

	for ty := uint32(0); ty < k.TilesY; ty++ {
		for tx := uint32(0); tx < k.TilesX; tx++ {
			// Tile depth bounds; reverse-Z flips min and max.
			maxDepth, minDepth := float32(0), float32(1)
			for y := ty * TileSize; y < min((ty+1)*TileSize, dh); y++ {
				for x := tx * TileSize; x < min((tx+1)*TileSize, dw); x++ {
					dv := depth.Load(0, x, y, 0)[0]
					maxDepth = math32.Max(maxDepth, dv)
					if dv > 0 {
						minDepth = math32.Min(minDepth, dv)
					}
				}
			}
			zNear := linearDepth(maxDepth, n, f)
			zFar := linearDepth(minDepth, n, f)

			// World-space tile box between the near and far bounds.
			box := math3.EmptyAABB()
			boxTransparent := math3.EmptyAABB()
			for corner := 0; corner < 4; corner++ {
				px := float32((tx + uint32(corner&1)) * TileSize)
				py := float32((ty + uint32(corner>>1)) * TileSize)
				farPoint := clusterRay(view, px, py)
				dir := farPoint.Sub(cam)
				box = box.Extend(cam.Add(dir.Scale(zNear / f)))
				box = box.Extend(cam.Add(dir.Scale(zFar / f)))
				boxTransparent = boxTransparent.Extend(cam.Add(dir.Scale(n / f)))
				boxTransparent = boxTransparent.Extend(cam.Add(dir.Scale(zFar / f)))
			}

			writeTileList := func(grid rhi.KernelTexture, b math3.AABB, slot uint32) {
				offset := counter[slot]
				count := uint32(0)
				for li := range view.Lights {
					if count >= MaxLightsPerTile {
						break
					}
					if b.IntersectsSphere(view.Lights[li].BoundingSphere()) {
						base := slot * MaxLightsPerTile * k.TilesX * k.TilesY
						indexList[base+offset+count] = uint32(li)
						count++
					}
				}
				counter[slot] = offset + count
				grid.Store(0, tx, ty, 0, [4]float32{float32(offset), float32(count), 0, 0})
			}
			writeTileList(gridOpaque, box, 0)
			writeTileList(gridTransparent, boxTransparent, 1)
		}
	}
}

// linearDepth inverts the reverse-Z projection to a view-space distance.
func linearDepth(d, n, f float32) float32 {
	if d <= 0 {
		return f
	}
	return n * f / (n + d*(f-n))
}
