package graph

import (
	"strings"
	"testing"

	"github.com/gogpu/render3/backend/soft"
	"github.com/gogpu/render3/rhi"
)

func newTestGraph(t *testing.T) (*Graph, *Pool, rhi.Device) {
	t.Helper()
	dev := soft.NewDevice()
	pool := NewPool(dev)
	return New(dev, pool), pool, dev
}

func bufDesc() rhi.ResourceDesc { return rhi.CreateStructured(16, 4, 0) }

func TestUnreadPassIsCulled(t *testing.T) {
	g, _, _ := newTestGraph(t)

	ran := false
	r := g.Create("orphan", bufDesc())
	g.AddPass("Orphan Writer", Compute).
		Write(r).
		Bind(func(ctx rhi.CommandContext, res *Resources) { ran = true })

	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(); err != nil {
		t.Fatal(err)
	}
	if !g.Culled("Orphan Writer") {
		t.Error("unread pass not culled")
	}
	if ran {
		t.Error("culled pass closure was invoked")
	}
}

func TestNeverCullAlwaysScheduled(t *testing.T) {
	g, _, _ := newTestGraph(t)

	ran := false
	r := g.Create("orphan", bufDesc())
	g.AddPass("Stats", Compute|NeverCull).
		Write(r).
		Bind(func(ctx rhi.CommandContext, res *Resources) { ran = true })

	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Error("NeverCull pass was not executed")
	}
}

func TestLivenessFlowsThroughReads(t *testing.T) {
	g, _, _ := newTestGraph(t)

	order := []string{}
	a := g.Create("a", bufDesc())
	b := g.Create("b", bufDesc())

	g.AddPass("Produce A", Compute).
		Write(a).
		Bind(func(ctx rhi.CommandContext, res *Resources) { order = append(order, "A") })
	g.AddPass("A to B", Compute).
		Read(a).
		Write(b).
		Bind(func(ctx rhi.CommandContext, res *Resources) { order = append(order, "B") })
	g.AddPass("Consume B", Compute|NeverCull).
		Read(b).
		Bind(func(ctx rhi.CommandContext, res *Resources) { order = append(order, "C") })

	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(order, ""); got != "ABC" {
		t.Errorf("execution order = %q, want ABC", got)
	}
}

func TestBarrierBeforeReaderMatchesDeclaredState(t *testing.T) {
	g, _, _ := newTestGraph(t)

	r := g.Create("data", bufDesc())
	g.AddPass("Writer", Compute).
		Write(r).
		Bind(func(ctx rhi.CommandContext, res *Resources) {})
	g.AddPass("Reader", Compute|NeverCull).
		Read(r).
		Bind(func(ctx rhi.CommandContext, res *Resources) {})

	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(); err != nil {
		t.Fatal(err)
	}

	barriers := g.Barriers("Reader")
	found := false
	for _, b := range barriers {
		if strings.Contains(b, "data") && strings.HasSuffix(b, "-> SRV") {
			found = true
		}
	}
	if !found {
		t.Errorf("reader barriers = %v, want transition of data to SRV", barriers)
	}
}

func TestUAVBarrierBetweenBackToBackWriters(t *testing.T) {
	g, _, _ := newTestGraph(t)

	r := g.Create("accum", bufDesc())
	g.AddPass("First Writer", Compute).
		Write(r).
		Bind(func(ctx rhi.CommandContext, res *Resources) {})
	g.AddPass("Second Writer", Compute).
		Write(r).
		Bind(func(ctx rhi.CommandContext, res *Resources) {})
	g.AddPass("Reader", Compute|NeverCull).
		Read(r).
		Bind(func(ctx rhi.CommandContext, res *Resources) {})

	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(); err != nil {
		t.Fatal(err)
	}

	found := false
	for _, b := range g.Barriers("Second Writer") {
		if strings.Contains(b, "uav") {
			found = true
		}
	}
	if !found {
		t.Error("no UAV barrier between back-to-back writers")
	}
}

func TestImportedResourceNeverPooled(t *testing.T) {
	g, pool, dev := newTestGraph(t)

	phys, err := dev.CreateBuffer(bufDesc(), "external")
	if err != nil {
		t.Fatal(err)
	}
	r := g.Import("external", phys)

	g.AddPass("Use", Compute).
		Write(r).
		Bind(func(ctx rhi.CommandContext, res *Resources) {
			if res.Get(r) != phys {
				t.Error("import resolved to a different physical resource")
			}
		})

	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(); err != nil {
		t.Fatal(err)
	}
	if pool.Size() != 0 {
		t.Errorf("pool size = %d, want 0: import leaked into the pool", pool.Size())
	}
}

func TestTransientAliasing(t *testing.T) {
	g, pool, _ := newTestGraph(t)

	// a's lifetime ends at pass 1, b starts at pass 2 with an identical
	// descriptor: one physical resource serves both.
	a := g.Create("a", bufDesc())
	b := g.Create("b", bufDesc())

	g.AddPass("Use A", Compute|NeverCull).
		Write(a).
		Bind(func(ctx rhi.CommandContext, res *Resources) {})
	g.AddPass("Use B", Compute|NeverCull).
		Write(b).
		Bind(func(ctx rhi.CommandContext, res *Resources) {})

	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(); err != nil {
		t.Fatal(err)
	}
	if pool.Size() != 1 {
		t.Errorf("pool size = %d, want 1 (aliased)", pool.Size())
	}
	if a.physical != b.physical {
		t.Error("disjoint transients did not alias")
	}
}

func TestOverlappingLifetimesDoNotAlias(t *testing.T) {
	g, pool, _ := newTestGraph(t)

	a := g.Create("a", bufDesc())
	b := g.Create("b", bufDesc())

	g.AddPass("Both", Compute|NeverCull).
		Write(a, b).
		Bind(func(ctx rhi.CommandContext, res *Resources) {
			if res.Get(a) == res.Get(b) {
				t.Error("overlapping resources share physical backing")
			}
		})

	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(); err != nil {
		t.Fatal(err)
	}
	if pool.Size() != 2 {
		t.Errorf("pool size = %d, want 2", pool.Size())
	}
}

func TestReadAfterWriteSameVersionRefused(t *testing.T) {
	g, _, _ := newTestGraph(t)

	ran := false
	r := g.Create("r", bufDesc())
	g.AddPass("Bad", Compute|NeverCull).
		Write(r).
		Read(r). // reads the version it just produced
		Bind(func(ctx rhi.CommandContext, res *Resources) { ran = true })

	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(); err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Error("invalid pass was executed")
	}
}

func TestComputePassWithRenderTargetRefused(t *testing.T) {
	g, _, dev := newTestGraph(t)
	_ = dev

	ran := false
	rt := g.Create("rt", rhi.CreateRenderTarget(8, 8, 0, 1))
	g.AddPass("Bad Compute", Compute|NeverCull).
		RenderTarget(rt, rhi.AccessClearStore, nil).
		Bind(func(ctx rhi.CommandContext, res *Resources) { ran = true })

	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(); err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Error("compute pass with render target was executed")
	}
}

func TestIndirectArgsMustBeWrittenInGraph(t *testing.T) {
	g, _, _ := newTestGraph(t)

	ran := false
	args := g.Create("args", rhi.CreateIndirectArguments(1))
	g.AddPass("Consume", Compute|NeverCull).
		ReadIndirect(args).
		Bind(func(ctx rhi.CommandContext, res *Resources) { ran = true })

	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(); err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Error("pass consuming unwritten indirect args was executed")
	}
}

func TestRenderTargetDimensionMismatchRefused(t *testing.T) {
	g, _, _ := newTestGraph(t)

	ran := false
	a := g.Create("a", rhi.CreateRenderTarget(8, 8, 0, 1))
	b := g.Create("b", rhi.CreateRenderTarget(16, 16, 0, 1))
	g.AddPass("Bad Raster", Raster|NeverCull).
		RenderTarget(a, rhi.AccessClearStore, nil).
		RenderTarget(b, rhi.AccessClearStore, nil).
		Bind(func(ctx rhi.CommandContext, res *Resources) { ran = true })

	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(); err != nil {
		t.Fatal(err)
	}
	if ran {
		t.Error("mismatched render targets were executed")
	}
}

func TestExportMovesOwnershipOut(t *testing.T) {
	g, pool, _ := newTestGraph(t)

	var out rhi.Resource
	r := g.Create("persistent", bufDesc())
	g.Export(r, &out)
	g.AddPass("Fill", Compute).
		Write(r).
		Bind(func(ctx rhi.CommandContext, res *Resources) {})

	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(); err != nil {
		t.Fatal(err)
	}
	if out == nil {
		t.Fatal("export did not produce a physical resource")
	}
	if pool.Size() != 0 {
		t.Errorf("pool still owns %d resources after export", pool.Size())
	}
}

func TestAddCopyPass(t *testing.T) {
	g, _, dev := newTestGraph(t)

	src, _ := dev.CreateBuffer(bufDesc(), "src")
	dst, _ := dev.CreateBuffer(bufDesc(), "dst")
	copy(src.(*soft.Buffer).Bytes(), []byte{1, 2, 3, 4})

	srcV := g.Import("src", src)
	dstV := g.Import("dst", dst)
	g.AddCopyPass(srcV, dstV)

	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(); err != nil {
		t.Fatal(err)
	}
	got := dst.(*soft.Buffer).Bytes()[:4]
	if got[0] != 1 || got[3] != 4 {
		t.Errorf("copy result = %v", got)
	}
}

func TestBlackboard(t *testing.T) {
	g, _, _ := newTestGraph(t)

	type lightingOutput struct{ value int }
	g.Blackboard().Put(lightingOutput{value: 7})

	got, ok := Get[lightingOutput](g.Blackboard())
	if !ok || got.value != 7 {
		t.Errorf("blackboard Get = %+v, %v", got, ok)
	}
	if _, ok := Get[string](g.Blackboard()); ok {
		t.Error("blackboard returned a value for an unstored type")
	}
}

func TestDumpListsPassesAndResources(t *testing.T) {
	g, _, _ := newTestGraph(t)

	r := g.Create("hzb", bufDesc())
	g.AddPass("Build HZB", Compute|NeverCull).
		Write(r).
		Bind(func(ctx rhi.CommandContext, res *Resources) {})

	if err := g.Compile(); err != nil {
		t.Fatal(err)
	}
	var sb strings.Builder
	if err := g.Dump(&sb); err != nil {
		t.Fatal(err)
	}
	out := sb.String()
	if !strings.Contains(out, "Build HZB") || !strings.Contains(out, "hzb") {
		t.Errorf("dump missing nodes:\n%s", out)
	}
}

func TestScopesPrefixPassNames(t *testing.T) {
	g, _, _ := newTestGraph(t)
	g.PushScope("Phase 1")
	p := g.AddPass("Cull", Compute)
	g.PopScope()
	if p.name != "Phase 1/Cull" {
		t.Errorf("scoped name = %q", p.name)
	}
}
