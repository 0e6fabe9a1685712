package soft

import (
	"encoding/binary"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/render3/rhi"
)

func TestDeviceCapabilities(t *testing.T) {
	dev := NewDevice()
	caps := dev.Capabilities()
	if !caps.MeshShading || !caps.WorkGraphs {
		t.Errorf("software device must advertise mesh shading and work graphs: %+v", caps)
	}
}

func TestFencesCompleteOnSubmission(t *testing.T) {
	dev := NewDevice()
	ctx := dev.AllocateContext()

	fence, err := ctx.Execute(false)
	if err != nil {
		t.Fatal(err)
	}
	if fence == 0 {
		t.Error("fence value 0 returned for a submission")
	}
	if !dev.IsFenceComplete(fence) {
		t.Error("synchronous submission's fence not complete")
	}
	if dev.IsFenceComplete(fence + 1) {
		t.Error("future fence reported complete")
	}
}

func TestDeferredFreeWaitsForFence(t *testing.T) {
	dev := NewDevice()
	buf, err := dev.CreateBuffer(rhi.CreateStructured(4, 4, 0), "b")
	if err != nil {
		t.Fatal(err)
	}

	ctx := dev.AllocateContext()
	ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{rhi.UAV(buf)})

	// Released while "in flight": the queue holds it until the fence
	// completes and a tick drains it.
	buf.Release()
	if len(dev.deferred) != 1 {
		t.Fatalf("deferred queue length = %d, want 1", len(dev.deferred))
	}

	if _, err := ctx.Execute(false); err != nil {
		t.Fatal(err)
	}
	dev.TickFrame()
	if len(dev.deferred) != 0 {
		t.Errorf("deferred queue not drained after completed fence")
	}
}

func TestTickFrameAdvances(t *testing.T) {
	dev := NewDevice()
	if dev.FrameIndex() != 0 {
		t.Error("fresh device frame != 0")
	}
	dev.TickFrame()
	dev.TickFrame()
	if dev.FrameIndex() != 2 {
		t.Errorf("frame index = %d, want 2", dev.FrameIndex())
	}
}

func TestComputeDispatchRunsKernel(t *testing.T) {
	dev := NewDevice()

	ran := uint32(0)
	pso, err := dev.CreateComputePipeline(rhi.ComputePipelineDesc{
		Name: "Count",
		Kernel: func(d rhi.Dispatch) {
			x, y, z := d.Groups()
			ran = x * y * z
			out := d.Buffer(rhi.SlotUAVs, 0)
			binary.LittleEndian.PutUint32(out, 42)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	buf, _ := dev.CreateBuffer(rhi.CreateStructured(1, 4, 0), "out")

	ctx := dev.AllocateContext()
	ctx.SetComputeRootSignature(&rhi.RootSignature{})
	ctx.SetPipeline(pso)
	ctx.BindResources(rhi.SlotUAVs, []rhi.ResourceView{rhi.UAV(buf)})
	ctx.Dispatch(4, 2, 1)
	if _, err := ctx.Execute(false); err != nil {
		t.Fatal(err)
	}

	if ran != 8 {
		t.Errorf("kernel saw %d groups, want 8", ran)
	}
	if got := binary.LittleEndian.Uint32(buf.(*Buffer).Bytes()); got != 42 {
		t.Errorf("kernel write = %d, want 42", got)
	}
}

func TestExecuteIndirectDecodesArgs(t *testing.T) {
	dev := NewDevice()

	var got [3]uint32
	pso, _ := dev.CreateComputePipeline(rhi.ComputePipelineDesc{
		Name: "Grid",
		Kernel: func(d rhi.Dispatch) {
			got[0], got[1], got[2] = d.Groups()
		},
	})
	args, _ := dev.CreateBuffer(rhi.CreateIndirectArguments(2), "args")
	data := args.(*Buffer).Bytes()
	// Second record at stride 16.
	binary.LittleEndian.PutUint32(data[16:], 5)
	binary.LittleEndian.PutUint32(data[20:], 6)
	binary.LittleEndian.PutUint32(data[24:], 7)

	ctx := dev.AllocateContext()
	ctx.SetPipeline(pso)
	ctx.ExecuteIndirect(rhi.DispatchSignature, 1, args, 16)
	if _, err := ctx.Execute(false); err != nil {
		t.Fatal(err)
	}
	if got != [3]uint32{5, 6, 7} {
		t.Errorf("indirect grid = %v", got)
	}
}

func TestDispatchWithoutPipelinePanics(t *testing.T) {
	dev := NewDevice()
	ctx := dev.AllocateContext()
	defer func() {
		if recover() == nil {
			t.Error("dispatch without pipeline did not panic")
		}
	}()
	ctx.Dispatch(1, 1, 1)
}

func TestEndRenderPassWithoutBeginPanics(t *testing.T) {
	dev := NewDevice()
	ctx := dev.AllocateContext()
	defer func() {
		if recover() == nil {
			t.Error("EndRenderPass without Begin did not panic")
		}
	}()
	ctx.EndRenderPass()
}

func TestTexturePackRGBA8(t *testing.T) {
	dev := NewDevice()
	texRes, _ := dev.CreateTexture(rhi.Create2D(2, 1, gputypes.TextureFormatRGBA8Unorm, 1), "t")
	tex := texRes.(*Texture)
	tex.Store(0, 0, 0, 0, [4]float32{1, 0.5, 0, 1})
	tex.Store(0, 1, 0, 0, [4]float32{0, 0, 0, 0})

	buf, _ := dev.CreateBuffer(rhi.CreateReadback(8), "rb")
	ctx := dev.AllocateContext()
	ctx.CopyResource(texRes, buf)
	if _, err := ctx.Execute(false); err != nil {
		t.Fatal(err)
	}

	got := buf.(*Buffer).Bytes()
	if got[0] != 255 || got[1] != 128 || got[2] != 0 || got[3] != 255 {
		t.Errorf("packed texel 0 = %v", got[:4])
	}
	if got[4] != 0 {
		t.Errorf("packed texel 1 = %v", got[4:8])
	}
}

func TestBarrierBookkeeping(t *testing.T) {
	dev := NewDevice()
	buf, _ := dev.CreateBuffer(rhi.CreateStructured(1, 4, 0), "b")

	ctx := dev.AllocateContext()
	ctx.Transition(buf, rhi.StateUnorderedAccess)
	if buf.State() != rhi.StateCommon {
		t.Error("transition applied before flush")
	}
	ctx.FlushBarriers()
	if buf.State() != rhi.StateUnorderedAccess {
		t.Errorf("state after flush = %v", buf.State())
	}
}

func TestStateObjectRunsNodesInOrder(t *testing.T) {
	dev := NewDevice()

	var order []string
	so, err := dev.CreateStateObject(rhi.StateObjectDesc{
		Name: "WG",
		Nodes: []rhi.WorkGraphNode{
			{Name: "A", Kernel: func(d rhi.Dispatch) { order = append(order, "A") }},
			{Name: "B", Kernel: func(d rhi.Dispatch) { order = append(order, "B") }},
			{Name: "C", Kernel: func(d rhi.Dispatch) { order = append(order, "C") }},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	backing, _ := dev.CreateBuffer(rhi.CreateByteAddress(so.BackingSize(), rhi.UsageUnorderedAccess), "backing")

	ctx := dev.AllocateContext()
	ctx.DispatchGraph(rhi.GraphDispatchDesc{
		Object:     so,
		Backing:    backing,
		Initialize: true,
		EntryPoint: "B",
	})
	if _, err := ctx.Execute(false); err != nil {
		t.Fatal(err)
	}

	if len(order) != 2 || order[0] != "B" || order[1] != "C" {
		t.Errorf("node order = %v, want [B C] from entry B", order)
	}
}

func TestFloat16Bits(t *testing.T) {
	cases := []struct {
		in   float32
		want uint16
	}{
		{0, 0x0000},
		{1, 0x3c00},
		{-2, 0xc000},
		{65504, 0x7bff},
	}
	for _, c := range cases {
		if got := float16bits(c.in); got != c.want {
			t.Errorf("float16bits(%v) = %#x, want %#x", c.in, got, c.want)
		}
	}
}
