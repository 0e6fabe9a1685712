package graph

import (
	"sync"

	"github.com/gogpu/render3/rhi"
)

// Pool serves physical resources for the graph's transient allocations and
// keeps them alive across frames so aliasing is allocation-free in steady
// state. It is safe for concurrent use.
type Pool struct {
	mu     sync.Mutex
	device rhi.Device
	free   map[rhi.ResourceDesc][]rhi.Resource
	total  int
}

// NewPool creates a pool allocating from device.
func NewPool(device rhi.Device) *Pool {
	return &Pool{
		device: device,
		free:   map[rhi.ResourceDesc][]rhi.Resource{},
	}
}

// acquire returns a free physical resource with exactly the given
// descriptor, or creates one.
func (p *Pool) acquire(desc rhi.ResourceDesc, name string) (rhi.Resource, error) {
	p.mu.Lock()
	if list := p.free[desc]; len(list) > 0 {
		r := list[len(list)-1]
		p.free[desc] = list[:len(list)-1]
		p.mu.Unlock()
		return r, nil
	}
	p.mu.Unlock()

	var (
		r   rhi.Resource
		err error
	)
	if desc.IsBuffer() {
		r, err = p.device.CreateBuffer(desc, name)
	} else {
		r, err = p.device.CreateTexture(desc, name)
	}
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.total++
	p.mu.Unlock()
	return r, nil
}

// release returns r to the free list for its descriptor class.
func (p *Pool) release(r rhi.Resource) {
	desc := r.Desc()
	p.mu.Lock()
	p.free[desc] = append(p.free[desc], r)
	p.mu.Unlock()
}

// forget drops ownership of r without freeing it; used when a graph exports
// a pooled resource to a persistent owner.
func (p *Pool) forget(r rhi.Resource) {
	p.mu.Lock()
	p.total--
	p.mu.Unlock()
}

// Trim releases every pooled resource back to the device. Call on viewport
// resize to drop stale descriptor classes.
func (p *Pool) Trim() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for desc, list := range p.free {
		for _, r := range list {
			r.Release()
			p.total--
		}
		delete(p.free, desc)
	}
}

// Size returns the number of live pooled resources.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}
