package cardmaker

import (
	"context"
	"fmt"
	"sync"
)

// PagePoolSize is the default bound on live browser pages. Deliberately
// small: each surface is a full Chrome tab at deviceScaleFactor 3, and the
// browser starts starving the host well before the CPU does.
const PagePoolSize = 4

// Surface is one browser page able to load an HTML document and capture a
// raster screenshot of it. A surface is owned exclusively by whichever
// caller currently holds it.
type Surface interface {
	Render(ctx context.Context, html string, dims ResolvedCardDimensions) ([]byte, error)
	Close() error
}

// SurfaceFactory owns the browser process behind a pool's surfaces.
// Implementations must tolerate Stop/Start cycles on the same factory.
type SurfaceFactory interface {
	Start() error
	NewSurface() (Surface, error)
	Alive() bool
	Stop() error
}

// PooledSurface tags a Surface with the pool generation that created it,
// so handles from a crashed browser are recognized and discarded instead
// of being re-pooled after a relaunch.
type PooledSurface struct {
	surface Surface
	gen     int
}

// Render delegates to the underlying surface.
func (ps *PooledSurface) Render(ctx context.Context, html string, dims ResolvedCardDimensions) ([]byte, error) {
	return ps.surface.Render(ctx, html, dims)
}

// SurfacePool manages one long-lived browser process and a bounded set of
// reusable render surfaces.
//
// Acquire returns a free surface immediately when one is available,
// creates a new one while fewer than size have been created, and otherwise
// blocks until a release. Waiters are served in FIFO order: blocked
// channel receivers are queued by arrival, so the first waiter gets the
// first released surface.
//
// When the browser process dies, the failure reaches a caller as a render
// or create error; the first Acquire after such a failure probes the
// browser, discards all stale handles, and relaunches transparently (one
// attempt). In-flight renders on the dead browser fail to their callers;
// retry policy belongs to them.
type SurfacePool struct {
	size    int
	factory SurfaceFactory

	mu      sync.Mutex
	started bool
	closed  bool
	suspect bool
	created int
	gen     int
	free    chan *PooledSurface
	slots   chan struct{}
}

// NewSurfacePool creates a pool bounded at size surfaces. The browser is
// not launched until the first Acquire (or an explicit WarmUp).
func NewSurfacePool(factory SurfaceFactory, size int) *SurfacePool {
	if size < 1 {
		size = 1
	}
	return &SurfacePool{
		size:    size,
		factory: factory,
		free:    make(chan *PooledSurface, size),
		slots:   make(chan struct{}, size),
	}
}

// Size returns the pool capacity.
func (p *SurfacePool) Size() int {
	return p.size
}

// Acquire returns a surface for exclusive use. It blocks while the pool is
// saturated, until a surface is released or ctx is done.
func (p *SurfacePool) Acquire(ctx context.Context) (*PooledSurface, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if err := p.ensureAliveLocked(); err != nil {
			p.mu.Unlock()
			return nil, err
		}

		// Reuse a previously released surface when one is free.
		select {
		case ps := <-p.free:
			p.mu.Unlock()
			return ps, nil
		default:
		}

		// Lazily create until the cap is reached. The slot is reserved under
		// the lock; the (slow) page creation happens outside it.
		if p.created < p.size {
			p.created++
			gen := p.gen
			p.mu.Unlock()

			s, err := p.factory.NewSurface()
			if err != nil {
				p.mu.Lock()
				if gen == p.gen && p.created > 0 {
					p.created--
				}
				p.suspect = true
				p.mu.Unlock()
				p.wakeWaiter()
				return nil, fmt.Errorf("%w: %v", ErrSurfaceCreate, err)
			}
			return &PooledSurface{surface: s, gen: gen}, nil
		}
		p.mu.Unlock()

		// Saturated: wait for a release, or for a discard to open a
		// creation slot. Blocked receivers are served in arrival order on
		// both channels, so the earliest waiter wakes first.
		select {
		case ps := <-p.free:
			return ps, nil
		case <-p.slots:
			// Retry the create branch. Another acquirer may have taken the
			// slot already, in which case the loop parks again.
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// wakeWaiter hands a freed creation slot to the longest-blocked acquirer.
// The buffered send never blocks; a token with no waiter is consumed and
// re-checked by the next one to park.
func (p *SurfacePool) wakeWaiter() {
	select {
	case p.slots <- struct{}{}:
	default:
	}
}

// Release returns a surface to the pool. Surfaces from a previous browser
// generation, or released after Close, are closed and dropped.
func (p *SurfacePool) Release(ps *PooledSurface) {
	if ps == nil {
		return
	}
	p.mu.Lock()
	if p.closed || ps.gen != p.gen {
		p.mu.Unlock()
		_ = ps.surface.Close()
		return
	}
	// At most created <= size current-generation surfaces exist, so the
	// buffered send cannot block while the lock is held.
	p.free <- ps
	p.mu.Unlock()
}

// Discard closes a surface without returning it, decrementing the live
// count so a replacement can be created. Any acquirer blocked on a
// saturated pool is woken to claim the freed slot.
func (p *SurfacePool) Discard(ps *PooledSurface) {
	if ps == nil {
		return
	}
	_ = ps.surface.Close()
	p.mu.Lock()
	if ps.gen == p.gen && p.created > 0 {
		p.created--
	}
	// A discarded surface may mean the whole browser is gone; the next
	// acquire checks before trusting the remaining handles.
	p.suspect = true
	p.mu.Unlock()
	p.wakeWaiter()
}

// Render acquires a surface, renders the document, and returns the raw PNG
// capture. The surface is returned to the pool on success and discarded on
// failure, so a render error never leaks pool capacity.
func (p *SurfacePool) Render(ctx context.Context, html string, dims ResolvedCardDimensions) ([]byte, error) {
	ps, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	png, err := ps.Render(ctx, html, dims)
	if err != nil {
		// A failed surface may be wedged mid-load; drop it so the next
		// acquire creates a fresh page or detects a dead browser.
		p.Discard(ps)
		return nil, err
	}
	p.Release(ps)
	return png, nil
}

// WarmUp eagerly launches the browser and creates all surfaces so the
// first real request does not pay cold-start latency. Callers should log
// and continue on error: lazy creation on the first Acquire is the
// fallback.
func (p *SurfacePool) WarmUp(ctx context.Context) error {
	surfaces := make([]*PooledSurface, 0, p.size)
	var firstErr error
	for i := 0; i < p.size; i++ {
		ps, err := p.Acquire(ctx)
		if err != nil {
			firstErr = err
			break
		}
		surfaces = append(surfaces, ps)
	}
	for _, ps := range surfaces {
		p.Release(ps)
	}
	return firstErr
}

// Close shuts down the pool and the browser process. Surfaces still held
// by callers are closed when released.
func (p *SurfacePool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.drainLocked()
	started := p.started
	p.started = false
	p.mu.Unlock()

	if started {
		return p.factory.Stop()
	}
	return nil
}

// ensureAliveLocked launches the browser on first use and relaunches it
// after a disconnect, discarding every stale handle. Caller holds p.mu.
func (p *SurfacePool) ensureAliveLocked() error {
	if !p.started {
		if err := p.factory.Start(); err != nil {
			return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
		}
		p.started = true
		return nil
	}
	// Probing connectivity costs a browser round trip, so it only happens
	// after a surface failure raised suspicion, never on the hot path.
	if !p.suspect {
		return nil
	}
	if p.factory.Alive() {
		p.suspect = false
		return nil
	}

	// Browser died. Bump the generation first so concurrent releases of
	// dead surfaces are dropped, then relaunch once.
	p.gen++
	p.created = 0
	p.drainLocked()
	_ = p.factory.Stop()
	if err := p.factory.Start(); err != nil {
		p.started = false
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	p.suspect = false
	return nil
}

// drainLocked closes every free surface. Caller holds p.mu.
func (p *SurfacePool) drainLocked() {
	for {
		select {
		case ps := <-p.free:
			_ = ps.surface.Close()
		default:
			return
		}
	}
}
