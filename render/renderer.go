package render

import (
	"context"
	"image"
	"image/draw"
	"sync"
	"time"

	"github.com/flavioheleno/st7735"
	"github.com/flavioheleno/st7735/image565"
)

// Defaults used when Opts leaves a field at zero.
const (
	DefaultRows   = 10
	DefaultPeriod = 5 * time.Millisecond
)

// Opts configures a Renderer.
type Opts struct {
	// Rows is the height of a band in pixels (default: DefaultRows).
	Rows int
	// OnError is called with the area of every flush that failed. The area
	// is invalidated again and retried on the next tick.
	OnError func(a st7735.Area, err error)
}

// band is one of the two pixel buffers. free holds a token while the buffer
// is not in flight.
type band struct {
	pix  []byte
	free chan struct{}
}

// Renderer pushes the dirty parts of src to a Flusher.
type Renderer struct {
	f       Flusher
	src     image.Image
	bounds  image.Rectangle
	rows    int
	onError func(st7735.Area, error)

	// tick serializes Tick and Update; src is only read with it held.
	tick  sync.Mutex
	bands [2]*band
	next  int

	mu    sync.Mutex
	dirty image.Rectangle
}

// New returns a Renderer for src, which must fit the display behind f. The
// whole image starts dirty. opts can be nil.
func New(f Flusher, src image.Image, opts *Opts) *Renderer {
	if opts == nil {
		opts = &Opts{}
	}
	rows := opts.Rows
	if rows <= 0 {
		rows = DefaultRows
	}
	b := src.Bounds()
	r := &Renderer{
		f:       f,
		src:     src,
		bounds:  b,
		rows:    rows,
		onError: opts.OnError,
		dirty:   b,
	}
	for i := range r.bands {
		bd := &band{pix: make([]byte, 2*b.Dx()*rows), free: make(chan struct{}, 1)}
		bd.free <- struct{}{}
		r.bands[i] = bd
	}
	return r
}

// Invalidate marks rect to be sent on the next tick. The dirty region is the
// bounding box of every invalidated rectangle.
func (r *Renderer) Invalidate(rect image.Rectangle) {
	rect = rect.Intersect(r.bounds)
	if rect.Empty() {
		return
	}
	r.mu.Lock()
	r.dirty = r.dirty.Union(rect)
	r.mu.Unlock()
}

// Update runs fn while no tick reads the source, then invalidates the
// rectangle fn returns.
func (r *Renderer) Update(fn func() image.Rectangle) {
	r.tick.Lock()
	rect := fn()
	r.tick.Unlock()
	r.Invalidate(rect)
}

// Tick converts the dirty region band by band and flushes each band. It
// returns the number of bands flushed.
//
// A band buffer is only refilled once the flush using it has completed, so
// Tick blocks while both are in flight.
func (r *Renderer) Tick() int {
	r.tick.Lock()
	defer r.tick.Unlock()

	r.mu.Lock()
	dirty := r.dirty
	r.dirty = image.Rectangle{}
	r.mu.Unlock()

	n := 0
	for y := dirty.Min.Y; y < dirty.Max.Y; y += r.rows {
		rect := image.Rect(dirty.Min.X, y, dirty.Max.X, min(y+r.rows, dirty.Max.Y))
		bd := r.bands[r.next]
		r.next ^= 1
		<-bd.free

		img := &image565.Image{
			Pix:    bd.pix[:2*rect.Dx()*rect.Dy()],
			Stride: 2 * rect.Dx(),
			Rect:   rect,
		}
		draw.Draw(img, rect, r.src, rect.Min, draw.Src)
		a := st7735.AreaFromRect(rect)
		// Errors are delivered to the completion.
		_ = r.f.Flush(a, img.Pix, func(err error) {
			if err != nil {
				r.fail(a, err)
			}
			bd.free <- struct{}{}
		})
		n++
	}
	return n
}

func (r *Renderer) fail(a st7735.Area, err error) {
	if r.onError != nil {
		r.onError(a, err)
	}
	r.Invalidate(a.Rect())
}

// Wait blocks until no flush is in flight.
func (r *Renderer) Wait() {
	r.tick.Lock()
	defer r.tick.Unlock()
	for _, bd := range r.bands {
		<-bd.free
		bd.free <- struct{}{}
	}
}

// Run ticks every period (default: DefaultPeriod) until ctx is done, then
// waits for the last flushes and returns ctx.Err().
func (r *Renderer) Run(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		period = DefaultPeriod
	}
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Wait()
			return ctx.Err()
		case <-t.C:
			r.Tick()
		}
	}
}
