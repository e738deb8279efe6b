package render

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/flavioheleno/st7735"
	"github.com/flavioheleno/st7735/image565"
	"github.com/google/go-cmp/cmp"
)

// flush is a recorded call.
type flush struct {
	A   st7735.Area
	Pix []byte
}

// recorder completes every flush synchronously and keeps a copy of it.
type recorder struct {
	mu    sync.Mutex
	calls []flush
	fail  func(n int) error
}

func (r *recorder) Flush(a st7735.Area, pix []byte, done func(error)) error {
	r.mu.Lock()
	n := len(r.calls)
	r.calls = append(r.calls, flush{A: a, Pix: append([]byte(nil), pix...)})
	var err error
	if r.fail != nil {
		err = r.fail(n)
	}
	r.mu.Unlock()
	if done != nil {
		done(err)
	}
	return err
}

func (r *recorder) areas() []st7735.Area {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []st7735.Area
	for _, c := range r.calls {
		out = append(out, c.A)
	}
	return out
}

func filled(r image.Rectangle, c image565.RGB565) *image565.Image {
	img := image565.NewImage(r)
	img.Fill(c)
	return img
}

func TestRendererBands(t *testing.T) {
	src := filled(image.Rect(0, 0, 20, 25), image565.Red)
	rec := &recorder{}
	r := New(rec, src, nil)

	if got := r.Tick(); got != 3 {
		t.Fatalf("Tick() = %d bands, want 3", got)
	}
	want := []st7735.Area{
		{X1: 0, Y1: 0, X2: 19, Y2: 9},
		{X1: 0, Y1: 10, X2: 19, Y2: 19},
		{X1: 0, Y1: 20, X2: 19, Y2: 24},
	}
	if diff := cmp.Diff(rec.areas(), want); diff != "" {
		t.Errorf("flushed areas (-got +want):\n%s", diff)
	}
	for i, c := range rec.calls {
		if len(c.Pix) != c.A.Len() {
			t.Errorf("flush %d: %d bytes, want %d", i, len(c.Pix), c.A.Len())
		}
		if c.Pix[0] != 0xF8 || c.Pix[1] != 0x00 {
			t.Errorf("flush %d: first pixel %#02x%02x, want 0xf800", i, c.Pix[0], c.Pix[1])
		}
	}

	if got := r.Tick(); got != 0 {
		t.Errorf("Tick() on a clean image = %d bands, want 0", got)
	}
}

func TestRendererRows(t *testing.T) {
	src := filled(image.Rect(0, 0, 8, 8), image565.Blue)
	rec := &recorder{}
	r := New(rec, src, &Opts{Rows: 4})
	if got := r.Tick(); got != 2 {
		t.Errorf("Tick() = %d bands, want 2", got)
	}
}

func TestRendererInvalidate(t *testing.T) {
	src := image565.NewImage(image.Rect(0, 0, 16, 16))
	rec := &recorder{}
	r := New(rec, src, nil)
	r.Tick()
	rec.calls = nil

	r.Update(func() image.Rectangle {
		src.SetRGB565(2, 3, image565.Green)
		return image.Rect(2, 3, 5, 6)
	})
	r.Tick()

	want := []flush{{
		A: st7735.Area{X1: 2, Y1: 3, X2: 4, Y2: 5},
		Pix: []byte{
			0x07, 0xE0, 0, 0, 0, 0,
			0, 0, 0, 0, 0, 0,
			0, 0, 0, 0, 0, 0,
		},
	}}
	if diff := cmp.Diff(rec.calls, want); diff != "" {
		t.Errorf("flushes (-got +want):\n%s", diff)
	}
}

func TestRendererInvalidateUnion(t *testing.T) {
	src := image565.NewImage(image.Rect(0, 0, 16, 16))
	rec := &recorder{}
	r := New(rec, src, nil)
	r.Tick()
	rec.calls = nil

	r.Invalidate(image.Rect(1, 1, 2, 2))
	r.Invalidate(image.Rect(4, 5, 6, 6))
	r.Invalidate(image.Rect(20, 20, 30, 30))
	r.Tick()

	want := []st7735.Area{{X1: 1, Y1: 1, X2: 5, Y2: 5}}
	if diff := cmp.Diff(rec.areas(), want); diff != "" {
		t.Errorf("flushed areas (-got +want):\n%s", diff)
	}
}

func TestRendererRetriesFailedBand(t *testing.T) {
	src := image565.NewImage(image.Rect(0, 0, 4, 4))
	boom := errors.New("boom")
	rec := &recorder{fail: func(n int) error {
		if n == 0 {
			return boom
		}
		return nil
	}}
	var failed []st7735.Area
	r := New(rec, src, &Opts{OnError: func(a st7735.Area, err error) {
		if !errors.Is(err, boom) {
			t.Errorf("OnError(%s, %v), want %v", a, err, boom)
		}
		failed = append(failed, a)
	}})

	r.Tick()
	r.Tick()
	r.Tick()

	full := st7735.Area{X1: 0, Y1: 0, X2: 3, Y2: 3}
	if diff := cmp.Diff(failed, []st7735.Area{full}); diff != "" {
		t.Errorf("failed areas (-got +want):\n%s", diff)
	}
	if diff := cmp.Diff(rec.areas(), []st7735.Area{full, full}); diff != "" {
		t.Errorf("flushed areas (-got +want):\n%s", diff)
	}
}

// call is a flush that the test completes.
type call struct {
	a    st7735.Area
	pix  []byte
	done func(error)
}

type pending chan call

func (p pending) Flush(a st7735.Area, pix []byte, done func(error)) error {
	p <- call{a: a, pix: pix, done: done}
	return nil
}

func TestRendererDoubleBuffer(t *testing.T) {
	src := image565.NewImage(image.Rect(0, 0, 4, 30))
	calls := make(pending, 3)
	r := New(calls, src, nil)

	ticked := make(chan int)
	go func() {
		ticked <- r.Tick()
	}()

	first := <-calls
	second := <-calls
	select {
	case c := <-calls:
		t.Fatalf("third band %s flushed while both buffers are in flight", c.a)
	case <-time.After(50 * time.Millisecond):
	}

	first.done(nil)
	third := <-calls
	if &third.pix[0] != &first.pix[0] {
		t.Error("third band should reuse the first buffer")
	}
	second.done(nil)
	third.done(nil)
	if got := <-ticked; got != 3 {
		t.Errorf("Tick() = %d bands, want 3", got)
	}
	r.Wait()
}

func TestQueueOrder(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(rec, 2)

	var mu sync.Mutex
	var completed []int
	for i := 0; i < 5; i++ {
		i := i // per-iteration copy; module targets go 1.21 (pre-1.22 loop semantics)
		a := st7735.Area{X1: i, Y1: 0, X2: i, Y2: 0}
		if err := q.Flush(a, []byte{0, byte(i)}, func(err error) {
			if err != nil {
				t.Error(err)
			}
			mu.Lock()
			completed = append(completed, i)
			mu.Unlock()
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(completed, []int{0, 1, 2, 3, 4}); diff != "" {
		t.Errorf("completion order (-got +want):\n%s", diff)
	}
	if len(rec.calls) != 5 {
		t.Errorf("%d flushes, want 5", len(rec.calls))
	}
}

func TestQueueClosed(t *testing.T) {
	q := NewQueue(&recorder{}, 0)
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}

	var got error
	calls := 0
	err := q.Flush(st7735.Area{}, []byte{0, 0}, func(err error) {
		calls++
		got = err
	})
	if !errors.Is(err, ErrClosed) || !errors.Is(got, ErrClosed) || calls != 1 {
		t.Errorf("Flush() after Close = %v, done(%v) called %d times; want ErrClosed once", err, got, calls)
	}
}

func TestRendererThroughQueue(t *testing.T) {
	src := filled(image.Rect(0, 0, 10, 35), image565.White)
	rec := &recorder{}
	q := NewQueue(rec, 1)
	r := New(q, src, nil)

	if got := r.Tick(); got != 4 {
		t.Errorf("Tick() = %d bands, want 4", got)
	}
	r.Wait()
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	for _, c := range rec.calls {
		for i, b := range c.Pix {
			if b != 0xFF {
				t.Fatalf("flush %s byte %d = %#02x, want 0xff", c.A, i, b)
			}
		}
	}
}
