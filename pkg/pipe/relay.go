package pipe

import (
	"context"
	"errors"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/smallnest/ringbuffer"
	"golang.org/x/sync/errgroup"
)

// ChunkSize is the fixed copy unit between the decoder and the transcoder
const ChunkSize = 64 << 10

// Relay copies bytes from one process pipe into another through an
// in-memory ring so a slow consumer never stalls the producer's pipe.
type Relay struct {
	capacity int
	logger   pipeline.Logger
	metrics  *pipeline.Metrics
}

// NewRelay creates a relay that resizes both pipes to capacity.
// A non-positive capacity uses MaxCapacity.
func NewRelay(capacity int, logger pipeline.Logger, metrics *pipeline.Metrics) *Relay {
	if capacity <= 0 {
		capacity = MaxCapacity()
	}
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &Relay{
		capacity: capacity,
		logger:   logger.With(pipeline.Component("relay")),
		metrics:  metrics,
	}
}

// Capacity returns the target pipe capacity
func (r *Relay) Capacity() int { return r.capacity }

// Copy moves src into dst until src reaches EOF, then closes dst so the
// consumer sees end of stream. Both files are resized first; a failed
// resize is logged and the copy continues at the OS default.
func (r *Relay) Copy(ctx context.Context, src, dst *os.File) (int64, error) {
	r.resize(dst, "sink")
	r.resize(src, "source")

	ring := ringbuffer.New(r.capacity).SetBlocking(true)

	stop := context.AfterFunc(ctx, func() {
		now := time.Now()
		_ = src.SetReadDeadline(now)
		_ = dst.SetWriteDeadline(now)
		ring.CloseWithError(ctx.Err())
	})
	defer stop()

	var written atomic.Int64
	g := new(errgroup.Group)

	g.Go(func() error {
		buf := make([]byte, ChunkSize)
		for {
			n, err := src.Read(buf)
			if n > 0 {
				if _, werr := ring.Write(buf[:n]); werr != nil {
					return werr
				}
			}
			if errors.Is(err, io.EOF) {
				ring.CloseWriter()
				return nil
			}
			if err != nil {
				ring.CloseWithError(err)
				return err
			}
		}
	})

	g.Go(func() error {
		buf := make([]byte, ChunkSize)
		for {
			n, err := ring.Read(buf)
			if n > 0 {
				m, werr := dst.Write(buf[:n])
				written.Add(int64(m))
				if werr != nil {
					ring.CloseWithError(werr)
					return werr
				}
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
		}
	})

	err := g.Wait()
	if cerr := dst.Close(); err == nil && cerr != nil && !errors.Is(cerr, os.ErrClosed) {
		err = cerr
	}

	total := written.Load()
	r.metrics.AddRelayBytes(total)

	if ctx.Err() != nil {
		return total, ctx.Err()
	}
	if err != nil {
		r.logger.Debug("relay stopped", pipeline.Int64("bytes", total), pipeline.Error(err))
		return total, err
	}

	r.logger.Debug("relay finished", pipeline.Int64("bytes", total))
	return total, nil
}

func (r *Relay) resize(f *os.File, side string) {
	if err := SetCapacity(f, r.capacity); err != nil {
		r.logger.Debug("pipe resize failed",
			pipeline.String("side", side),
			pipeline.Int("capacity", r.capacity),
			pipeline.Error(err))
	}
}
