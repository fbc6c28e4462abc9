package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
)

const (
	// maxDiagnostic bounds both the metadata line and the error drain.
	maxDiagnostic = 64 << 10
	drainTimeout  = 2 * time.Second
)

// readSideChannel is phase one of the decoder protocol: read exactly one
// line from stderr and decode it as Metadata. The returned reader holds any
// buffered bytes past the line and must be used for phase two.
//
// When the line is not valid metadata the rest of stderr is drained with a
// deadline and a size cap, since the decoder may never close it, and a
// BadMetadataError carrying every byte read is returned.
func (c *Chain) readSideChannel(ctx context.Context, stderr *os.File) (*Metadata, *bufio.Reader, error) {
	if err := c.workers.Acquire(ctx, 1); err != nil {
		return nil, nil, err
	}
	defer c.workers.Release(1)

	stop := context.AfterFunc(ctx, func() {
		_ = stderr.SetReadDeadline(time.Now())
	})
	defer stop()

	r := bufio.NewReaderSize(stderr, maxDiagnostic)
	line, err := r.ReadSlice('\n')
	raw := append([]byte(nil), line...)

	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}

	switch {
	case err == nil:
		md, perr := parseMetadata(bytes.TrimSpace(raw))
		if perr == nil {
			return md, r, nil
		}
		err = perr
	case errors.Is(err, io.EOF) && len(raw) == 0:
		return nil, nil, &BadMetadataError{Err: ErrNoMetadata}
	}

	raw = append(raw, drain(r, stderr, maxDiagnostic-len(raw))...)
	c.logger.Warn("decoder emitted bad metadata",
		pipeline.Int("raw_bytes", len(raw)),
		pipeline.Error(err))

	return nil, nil, &BadMetadataError{Raw: raw, Err: err}
}

// drain reads at most limit bytes from r, giving up at EOF or after drainTimeout
func drain(r io.Reader, f *os.File, limit int) []byte {
	if limit <= 0 {
		return nil
	}
	_ = f.SetReadDeadline(time.Now().Add(drainTimeout))
	defer f.SetReadDeadline(time.Time{})

	data, _ := io.ReadAll(io.LimitReader(r, int64(limit)))
	return data
}

// logDiagnostics is phase two: whatever the decoder prints after the
// metadata line goes to the debug log until stderr closes.
func (c *Chain) logDiagnostics(r *bufio.Reader, logger pipeline.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), maxDiagnostic)
	for scanner.Scan() {
		logger.Debug("decoder", pipeline.String("line", scanner.Text()))
	}
}
