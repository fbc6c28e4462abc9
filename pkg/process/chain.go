package process

import (
	"context"
	"os"
	"os/exec"
	"runtime"

	"github.com/latoulicious/TarumaeRadio/pkg/pipe"
	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"golang.org/x/sync/semaphore"
)

// Chain spawns decoder → transcoder process pairs
type Chain struct {
	decoder    pipeline.CommandConfig
	transcoder pipeline.TranscodeConfig
	capacity   int
	gate       pipe.Gate
	workers    *semaphore.Weighted
	logger     pipeline.Logger
	metrics    *pipeline.Metrics
}

// NewChain creates a chain from the engine configuration
func NewChain(config *pipeline.PipelineConfig, logger pipeline.Logger, metrics *pipeline.Metrics) *Chain {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &Chain{
		decoder:    config.Decoder,
		transcoder: config.Transcoder,
		capacity:   pipe.MaxCapacity(),
		gate: pipe.Gate{
			Threshold: config.Pipe.Threshold,
			Interval:  config.Pipe.PollInterval,
			Metrics:   metrics,
		},
		workers: semaphore.NewWeighted(int64(runtime.NumCPU())),
		logger:  logger.With(pipeline.Component("process_chain")),
		metrics: metrics,
	}
}

// Spawn runs `<decoder> [args] [extraArgs] <uri>`, reads its metadata line
// from stderr, then relays its stdout into the transcoder. The returned
// stream is gated until the transcoder output is filled past the threshold.
// Failures are not retried here.
func (c *Chain) Spawn(ctx context.Context, uri string, extraArgs []string) (*Stream, *Metadata, error) {
	if c.decoder.BinaryPath == "" {
		return nil, nil, &SpawnError{Stage: "decoder", Err: ErrEmptyCommand}
	}

	args := make([]string, 0, len(c.decoder.Args)+len(extraArgs)+1)
	args = append(args, c.decoder.Args...)
	args = append(args, extraArgs...)
	args = append(args, uri)

	logger := c.logger.With(pipeline.String("uri", uri))
	s := newStream(logger)

	decodedR, decodedW, err := os.Pipe()
	if err != nil {
		return nil, nil, &SpawnError{Stage: "decoder", Command: c.decoder.BinaryPath, Err: err}
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		decodedR.Close()
		decodedW.Close()
		return nil, nil, &SpawnError{Stage: "decoder", Command: c.decoder.BinaryPath, Err: err}
	}
	s.own(decodedR)
	s.own(stderrR)

	decoder := exec.Command(c.decoder.BinaryPath, args...)
	decoder.Stdout = decodedW
	decoder.Stderr = stderrW

	err = decoder.Start()
	decodedW.Close()
	stderrW.Close()
	if err != nil {
		s.Close()
		return nil, nil, &SpawnError{Stage: "decoder", Command: c.decoder.BinaryPath, Err: err}
	}
	s.watch("decoder", decoder)

	md, rest, err := c.readSideChannel(ctx, stderrR)
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	go c.logDiagnostics(rest, logger)

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		s.Close()
		return nil, nil, &SpawnError{Stage: "transcoder", Command: c.transcoder.BinaryPath, Err: err}
	}

	transcoder, err := c.startTranscoder(s, "pipe:0", stdinR)
	stdinR.Close()
	if err != nil {
		stdinW.Close()
		s.Close()
		return nil, nil, err
	}

	relayCtx, cancel := context.WithCancel(context.Background())
	s.cancelRelay = cancel
	s.relayDone = make(chan struct{})
	relay := pipe.NewRelay(c.capacity, logger, c.metrics)
	go func() {
		defer close(s.relayDone)
		_, _ = relay.Copy(relayCtx, decodedR, stdinW)
	}()

	if err := c.await(ctx, s, transcoder); err != nil {
		s.Close()
		return nil, nil, err
	}

	logger.Debug("chain ready",
		pipeline.Float64("duration", md.Duration),
		pipeline.String("title", md.Title))

	return s, md, nil
}

// Transcode runs only the transcoder over a local file
func (c *Chain) Transcode(ctx context.Context, path string) (*Stream, error) {
	s := newStream(c.logger.With(pipeline.String("path", path)))

	transcoder, err := c.startTranscoder(s, path, nil)
	if err != nil {
		s.Close()
		return nil, err
	}

	if err := c.await(ctx, s, transcoder); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func (c *Chain) startTranscoder(s *Stream, input string, stdin *os.File) (*stage, error) {
	if c.transcoder.BinaryPath == "" {
		return nil, &SpawnError{Stage: "transcoder", Err: ErrEmptyCommand}
	}

	args := make([]string, 0, len(c.transcoder.InputArgs)+len(c.transcoder.OutputArgs)+2)
	args = append(args, c.transcoder.InputArgs...)
	args = append(args, "-i", input)
	args = append(args, c.transcoder.OutputArgs...)

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, &SpawnError{Stage: "transcoder", Command: c.transcoder.BinaryPath, Err: err}
	}
	s.out = outR
	s.own(outR)

	if err := pipe.SetCapacity(outR, c.capacity); err != nil {
		c.logger.Debug("transcoder pipe resize failed", pipeline.Error(err))
	}

	cmd := exec.Command(c.transcoder.BinaryPath, args...)
	if stdin != nil {
		cmd.Stdin = stdin
	}
	cmd.Stdout = outW

	err = cmd.Start()
	outW.Close()
	if err != nil {
		return nil, &SpawnError{Stage: "transcoder", Command: c.transcoder.BinaryPath, Err: err}
	}

	return s.watch("transcoder", cmd), nil
}

// await holds the caller until the transcoder output is full enough or the
// transcoder has exited
func (c *Chain) await(ctx context.Context, s *Stream, transcoder *stage) error {
	capacity := c.capacity
	if n, err := pipe.Capacity(s.out); err == nil && n > 0 {
		capacity = n
	}

	gateCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-transcoder.done:
			cancel()
		case <-gateCtx.Done():
		}
	}()

	_ = c.gate.Wait(gateCtx, pipe.FilePoller{File: s.out}, capacity)
	return ctx.Err()
}
