package process

import (
	"context"
	"os"
	"os/exec"
	"sync"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
)

// stage is one running process of the chain
type stage struct {
	name string
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// Stream is the transcoder's raw f32le output. Closing it kills and reaps
// every process in the chain.
type Stream struct {
	out    *os.File
	stages []*stage
	files  []*os.File

	cancelRelay context.CancelFunc
	relayDone   chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
	logger    pipeline.Logger
}

func newStream(logger pipeline.Logger) *Stream {
	return &Stream{
		closed: make(chan struct{}),
		logger: logger,
	}
}

// watch reaps cmd in the background
func (s *Stream) watch(name string, cmd *exec.Cmd) *stage {
	st := &stage{name: name, cmd: cmd, done: make(chan struct{})}
	s.stages = append(s.stages, st)

	go func() {
		st.err = cmd.Wait()
		close(st.done)

		select {
		case <-s.closed:
		default:
			if st.err != nil {
				s.logger.Warn("stage exited with error",
					pipeline.String("stage", name),
					pipeline.Error(st.err))
			}
		}
	}()

	return st
}

// own registers a file closed together with the stream
func (s *Stream) own(f *os.File) {
	s.files = append(s.files, f)
}

// Read reads transcoded PCM
func (s *Stream) Read(p []byte) (int, error) {
	return s.out.Read(p)
}

// Close stops the relay, kills every stage and waits for them to exit
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)

		if s.cancelRelay != nil {
			s.cancelRelay()
		}

		for _, st := range s.stages {
			select {
			case <-st.done:
			default:
				_ = st.cmd.Process.Kill()
			}
		}
		for _, st := range s.stages {
			<-st.done
		}

		if s.relayDone != nil {
			<-s.relayDone
		}

		for _, f := range s.files {
			_ = f.Close()
		}
	})
	return nil
}

// Exited reports whether every stage has finished
func (s *Stream) Exited() bool {
	for _, st := range s.stages {
		select {
		case <-st.done:
		default:
			return false
		}
	}
	return true
}
