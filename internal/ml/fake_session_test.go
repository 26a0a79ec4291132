package ml

import (
	"sync"
	"sync/atomic"
	"time"
)

type fakeSession struct {
	output    float32
	err       error
	width     int
	delay     time.Duration
	runs      atomic.Int32
	destroyed atomic.Bool

	mu        sync.Mutex
	lastInput []float32
}

func (f *fakeSession) Run(input []float32) (float32, error) {
	f.runs.Add(1)
	f.mu.Lock()
	f.lastInput = append([]float32(nil), input...)
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.output, f.err
}

func (f *fakeSession) InputWidth() int { return f.width }

func (f *fakeSession) Destroy() { f.destroyed.Store(true) }

// gatedLoader blocks until release is closed
func gatedLoader(session Session, err error) (Loader, chan struct{}) {
	release := make(chan struct{})
	return func(path string) (Session, error) {
		<-release
		if err != nil {
			return nil, err
		}
		return session, nil
	}, release
}
