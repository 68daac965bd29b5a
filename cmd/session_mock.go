package cmd

import (
	"context"
	"sync/atomic"
	"time"
)

// MockSession is a mock implementation of the Session interface.
type MockSession struct {
	InitFunc   func(ctx context.Context) error
	UpdateFunc func(ctx context.Context) error
	ErrorsChan chan error

	ready       atomic.Bool
	initCalls   atomic.Int32
	updateCalls atomic.Int32
}

func (m *MockSession) Init(ctx context.Context) error {
	m.initCalls.Add(1)
	var err error
	if m.InitFunc != nil {
		err = m.InitFunc(ctx)
	}
	if err == nil {
		m.ready.Store(true)
	}
	return err
}

func (m *MockSession) Update(ctx context.Context) error {
	m.updateCalls.Add(1)
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx)
	}
	return nil
}

func (m *MockSession) Ready() bool {
	return m.ready.Load()
}

func (m *MockSession) Errors() <-chan error {
	return m.ErrorsChan
}

// MockCleaner is a mock implementation of the Cleaner interface.
type MockCleaner struct {
	CleanupFunc func(ctx context.Context, retention time.Duration) error
}

func (m *MockCleaner) Cleanup(ctx context.Context, retention time.Duration) error {
	if m.CleanupFunc != nil {
		return m.CleanupFunc(ctx, retention)
	}
	return nil
}
