package cmd

import (
	"context"
	"time"
)

// Session is the part of airzone.Session the scheduler drives.
type Session interface {
	Init(ctx context.Context) error
	Update(ctx context.Context) error
	Ready() bool
	Errors() <-chan error
}

// Cleaner trims stored history older than retention.
type Cleaner interface {
	Cleanup(ctx context.Context, retention time.Duration) error
}
