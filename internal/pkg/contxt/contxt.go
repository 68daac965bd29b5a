package contxt

import (
	"context"
	"os"
	"time"
)

// NewContext bounds parent by timeout. Setting CONTEXT_TEST drops the
// deadline so a debugger can sit on a breakpoint.
func NewContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if os.Getenv("CONTEXT_TEST") != "" {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
