package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall-clock reads so ledger status can be computed with injected time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real UTC time.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)
