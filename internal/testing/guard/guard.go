// Package guard forces test mode when imported from test binaries, so the
// entrypoints skip their runtime side effects during `go test ./...`.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("LOTLINE_TEST_MODE") == "" {
			_ = os.Setenv("LOTLINE_TEST_MODE", "1")
		}
	})
}
