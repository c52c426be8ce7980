package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("STOWAGE_TEST_MODE") == "" {
			_ = os.Setenv("STOWAGE_TEST_MODE", "1")
		}
	})
}
