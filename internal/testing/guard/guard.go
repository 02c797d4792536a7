package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("FARMLINK_TEST_MODE") == "" {
			_ = os.Setenv("FARMLINK_TEST_MODE", "1")
		}
	})
}
