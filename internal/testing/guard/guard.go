package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("RECON_TEST_MODE") == "" {
			_ = os.Setenv("RECON_TEST_MODE", "1")
		}
	})
}
