package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("OPSCRM_TEST_MODE") == "" {
			_ = os.Setenv("OPSCRM_TEST_MODE", "1")
		}
	})
}
