package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
)

var persistenceCounter int64

// NewTestPersistenceID returns a process-unique persistence ID for history
// keys, derived from t.Name() so stored documents are traceable per-test.
func NewTestPersistenceID(tname string) string {
	id := atomic.AddInt64(&persistenceCounter, 1)
	return fmt.Sprintf("%s-%d", strings.ReplaceAll(tname, `/`, `-_-`), id)
}
