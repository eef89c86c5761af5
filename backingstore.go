package concur

import (
	"fmt"
	"os"
	"sync"

	"github.com/zoobzio/clockz"
)

// backingStore is the append-only write-through log behind a
// ConcurrentCache. It is never read back by the cache itself; it exists so
// every accepted write has a durable, human-readable audit trail.
type backingStore struct {
	mu    sync.Mutex
	path  string
	clock clockz.Clock
}

func newBackingStore(path string, clock clockz.Clock) (*backingStore, error) {
	// Touch the file so a misconfigured path fails fast at construction
	// rather than on the first write.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("concur: open backing store %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("concur: close backing store %q: %w", path, err)
	}

	return &backingStore{path: path, clock: clock}, nil
}

// append writes one line recording a put: "<unix_seconds>: <key> -> <value>".
// Concurrent writers serialize on the store's own lock, which sits below
// any per-key exclusion in lock ordering.
func (b *backingStore) append(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("concur: open backing store %q: %w", b.path, err)
	}
	defer f.Close()

	line := fmt.Sprintf("%d: %s -> %s\n", b.clock.Now().Unix(), key, value)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("concur: append backing store %q: %w", b.path, err)
	}
	return nil
}

// debugRepr renders a value the way the backing store log expects: compact,
// stable, and good enough to audit by eye.
func debugRepr(v any) string {
	return fmt.Sprintf("%#v", v)
}
