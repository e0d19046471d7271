package notifymock

import (
	"context"
	"sync"

	"p2p-lending-engine/internal/domain/notification"
)

var _ notification.Notifier = (*Recorder)(nil)

// Recorder keeps every notification it is handed. Err, when set, is
// returned after recording.
type Recorder struct {
	mu   sync.Mutex
	Sent []notification.Notification
	Err  error
}

func (r *Recorder) Notify(_ context.Context, n notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sent = append(r.Sent, n)
	return r.Err
}

// Kinds returns how many notifications of each kind were sent.
func (r *Recorder) Kinds() map[notification.Kind]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[notification.Kind]int{}
	for _, n := range r.Sent {
		out[n.Kind]++
	}
	return out
}
