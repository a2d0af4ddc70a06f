package queue

// Notifier is the in-process wake-up channel between enqueue and the
// worker pool. It is a latency optimization only: the durable job table
// is what holds the work, so a dropped signal just means the next poll
// tick picks the job up instead.
type Notifier struct {
	ch chan struct{}
}

// NewNotifier creates a wake notifier with a single-slot buffer. One
// pending signal is enough; workers re-scan the table on every wake.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

// Wake nudges an idle worker without blocking. If a signal is already
// pending the new one is coalesced into it.
func (n *Notifier) Wake() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// C returns the channel workers select on alongside their poll ticker
func (n *Notifier) C() <-chan struct{} {
	return n.ch
}
