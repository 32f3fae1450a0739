// ABOUTME: Periodic server time broadcaster for connected clients
// ABOUTME: Pushes the current server time to every live session on an interval

package notifier

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is used when the configured interval is zero.
const DefaultInterval = 20 * time.Second

// Broadcaster delivers a system notice to every live session.
type Broadcaster interface {
	Broadcast(text string)
}

// ServerTime periodically broadcasts the current server time so clients can
// show a synchronized clock and detect a stalled connection.
type ServerTime struct {
	broadcaster Broadcaster
	interval    time.Duration
	logger      *slog.Logger

	// now is swapped in tests
	now func() time.Time

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewServerTime creates a server time notifier. Pass zero interval for the
// default.
func NewServerTime(b Broadcaster, interval time.Duration, logger *slog.Logger) *ServerTime {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ServerTime{
		broadcaster: b,
		interval:    interval,
		logger:      logger.With("component", "notifier"),
		now:         time.Now,
		done:        make(chan struct{}),
	}
}

// Start launches the broadcast loop in the background.
func (n *ServerTime) Start() {
	n.wg.Add(1)
	go n.loop()
	n.logger.Info("server time notifier started", "interval", n.interval)
}

// Stop halts the loop and waits for it to exit. Safe to call multiple times.
func (n *ServerTime) Stop() {
	n.stopOnce.Do(func() {
		close(n.done)
	})
	n.wg.Wait()
}

func (n *ServerTime) loop() {
	defer n.wg.Done()

	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n.broadcast()
		case <-n.done:
			return
		}
	}
}

func (n *ServerTime) broadcast() {
	n.broadcaster.Broadcast("Server time: " + n.now().UTC().Format(time.RFC3339))
}
