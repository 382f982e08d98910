package reachability

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// InterfaceWatcher polls the host network interfaces and reports whether any
// non-loopback interface is up with an address.
type InterfaceWatcher struct {
	Interval time.Duration
	Logger   *zap.Logger

	// probe replaces the interface scan in tests.
	probe func() (bool, error)
}

// NewInterfaceWatcher returns a watcher polling every interval.
func NewInterfaceWatcher(interval time.Duration, log *zap.Logger) *InterfaceWatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &InterfaceWatcher{Interval: interval, Logger: log, probe: hostConnected}
}

// Changes starts polling and emits every transition after the first scan.
func (w *InterfaceWatcher) Changes(ctx context.Context) <-chan bool {
	out := make(chan bool)
	interval := w.Interval
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		defer close(out)
		last, err := w.probe()
		if err != nil {
			w.Logger.Warn("interface scan failed", zap.Error(err))
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			up, err := w.probe()
			if err != nil {
				w.Logger.Warn("interface scan failed", zap.Error(err))
				continue
			}
			if up == last {
				continue
			}
			last = up
			select {
			case out <- up:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func hostConnected() (bool, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		if len(addrs) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Manual is a NetworkSignal driven by Set, used by the shell's "net" command.
type Manual struct {
	mu   sync.Mutex
	subs []chan bool
}

// Changes registers a listener that lives until ctx is done.
func (m *Manual) Changes(ctx context.Context) <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s == ch {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// Set reports a transition to every listener. A listener that has not drained
// the previous value only sees the latest one.
func (m *Manual) Set(up bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- up
	}
}

type merged []NetworkSignal

// Merge fans several signals into one.
func Merge(signals ...NetworkSignal) NetworkSignal { return merged(signals) }

func (m merged) Changes(ctx context.Context) <-chan bool {
	out := make(chan bool)
	var wg sync.WaitGroup
	for _, s := range m {
		wg.Add(1)
		go func(in <-chan bool) {
			defer wg.Done()
			for up := range in {
				select {
				case out <- up:
				case <-ctx.Done():
				}
			}
		}(s.Changes(ctx))
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
