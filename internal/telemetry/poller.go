package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/CristiGvl/picoGPUMon/internal/gpu"
)

// DefaultInterval is the default polling period.
const DefaultInterval = 2 * time.Second

// Reading is the outcome of one stats read.
type Reading struct {
	Device  gpu.Device `json:"device"`
	Backend string     `json:"backend"`
	HasData bool       `json:"has_data"`
	Stats   gpu.Stats  `json:"stats"`
}

// Snapshot is an immutable view of one poll.
type Snapshot struct {
	Taken      time.Time `json:"taken"`
	InstanceID string    `json:"instance_id"`
	SlotState  string    `json:"primary_state"`
	Devices    []Reading `json:"devices"`
	Primary    *Reading  `json:"primary,omitempty"`
}

// Find returns the reading for the device with the given ID.
func (s Snapshot) Find(id string) (Reading, bool) {
	for _, r := range s.Devices {
		if r.Device.ID() == id {
			return r, true
		}
	}
	return Reading{}, false
}

// Observer is notified after every poll.
type Observer interface {
	ObservePoll(snap Snapshot, elapsed time.Duration)
}

// Poller reads every device once per interval, keeps the primary-GPU slot
// up to date and publishes the result as a Snapshot.
type Poller struct {
	service    *Service
	selector   *Selector
	observer   Observer
	logger     *slog.Logger
	instanceID string
	interval   time.Duration
	rescan     time.Duration
	now        func() time.Time

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	syncOnce sync.Once
	synced   chan struct{}

	mu         sync.RWMutex
	latest     Snapshot
	lastRescan time.Time
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the polling period.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithRescanInterval makes the poller re-enumerate devices periodically.
// Zero disables rescanning.
func WithRescanInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.rescan = d
	}
}

// WithObserver registers a poll observer, typically the metrics registry.
func WithObserver(o Observer) PollerOption {
	return func(p *Poller) {
		p.observer = o
	}
}

// WithInstanceID stamps snapshots with the given instance identifier.
func WithInstanceID(id string) PollerOption {
	return func(p *Poller) {
		p.instanceID = id
	}
}

// WithPollerLogger sets the logger.
func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) {
		p.logger = l
	}
}

// NewPoller creates a Poller over service.
func NewPoller(service *Service, opts ...PollerOption) *Poller {
	p := &Poller{
		service:  service,
		logger:   slog.Default().With("component", "poller"),
		interval: DefaultInterval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
		synced:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.selector = NewSelector(p.logger)
	p.latest = Snapshot{InstanceID: p.instanceID, SlotState: SlotNoDevice.String()}
	return p
}

// Start launches the background polling goroutine.
func (p *Poller) Start(ctx context.Context) {
	go p.run(ctx)
}

// WaitForSync blocks until the first poll completes or ctx is canceled.
func (p *Poller) WaitForSync(ctx context.Context) error {
	select {
	case <-p.synced:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop signals the poller to stop and waits for the goroutine to exit.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.done
}

// Latest returns the most recent snapshot.
func (p *Poller) Latest() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Rescan forces re-enumeration and polls immediately.
func (p *Poller) Rescan(ctx context.Context) Snapshot {
	p.service.Refresh(ctx)
	p.mu.Lock()
	p.lastRescan = p.now()
	p.mu.Unlock()
	return p.Poll(ctx)
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	p.Poll(ctx)
	p.syncOnce.Do(func() { close(p.synced) })

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Poll(ctx)
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Poll runs one tick synchronously and returns the new snapshot.
func (p *Poller) Poll(ctx context.Context) Snapshot {
	start := p.now()

	if p.rescanDue(start) {
		p.service.Refresh(ctx)
	}

	devices := p.service.Devices(ctx)
	readings := make([]Reading, 0, len(devices))
	byCard := make(map[string]int, len(devices))
	for _, dev := range devices {
		ok, stats := p.service.ReadStatsFor(dev)
		byCard[dev.CardPath] = len(readings)
		readings = append(readings, Reading{
			Device:  dev,
			Backend: p.service.BackendFor(dev),
			HasData: ok,
			Stats:   stats,
		})
	}

	// The selector reads from this tick's results so each device is
	// queried once per interval.
	cached := func(dev gpu.Device) (bool, gpu.Stats) {
		if i, ok := byCard[dev.CardPath]; ok {
			return readings[i].HasData, readings[i].Stats
		}
		return p.service.ReadStatsFor(dev)
	}

	p.mu.Lock()
	dev, _, ok := p.selector.Tick(devices, cached)
	snap := Snapshot{
		Taken:      start,
		InstanceID: p.instanceID,
		SlotState:  p.selector.State().String(),
		Devices:    readings,
	}
	if ok {
		primary := readings[byCard[dev.CardPath]]
		snap.Primary = &primary
	}
	p.latest = snap
	p.mu.Unlock()

	elapsed := p.now().Sub(start)
	if p.observer != nil {
		p.observer.ObservePoll(snap, elapsed)
	}
	p.logger.Debug("poll complete", "devices", len(readings), "primary_state", snap.SlotState, "elapsed", elapsed)
	return snap
}

func (p *Poller) rescanDue(now time.Time) bool {
	if p.rescan <= 0 {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastRescan.IsZero() {
		p.lastRescan = now
		return false
	}
	if now.Sub(p.lastRescan) < p.rescan {
		return false
	}
	p.lastRescan = now
	return true
}
