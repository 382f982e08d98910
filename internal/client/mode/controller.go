package mode

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/atinyakov/FinKeeper/internal/client/api"
	"github.com/atinyakov/FinKeeper/internal/models"
	"go.uber.org/zap"
)

// DefaultMaxPrompts bounds how often Escalate asks the user before giving up.
const DefaultMaxPrompts = 3

// ErrSignedOut is returned when the session was rejected and the user has
// been signed out.
var ErrSignedOut = errors.New("session rejected, signed out")

// Decision is the user's answer to "continue offline?".
type Decision int

const (
	GoOffline Decision = iota
	Retry
)

// Prober checks the service liveness endpoint.
type Prober interface {
	Health(ctx context.Context) error
}

// Session resumes the signed-in session.
type Session interface {
	Me(ctx context.Context) (*models.Profile, error)
}

// Syncer runs a full sync pass.
type Syncer interface {
	RunFullSync(ctx context.Context, profile *models.Profile) error
}

// UI is the part of the front end the controller talks to.
type UI interface {
	ConfirmOffline(ctx context.Context, reason string) Decision
	SignOut(err error)
}

// Listener is notified after every mode change.
type Listener func(m Mode, reason string)

// Config tunes a Controller.
type Config struct {
	MaxPrompts int
	Logger     *zap.Logger
}

// Controller owns the current Mode. It starts Offline until StartupCheck or
// GoOnline succeeds.
type Controller struct {
	prober  Prober
	session Session
	syncer  Syncer
	ui      UI
	log     *zap.Logger
	prompts int

	// transition serializes mode changes that talk to the network or the user
	transition sync.Mutex

	mu        sync.Mutex
	mode      Mode
	reason    string
	listeners map[int]Listener
	nextID    int
}

// New returns a Controller in Offline mode.
func New(prober Prober, session Session, syncer Syncer, ui UI, cfg Config) *Controller {
	if cfg.MaxPrompts <= 0 {
		cfg.MaxPrompts = DefaultMaxPrompts
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Controller{
		prober:    prober,
		session:   session,
		syncer:    syncer,
		ui:        ui,
		log:       cfg.Logger,
		prompts:   cfg.MaxPrompts,
		mode:      Offline,
		reason:    "not connected yet",
		listeners: make(map[int]Listener),
	}
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Online reports whether the current mode is Online.
func (c *Controller) Online() bool { return c.Mode() == Online }

// Reason returns why the controller last went offline. It is empty while online.
func (c *Controller) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Capabilities derives the allowed actions from the current mode.
func (c *Controller) Capabilities() Capabilities { return c.Mode().Capabilities() }

// Subscribe registers fn for mode changes and returns a function removing it.
func (c *Controller) Subscribe(fn Listener) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// NetworkChanged handles a host connectivity transition. Losing the network
// goes offline at once; regaining it resumes the session.
func (c *Controller) NetworkChanged(ctx context.Context, up bool) error {
	c.transition.Lock()
	defer c.transition.Unlock()

	if !up {
		if c.Mode() == Online {
			c.set(Offline, "network connection lost")
		}
		return nil
	}
	if c.Mode() == Online {
		return nil
	}
	return c.enterOnline(ctx)
}

// Escalate asks the user whether to continue offline after the service became
// unreachable. Retry probes once more; after MaxPrompts failed retries the
// controller goes offline without asking again.
func (c *Controller) Escalate(ctx context.Context, reason string) error {
	c.transition.Lock()
	defer c.transition.Unlock()

	if c.Mode() != Online {
		return nil
	}
	if c.confirmUnreachable(ctx, reason) {
		return nil
	}
	return ctx.Err()
}

// StartupCheck probes the service once at launch. When it is reachable the
// session is resumed and synced; otherwise the user decides whether to work
// offline.
func (c *Controller) StartupCheck(ctx context.Context) error {
	c.transition.Lock()
	defer c.transition.Unlock()

	if err := c.prober.Health(ctx); err != nil {
		c.log.Info("service unreachable at startup", zap.Error(err))
		if !c.confirmUnreachable(ctx, fmt.Sprintf("cannot reach server: %v", err)) {
			return ctx.Err()
		}
	}
	return c.enterOnline(ctx)
}

// GoOnline is the explicit "try again" from Offline mode.
func (c *Controller) GoOnline(ctx context.Context) error {
	c.transition.Lock()
	defer c.transition.Unlock()

	if c.Mode() == Online {
		return nil
	}
	if err := c.prober.Health(ctx); err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}
	return c.enterOnline(ctx)
}

// confirmUnreachable runs the prompt loop. It returns true when a retry
// probe succeeded and false when the controller went offline.
func (c *Controller) confirmUnreachable(ctx context.Context, reason string) bool {
	for i := 0; i < c.prompts; i++ {
		if ctx.Err() != nil {
			break
		}
		if c.ui.ConfirmOffline(ctx, reason) == GoOffline {
			c.set(Offline, reason)
			return false
		}
		err := c.prober.Health(ctx)
		if err == nil {
			c.log.Info("service reachable again after retry")
			return true
		}
		reason = fmt.Sprintf("cannot reach server: %v", err)
	}
	c.set(Offline, reason)
	return false
}

// enterOnline resumes the session and syncs before declaring Online. Must be
// called with transition held.
func (c *Controller) enterOnline(ctx context.Context) error {
	if c.Mode() == Online {
		return nil
	}
	profile, err := c.session.Me(ctx)
	if err != nil {
		if api.IsAuthError(err) {
			return c.signOut(err)
		}
		return fmt.Errorf("resume session: %w", err)
	}

	if err := c.syncer.RunFullSync(ctx, profile); err != nil {
		if api.IsAuthError(err) {
			return c.signOut(err)
		}
		// pending rows stay queued for the next pass
		c.log.Warn("sync on reconnect failed", zap.Error(err))
	}
	c.set(Online, "")
	return nil
}

func (c *Controller) signOut(err error) error {
	c.log.Warn("session rejected", zap.Error(err))
	c.set(Offline, "signed out")
	c.ui.SignOut(err)
	return fmt.Errorf("%w: %v", ErrSignedOut, err)
}

// set changes the mode and notifies listeners outside the lock.
func (c *Controller) set(m Mode, reason string) {
	c.mu.Lock()
	changed := c.mode != m || c.reason != reason
	c.mode = m
	c.reason = reason
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	if !changed {
		return
	}
	c.log.Info("mode changed", zap.Stringer("mode", m), zap.String("reason", reason))
	for _, l := range listeners {
		l(m, reason)
	}
}
