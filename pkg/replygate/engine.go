package replygate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Engine decides, renders and records automated replies
type Engine struct {
	state   *UsageState
	plans   *PlanRegistry
	config  Config
	clock   Clock
	sleeper Sleeper
	logger  Logger
	metrics Metrics
	limiter RateLimiter
	locks   *userLocks
}

// NewEngine creates an engine over store, applying defaults to config
func NewEngine(store Store, config Config) (*Engine, error) {
	if store == nil {
		return nil, ErrStoreUnavailable
	}

	// Set defaults
	if config.Plans == nil {
		config.Plans = DefaultPlans()
	}
	if config.Clock == nil {
		config.Clock = systemClock{}
	}
	if config.Sleeper == nil {
		config.Sleeper = systemSleeper{}
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	if config.RateLimiter == nil {
		config.RateLimiter = NewMemoryRateLimiter()
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.LogRingSize <= 0 {
		config.LogRingSize = DefaultLogRingSize
	}

	plans, err := NewPlanRegistry(config.Plans)
	if err != nil {
		return nil, err
	}

	return &Engine{
		state:   NewUsageState(store, config.Metrics, config.LogRingSize),
		plans:   plans,
		config:  config,
		clock:   config.Clock,
		sleeper: config.Sleeper,
		logger:  config.Logger,
		metrics: config.Metrics,
		limiter: config.RateLimiter,
		locks:   newUserLocks(),
	}, nil
}

// Plans returns the engine's plan registry
func (e *Engine) Plans() *PlanRegistry {
	return e.plans
}

// State returns the usage state accessor
func (e *Engine) State() *UsageState {
	return e.state
}

// location picks the zone used for the working-hours hour-of-day
func (e *Engine) location(userID string, hours WorkingHours) *time.Location {
	if !e.config.UseSettingsTimezone || hours.Timezone == "" {
		return e.config.Location
	}

	loc, err := time.LoadLocation(hours.Timezone)
	if err != nil {
		e.logger.Warn("invalid working-hours timezone, using engine location",
			userField(userID), Field{Key: "timezone", Value: hours.Timezone}, errField(err))
		return e.config.Location
	}
	return loc
}

// userLocks serializes read-modify-write cycles per user.
// Entries are reference counted and dropped once nobody holds or waits on them.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// acquire blocks until the user's lock is held or ctx is done
func (l *userLocks) acquire(ctx context.Context, userID string) (func(), error) {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{sem: semaphore.NewWeighted(1)}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	if err := ul.sem.Acquire(ctx, 1); err != nil {
		l.unref(userID, ul)
		return nil, err
	}

	return func() {
		ul.sem.Release(1)
		l.unref(userID, ul)
	}, nil
}

func (l *userLocks) unref(userID string, ul *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ul.refs--
	if ul.refs == 0 {
		delete(l.locks, userID)
	}
}
