// Package tiered provides a Hot/Cold tiered store that pairs fast ephemeral storage (Hot)
// with durable persistent storage (Cold).
package tiered

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mihaimyh/replygate/pkg/replygate"
)

// Config configures the tiered storage behavior
type Config struct {
	// Hot is the L1 store (e.g., Redis, Memory) serving reads and high-frequency writes
	Hot replygate.Store

	// Cold is the L2 store (e.g., Postgres, Firestore) and the source of truth
	Cold replygate.Store

	// AsyncCounterSync makes writes to counter and log documents hot-primary with a
	// non-blocking cold write. If false, every write is synchronous write-through.
	AsyncCounterSync bool

	// AsyncPrefixes selects the keys written asynchronously.
	// Default: usage and log documents.
	AsyncPrefixes []string

	// SyncBufferSize is the size of the buffered channel for async operations.
	// Default: 1000
	SyncBufferSize int

	// AsyncErrorHandler is called when an async operation fails.
	AsyncErrorHandler func(error)
}

// Storage implements a Hot/Cold tiered replygate.Store.
// - Read-Through: Get tries Hot, then Cold, and repairs Hot on a Cold hit
// - Write-Through: keyword and settings documents are written Cold first, then Hot
// - Hot-Primary/Async: counter and log documents are written Hot, then queued for Cold
type Storage struct {
	hot  replygate.Store
	cold replygate.Store
	conf Config

	// Channel for async synchronization
	syncQueue chan func() error
	shutdown  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a new tiered storage adapter.
func New(config Config) (*Storage, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered storage: both hot and cold storage are required")
	}

	if config.SyncBufferSize <= 0 {
		config.SyncBufferSize = 1000
	}
	if config.AsyncPrefixes == nil {
		config.AsyncPrefixes = []string{replygate.UsageKey(""), replygate.LogsKey("")}
	}

	s := &Storage{
		hot:       config.Hot,
		cold:      config.Cold,
		conf:      config,
		syncQueue: make(chan func() error, config.SyncBufferSize),
		shutdown:  make(chan struct{}),
	}

	if config.AsyncCounterSync {
		s.startWorker()
	}

	return s, nil
}

// Close gracefully shuts down the async worker (if enabled), draining queued writes.
func (s *Storage) Close() error {
	if s.conf.AsyncCounterSync {
		s.closeOnce.Do(func() {
			close(s.shutdown)
			s.wg.Wait()
		})
	}
	return nil
}

// startWorker runs the background synchronization loop.
// Jobs run sequentially so cold writes keep their causal order.
func (s *Storage) startWorker() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case job := <-s.syncQueue:
				s.run(job)
			case <-s.shutdown:
				// Drain queue on shutdown
				for {
					select {
					case job := <-s.syncQueue:
						s.run(job)
					default:
						return
					}
				}
			}
		}
	}()
}

func (s *Storage) run(job func() error) {
	if err := job(); err != nil && s.conf.AsyncErrorHandler != nil {
		s.conf.AsyncErrorHandler(fmt.Errorf("tiered sync failed: %w", err))
	}
}

func (s *Storage) isAsync(key string) bool {
	if !s.conf.AsyncCounterSync {
		return false
	}
	for _, prefix := range s.conf.AsyncPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// Get implements replygate.Store with a read-through strategy.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	// 1. Try Hot
	doc, err := s.hot.Get(ctx, key)
	if err == nil {
		return doc, nil
	}

	// 2. Try Cold (source of truth)
	doc, err = s.cold.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	// 3. Populate Hot; a failed cache fill only costs the next read a cold hit
	_ = s.hot.Set(ctx, key, doc) //nolint:errcheck // Cache fill

	return doc, nil
}

// Set implements replygate.Store, choosing write-through or hot-primary by key.
func (s *Storage) Set(ctx context.Context, key string, doc []byte) error {
	if !s.isAsync(key) {
		// 1. Write Cold (durability)
		if err := s.cold.Set(ctx, key, doc); err != nil {
			return err
		}
		// 2. Write Hot (availability); Cold already holds the value
		if err := s.hot.Set(ctx, key, doc); err != nil && s.conf.AsyncErrorHandler != nil {
			s.conf.AsyncErrorHandler(fmt.Errorf("tiered storage: hot write failed for %s: %w", key, err))
		}
		return nil
	}

	// Hot is authoritative for reads of counter documents
	if err := s.hot.Set(ctx, key, doc); err != nil {
		return err
	}

	docCopy := append([]byte(nil), doc...)
	select {
	case s.syncQueue <- func() error {
		// Background context ensures completion even if the request is canceled
		return s.cold.Set(context.Background(), key, docCopy)
	}:
	default:
		if s.conf.AsyncErrorHandler != nil {
			s.conf.AsyncErrorHandler(errors.New("tiered storage: sync queue full, dropping cold write"))
		}
	}
	return nil
}

// Ping checks both tiers when they support it
func (s *Storage) Ping(ctx context.Context) error {
	for _, st := range []replygate.Store{s.hot, s.cold} {
		if p, ok := st.(replygate.Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}
