// Package firestore provides a Firestore implementation of the replygate.Store interface.
// Each store key maps to one document holding the raw JSON payload.
package firestore

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/replygate/pkg/replygate"
)

// Storage implements replygate.Store using Google Cloud Firestore
type Storage struct {
	client     *firestore.Client
	collection string
}

// Config holds Firestore storage configuration
type Config struct {
	// Collection is the Firestore collection holding documents
	// Default: "replygate_documents"
	Collection string
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	// Set defaults
	if config.Collection == "" {
		config.Collection = "replygate_documents"
	}

	return &Storage{
		client:     client,
		collection: config.Collection,
	}, nil
}

// docRef maps a store key to a document; '/' is not allowed in document IDs
func (s *Storage) docRef(key string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(url.PathEscape(key))
}

// Get implements replygate.Store
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	snap, err := s.docRef(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, replygate.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	if !snap.Exists() {
		return nil, replygate.ErrNotFound
	}

	doc, ok := snap.Data()["doc"].(string)
	if !ok {
		return nil, fmt.Errorf("document %s has no payload", key)
	}
	return []byte(doc), nil
}

// Set implements replygate.Store
func (s *Storage) Set(ctx context.Context, key string, doc []byte) error {
	if key == "" {
		return fmt.Errorf("invalid key")
	}

	data := map[string]interface{}{
		"key":       key,
		"doc":       string(doc),
		"updatedAt": time.Now().UTC(),
	}

	if _, err := s.docRef(key).Set(ctx, data); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Ping reads a sentinel document to verify connectivity
func (s *Storage) Ping(ctx context.Context) error {
	_, err := s.client.Collection(s.collection).Doc("_ping").Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return err
	}
	return nil
}
