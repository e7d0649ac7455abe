// Package kvstore provides core.KeyValueStore implementations backed by NATS
// JetStream key-value buckets and by plain files.
package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/voice-installer/internal/core"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsKV implements core.KeyValueStore using a NATS JetStream key-value bucket.
type NatsKV struct {
	bucket string
	kv     nats.KeyValue
}

// NewNatsKV creates the bucket if needed and binds to it.
func NewNatsKV(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsKV, error) {
	kv, err := jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:       bucketName,
		Description:  fmt.Sprintf("Voice registry documents for the %s bucket.", bucketName),
		History:      1,
		Storage:      nats.FileStorage,
		Replicas:     1,
		MaxValueSize: -1,
	})
	if err != nil {
		if errors.Is(err, jetstream.ErrBucketExists) || errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			kv, err = jetstreamContext.KeyValue(bucketName)
			if err != nil {
				return nil, fmt.Errorf("failed to bind to existing key-value bucket '%s': %w", bucketName, err)
			}
		} else {
			return nil, fmt.Errorf("failed to create key-value bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsKV{bucket: bucketName, kv: kv}, nil
}

// Get returns the latest value stored under key.
func (n *NatsKV) Get(_ context.Context, key string) ([]byte, error) {
	entry, err := n.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: '%s' in bucket '%s'", core.ErrKeyNotFound, key, n.bucket)
		}

		return nil, fmt.Errorf("failed to get key '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	return entry.Value(), nil
}

// Put replaces the value stored under key.
func (n *NatsKV) Put(_ context.Context, key string, data []byte) error {
	_, err := n.kv.Put(key, data)
	if err != nil {
		return fmt.Errorf("failed to put key '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}
