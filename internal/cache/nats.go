package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSStore implements Store on a JetStream key/value bucket, for deployments
// that share one cache across several wikigen instances.
type NATSStore struct {
	conn   *nats.Conn
	kv     jetstream.KeyValue
	bucket string
}

// NewNATSStore connects to NATS and binds (or creates) the KV bucket.
func NewNATSStore(url, bucket string) (*NATSStore, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kv, err := js.KeyValue(ctx, bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "wikigen wiki cache",
		})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("create KV bucket: %w", err)
		}
	}

	slog.Info("NATS cache store initialized", "url", url, "bucket", bucket)
	return &NATSStore{conn: conn, kv: kv, bucket: bucket}, nil
}

// Get retrieves a record by key.
func (s *NATSStore) Get(ctx context.Context, key Key) (*Record, error) {
	entry, err := s.kv.Get(ctx, kvKey(key))
	if err != nil {
		if err == jetstream.ErrKeyNotFound {
			return nil, ErrNotFound{Key: key}
		}
		return nil, fmt.Errorf("get record: %w", err)
	}

	var record Record
	if err := json.Unmarshal(entry.Value(), &record); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &record, nil
}

// Put stores a record, replacing any existing one.
func (s *NATSStore) Put(ctx context.Context, key Key, record *Record) error {
	blob, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := s.kv.Put(ctx, kvKey(key), blob); err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

// Delete removes a record. Deleting an absent key is not an error.
func (s *NATSStore) Delete(ctx context.Context, key Key) error {
	if err := s.kv.Delete(ctx, kvKey(key)); err != nil && err != jetstream.ErrKeyNotFound {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// Close drains the connection.
func (s *NATSStore) Close() error {
	s.conn.Close()
	return nil
}

// kvKey renders a Key as a JetStream KV key. KV keys are dot-separated
// tokens; characters outside the allowed set are replaced.
func kvKey(key Key) string {
	return strings.Join([]string{
		kvToken(key.Owner),
		kvToken(key.Repo),
		kvToken(key.HostType),
		kvToken(key.Language),
	}, ".")
}

func kvToken(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
