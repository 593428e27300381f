package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSKV stores values in a JetStream key-value bucket.
type NATSKV struct {
	nc     *nats.Conn
	bucket jetstream.KeyValue
}

// OpenNATS connects to the NATS server at url and binds (creating if needed)
// the named key-value bucket.
func OpenNATS(ctx context.Context, url, bucket string) (*NATSKV, error) {
	nc, err := nats.Connect(url,
		nats.Name("routesmith"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, transportErr("connecting to nats", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, transportErr("creating jetstream context", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "routesmith route envelopes",
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, transportErr(fmt.Sprintf("binding bucket %q", bucket), err)
	}

	return &NATSKV{nc: nc, bucket: kv}, nil
}

// Close drains the underlying connection.
func (s *NATSKV) Close() error {
	return s.nc.Drain()
}

func (s *NATSKV) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.bucket.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, transportErr("nats get "+key, err)
	}
	return entry.Value(), nil
}

func (s *NATSKV) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.bucket.Put(ctx, key, value); err != nil {
		return transportErr("nats put "+key, err)
	}
	return nil
}

// Delete places a delete marker; JetStream accepts this for absent keys too.
func (s *NATSKV) Delete(ctx context.Context, key string) error {
	if err := s.bucket.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return transportErr("nats delete "+key, err)
	}
	return nil
}

// Keys lists live keys with the given prefix in bucket order.
func (s *NATSKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	lister, err := s.bucket.ListKeys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, transportErr("nats list keys", err)
	}
	defer lister.Stop()

	var keys []string
	for k := range lister.Keys() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
