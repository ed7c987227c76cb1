package store

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/oriumgames/persist"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// DefaultRedisPrefix namespaces blob keys when no prefix is given.
const DefaultRedisPrefix = "persist:"

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 256

// Redis stores blobs as plain string keys under a prefix.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis wraps client. An empty prefix selects DefaultRedisPrefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(name string) string {
	return r.prefix + name
}

// Read implements persist.Store.
func (r *Redis) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: read %s", name)
	}
	return data, nil
}

// Write implements persist.Store.
func (r *Redis) Write(ctx context.Context, name string, data []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(name), data, 0).Err(); err != nil {
		return eris.Wrapf(err, "store: write %s", name)
	}
	return nil
}

// Delete implements persist.Store.
func (r *Redis) Delete(ctx context.Context, name string) error {
	if err := r.client.Del(ctx, r.key(name)).Err(); err != nil {
		return eris.Wrapf(err, "store: delete %s", name)
	}
	return nil
}

// List implements persist.Store.
func (r *Redis) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	iter := r.client.Scan(ctx, 0, escapeGlob(r.key(prefix))+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		name := strings.TrimPrefix(iter.Val(), r.prefix)
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, eris.Wrap(err, "store: list")
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// escapeGlob quotes the SCAN MATCH metacharacters in s.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Compile-time check that Redis implements persist.Store.
var _ persist.Store = (*Redis)(nil)
