package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	"github.com/Meesho/BharatMLStack/choreographer/internal/ports"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	fieldVersion = "version"
	fieldBody    = "body"
	scanCount    = 256
)

// DocumentStore keeps each document in a hash {version, body}. Conditional
// writes use WATCH on the key followed by MULTI/EXEC; an aborted EXEC is a
// version conflict.
type DocumentStore struct {
	client redis.UniversalClient
}

func NewDocumentStore(client redis.UniversalClient) *DocumentStore {
	return &DocumentStore{client: client}
}

func (s *DocumentStore) Get(ctx context.Context, key string) (ports.Document, error) {
	return readDocument(ctx, s.client, key)
}

func (s *DocumentStore) List(ctx context.Context, prefix string) ([]ports.Document, error) {
	var keys []string
	var cursor uint64
	pattern := escapeGlob(prefix) + "*"
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return nil, unavailable(err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(keys)
	result := make([]ports.Document, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		doc, err := readDocument(ctx, s.client, key)
		if errors.Is(err, cerrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		result = append(result, doc)
	}
	return result, nil
}

func (s *DocumentStore) Create(ctx context.Context, key string, value []byte) (ports.Document, bool, error) {
	var doc ports.Document
	var created bool
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readDocument(ctx, tx, key)
		switch {
		case err == nil:
			doc, created = current, false
			return nil
		case !errors.Is(err, cerrors.ErrNotFound):
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldVersion, 1, fieldBody, value)
			return nil
		})
		if err != nil {
			return err
		}
		doc, created = ports.Document{Key: key, Value: value, Version: 1}, true
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// Another writer created the key between WATCH and EXEC.
		log.Debug().Str("key", key).Msg("redis create raced with another writer")
		current, readErr := readDocument(ctx, s.client, key)
		if readErr != nil {
			return ports.Document{}, false, readErr
		}
		return current, false, nil
	}
	if err != nil {
		return ports.Document{}, false, wrap(err)
	}
	return doc, created, nil
}

func (s *DocumentStore) CompareAndSwap(ctx context.Context, key string, expectedVersion int64, value []byte) (ports.Document, bool, error) {
	var doc ports.Document
	applied := false
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		version, err := tx.HGet(ctx, key, fieldVersion).Int64()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if version != expectedVersion {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldVersion, version+1, fieldBody, value)
			return nil
		})
		if err != nil {
			return err
		}
		doc = ports.Document{Key: key, Value: value, Version: version + 1}
		applied = true
		return nil
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		log.Debug().Str("key", key).Int64("expected_version", expectedVersion).Msg("redis CAS aborted by concurrent write")
		return ports.Document{}, false, nil
	}
	if err != nil {
		return ports.Document{}, false, wrap(err)
	}
	return doc, applied, nil
}

func (s *DocumentStore) Put(ctx context.Context, key string, value []byte) (ports.Document, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.HIncrBy(ctx, key, fieldVersion, 1)
		pipe.HSet(ctx, key, fieldBody, value)
		return nil
	})
	if err != nil {
		return ports.Document{}, unavailable(err)
	}
	return ports.Document{Key: key, Value: value, Version: incr.Val()}, nil
}

func (s *DocumentStore) Close() error {
	return s.client.Close()
}

func readDocument(ctx context.Context, client redis.Cmdable, key string) (ports.Document, error) {
	fields, err := client.HGetAll(ctx, key).Result()
	if err != nil {
		return ports.Document{}, unavailable(err)
	}
	if len(fields) == 0 {
		return ports.Document{}, cerrors.ErrNotFound
	}
	version, err := strconv.ParseInt(fields[fieldVersion], 10, 64)
	if err != nil {
		return ports.Document{}, fmt.Errorf("invalid version at %s: %w", key, err)
	}
	return ports.Document{Key: key, Value: []byte(fields[fieldBody]), Version: version}, nil
}

func escapeGlob(prefix string) string {
	var sb strings.Builder
	for _, r := range prefix {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteRune('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func wrap(err error) error {
	if errors.Is(err, cerrors.ErrStoreUnavailable) || errors.Is(err, cerrors.ErrNotFound) {
		return err
	}
	return unavailable(err)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: redis: %v", cerrors.ErrStoreUnavailable, err)
}
