package etcd

import (
	"context"
	"fmt"

	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	"github.com/Meesho/BharatMLStack/choreographer/internal/ports"
	"github.com/rs/zerolog/log"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// DocumentStore maps documents onto etcd keys. The document version is the
// key's ModRevision.
type DocumentStore struct {
	client *clientv3.Client
	owned  *Client
}

func NewDocumentStore(client *clientv3.Client) *DocumentStore {
	return &DocumentStore{client: client}
}

// NewOwnedDocumentStore closes the underlying client when the store closes.
func NewOwnedDocumentStore(client *Client) *DocumentStore {
	return &DocumentStore{client: client.Raw(), owned: client}
}

func (s *DocumentStore) Get(ctx context.Context, key string) (ports.Document, error) {
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return ports.Document{}, unavailable(err)
	}
	if len(resp.Kvs) == 0 {
		return ports.Document{}, cerrors.ErrNotFound
	}
	kv := resp.Kvs[0]
	return ports.Document{Key: string(kv.Key), Value: kv.Value, Version: kv.ModRevision}, nil
}

func (s *DocumentStore) List(ctx context.Context, prefix string) ([]ports.Document, error) {
	resp, err := s.client.Get(ctx, prefix, clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, unavailable(err)
	}
	result := make([]ports.Document, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		result = append(result, ports.Document{Key: string(kv.Key), Value: kv.Value, Version: kv.ModRevision})
	}
	return result, nil
}

func (s *DocumentStore) Create(ctx context.Context, key string, value []byte) (ports.Document, bool, error) {
	res, err := createIfAbsent(ctx, s.client, key, string(value))
	if err != nil {
		return ports.Document{}, false, unavailable(err)
	}
	if res.Applied {
		log.Debug().Str("key", key).Int64("mod_revision", res.Revision).Msg("etcd document created")
		return ports.Document{Key: key, Value: value, Version: res.Revision}, true, nil
	}
	if res.Current == nil || len(res.Current.Kvs) == 0 {
		// Deleted between the guard and the read; surface it as a conflict
		// the caller can retry.
		return ports.Document{}, false, cerrors.ErrCASConflict
	}
	kv := res.Current.Kvs[0]
	return ports.Document{Key: key, Value: kv.Value, Version: kv.ModRevision}, false, nil
}

func (s *DocumentStore) CompareAndSwap(ctx context.Context, key string, expectedVersion int64, value []byte) (ports.Document, bool, error) {
	res, err := compareAndSwap(ctx, s.client, key, expectedVersion, string(value))
	if err != nil {
		return ports.Document{}, false, unavailable(err)
	}
	if !res.Applied {
		log.Debug().Str("key", key).Int64("expected_mod_revision", expectedVersion).Msg("etcd CAS not applied")
		return ports.Document{}, false, nil
	}
	return ports.Document{Key: key, Value: value, Version: res.Revision}, true, nil
}

func (s *DocumentStore) Put(ctx context.Context, key string, value []byte) (ports.Document, error) {
	resp, err := s.client.Put(ctx, key, string(value))
	if err != nil {
		return ports.Document{}, unavailable(err)
	}
	return ports.Document{Key: key, Value: value, Version: resp.Header.Revision}, nil
}

func (s *DocumentStore) Close() error {
	if s.owned != nil {
		return s.owned.Close()
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: etcd: %v", cerrors.ErrStoreUnavailable, err)
}
