package etcd

import (
	"context"
	"fmt"
	"time"

	cerrors "github.com/Meesho/BharatMLStack/choreographer/internal/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const defaultDialTimeout = 5 * time.Second

// ClientConfig describes how to reach the etcd cluster that holds workflow
// documents.
type ClientConfig struct {
	Endpoints []string
	Username  string
	Password  string
	Timeout   time.Duration
}

func (c ClientConfig) dialTimeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultDialTimeout
	}
	return c.Timeout
}

// Client owns a clientv3 connection that has answered a status probe.
type Client struct {
	endpoints []string
	conn      *clientv3.Client
}

// NewClient dials the cluster and probes the first endpoint that answers.
// A cluster that never answers is reported as ErrStoreUnavailable.
func NewClient(cfg ClientConfig) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("%w: ETCD_ENDPOINTS is empty", cerrors.ErrInvalidRequest)
	}
	wait := cfg.dialTimeout()
	conn, err := clientv3.New(clientv3.Config{
		Endpoints:           cfg.Endpoints,
		Username:            cfg.Username,
		Password:            cfg.Password,
		DialTimeout:         wait,
		DialKeepAliveTime:   wait,
		PermitWithoutStream: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: dial etcd: %v", cerrors.ErrStoreUnavailable, err)
	}
	if err := probe(conn, cfg.Endpoints, wait); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Client{endpoints: append([]string(nil), cfg.Endpoints...), conn: conn}, nil
}

func probe(conn *clientv3.Client, endpoints []string, wait time.Duration) error {
	var last error
	for _, ep := range endpoints {
		ctx, cancel := context.WithTimeout(context.Background(), wait)
		_, err := conn.Status(ctx, ep)
		cancel()
		if err == nil {
			return nil
		}
		last = err
	}
	return fmt.Errorf("%w: no etcd endpoint answered: %v", cerrors.ErrStoreUnavailable, last)
}

func (c *Client) Endpoints() []string {
	return append([]string(nil), c.endpoints...)
}

func (c *Client) Raw() *clientv3.Client {
	return c.conn
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
