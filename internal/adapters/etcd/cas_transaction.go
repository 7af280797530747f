package etcd

import (
	"context"

	clientv3 "go.etcd.io/etcd/client/v3"
)

type txnResult struct {
	Applied  bool
	Revision int64
	// Current is the stored value when the guard failed and the else branch
	// read the key back.
	Current *clientv3.GetResponse
}

// compareAndSwap puts newValue only while the key's ModRevision is still
// expectedModRevision. A missing key has ModRevision 0, so the guard also
// fails when the document was deleted underneath the caller.
func compareAndSwap(ctx context.Context, client *clientv3.Client, key string, expectedModRevision int64, newValue string) (txnResult, error) {
	resp, err := client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", expectedModRevision)).
		Then(clientv3.OpPut(key, newValue)).
		Commit()
	if err != nil {
		return txnResult{}, err
	}
	return txnResult{Applied: resp.Succeeded, Revision: resp.Header.Revision}, nil
}

// createIfAbsent puts value only when the key has never been created, and
// otherwise returns the existing key-value in the same round trip.
func createIfAbsent(ctx context.Context, client *clientv3.Client, key, value string) (txnResult, error) {
	resp, err := client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, value)).
		Else(clientv3.OpGet(key)).
		Commit()
	if err != nil {
		return txnResult{}, err
	}
	result := txnResult{Applied: resp.Succeeded, Revision: resp.Header.Revision}
	if !resp.Succeeded && len(resp.Responses) > 0 {
		get := resp.Responses[0].GetResponseRange()
		if get != nil {
			result.Current = (*clientv3.GetResponse)(get)
		}
	}
	return result, nil
}
