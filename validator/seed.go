package validator

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"xdao.co/storagenet/directory"
	"xdao.co/storagenet/fingerprint"
)

type seedItem struct {
	key  string
	data []byte
}

// seed stores fresh random data under SeedPerRound keys on every miner and
// records the fingerprint of each item at least one miner acknowledged
// byte for byte. It returns the number of recorded items.
func (v *Validator) seed(ctx context.Context, miners []directory.Peer, log logrus.FieldLogger) (int, error) {
	if v.params.SeedPerRound == 0 || len(miners) == 0 {
		return 0, nil
	}
	// Keys are distinct so concurrent Stores never race on one key.
	n := min(v.params.SeedPerRound, v.params.KeySpace+1)
	items := make([]seedItem, 0, n)
	used := make(map[string]struct{}, n)
	for len(items) < n {
		key := v.randomKey()
		if _, dup := used[key]; dup {
			continue
		}
		used[key] = struct{}{}
		data := make([]byte, v.params.SeedSize)
		if _, err := io.ReadFull(v.entropy, data); err != nil {
			return 0, fmt.Errorf("validator: seed data: %w", err)
		}
		items = append(items, seedItem{key: key, data: data})
	}

	accepted := make([]bool, len(items)*len(miners))
	err := fanOut(ctx, len(accepted), v.params.workers(), func(ctx context.Context, i int) {
		item, m := items[i/len(miners)], miners[i%len(miners)]
		accepted[i] = v.store(ctx, m, item, log)
	})
	if err != nil {
		return 0, err
	}

	recorded := 0
	for i, item := range items {
		ok := false
		for j := range miners {
			ok = ok || accepted[i*len(miners)+j]
		}
		if !ok {
			log.WithField("key", item.key).Warn("no miner accepted seed data")
			continue
		}
		if err := v.cache.Record(item.key, fingerprint.Of(item.data)); err != nil {
			log.WithField("key", item.key).WithError(err).Error("record fingerprint")
			continue
		}
		recorded++
	}
	return recorded, nil
}

func (v *Validator) store(ctx context.Context, m directory.Peer, item seedItem, log logrus.FieldLogger) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("peer", m.ID.String()).Errorf("store panicked: %v", r)
			ok = false
		}
		v.metrics.Seed(ok)
	}()
	ctx, cancel := context.WithTimeout(ctx, v.params.CheckTimeout)
	defer cancel()
	ack, err := v.rpc.Store(ctx, m, []byte(item.key), item.data)
	if err != nil {
		log.WithFields(logrus.Fields{"peer": m.ID.String(), "key": item.key}).WithError(err).Debug("store failed")
		return false
	}
	return bytes.Equal(ack, item.data)
}
