package peerstore

import (
	"encoding/json"
	"errors"
	"sort"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-nodehost/internal/core/storage"
	"github.com/dep2p/go-nodehost/pkg/types"
)

// storedRecord 持久化格式，地址以字符串保存
type storedRecord struct {
	ID       types.PeerID `json:"id"`
	Addrs    []string     `json:"addrs"`
	LastSeen time.Time    `json:"last_seen"`
	Health   int          `json:"health"`
	Sources  []string     `json:"sources,omitempty"`
}

func toStored(rec *types.PeerRecord) storedRecord {
	addrs := make([]string, 0, len(rec.Addrs))
	for _, a := range rec.Addrs {
		addrs = append(addrs, a.String())
	}
	return storedRecord{
		ID:       rec.ID,
		Addrs:    addrs,
		LastSeen: rec.LastSeen,
		Health:   rec.Health,
		Sources:  rec.Sources,
	}
}

func (s storedRecord) toRecord() *types.PeerRecord {
	rec := &types.PeerRecord{
		ID:       s.ID,
		LastSeen: s.LastSeen,
		Health:   clamp(s.Health),
		Sources:  s.Sources,
	}
	for _, str := range s.Addrs {
		a, err := ma.NewMultiaddr(str)
		if err != nil {
			continue
		}
		rec.Addrs = append(rec.Addrs, a)
	}
	return rec
}

// persist 写穿到存储，失败只记录日志
func (b *AddrBook) persist(rec *types.PeerRecord) {
	if b.store == nil {
		return
	}
	if err := b.store.PutJSON([]byte(rec.ID), toStored(rec)); err != nil {
		log.Warn("持久化地址簿记录失败", "peer", rec.ID.ShortString(), "error", err)
	}
}

func (b *AddrBook) forget(id types.PeerID) {
	if b.store == nil {
		return
	}
	if err := b.store.Delete([]byte(id)); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Warn("删除地址簿记录失败", "peer", id.ShortString(), "error", err)
	}
}

// load 从存储恢复记录，恢复后全部视为未连接
func (b *AddrBook) load() error {
	var loaded []*types.PeerRecord
	err := b.store.ForEach(func(_, value []byte) error {
		var s storedRecord
		if err := json.Unmarshal(value, &s); err != nil {
			log.Warn("跳过损坏的地址簿记录", "error", err)
			return nil
		}
		if s.ID.Validate() != nil {
			return nil
		}
		loaded = append(loaded, s.toRecord())
		return nil
	})
	if err != nil {
		return err
	}

	// 按最后可见时间升序加入，使最新的记录最后被淘汰
	sortByLastSeen(loaded)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rec := range loaded {
		b.records[rec.ID] = rec
		b.idle.Add(rec.ID, struct{}{})
	}
	log.Debug("已恢复地址簿记录", "count", len(b.records))
	return nil
}

func sortByLastSeen(recs []*types.PeerRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].LastSeen.Before(recs[j].LastSeen) })
}
