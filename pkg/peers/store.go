package peers

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"relaymesh/pkg/memkv"
)

// Store keeps per-peer metadata and exchange counters in the in-memory KV.
type Store struct {
	kv *memkv.Store
}

func NewStore(kv *memkv.Store) *Store { return &Store{kv: kv} }

type PeerMeta struct {
	ID        string  `json:"id"`
	Addr      string  `json:"addr,omitempty"`
	Kind      string  `json:"kind,omitempty"` // transport kind
	Alg       string  `json:"alg,omitempty"`
	PublicKey []byte  `json:"public_key,omitempty"`
	Cost      float64 `json:"cost"`
	Connected bool    `json:"connected"`
	Since     int64   `json:"since_unix_ms"`
	LastSeen  int64   `json:"last_seen_unix_ms"`
	// Counters
	MsgsIn   uint64 `json:"msgs_in"`
	MsgsOut  uint64 `json:"msgs_out"`
	BytesIn  uint64 `json:"bytes_in"`
	BytesOut uint64 `json:"bytes_out"`
}

const keyPrefix = "peer:"

func keyPeer(id string) string { return keyPrefix + id }

// Upsert stores meta for a connected peer without expiry.
func (s *Store) Upsert(meta PeerMeta) {
	b, _ := json.Marshal(meta)
	s.kv.Set(keyPeer(meta.ID), b, 0)
	zap.L().Debug("peer upsert", zap.String("peer", meta.ID), zap.String("addr", meta.Addr), zap.String("kind", meta.Kind))
}

func (s *Store) Get(id string) (PeerMeta, bool) {
	b, ok := s.kv.Get(keyPeer(id))
	if !ok {
		return PeerMeta{}, false
	}
	var pm PeerMeta
	if err := json.Unmarshal(b, &pm); err != nil {
		return PeerMeta{}, false
	}
	return pm, true
}

func (s *Store) update(id string, fn func(pm *PeerMeta)) {
	_ = s.kv.Update(keyPeer(id), func(old []byte) []byte {
		var pm PeerMeta
		if old != nil {
			_ = json.Unmarshal(old, &pm)
		}
		pm.ID = id
		fn(&pm)
		b, _ := json.Marshal(pm)
		return b
	})
}

// RecordExchange adds to the message/byte counters of a peer.
func (s *Store) RecordExchange(id string, inBytes, outBytes, inMsgs, outMsgs uint64) {
	now := time.Now().UnixMilli()
	s.update(id, func(pm *PeerMeta) {
		pm.MsgsIn += inMsgs
		pm.MsgsOut += outMsgs
		pm.BytesIn += inBytes
		pm.BytesOut += outBytes
		if inMsgs > 0 {
			pm.LastSeen = now
		}
	})
}

// MarkDisconnected flags the peer as down and lets its entry expire after ttl.
func (s *Store) MarkDisconnected(id string, ttl time.Duration) {
	s.update(id, func(pm *PeerMeta) { pm.Connected = false })
	_ = s.kv.Expire(keyPeer(id), ttl)
	zap.L().Debug("peer retired", zap.String("peer", id), zap.Duration("ttl", ttl))
}

// List returns every known peer sorted by id.
func (s *Store) List() []PeerMeta {
	keys := s.kv.Keys(keyPrefix)
	out := make([]PeerMeta, 0, len(keys))
	for _, k := range keys {
		if pm, ok := s.Get(strings.TrimPrefix(k, keyPrefix)); ok {
			out = append(out, pm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
