// Package capability 实现可插拔能力注册表
//
// 注册表按类别（传输、多路复用、加密、发现）保存有序的能力描述，
// 顺序即协商偏好。启动前注册，Seal 之后只读，读操作不加锁。
package capability

import (
	"fmt"
	"sync/atomic"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/go-nodehost/internal/util/logger"
	pkgif "github.com/dep2p/go-nodehost/pkg/interfaces"
	"github.com/dep2p/go-nodehost/pkg/types"
)

var log = logger.Logger("core.capability")

// Descriptor 能力描述
type Descriptor struct {
	// ID 能力标识，同时也是协商时在线上交换的字符串
	ID string

	// Impl 实现句柄，类型必须与类别匹配
	Impl any
}

// Registry 能力注册表
type Registry struct {
	entries map[types.CapabilityKind][]Descriptor
	sealed  atomic.Bool
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[types.CapabilityKind][]Descriptor),
	}
}

// Register 追加一个能力到对应类别的有序列表
//
// 失败情况（均包装 types.ErrConfiguration）：
//   - 同类别下 ID 已存在：types.ErrDuplicateCapability
//   - Impl 不满足类别接口：ErrKindMismatch
//   - 注册表已封存：ErrSealed
func (r *Registry) Register(kind types.CapabilityKind, d Descriptor) error {
	if r.sealed.Load() {
		return fmt.Errorf("%w: %w", types.ErrConfiguration, ErrSealed)
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown capability kind %d", types.ErrConfiguration, kind)
	}
	if d.ID == "" {
		return fmt.Errorf("%w: %w", types.ErrConfiguration, ErrEmptyID)
	}
	if !implements(kind, d.Impl) {
		return fmt.Errorf("%w: %w: %s %q has type %T", types.ErrConfiguration, ErrKindMismatch, kind, d.ID, d.Impl)
	}
	for _, existing := range r.entries[kind] {
		if existing.ID == d.ID {
			return fmt.Errorf("%w: %s %q", types.ErrDuplicateCapability, kind, d.ID)
		}
	}

	r.entries[kind] = append(r.entries[kind], d)
	log.Debug("注册能力", "kind", kind, "id", d.ID, "position", len(r.entries[kind]))
	return nil
}

// Seal 封存注册表，之后不再接受注册
func (r *Registry) Seal() {
	if r.sealed.CompareAndSwap(false, true) {
		log.Debug("注册表已封存",
			"transports", len(r.entries[types.KindTransport]),
			"securities", len(r.entries[types.KindSecurity]),
			"muxers", len(r.entries[types.KindMuxer]),
			"discoverers", len(r.entries[types.KindDiscovery]))
	}
}

// Sealed 是否已封存
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// Resolve 返回本地注册顺序中第一个对端也提供的 ID
//
// 没有交集时返回 types.ErrNoCommonCapability。
func (r *Registry) Resolve(kind types.CapabilityKind, peerOffered []string) (string, error) {
	local := r.IDs(kind)
	if id, ok := Negotiate(local, peerOffered); ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %s local=%v remote=%v", types.ErrNoCommonCapability, kind, local, peerOffered)
}

// IDs 返回某类别的有序 ID 列表
func (r *Registry) IDs(kind types.CapabilityKind) []string {
	entries := r.entries[kind]
	ids := make([]string, len(entries))
	for i, d := range entries {
		ids[i] = d.ID
	}
	return ids
}

// Lookup 按 ID 查找能力
func (r *Registry) Lookup(kind types.CapabilityKind, id string) (Descriptor, bool) {
	for _, d := range r.entries[kind] {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

// ============================================================================
//                              类型化访问
// ============================================================================

// Transports 按偏好顺序返回传输层
func (r *Registry) Transports() []pkgif.Transport {
	return implsOf[pkgif.Transport](r.entries[types.KindTransport])
}

// Securities 按偏好顺序返回安全传输
func (r *Registry) Securities() []pkgif.SecureTransport {
	return implsOf[pkgif.SecureTransport](r.entries[types.KindSecurity])
}

// Muxers 按偏好顺序返回多路复用器
func (r *Registry) Muxers() []pkgif.StreamMuxer {
	return implsOf[pkgif.StreamMuxer](r.entries[types.KindMuxer])
}

// Discoverers 返回发现机制
func (r *Registry) Discoverers() []pkgif.Discoverer {
	return implsOf[pkgif.Discoverer](r.entries[types.KindDiscovery])
}

// SecurityByID 按 ID 查找安全传输
func (r *Registry) SecurityByID(id string) (pkgif.SecureTransport, bool) {
	d, ok := r.Lookup(types.KindSecurity, id)
	if !ok {
		return nil, false
	}
	return d.Impl.(pkgif.SecureTransport), true
}

// MuxerByID 按 ID 查找多路复用器
func (r *Registry) MuxerByID(id string) (pkgif.StreamMuxer, bool) {
	d, ok := r.Lookup(types.KindMuxer, id)
	if !ok {
		return nil, false
	}
	return d.Impl.(pkgif.StreamMuxer), true
}

// TransportFor 返回第一个可以拨号该地址的传输层
func (r *Registry) TransportFor(addr ma.Multiaddr) (pkgif.Transport, bool) {
	for _, t := range r.Transports() {
		if t.CanDial(addr) {
			return t, true
		}
	}
	return nil, false
}

func implsOf[T any](entries []Descriptor) []T {
	out := make([]T, 0, len(entries))
	for _, d := range entries {
		out = append(out, d.Impl.(T))
	}
	return out
}

func implements(kind types.CapabilityKind, impl any) bool {
	switch kind {
	case types.KindTransport:
		_, ok := impl.(pkgif.Transport)
		return ok
	case types.KindSecurity:
		_, ok := impl.(pkgif.SecureTransport)
		return ok
	case types.KindMuxer:
		_, ok := impl.(pkgif.StreamMuxer)
		return ok
	case types.KindDiscovery:
		_, ok := impl.(pkgif.Discoverer)
		return ok
	default:
		return false
	}
}
