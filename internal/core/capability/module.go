package capability

import (
	"sort"

	"go.uber.org/fx"

	"github.com/dep2p/go-nodehost/pkg/types"
)

// GroupTag 能力条目的 fx 值组标签
const GroupTag = `group:"capabilities"`

// FlattenGroupTag 一次提交多个条目时使用的标签
const FlattenGroupTag = `group:"capabilities,flatten"`

// Entry 由各能力模块通过 fx 值组提交的注册条目
//
// fx 值组不保证顺序，Priority 决定同类别内的注册顺序（越小越靠前）。
type Entry struct {
	Kind       types.CapabilityKind
	Priority   int
	Descriptor Descriptor
}

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Entries []Entry `group:"capabilities"`
}

// ProvideRegistry 收集所有条目并按优先级注册
func ProvideRegistry(input ModuleInput) (*Registry, error) {
	entries := append([]Entry(nil), input.Entries...)
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind < entries[j].Kind
		}
		return entries[i].Priority < entries[j].Priority
	})

	r := NewRegistry()
	for _, e := range entries {
		if err := r.Register(e.Kind, e.Descriptor); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// AsEntry 将构造函数标注为能力条目提供者
//
//	fx.Provide(capability.AsEntry(newNoiseEntry))
func AsEntry(constructor any) any {
	return fx.Annotate(constructor, fx.ResultTags(GroupTag))
}

// AsEntries 将返回 []Entry 的构造函数标注为能力条目提供者
//
// 用于按配置启用若干实现的模块。
func AsEntries(constructor any) any {
	return fx.Annotate(constructor, fx.ResultTags(FlattenGroupTag))
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("capability",
		fx.Provide(ProvideRegistry),
	)
}
