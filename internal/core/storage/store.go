package storage

import (
	"encoding/json"
)

// Store 带前缀隔离的 KV 存储
//
// 所有键自动添加前缀，不同组件的数据互不可见。
type Store struct {
	engine *Engine
	prefix []byte
}

// NewStore 创建带前缀的 Store
func NewStore(engine *Engine, prefix string) *Store {
	return &Store{engine: engine, prefix: []byte(prefix)}
}

func (s *Store) prefixKey(key []byte) []byte {
	out := make([]byte, 0, len(s.prefix)+len(key))
	out = append(out, s.prefix...)
	return append(out, key...)
}

// Get 获取指定键的值
func (s *Store) Get(key []byte) ([]byte, error) {
	return s.engine.Get(s.prefixKey(key))
}

// Put 设置键值对
func (s *Store) Put(key, value []byte) error {
	return s.engine.Put(s.prefixKey(key), value)
}

// Delete 删除指定键
func (s *Store) Delete(key []byte) error {
	return s.engine.Delete(s.prefixKey(key))
}

// GetJSON 获取并反序列化 JSON 值
func (s *Store) GetJSON(key []byte, v any) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// PutJSON 序列化并存储 JSON 值
func (s *Store) PutJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(key, data)
}

// ForEach 遍历前缀下的全部键值，传给 fn 的键已去掉前缀
func (s *Store) ForEach(fn func(key, value []byte) error) error {
	return s.engine.Iterate(s.prefix, func(key, value []byte) error {
		return fn(key[len(s.prefix):], value)
	})
}
