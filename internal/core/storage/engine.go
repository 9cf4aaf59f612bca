// Package storage 提供基于 BadgerDB 的嵌入式键值存储
//
// Engine 封装 badger.DB，负责打开、值日志 GC 与关闭；
// Store 在 Engine 之上提供前缀隔离的命名空间。
//
// # 键空间
//
//   - ps/r/ - 地址簿节点记录
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/dep2p/go-nodehost/internal/util/logger"
)

var log = logger.Logger("core.storage")

// Config 存储引擎配置
type Config struct {
	// Path 数据目录，InMemory 为 true 时忽略
	Path string

	// InMemory 纯内存模式（测试使用）
	InMemory bool

	// GCInterval 值日志 GC 周期，0 表示不运行
	GCInterval time.Duration

	// GCDiscardRatio 值日志 GC 丢弃比例
	GCDiscardRatio float64
}

// DefaultConfig 返回默认配置
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// Engine BadgerDB 存储引擎
type Engine struct {
	db     *badger.DB
	cfg    Config
	closed atomic.Bool

	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
}

// Open 打开存储引擎并启动后台 GC
func Open(cfg Config) (*Engine, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, ErrInvalidConfig
	}

	opts := badger.DefaultOptions(cfg.Path).
		WithLogger(badgerLogger{}).
		WithNumVersionsToKeep(1)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{db: db, cfg: cfg, gcCancel: cancel}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		e.gcWg.Add(1)
		go e.gcLoop(ctx)
	}
	log.Debug("存储引擎已打开", "path", cfg.Path, "in_memory", cfg.InMemory)
	return e, nil
}

func (e *Engine) gcLoop(ctx context.Context) {
	defer e.gcWg.Done()

	ticker := time.NewTicker(e.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// 运行 GC 直到没有可回收的空间
			for e.db.RunValueLogGC(e.cfg.GCDiscardRatio) == nil {
			}
		}
	}
}

// Get 获取指定键的值
func (e *Engine) Get(key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	var value []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// Put 设置键值对
func (e *Engine) Put(key, value []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Delete 删除指定键
func (e *Engine) Delete(key []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// Iterate 按前缀遍历，fn 返回错误时停止
func (e *Engine) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(item.KeyCopy(nil), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close 关闭存储引擎
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.gcCancel()
	e.gcWg.Wait()
	return e.db.Close()
}

// badgerLogger 将 badger 日志转发到 slog
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...any) {
	log.Error(fmt.Sprintf(format, args...))
}

func (badgerLogger) Warningf(format string, args ...any) {
	log.Warn(fmt.Sprintf(format, args...))
}

func (badgerLogger) Infof(format string, args ...any) {
	log.Debug(fmt.Sprintf(format, args...))
}

func (badgerLogger) Debugf(format string, args ...any) {}
