package identity

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dep2p/go-nodehost/internal/util/logger"
	"github.com/dep2p/go-nodehost/pkg/types"
)

var log = logger.Logger("core.identity")

const pemTypePrivate = "PRIVATE KEY"

// ============================================================================
//                              私钥持久化
// ============================================================================

// Save 将身份私钥以 PKCS#8 PEM 保存到文件
//
// 使用原子写操作（临时文件 + rename），文件权限 0600。
func Save(id *Identity, path string) error {
	der, err := x509.MarshalPKCS8PrivateKey(id.priv)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: pemTypePrivate, Bytes: der})

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	return atomicWriteFile(path, data, 0o600)
}

// Load 从 PEM 文件加载身份
func Load(path string) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypePrivate {
		return nil, ErrInvalidPEM
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPEM, err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, ErrUnsupportedKeyType
	}
	return FromPrivateKey(priv)
}

// LoadOrCreate 加载身份，文件不存在时生成并保存
//
// path 为空时返回临时身份。任何失败都包装 types.ErrIdentity。
func LoadOrCreate(path string) (*Identity, error) {
	if path == "" {
		id, err := Generate()
		if err != nil {
			return nil, err
		}
		log.Debug("使用临时身份", "peer", id.PeerID().ShortString())
		return id, nil
	}

	id, err := Load(path)
	if err == nil {
		log.Info("已加载身份", "peer", id.PeerID().ShortString(), "path", path)
		return id, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: load %s: %w", types.ErrIdentity, path, err)
	}

	id, err = Generate()
	if err != nil {
		return nil, err
	}
	if err := Save(id, path); err != nil {
		return nil, fmt.Errorf("%w: save %s: %w", types.ErrIdentity, path, err)
	}
	log.Info("已生成新身份", "peer", id.PeerID().ShortString(), "path", path)
	return id, nil
}

// atomicWriteFile 原子写文件
//
// 如果任何步骤失败，目标文件保持不变。
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("同步临时文件失败: %w", err)
	}
	if err := tmpFile.Chmod(perm); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("设置文件权限失败: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("原子 rename 失败: %w", err)
	}

	success = true
	return nil
}
