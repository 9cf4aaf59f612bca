package identity

import "errors"

var (
	// ErrInvalidKeySize 密钥长度不正确
	ErrInvalidKeySize = errors.New("identity: invalid key size")

	// ErrInvalidPublicKey 公钥不是合法的曲线点
	ErrInvalidPublicKey = errors.New("identity: invalid public key")

	// ErrInvalidSignature 签名验证失败
	ErrInvalidSignature = errors.New("identity: invalid signature")

	// ErrInvalidPEM 无效的 PEM 数据
	ErrInvalidPEM = errors.New("identity: invalid PEM data")

	// ErrUnsupportedKeyType 不支持的密钥类型
	ErrUnsupportedKeyType = errors.New("identity: unsupported key type")

	// ErrKeyNotFound 密钥文件不存在
	ErrKeyNotFound = errors.New("identity: key not found")
)
