package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoadFile 从文件加载配置
//
// 按扩展名选择格式：.json 或 .toml。文件中未出现的字段保留默认值，
// 加载完成后执行 Validate。
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FromJSON(data)
	case ".toml":
		return FromTOML(data)
	default:
		return nil, configError(fmt.Errorf("unsupported config format %q", filepath.Ext(path)))
	}
}

// FromJSON 从 JSON 解析配置
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, configError(fmt.Errorf("decode json: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromTOML 从 TOML 解析配置
func FromTOML(data []byte) (*Config, error) {
	cfg := NewConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, configError(fmt.Errorf("decode toml: %w", err))
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, configError(fmt.Errorf("unknown toml keys: %v", undecoded))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToJSON 将配置序列化为缩进的 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// ToTOML 将配置序列化为 TOML
func (c *Config) ToTOML() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
