// Package config loads respatch settings from a TOML or YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/apex/log"
	"gopkg.in/yaml.v3"
)

// DefaultIconSizes are the square sizes generated from a PNG source image.
var DefaultIconSizes = []int{256, 64, 48, 32, 16}

// Config holds the settings shared by the command line and the GUI.
type Config struct {
	Backup         bool   `toml:"backup" yaml:"backup"`
	UpdateChecksum bool   `toml:"update_checksum" yaml:"update_checksum"`
	SectionName    string `toml:"section_name" yaml:"section_name"`
	DefaultLang    string `toml:"default_lang" yaml:"default_lang"`
	IconSizes      []int  `toml:"icon_sizes" yaml:"icon_sizes"`
	Verbose        bool   `toml:"verbose" yaml:"verbose"`
	LogLevel       string `toml:"log_level" yaml:"log_level"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Backup:         true,
		UpdateChecksum: true,
		SectionName:    ".rsrc2",
		DefaultLang:    "0x0409",
		IconSizes:      append([]int(nil), DefaultIconSizes...),
		LogLevel:       "info",
	}
}

// Load reads path over the defaults. The format follows the extension:
// .toml, or .yaml/.yml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(cfg); err != nil {
			return nil, fmt.Errorf("解析TOML配置失败: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("解析YAML配置失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %q", ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field that has a restricted range.
func (c *Config) Validate() error {
	if len(c.SectionName) == 0 || len(c.SectionName) > 8 {
		return fmt.Errorf("节区名称长度必须为1到8字节: %q", c.SectionName)
	}
	if _, err := c.Lang(); err != nil {
		return err
	}
	for _, s := range c.IconSizes {
		if s < 1 || s > 256 {
			return fmt.Errorf("图标尺寸超出范围 (1-256): %d", s)
		}
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("无效的日志级别: %w", err)
	}
	return nil
}

// Lang parses DefaultLang, written in hex with a 0x prefix or in decimal.
func (c *Config) Lang() (uint16, error) {
	v, err := strconv.ParseUint(c.DefaultLang, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("无效的默认语言 %q: %w", c.DefaultLang, err)
	}
	return uint16(v), nil
}

// Level returns the parsed log level.
func (c *Config) Level() log.Level {
	l, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return l
}
