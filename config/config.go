// Package config 负责读取和校验 actorbench 的 YAML 配置。
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"actorfw/actor"
	"actorfw/mempool"
)

// Config 是完整的配置文件结构。
type Config struct {
	Framework FrameworkConfig `yaml:"framework"`
	Pool      PoolConfig      `yaml:"pool"`
	Log       LogConfig       `yaml:"log"`
	Bench     BenchConfig     `yaml:"bench"`
}

// FrameworkConfig 配置调度器和对外服务。
type FrameworkConfig struct {
	// Threads 工作线程数量
	Threads int `yaml:"threads"`
	// MetricsAddr 指标 HTTP 地址，空表示不启用
	MetricsAddr string `yaml:"metrics_addr"`
	// HealthAddr gRPC 健康检查地址，空表示不启用
	HealthAddr string `yaml:"health_addr"`
}

// PoolConfig 配置内存池。
type PoolConfig struct {
	Buckets            int    `yaml:"buckets"`
	MaxBlocksPerBucket int    `yaml:"max_blocks_per_bucket"`
	CacheSlots         int    `yaml:"cache_slots"`
	Preload            int    `yaml:"preload"`
	// MemoryLimit 原始分配器的字节预算，0 表示不限制
	MemoryLimit uint64 `yaml:"memory_limit"`
}

// LogConfig 配置日志。
type LogConfig struct {
	// Level 是 debug、info、warn 或 error
	Level string `yaml:"level"`
	// Format 是 text 或 json
	Format string `yaml:"format"`
}

// BenchConfig 配置 actorbench 的压测场景。
type BenchConfig struct {
	Scenario     string `yaml:"scenario"`
	Actors       int    `yaml:"actors"`
	Messages     int    `yaml:"messages"`
	PayloadBytes int    `yaml:"payload_bytes"`
	// Rate soak 场景每秒注入的消息数，0 表示不限速
	Rate int64 `yaml:"rate"`
}

// Scenarios 列出支持的压测场景。
var Scenarios = []string{"pingpong", "fanout", "ring", "soak"}

// Default 返回默认配置。
func Default() *Config {
	return &Config{
		Framework: FrameworkConfig{
			Threads: actor.DefaultThreads,
		},
		Pool: PoolConfig{
			Buckets:            mempool.DefaultBuckets,
			MaxBlocksPerBucket: mempool.DefaultMaxBlocksPerBucket,
			CacheSlots:         mempool.DefaultCacheSlots,
			Preload:            mempool.DefaultPreload,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Bench: BenchConfig{
			Scenario:     "pingpong",
			Actors:       2,
			Messages:     100000,
			PayloadBytes: 16,
		},
	}
}

// Load 读取 path 指向的配置文件，未出现的字段保持默认值。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return cfg, nil
}

// Parse 从 YAML 文本解析配置并校验。
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "yaml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置是否合法，一次报告所有问题。
func (c *Config) Validate() error {
	var problems []string
	if c.Framework.Threads <= 0 {
		problems = append(problems, "framework.threads must be positive")
	}
	if c.Pool.Buckets <= 0 {
		problems = append(problems, "pool.buckets must be positive")
	}
	if c.Pool.MaxBlocksPerBucket <= 0 {
		problems = append(problems, "pool.max_blocks_per_bucket must be positive")
	}
	if c.Pool.CacheSlots <= 0 {
		problems = append(problems, "pool.cache_slots must be positive")
	}
	if c.Pool.Preload <= 0 {
		problems = append(problems, "pool.preload must be positive")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		problems = append(problems, fmt.Sprintf("log.format must be text or json, got %q", c.Log.Format))
	}
	if !contains(Scenarios, c.Bench.Scenario) {
		problems = append(problems, fmt.Sprintf("bench.scenario must be one of %v, got %q", Scenarios, c.Bench.Scenario))
	}
	if c.Bench.Actors <= 0 {
		problems = append(problems, "bench.actors must be positive")
	}
	if c.Bench.Messages <= 0 {
		problems = append(problems, "bench.messages must be positive")
	}
	if c.Bench.PayloadBytes < 0 {
		problems = append(problems, "bench.payload_bytes must not be negative")
	}
	if c.Bench.Rate < 0 {
		problems = append(problems, "bench.rate must not be negative")
	}
	if len(problems) > 0 {
		return errors.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ParseLevel 把日志级别名称转换为 slog.Level。
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.Errorf("log.level: unknown level %q", s)
	}
	return l, nil
}

// PoolOptions 返回全局块池的参数。
func (c *Config) PoolOptions() mempool.Options {
	return mempool.Options{
		Buckets:            c.Pool.Buckets,
		MaxBlocksPerBucket: c.Pool.MaxBlocksPerBucket,
	}
}

// Allocator 返回原始分配器；设置了内存预算时带上预算限制。
func (c *Config) Allocator() mempool.Allocator {
	if c.Pool.MemoryLimit > 0 {
		return mempool.NewLimitedAllocator(nil, c.Pool.MemoryLimit)
	}
	return mempool.NewHeapAllocator()
}

// FrameworkOptions 按配置构造 actor.Options。
func (c *Config) FrameworkOptions(logger *slog.Logger) actor.Options {
	return actor.Options{
		Threads:    c.Framework.Threads,
		Allocator:  c.Allocator(),
		Pool:       c.PoolOptions(),
		CacheSlots: c.Pool.CacheSlots,
		Preload:    c.Pool.Preload,
		Logger:     logger,
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
