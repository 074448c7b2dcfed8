package main

import (
	"fmt"
	"os"
	"time"

	transporthttp "judgecore/internal/transport/http"
	"judgecore/pkg/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8085"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultSandboxName     = "judgecore-sandbox"
)

// SandboxConfig selects and configures the Sandbox Manager backend.
type SandboxConfig struct {
	Backend          string `yaml:"backend"` // "docker" or "native"
	Image            string `yaml:"image"`
	Profile          string `yaml:"profile"`
	NativeRoot       string `yaml:"nativeRoot"`
	NativeCgroupRoot string `yaml:"nativeCgroupRoot"`
	NativeHelperPath string `yaml:"nativeHelperPath"`
	EnableCgroup     bool   `yaml:"enableCgroup"`
	EnableNamespaces bool   `yaml:"enableNamespaces"`
}

// JudgeConfig holds staging and resource-root settings for the orchestrator.
type JudgeConfig struct {
	ResourceRoot   string        `yaml:"resourceRoot"`
	StageRoot      string        `yaml:"stageRoot"`
	WallMs         int64         `yaml:"wallMs"`
	CPUMs          int64         `yaml:"cpuMs"`
	MemoryMB       int64         `yaml:"memoryMb"`
	MaxOutputBytes int64         `yaml:"maxOutputBytes"`
	DeadlineMargin time.Duration `yaml:"deadlineMargin"`
}

// AppConfig holds judged's full configuration.
type AppConfig struct {
	Server  transporthttp.ServerConfig `yaml:"server"`
	Logger  logger.Config              `yaml:"logger"`
	Sandbox SandboxConfig              `yaml:"sandbox"`
	Judge   JudgeConfig                `yaml:"judge"`
}

func loadAppConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file failed: %w", err)
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file failed: %w", err)
	}

	if cfg.Sandbox.Backend == "" {
		cfg.Sandbox.Backend = "docker"
	}
	if cfg.Sandbox.Image == "" {
		cfg.Sandbox.Image = "judgecore/sandbox:latest"
	}
	if cfg.Sandbox.Profile == "" {
		cfg.Sandbox.Profile = "default"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Judge.ResourceRoot == "" {
		cfg.Judge.ResourceRoot = "resources"
	}
	if cfg.Judge.StageRoot == "" {
		cfg.Judge.StageRoot = "/tmp/judgecore/stage"
	}
	if cfg.Judge.WallMs == 0 {
		cfg.Judge.WallMs = 5000
	}
	if cfg.Judge.CPUMs == 0 {
		cfg.Judge.CPUMs = 5000
	}
	if cfg.Judge.MemoryMB == 0 {
		cfg.Judge.MemoryMB = 256
	}
	if cfg.Judge.MaxOutputBytes == 0 {
		cfg.Judge.MaxOutputBytes = 64 * 1024
	}
	return &cfg, nil
}
