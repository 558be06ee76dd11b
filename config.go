package beatstrobe

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// 拍频估计的取值范围 (Hz)，检测频带和手动频率都不能超出
const (
	MinBeatFrequency = 0.5
	MaxBeatFrequency = 40.0
)

// Config 集中管理检测、同步、频闪输出等所有可调参数
type Config struct {
	// --- 频谱检测 (Detector) ---
	// 对左右声道差信号做 FFT，在频带内寻找主频
	Detector struct {
		MinFrequency float64 // 搜索下限 (Hz)，开区间
		MaxFrequency float64 // 搜索上限 (Hz)，开区间
		Window       string  // FFT 前的窗函数: none|hann|hamming|blackman。none 即原始 DFT
		MinPeakRatio float64 // 带内峰值 / 全谱峰值 的最小比例，低于此值视为无信号
	}

	// --- 同步引擎 (Sync) ---
	Sync struct {
		ChunkDuration time.Duration // 每个分析块的时长，同时也是循环节拍
		Hysteresis    float64       // 频率变化超过此值 (Hz) 才重启频闪
		ProbeInterval time.Duration // 手动模式下轮询播放状态的间隔
	}

	// --- 手动模式 ---
	Manual struct {
		MinFrequency     float64 // 允许输入的最小频率 (Hz)，闭区间
		MaxFrequency     float64 // 允许输入的最大频率 (Hz)，闭区间
		DefaultFrequency float64
	}

	// --- 播放 ---
	Playback struct {
		DeviceName string // 按名称子串匹配输出设备，空则使用系统默认
	}

	// --- 频闪输出 ---
	Output struct {
		Kind       string // terminal|serial
		SerialPort string
		BaudRate   int
	}
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Detector.MinFrequency = 0.5
	cfg.Detector.MaxFrequency = 40.0
	cfg.Detector.Window = "none"
	cfg.Detector.MinPeakRatio = 0.05

	cfg.Sync.ChunkDuration = 2 * time.Second
	cfg.Sync.Hysteresis = 0.5
	cfg.Sync.ProbeInterval = 100 * time.Millisecond

	cfg.Manual.MinFrequency = 0.5
	cfg.Manual.MaxFrequency = 40.0
	cfg.Manual.DefaultFrequency = 10.0

	cfg.Output.Kind = "terminal"
	cfg.Output.SerialPort = "/dev/ttyUSB0"
	cfg.Output.BaudRate = 115200

	return cfg
}

// ApplyEnv 用 BEATSTROBE_* 环境变量覆盖配置，缺失或解析失败时保留原值
func ApplyEnv(cfg *Config) {
	cfg.Sync.ChunkDuration = envDuration("BEATSTROBE_CHUNK_DURATION", cfg.Sync.ChunkDuration)
	cfg.Sync.Hysteresis = envFloat("BEATSTROBE_HYSTERESIS", cfg.Sync.Hysteresis)
	cfg.Detector.MinFrequency = envFloat("BEATSTROBE_MIN_FREQ", cfg.Detector.MinFrequency)
	cfg.Detector.MaxFrequency = envFloat("BEATSTROBE_MAX_FREQ", cfg.Detector.MaxFrequency)
	cfg.Detector.Window = envStr("BEATSTROBE_WINDOW", cfg.Detector.Window)
	cfg.Playback.DeviceName = envStr("BEATSTROBE_DEVICE", cfg.Playback.DeviceName)
	cfg.Output.Kind = envStr("BEATSTROBE_OUTPUT", cfg.Output.Kind)
	cfg.Output.SerialPort = envStr("BEATSTROBE_SERIAL_PORT", cfg.Output.SerialPort)
	cfg.Output.BaudRate = envInt("BEATSTROBE_BAUD", cfg.Output.BaudRate)
}

// Validate 检查配置是否可用
func (c *Config) Validate() error {
	if c.Sync.ChunkDuration <= 0 {
		return fmt.Errorf("chunk duration must be positive, got %v", c.Sync.ChunkDuration)
	}
	if c.Sync.Hysteresis < 0 {
		return fmt.Errorf("hysteresis must not be negative, got %v", c.Sync.Hysteresis)
	}
	if c.Sync.ProbeInterval <= 0 {
		return fmt.Errorf("probe interval must be positive, got %v", c.Sync.ProbeInterval)
	}
	if c.Detector.MinFrequency < MinBeatFrequency || c.Detector.MaxFrequency > MaxBeatFrequency ||
		c.Detector.MaxFrequency <= c.Detector.MinFrequency {
		return fmt.Errorf("invalid detector band %.2f-%.2f Hz (must lie within %.1f-%.1f Hz)",
			c.Detector.MinFrequency, c.Detector.MaxFrequency, MinBeatFrequency, MaxBeatFrequency)
	}
	if c.Manual.MinFrequency < MinBeatFrequency || c.Manual.MaxFrequency > MaxBeatFrequency ||
		c.Manual.MaxFrequency < c.Manual.MinFrequency {
		return fmt.Errorf("invalid manual range %.2f-%.2f Hz (must lie within %.1f-%.1f Hz)",
			c.Manual.MinFrequency, c.Manual.MaxFrequency, MinBeatFrequency, MaxBeatFrequency)
	}
	if c.Detector.MinPeakRatio < 0 || c.Detector.MinPeakRatio > 1 {
		return fmt.Errorf("min peak ratio must be within 0-1, got %v", c.Detector.MinPeakRatio)
	}
	if _, ok := windowFuncs[strings.ToLower(c.Detector.Window)]; !ok {
		return fmt.Errorf("unknown window %q", c.Detector.Window)
	}
	switch c.Output.Kind {
	case "terminal", "serial":
	default:
		return fmt.Errorf("unknown output %q", c.Output.Kind)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
