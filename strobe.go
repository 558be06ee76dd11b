package beatstrobe

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// MaxStrobeFrequency 光敏安全上限，超过此频率永不闪烁
const MaxStrobeFrequency = 50.0

// ValidStrobeFrequency 判断频率是否在 (0, MaxStrobeFrequency] 内
func ValidStrobeFrequency(hz float64) bool {
	return hz > 0 && hz <= MaxStrobeFrequency
}

// Strobe 以固定半周期交替点亮/熄灭 Light。
// 每个实例有自己的取消令牌，Stop 会等待 goroutine 退出后才返回。
type Strobe struct {
	frequency float64
	half      time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
	toggles   atomic.Int64
}

// StartStrobe 启动频闪。频率越界或 light 为 nil 时不启动任何 goroutine，返回 nil。
// nil *Strobe 的所有方法都可以安全调用。
func StartStrobe(ctx context.Context, light Light, hz float64, logger *log.Logger) *Strobe {
	if !ValidStrobeFrequency(hz) || light == nil {
		return nil
	}
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Strobe{
		frequency: hz,
		half:      HalfPeriod(hz),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go s.run(ctx, light, logger)
	return s
}

// HalfPeriod 返回 1/(2*hz)
func HalfPeriod(hz float64) time.Duration {
	return time.Duration(float64(time.Second) / (2 * hz))
}

func (s *Strobe) run(ctx context.Context, light Light, logger *log.Logger) {
	defer close(s.done)
	// 退出时总是熄灭，句柄失效时忽略错误
	defer func() { _ = light.Set(false) }()

	ticker := time.NewTicker(s.half)
	defer ticker.Stop()

	on := true
	for {
		if err := light.Set(on); err != nil {
			logger.Printf("[STROBE] output lost at %.1f Hz: %v", s.frequency, err)
			return
		}
		s.toggles.Add(1)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		on = !on
	}
}

// Stop 取消并等待退出，可重复调用
func (s *Strobe) Stop() {
	if s == nil {
		return
	}
	s.cancel()
	<-s.done
}

// Done 在频闪 goroutine 退出后关闭。nil *Strobe 返回 nil channel。
func (s *Strobe) Done() <-chan struct{} {
	if s == nil {
		return nil
	}
	return s.done
}

func (s *Strobe) Frequency() float64 {
	if s == nil {
		return 0
	}
	return s.frequency
}

func (s *Strobe) HalfPeriod() time.Duration {
	if s == nil {
		return 0
	}
	return s.half
}

// Toggles 返回已执行的状态切换次数
func (s *Strobe) Toggles() int64 {
	if s == nil {
		return 0
	}
	return s.toggles.Load()
}
