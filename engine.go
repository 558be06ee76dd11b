package beatstrobe

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// State 是引擎的生命周期状态
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Engine 是同步引擎：按块分析音频、套用迟滞策略、在频率显著变化时重启频闪。
// 运行状态和当前频率只由引擎写入，播放器和频闪只接收停止信号。
type Engine struct {
	cfg       *Config
	detector  *Detector
	player    Player
	light     Light
	publisher *Publisher
	logger    *log.Logger
	recorder  AnalysisRecorder

	state     atomic.Int32
	frequency atomic.Uint64 // math.Float64bits，当前生效频率
	detected  atomic.Uint64 // math.Float64bits，最近一次检测值

	mu      sync.Mutex
	session *session

	load      func(path string) (*SampleBuffer, error)
	newTicker func(d time.Duration) *time.Ticker
}

// session 对应一次运行，Stop 通过 cancel 通知并等待 done
type session struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine 创建引擎。player 为 nil 时不播放声音，只分析和频闪。
func NewEngine(cfg *Config, player Player, light Light) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if player == nil {
		player = &silentPlayer{}
	}
	return &Engine{
		cfg:       cfg,
		detector:  NewDetector(cfg),
		player:    player,
		light:     light,
		publisher: NewPublisher(),
		logger:    log.Default(),
		recorder:  NoOpRecorder{},
		load:      LoadSampleBuffer,
		newTicker: time.NewTicker,
	}
}

// SetLogger 替换日志输出，需在 Start 之前调用
func (e *Engine) SetLogger(l *log.Logger) {
	if l != nil {
		e.logger = l
	}
}

// SetRecorder 设置分析记录器，需在 Start 之前调用
func (e *Engine) SetRecorder(r AnalysisRecorder) {
	if r == nil {
		r = NoOpRecorder{}
	}
	e.recorder = r
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

// Frequency 返回当前生效的频闪频率，未运行时为 0
func (e *Engine) Frequency() float64 {
	return math.Float64frombits(e.frequency.Load())
}

// Detected 返回最近一个分析块的检测值
func (e *Engine) Detected() float64 {
	return math.Float64frombits(e.detected.Load())
}

// Status 返回最近发布的事件，供展示层轮询
func (e *Engine) Status() Event {
	return e.publisher.Last()
}

// Events 订阅状态事件
func (e *Engine) Events(buffer int) *Subscription {
	return e.publisher.Subscribe(buffer)
}

func (e *Engine) Unsubscribe(s *Subscription) {
	e.publisher.Unsubscribe(s)
}

// Load 解码音频文件并发布 Loading / Ready / Error 状态
func (e *Engine) Load(path string) (*SampleBuffer, error) {
	e.publish(StatusLoading, "Loading audio...")
	buf, err := e.load(path)
	if err != nil {
		e.logger.Printf("[LOADER] %v", err)
		e.publish(StatusError, err.Error())
		return nil, err
	}
	e.logger.Printf("[LOADER] Loaded %s: %d ch, %d Hz, %v", path, buf.NumChannels(), buf.SampleRate, buf.Duration())
	e.publish(StatusReady, "Audio file loaded")
	return buf, nil
}

// StartAuto 以自动检测模式启动一次运行，立即返回。
// 单声道 (包括各声道完全相同) 输入返回 ErrUnsupportedAudioKind，引擎直接进入 Stopped 且不启动播放。
func (e *Engine) StartAuto(buf *SampleBuffer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runningLocked() {
		return ErrAlreadyRunning
	}
	if buf.Frames() == 0 {
		return ErrNoAudio
	}
	if !buf.IsStereo() || buf.IsDualMono() {
		err := fmt.Errorf("%w (%d channel)", ErrUnsupportedAudioKind, buf.NumChannels())
		if buf.IsStereo() {
			err = fmt.Errorf("%w (identical channels)", ErrUnsupportedAudioKind)
		}
		e.logger.Printf("[ENGINE] %v", err)
		e.state.Store(int32(StateStopped))
		e.publish(StatusError, err.Error())
		return err
	}

	e.publish(StatusProcessing, "Processing...")
	e.launchLocked(func(ctx context.Context) (Status, error) {
		return e.runAuto(ctx, buf)
	})
	return nil
}

// StartManual 以固定频率启动一次运行，不做检测，单声道输入也可以。
func (e *Engine) StartManual(buf *SampleBuffer, hz float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runningLocked() {
		return ErrAlreadyRunning
	}
	if err := ValidateManualFrequency(e.cfg, hz); err != nil {
		e.publish(StatusError, err.Error())
		return err
	}
	if buf.Frames() == 0 {
		return ErrNoAudio
	}

	e.launchLocked(func(ctx context.Context) (Status, error) {
		return e.runManual(ctx, buf, hz)
	})
	return nil
}

// Stop 结束当前运行并等待所有后台任务退出。未启动或已停止时为空操作。
func (e *Engine) Stop() {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil {
		return
	}
	s.cancel()
	<-s.done
}

// Wait 阻塞直到当前运行结束
func (e *Engine) Wait() {
	<-e.Done()
}

// Done 在当前运行结束后关闭；从未运行时返回已关闭的通道
func (e *Engine) Done() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return e.session.done
}

func (e *Engine) runningLocked() bool {
	if e.session == nil {
		return false
	}
	select {
	case <-e.session.done:
		return false
	default:
		return true
	}
}

func (e *Engine) launchLocked(run func(ctx context.Context) (Status, error)) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{cancel: cancel, done: make(chan struct{})}
	e.session = s

	e.frequency.Store(0)
	e.detected.Store(0)
	e.state.Store(int32(StateRunning))

	go func() {
		defer close(s.done)
		defer cancel()
		status, err := e.guard(ctx, run)
		e.finish(status, err)
	}()
}

// guard 把后台任务中的 panic 转换为错误，保证总能走完整的停止路径
func (e *Engine) guard(ctx context.Context, run func(ctx context.Context) (Status, error)) (status Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			status, err = StatusError, fmt.Errorf("unexpected failure: %v", r)
		}
	}()
	return run(ctx)
}

// finish 是唯一的停止路径: 停止播放、清零频率、进入 Stopped 并发布最终状态。
// 频闪已在 run 返回前停止。
func (e *Engine) finish(status Status, err error) {
	e.state.Store(int32(StateStopped))
	if perr := e.stopPlayer(); perr != nil && err == nil {
		err = perr
	}
	e.frequency.Store(0)
	e.detected.Store(0)

	if err != nil {
		e.logger.Printf("[ENGINE] Run failed: %v", err)
		e.publish(StatusError, err.Error())
		return
	}
	switch status {
	case StatusPlaybackComplete:
		e.logger.Printf("[ENGINE] Playback complete")
		e.publish(StatusPlaybackComplete, "Playback complete")
	default:
		e.logger.Printf("[ENGINE] Stopped")
		e.publish(StatusStopped, "")
	}
}

// stopPlayer 停止播放，播放器自身的 panic 也不能跳过停止路径
func (e *Engine) stopPlayer() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stop playback: %v", r)
		}
	}()
	e.player.Stop()
	return nil
}

// runAuto 是自动模式的分块分析循环
func (e *Engine) runAuto(ctx context.Context, buf *SampleBuffer) (Status, error) {
	if err := e.player.Start(buf); err != nil {
		return StatusError, fmt.Errorf("start playback: %w", err)
	}
	e.publish(StatusRunning, "")

	chunkDuration := e.cfg.Sync.ChunkDuration
	chunks := buf.Chunks(chunkDuration)
	e.logger.Printf("[ENGINE] Auto mode: %d chunks of %v", len(chunks), chunkDuration)

	// 节拍按真实时间推进，保证分析不跑在播放前面
	ticker := e.newTicker(chunkDuration)
	defer ticker.Stop()

	var strobe *Strobe
	defer func() { strobe.Stop() }()

	current := 0.0
	for _, chunk := range chunks {
		if ctx.Err() != nil {
			return StatusStopped, nil
		}

		detected := RoundFrequency(e.detector.Detect(chunk.Channels, buf.SampleRate))
		e.detected.Store(math.Float64bits(detected))

		restarted := false
		if significantChange(detected, current, e.cfg.Sync.Hysteresis) {
			current = detected
			e.frequency.Store(math.Float64bits(current))

			// 先等旧频闪完全退出，再启动新的，避免两个频闪争用同一输出
			strobe.Stop()
			strobe = nil
			if current > 0 && ctx.Err() == nil {
				strobe = StartStrobe(ctx, e.light, current, e.logger)
				restarted = strobe != nil
			}
			e.logger.Printf("[ENGINE] Chunk %d @ %.1fs: frequency -> %.1f Hz", chunk.Index, chunk.Start.Seconds(), current)
		}
		e.publish(StatusRunning, "")

		e.recorder.Record(ChunkReport{
			Index:     chunk.Index,
			Start:     chunk.Start,
			Duration:  chunk.Duration,
			Detected:  detected,
			Active:    current,
			Restarted: restarted,
		})

		select {
		case <-ctx.Done():
			return StatusStopped, nil
		case <-ticker.C:
		}

		if !e.player.IsBusy() {
			// 播放器提前结束，视为正常播完
			return StatusPlaybackComplete, nil
		}
	}
	return StatusPlaybackComplete, nil
}

// runManual 在整个运行期间以固定频率频闪，直到停止或播放结束
func (e *Engine) runManual(ctx context.Context, buf *SampleBuffer, hz float64) (Status, error) {
	e.frequency.Store(math.Float64bits(hz))
	e.detected.Store(math.Float64bits(hz))
	e.publish(StatusRunning, "Playing with manual frequency")

	if err := e.player.Start(buf); err != nil {
		return StatusError, fmt.Errorf("start playback: %w", err)
	}

	strobe := StartStrobe(ctx, e.light, hz, e.logger)
	defer strobe.Stop()
	e.logger.Printf("[ENGINE] Manual mode: %.1f Hz (half period %v)", hz, strobe.HalfPeriod())

	ticker := e.newTicker(e.cfg.Sync.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return StatusStopped, nil
		case <-strobe.Done():
			// 输出句柄失效 (窗口关闭)，按用户停止处理
			return StatusStopped, nil
		case <-ticker.C:
			if !e.player.IsBusy() {
				return StatusPlaybackComplete, nil
			}
		}
	}
}

// significantChange 判断检测值相对当前频率的变化是否超过迟滞阈值，恰好等于阈值不算
func significantChange(detected, current, threshold float64) bool {
	return math.Abs(detected-current) > threshold
}

func (e *Engine) publish(status Status, message string) {
	e.publisher.Publish(Event{
		Status:    status,
		Frequency: e.Frequency(),
		Detected:  e.Detected(),
		Message:   message,
	})
}

// ParseFrequency 解析手动输入的频率，非数字或非有限值返回 ErrInvalidInput
func ParseFrequency(s string) (float64, error) {
	hz, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return 0, fmt.Errorf("%w: %q is not a valid number", ErrInvalidInput, s)
	}
	return hz, nil
}

// ValidateManualFrequency 检查手动频率是否在配置范围内 (闭区间)
func ValidateManualFrequency(cfg *Config, hz float64) error {
	if math.IsNaN(hz) || math.IsInf(hz, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, hz)
	}
	if hz < cfg.Manual.MinFrequency || hz > cfg.Manual.MaxFrequency {
		return fmt.Errorf("%w: %.2f Hz is outside %.1f-%.1f Hz",
			ErrInvalidFrequency, hz, cfg.Manual.MinFrequency, cfg.Manual.MaxFrequency)
	}
	return nil
}
