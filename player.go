package beatstrobe

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gen2brain/malgo"
)

// Player 是播放协调器，引擎只用它来启动/停止播放以及探测是否播完
type Player interface {
	// Start 在后台开始播放，不阻塞
	Start(buf *SampleBuffer) error
	// Stop 停止播放，可重复调用
	Stop()
	// IsBusy 播放中且仍有未输出的采样时返回 true
	IsBusy() bool
	Position() time.Duration
}

// silentPlayer 不输出声音，Start 到 Stop 之间一直处于播放状态。
// 没有播放设备时引擎用它代替，只做分析和频闪。
type silentPlayer struct {
	busy atomic.Bool
}

func (p *silentPlayer) Start(buf *SampleBuffer) error {
	if buf.Frames() == 0 {
		return ErrNoAudio
	}
	p.busy.Store(true)
	return nil
}

func (p *silentPlayer) Stop()                   { p.busy.Store(false) }
func (p *silentPlayer) IsBusy() bool            { return p.busy.Load() }
func (p *silentPlayer) Position() time.Duration { return 0 }

// MalgoPlayer 通过 miniaudio 播放设备输出 SampleBuffer。
// Stop 释放设备后可以再次 Start，每次 Start 从头播放。
type MalgoPlayer struct {
	DeviceName string
	Logger     *log.Logger

	mu      sync.Mutex
	release func()
	started bool

	// 打开输出设备，测试中替换为不需要声卡的实现
	openDevice func(channels, sampleRate int, onFrames func(out []byte, framecount uint32)) (release func(), err error)

	// 以下字段在 Start 之后只读，由音频回调线程读取
	samples    []float32
	channels   int
	sampleRate int
	total      int64

	cursor  atomic.Int64 // 已输出的帧数
	stopped atomic.Bool
}

// NewMalgoPlayer 创建播放器，deviceName 为空时使用默认输出设备
func NewMalgoPlayer(deviceName string) *MalgoPlayer {
	return &MalgoPlayer{DeviceName: deviceName}
}

// Start 初始化设备并开始播放，播放中再次调用返回错误
func (p *MalgoPlayer) Start(buf *SampleBuffer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("player already started")
	}
	if buf.Frames() == 0 || buf.SampleRate <= 0 {
		return ErrNoAudio
	}

	p.samples = buf.Interleaved()
	p.channels = buf.NumChannels()
	p.sampleRate = buf.SampleRate
	p.total = int64(buf.Frames())
	p.cursor.Store(0)
	p.stopped.Store(false)

	open := p.openDevice
	if open == nil {
		open = p.openMalgo
	}
	release, err := open(p.channels, p.sampleRate, p.fill)
	if err != nil {
		p.stopped.Store(true)
		return err
	}

	p.release = release
	p.started = true
	p.logger().Printf("[PLAYER] Playing %v (%d ch, %d Hz)", buf.Duration(), p.channels, p.sampleRate)
	return nil
}

// openMalgo 打开 miniaudio 播放设备，返回的 release 释放设备和上下文
func (p *MalgoPlayer) openMalgo(channels, sampleRate int, onFrames func(out []byte, framecount uint32)) (func(), error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init malgo context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if p.DeviceName != "" {
		infos, err := ctx.Devices(malgo.Playback)
		if err == nil {
			for _, info := range infos {
				if strings.Contains(strings.ToLower(info.Name()), strings.ToLower(p.DeviceName)) {
					deviceConfig.Playback.DeviceID = info.ID.Pointer()
					p.logger().Printf("[PLAYER] Selected audio device: %s", info.Name())
					break
				}
			}
		}
	}

	onSendFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		onFrames(pOutputSample, framecount)
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSendFrames,
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to init device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to start device: %w", err)
	}

	return func() {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
	}, nil
}

// fill 在音频线程中调用，把下一段采样写入输出缓冲，播完后补零
func (p *MalgoPlayer) fill(out []byte, framecount uint32) {
	if len(out) == 0 || p.channels == 0 {
		return
	}
	dst := unsafe.Slice((*float32)(unsafe.Pointer(&out[0])), int(framecount)*p.channels)

	pos := p.cursor.Load()
	n := int64(framecount)
	if p.stopped.Load() {
		n = 0
	} else if pos+n > p.total {
		n = p.total - pos
	}

	copy(dst, p.samples[pos*int64(p.channels):(pos+n)*int64(p.channels)])
	clear(dst[n*int64(p.channels):])
	p.cursor.Store(pos + n)
}

// Stop 停止播放并释放设备，可重复调用。之后可以重新 Start。
func (p *MalgoPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopped.Store(true)
	if p.release != nil {
		p.release()
		p.release = nil
	}
	p.started = false
}

func (p *MalgoPlayer) IsBusy() bool {
	p.mu.Lock()
	started, total := p.started, p.total
	p.mu.Unlock()
	return started && !p.stopped.Load() && p.cursor.Load() < total
}

func (p *MalgoPlayer) Position() time.Duration {
	p.mu.Lock()
	sampleRate := p.sampleRate
	p.mu.Unlock()
	if sampleRate == 0 {
		return 0
	}
	return framesToDuration(int(p.cursor.Load()), sampleRate)
}

func (p *MalgoPlayer) logger() *log.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return log.Default()
}
