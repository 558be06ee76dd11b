package beatstrobe

import (
	"math"
	"math/rand"
	"time"
)

// SampleBuffer 一次会话的完整解码音频，按声道存放，加载后只读
type SampleBuffer struct {
	SampleRate int
	Channels   [][]float64 // Channels[c][i]
}

// Chunk 是 SampleBuffer 上一段连续、不重叠的切片
type Chunk struct {
	Index      int
	StartFrame int
	Frames     int
	Start      time.Duration
	Duration   time.Duration
	Channels   [][]float64
}

func (b *SampleBuffer) NumChannels() int {
	if b == nil {
		return 0
	}
	return len(b.Channels)
}

func (b *SampleBuffer) IsStereo() bool {
	return b.NumChannels() >= 2
}

// IsDualMono 至少两个声道且逐点完全相同，例如单声道 MP3 被解码成立体声
func (b *SampleBuffer) IsDualMono() bool {
	n := b.Frames()
	if b.NumChannels() < 2 || n == 0 {
		return false
	}
	first := b.Channels[0]
	for _, ch := range b.Channels[1:] {
		for i := 0; i < n; i++ {
			if ch[i] != first[i] {
				return false
			}
		}
	}
	return true
}

// Frames 返回每声道的采样点数 (以最短声道为准)
func (b *SampleBuffer) Frames() int {
	if b.NumChannels() == 0 {
		return 0
	}
	n := len(b.Channels[0])
	for _, ch := range b.Channels[1:] {
		if len(ch) < n {
			n = len(ch)
		}
	}
	return n
}

func (b *SampleBuffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return framesToDuration(b.Frames(), b.SampleRate)
}

// ChunkFrames 返回时长 d 对应的每块采样点数，至少为 1
func (b *SampleBuffer) ChunkFrames(d time.Duration) int {
	n := int(float64(b.SampleRate) * d.Seconds())
	if n < 1 {
		n = 1
	}
	return n
}

// Chunks 按固定时长把缓冲区切成首尾相接的分析块，最后一块可能更短
func (b *SampleBuffer) Chunks(d time.Duration) []Chunk {
	total := b.Frames()
	if total == 0 || b.SampleRate <= 0 {
		return nil
	}
	size := b.ChunkFrames(d)

	chunks := make([]Chunk, 0, (total+size-1)/size)
	for start := 0; start < total; start += size {
		end := start + size
		if end > total {
			end = total
		}
		channels := make([][]float64, len(b.Channels))
		for c, ch := range b.Channels {
			channels[c] = ch[start:end]
		}
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			StartFrame: start,
			Frames:     end - start,
			Start:      framesToDuration(start, b.SampleRate),
			Duration:   framesToDuration(end-start, b.SampleRate),
			Channels:   channels,
		})
	}
	return chunks
}

// Interleaved 转成交错排列的 float32，供播放设备使用
func (b *SampleBuffer) Interleaved() []float32 {
	frames := b.Frames()
	nch := b.NumChannels()
	out := make([]float32, frames*nch)
	for i := 0; i < frames; i++ {
		for c := 0; c < nch; c++ {
			out[i*nch+c] = float32(b.Channels[c][i])
		}
	}
	return out
}

func framesToDuration(frames, sampleRate int) time.Duration {
	return time.Duration(float64(frames) / float64(sampleRate) * float64(time.Second))
}

// GenerateBinauralTone 生成测试用立体声信号：
// 两个声道共享 carrier Hz 载波，beat Hz 调制以相反符号叠加在左右声道上，
// 因此 L-R 恰好是 beat Hz 的正弦。noise 为每个声道独立高斯噪声的标准差。
func GenerateBinauralTone(sampleRate int, carrier, beat float64, duration time.Duration, noise float64, seed int64) *SampleBuffer {
	frames := int(float64(sampleRate) * duration.Seconds())
	left := make([]float64, frames)
	right := make([]float64, frames)
	rng := rand.New(rand.NewSource(seed))

	for i := 0; i < frames; i++ {
		t := float64(i) / float64(sampleRate)
		base := 0.5 * math.Sin(2*math.Pi*carrier*t)
		mod := 0.1 * math.Sin(2*math.Pi*beat*t)
		left[i] = base + mod
		right[i] = base - mod
		if noise > 0 {
			left[i] += rng.NormFloat64() * noise
			right[i] += rng.NormFloat64() * noise
		}
	}

	return &SampleBuffer{
		SampleRate: sampleRate,
		Channels:   [][]float64{left, right},
	}
}
