package beatstrobe

import (
	"math"
	"math/cmplx"
	"strings"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// NoSignal 表示当前块没有可用的拍频
const NoSignal = 0.0

var windowFuncs = map[string]func(int) []float64{
	"none":     nil,
	"hann":     window.Hann,
	"hamming":  window.Hamming,
	"blackman": window.Blackman,
}

// Detector 从立体声块中提取双耳拍频。
// 左右声道相减得到差信号，做 FFT 后在 (MinFrequency, MaxFrequency) 开区间内找幅度最大的频点。
type Detector struct {
	minFreq      float64
	maxFreq      float64
	window       func(int) []float64
	minPeakRatio float64
}

// NewDetector 创建检测器
func NewDetector(cfg *Config) *Detector {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Detector{
		minFreq:      cfg.Detector.MinFrequency,
		maxFreq:      cfg.Detector.MaxFrequency,
		window:       windowFuncs[strings.ToLower(cfg.Detector.Window)],
		minPeakRatio: cfg.Detector.MinPeakRatio,
	}
}

// Detect 返回块中的主拍频 (Hz)，无信号时返回 NoSignal。
// 单声道、空块、非有限采样以及任何内部异常都按无信号处理，从不 panic。
func (d *Detector) Detect(channels [][]float64, sampleRate int) (freq float64) {
	defer func() {
		if r := recover(); r != nil {
			freq = NoSignal
		}
	}()

	if len(channels) < 2 || sampleRate <= 0 {
		return NoSignal
	}
	left, right := channels[0], channels[1]
	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	if n == 0 {
		return NoSignal
	}

	diff := make([]float64, n)
	for i := 0; i < n; i++ {
		v := left[i] - right[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NoSignal
		}
		diff[i] = v
	}
	if d.window != nil {
		window.Apply(diff, d.window)
	}

	return d.findPeak(fft.FFTReal(diff), n, sampleRate)
}

// findPeak 从左到右扫描正频率 bin，严格大于才更新，相同幅度保留低频 bin
func (d *Detector) findPeak(spectrum []complex128, n, sampleRate int) float64 {
	binRes := Resolution(n, sampleRate)

	globalMax := 0.0
	bandMax := -1.0
	bandIndex := -1

	// 与 numpy fftfreq 一致: 1..(n-1)/2 为正频率
	for k := 1; k <= (n-1)/2; k++ {
		mag := cmplx.Abs(spectrum[k])
		if math.IsNaN(mag) {
			return NoSignal
		}
		if mag > globalMax {
			globalMax = mag
		}
		f := float64(k) * binRes
		if f <= d.minFreq || f >= d.maxFreq {
			continue
		}
		if mag > bandMax {
			bandMax = mag
			bandIndex = k
		}
	}

	if bandIndex == -1 || globalMax == 0 {
		return NoSignal
	}
	// 带外强信号的旁瓣泄漏会在带内留下小峰，低于门限视为无信号
	if bandMax < globalMax*d.minPeakRatio {
		return NoSignal
	}
	// 带内最大值贴着频带边缘且带外相邻 bin 更大，说明只是带外峰的斜坡
	last := (n - 1) / 2
	if bandIndex > 1 && cmplx.Abs(spectrum[bandIndex-1]) > bandMax {
		return NoSignal
	}
	if bandIndex < last && cmplx.Abs(spectrum[bandIndex+1]) > bandMax {
		return NoSignal
	}
	return float64(bandIndex) * binRes
}

// Resolution 返回 n 点 FFT 的频率分辨率
func Resolution(n, sampleRate int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(sampleRate) / float64(n)
}

// RoundFrequency 保留一位小数
func RoundFrequency(f float64) float64 {
	return math.Round(f*10) / 10
}
