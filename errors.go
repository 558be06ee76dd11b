package beatstrobe

import "errors"

var (
	// ErrDecode 文件无法读取或格式不支持
	ErrDecode = errors.New("decode error")
	// ErrUnsupportedAudioKind 自动模式下输入为单声道
	ErrUnsupportedAudioKind = errors.New("unsupported audio kind: binaural detection requires stereo")
	// ErrInvalidFrequency 手动模式频率越界
	ErrInvalidFrequency = errors.New("invalid frequency")
	// ErrInvalidInput 手动模式输入不是有效数字
	ErrInvalidInput = errors.New("invalid input")

	ErrAlreadyRunning = errors.New("engine already running")
	ErrNoAudio        = errors.New("no audio loaded")
)

// ErrLightClosed 输出句柄已失效 (例如窗口/终端已关闭)
var ErrLightClosed = errors.New("light output closed")
