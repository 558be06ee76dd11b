package beatstrobe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadSampleBuffer 按扩展名解码音频文件，所有失败都包装为 ErrDecode。
// go-mp3 总是输出两个声道，单声道源在这里还原为单声道。
func LoadSampleBuffer(path string) (*SampleBuffer, error) {
	buf, err := loadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, filepath.Base(path), err)
	}
	if buf.Frames() == 0 {
		return nil, fmt.Errorf("%w: %s: no samples", ErrDecode, filepath.Base(path))
	}
	// 声道完全相同的文件按单声道处理
	if buf.IsDualMono() {
		buf.Channels = buf.Channels[:1]
	}
	return buf, nil
}

func loadFile(path string) (*SampleBuffer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		r, err := NewWavReader(path)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return r.ReadBuffer()
	case ".mp3":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ReadMP3(f)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}
