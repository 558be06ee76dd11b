package beatstrobe

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// ReadMP3 解码整个 MP3 流。go-mp3 总是输出 16-bit 交错立体声。
func ReadMP3(r io.Reader) (*SampleBuffer, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3 decoder: %w", err)
	}

	data, err := io.ReadAll(d)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}

	const frameSize = 4 // 2 声道 * 2 字节
	numFrames := len(data) / frameSize
	left := make([]float64, numFrames)
	right := make([]float64, numFrames)
	for i := 0; i < numFrames; i++ {
		offset := i * frameSize
		left[i] = float64(int16(binary.LittleEndian.Uint16(data[offset:offset+2]))) / 32768.0
		right[i] = float64(int16(binary.LittleEndian.Uint16(data[offset+2:offset+4]))) / 32768.0
	}

	return &SampleBuffer{
		SampleRate: d.SampleRate(),
		Channels:   [][]float64{left, right},
	}, nil
}
