package beatstrobe

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// WavReader WAV 文件读取器 (支持 16-bit PCM 与 32-bit float，任意声道数)
type WavReader struct {
	file          *os.File
	SampleRate    int
	Channels      int
	BitsPerSample int
	Format        int
	DataSize      int
	dataStart     int64
}

func NewWavReader(filename string) (*WavReader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	// 读取 RIFF 头
	riffHeader := make([]byte, 12)
	if _, err := io.ReadFull(f, riffHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("invalid wav file: %w", err)
	}

	if string(riffHeader[0:4]) != "RIFF" || string(riffHeader[8:12]) != "WAVE" {
		f.Close()
		return nil, fmt.Errorf("invalid wav file")
	}

	var format, channels, sampleRate, bitsPerSample, dataSize int
	var dataStart int64
	foundFmt := false
	foundData := false

	for {
		chunkHeader := make([]byte, 8)
		if _, err := io.ReadFull(f, chunkHeader); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			f.Close()
			return nil, err
		}

		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		// 奇数长度的 chunk 有 1 字节填充
		padding := int64(chunkSize % 2)

		if chunkID == "fmt " {
			if chunkSize < 16 {
				f.Close()
				return nil, fmt.Errorf("fmt chunk too small")
			}
			fmtData := make([]byte, chunkSize)
			if _, err := io.ReadFull(f, fmtData); err != nil {
				f.Close()
				return nil, err
			}
			if padding > 0 {
				f.Seek(padding, io.SeekCurrent)
			}

			format = int(binary.LittleEndian.Uint16(fmtData[0:2]))
			channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(fmtData[14:16]))
			foundFmt = true
		} else if chunkID == "data" {
			dataSize = int(chunkSize)
			pos, _ := f.Seek(0, io.SeekCurrent)
			dataStart = pos
			foundData = true

			if foundFmt {
				break
			}
			if _, err := f.Seek(int64(chunkSize)+padding, io.SeekCurrent); err != nil {
				f.Close()
				return nil, err
			}
		} else {
			// 跳过未知 chunk
			if _, err := f.Seek(int64(chunkSize)+padding, io.SeekCurrent); err != nil {
				f.Close()
				return nil, err
			}
		}
	}

	if !foundFmt || !foundData {
		f.Close()
		return nil, fmt.Errorf("invalid wav file: missing fmt or data chunk")
	}

	switch {
	case format == wavFormatPCM && bitsPerSample == 16:
	case format == wavFormatFloat && bitsPerSample == 32:
	default:
		f.Close()
		return nil, fmt.Errorf("unsupported wav encoding: format %d, %d-bit", format, bitsPerSample)
	}
	if channels < 1 || sampleRate <= 0 {
		f.Close()
		return nil, fmt.Errorf("invalid wav header: %d channels, %d Hz", channels, sampleRate)
	}

	// 确保文件指针指向 data 开始
	if _, err := f.Seek(dataStart, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	return &WavReader{
		file:          f,
		SampleRate:    sampleRate,
		Channels:      channels,
		BitsPerSample: bitsPerSample,
		Format:        format,
		DataSize:      dataSize,
		dataStart:     dataStart,
	}, nil
}

// ReadBuffer 读取整个 data chunk，按声道拆分并归一化到 -1.0 ~ 1.0
func (r *WavReader) ReadBuffer() (*SampleBuffer, error) {
	if _, err := r.file.Seek(r.dataStart, io.SeekStart); err != nil {
		return nil, err
	}

	data := make([]byte, r.DataSize)
	n, err := io.ReadFull(r.file, data)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	data = data[:n]

	bytesPerSample := r.BitsPerSample / 8
	frameSize := bytesPerSample * r.Channels
	numFrames := len(data) / frameSize

	channels := make([][]float64, r.Channels)
	for c := range channels {
		channels[c] = make([]float64, numFrames)
	}

	for i := 0; i < numFrames; i++ {
		for c := 0; c < r.Channels; c++ {
			offset := i*frameSize + c*bytesPerSample
			if r.Format == wavFormatFloat {
				bits := binary.LittleEndian.Uint32(data[offset : offset+4])
				channels[c][i] = float64(math.Float32frombits(bits))
			} else {
				val := int16(binary.LittleEndian.Uint16(data[offset : offset+2]))
				channels[c][i] = float64(val) / 32768.0
			}
		}
	}

	return &SampleBuffer{
		SampleRate: r.SampleRate,
		Channels:   channels,
	}, nil
}

func (r *WavReader) Close() error {
	return r.file.Close()
}
