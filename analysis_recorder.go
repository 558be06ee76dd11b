package beatstrobe

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"
)

// ChunkReport 是单个分析块的处理结果
type ChunkReport struct {
	Index     int
	Start     time.Duration
	Duration  time.Duration
	Detected  float64 // 本块检测值 (已四舍五入到 0.1 Hz)
	Active    float64 // 处理后生效的频率
	Restarted bool    // 本块是否启动了新的频闪
}

// AnalysisRecorder 定义分析记录接口，引擎只依赖这个接口
type AnalysisRecorder interface {
	Record(r ChunkReport)
	Close()
}

// CsvAnalysisRecorder 把每个分析块写成一行 CSV
type CsvAnalysisRecorder struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

// NewCsvAnalysisRecorder 创建 CSV 记录器
func NewCsvAnalysisRecorder(filename string) (*CsvAnalysisRecorder, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	w := bufio.NewWriter(f)
	if _, err := w.WriteString("Index,StartSec,DurationSec,Detected,Active,Restarted\n"); err != nil {
		f.Close()
		return nil, err
	}

	return &CsvAnalysisRecorder{
		file:   f,
		writer: w,
	}, nil
}

func (d *CsvAnalysisRecorder) Record(r ChunkReport) {
	restarted := 0
	if r.Restarted {
		restarted = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.writer, "%d,%.3f,%.3f,%.1f,%.1f,%d\n",
		r.Index, r.Start.Seconds(), r.Duration.Seconds(), r.Detected, r.Active, restarted)
}

// Close 刷新缓冲区并关闭文件
func (d *CsvAnalysisRecorder) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writer != nil {
		d.writer.Flush()
	}
	if d.file != nil {
		d.file.Close()
	}
}

// NoOpRecorder 不记录任何内容
type NoOpRecorder struct{}

func (NoOpRecorder) Record(ChunkReport) {}
func (NoOpRecorder) Close()             {}
