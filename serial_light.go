package beatstrobe

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
)

const (
	serialOn  = '1'
	serialOff = '0'
)

// SerialPort 定义串口操作接口，方便测试 Mock
type SerialPort interface {
	io.ReadWriteCloser
}

// SerialLight 通过串口驱动外部 LED/继电器控制板。
// 协议: 每次状态变化写 1 字节，'1' 点亮，'0' 熄灭。
type SerialLight struct {
	Port     string
	BaudRate int

	mu   sync.Mutex
	conn SerialPort
}

// NewSerialLight 创建串口输出 (尚未打开)
func NewSerialLight(port string, baudRate int) *SerialLight {
	return &SerialLight{
		Port:     port,
		BaudRate: baudRate,
	}
}

// Open 打开串口连接
func (l *SerialLight) Open() error {
	config := &serial.Config{
		Name:        l.Port,
		Baud:        l.BaudRate,
		ReadTimeout: time.Millisecond * 500,
	}
	s, err := serial.OpenPort(config)
	if err != nil {
		return fmt.Errorf("open serial light %s: %w", l.Port, err)
	}

	l.mu.Lock()
	l.conn = s
	l.mu.Unlock()
	return nil
}

func (l *SerialLight) Set(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return ErrLightClosed
	}
	b := byte(serialOff)
	if on {
		b = serialOn
	}
	_, err := l.conn.Write([]byte{b})
	return err
}

// Close 关闭串口，之后的 Set 返回 ErrLightClosed
func (l *SerialLight) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	return err
}
