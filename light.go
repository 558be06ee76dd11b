package beatstrobe

import (
	"io"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Light 是频闪驱动的二值视觉输出
type Light interface {
	Set(on bool) error
}

const (
	ansiHome  = "\033[H"
	ansiWhite = "\033[47m"
	ansiBlack = "\033[40m"
	ansiReset = "\033[0m"
	ansiClear = "\033[2J"
)

// TerminalLight 用 ANSI 背景色填满整个终端作为频闪屏幕
type TerminalLight struct {
	mu     sync.Mutex
	w      io.Writer
	fd     int
	closed bool

	// 按终端尺寸缓存的填充串
	fill       string
	fillWidth  int
	fillHeight int
}

// NewTerminalLight 创建终端输出，fd 用于查询终端尺寸
func NewTerminalLight(w io.Writer, fd int) *TerminalLight {
	return &TerminalLight{w: w, fd: fd}
}

func (l *TerminalLight) Set(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLightClosed
	}

	color := ansiBlack
	if on {
		color = ansiWhite
	}
	_, err := io.WriteString(l.w, ansiHome+color+l.screenFill()+ansiReset)
	return err
}

func (l *TerminalLight) screenFill() string {
	width, height := 80, 24
	if w, h, err := term.GetSize(l.fd); err == nil && w > 0 && h > 0 {
		width, height = w, h
	}
	if width != l.fillWidth || height != l.fillHeight {
		l.fill = strings.Repeat(" ", width*height)
		l.fillWidth = width
		l.fillHeight = height
	}
	return l.fill
}

// Close 恢复终端，之后的 Set 返回 ErrLightClosed
func (l *TerminalLight) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	_, err := io.WriteString(l.w, ansiReset+ansiClear+ansiHome)
	return err
}
