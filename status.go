package beatstrobe

import (
	"fmt"
	"sync"
)

// Status 是面向展示层的粗粒度状态
type Status int

const (
	StatusReady Status = iota
	StatusLoading
	StatusProcessing
	StatusRunning
	StatusPlaybackComplete
	StatusStopped
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "Ready"
	case StatusLoading:
		return "Loading"
	case StatusProcessing:
		return "Processing"
	case StatusRunning:
		return "Running"
	case StatusPlaybackComplete:
		return "PlaybackComplete"
	case StatusStopped:
		return "Stopped"
	case StatusError:
		return "Error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Event 是单向发布给展示层的状态快照
type Event struct {
	Status    Status
	Frequency float64 // 当前生效的频闪频率 (Hz)
	Detected  float64 // 最近一个分析块的检测结果 (Hz)
	Message   string
}

func (e Event) String() string {
	s := fmt.Sprintf("Status: %s | Current Frequency: %.1f Hz", e.Status, e.Frequency)
	if e.Detected != e.Frequency {
		s += fmt.Sprintf(" (detected %.1f Hz)", e.Detected)
	}
	if e.Message != "" {
		s += " | " + e.Message
	}
	return s
}

// Subscription 接收发布的事件
type Subscription struct {
	C chan Event
}

// Publisher 把事件扇出给所有订阅者，慢订阅者丢事件而不阻塞发布方
type Publisher struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
	last Event
}

func NewPublisher() *Publisher {
	return &Publisher{
		subs: make(map[*Subscription]struct{}),
		last: Event{Status: StatusReady},
	}
}

// Subscribe 注册订阅者，buffer 为通道缓冲大小
func (p *Publisher) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	s := &Subscription{C: make(chan Event, buffer)}
	p.mu.Lock()
	p.subs[s] = struct{}{}
	p.mu.Unlock()
	return s
}

// Unsubscribe 移除订阅者并关闭其通道
func (p *Publisher) Unsubscribe(s *Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subs[s]; !ok {
		return
	}
	delete(p.subs, s)
	close(s.C)
}

func (p *Publisher) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}

// Publish 非阻塞地发送事件，并记录为最新状态供轮询
func (p *Publisher) Publish(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = e
	for s := range p.subs {
		select {
		case s.C <- e:
		default:
			// 订阅者太慢，丢弃
		}
	}
}

// Last 返回最近发布的事件
func (p *Publisher) Last() Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}
