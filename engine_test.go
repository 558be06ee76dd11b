package beatstrobe

import (
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakePlayer 模拟播放设备
type fakePlayer struct {
	mu           sync.Mutex
	startErr     error
	panicOnStart bool
	panicOnStop  bool
	finishAfter  int // IsBusy 第 finishAfter 次调用起返回 false，0 表示不会自行结束
	starts       int
	stops        int
	busyCalls    int
	busy         bool
}

func (p *fakePlayer) Start(buf *SampleBuffer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panicOnStart {
		panic("device exploded")
	}
	p.starts++
	if p.startErr != nil {
		return p.startErr
	}
	p.busy = true
	return nil
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	if p.panicOnStop {
		panic("device vanished")
	}
	p.busy = false
}

func (p *fakePlayer) IsBusy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busyCalls++
	if p.finishAfter > 0 && p.busyCalls >= p.finishAfter {
		p.busy = false
	}
	return p.busy
}

func (p *fakePlayer) Position() time.Duration { return 0 }

func (p *fakePlayer) counts() (starts, stops int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts, p.stops
}

type memRecorder struct {
	mu      sync.Mutex
	reports []ChunkReport
}

func (r *memRecorder) Record(c ChunkReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, c)
}

func (r *memRecorder) Close() {}

func (r *memRecorder) snapshot() []ChunkReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ChunkReport(nil), r.reports...)
}

// newTestEngine 返回节拍为 1ms 的引擎，分析不再按真实时间等待
func newTestEngine(player Player, light Light) (*Engine, *memRecorder) {
	e := NewEngine(DefaultConfig(), player, light)
	e.SetLogger(log.New(io.Discard, "", 0))
	rec := &memRecorder{}
	e.SetRecorder(rec)
	e.newTicker = func(time.Duration) *time.Ticker { return time.NewTicker(time.Millisecond) }
	return e, rec
}

func waitDone(t *testing.T, e *Engine) {
	t.Helper()
	select {
	case <-e.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not finish")
	}
}

// segmentedTone 把多段 2s 的双耳节拍拼接起来，beat 为 0 的段是静音
func segmentedTone(beats ...float64) *SampleBuffer {
	out := &SampleBuffer{SampleRate: testSampleRate, Channels: make([][]float64, 2)}
	for _, beat := range beats {
		seg := GenerateBinauralTone(testSampleRate, 200, beat, testChunk, 0, 1)
		if beat == 0 {
			seg = &SampleBuffer{SampleRate: testSampleRate, Channels: [][]float64{
				make([]float64, seg.Frames()), make([]float64, seg.Frames()),
			}}
		}
		out.Channels[0] = append(out.Channels[0], seg.Channels[0]...)
		out.Channels[1] = append(out.Channels[1], seg.Channels[1]...)
	}
	return out
}

func TestEngine_StopBeforeStartIsNoOp(t *testing.T) {
	e, _ := newTestEngine(&fakePlayer{}, &recordingLight{})
	e.Stop()
	e.Wait()
	if e.State() != StateIdle {
		t.Errorf("state = %v, want Idle", e.State())
	}
}

func TestEngine_AutoEndToEnd(t *testing.T) {
	player := &fakePlayer{}
	light := &recordingLight{}
	e, rec := newTestEngine(player, light)

	buf := GenerateBinauralTone(testSampleRate, 200, 6, 10*time.Second, 0, 1)
	if err := e.StartAuto(buf); err != nil {
		t.Fatalf("StartAuto: %v", err)
	}
	waitDone(t, e)

	reports := rec.snapshot()
	if len(reports) != 5 {
		t.Fatalf("got %d chunk reports, want 5", len(reports))
	}
	restarts := 0
	for _, r := range reports {
		if r.Detected != 6.0 || r.Active != 6.0 {
			t.Errorf("chunk %d: detected %v, active %v", r.Index, r.Detected, r.Active)
		}
		if r.Restarted {
			restarts++
		}
	}
	if restarts != 1 {
		t.Errorf("strobe restarted %d times, want 1", restarts)
	}

	if e.State() != StateStopped {
		t.Errorf("state = %v, want Stopped", e.State())
	}
	if got := e.Status().Status; got != StatusPlaybackComplete {
		t.Errorf("final status = %v, want PlaybackComplete", got)
	}
	if e.Frequency() != 0 {
		t.Errorf("frequency after run = %v, want 0", e.Frequency())
	}
	if starts, stops := player.counts(); starts != 1 || stops < 1 {
		t.Errorf("player starts=%d stops=%d", starts, stops)
	}
	if states := light.snapshot(); len(states) > 0 && states[len(states)-1] {
		t.Error("light left ON after the run")
	}
}

func TestEngine_Hysteresis(t *testing.T) {
	e, rec := newTestEngine(&fakePlayer{}, &recordingLight{})

	buf := segmentedTone(6, 6.5, 7, 7, 10, 0)
	if err := e.StartAuto(buf); err != nil {
		t.Fatalf("StartAuto: %v", err)
	}
	waitDone(t, e)

	reports := rec.snapshot()
	wantDetected := []float64{6, 6.5, 7, 7, 10, 0}
	wantActive := []float64{6, 6, 7, 7, 10, 0}
	wantRestart := []bool{true, false, true, false, true, false}
	if len(reports) != len(wantActive) {
		t.Fatalf("got %d reports, want %d", len(reports), len(wantActive))
	}
	for i, r := range reports {
		if r.Detected != wantDetected[i] || r.Active != wantActive[i] || r.Restarted != wantRestart[i] {
			t.Errorf("chunk %d: got detected=%v active=%v restarted=%v, want %v/%v/%v",
				i, r.Detected, r.Active, r.Restarted, wantDetected[i], wantActive[i], wantRestart[i])
		}
	}
}

func TestSignificantChange(t *testing.T) {
	tests := []struct {
		detected, current float64
		want              bool
	}{
		{6, 0, true},
		{6.5, 6, false}, // 恰好等于阈值
		{6.6, 6, true},
		{5.6, 6, false},
		{5.4, 6, true},
		{0, 10, true},
		{0, 0, false},
	}
	for _, tt := range tests {
		if got := significantChange(tt.detected, tt.current, 0.5); got != tt.want {
			t.Errorf("significantChange(%v, %v) = %v, want %v", tt.detected, tt.current, got, tt.want)
		}
	}
}

func TestEngine_EventOrder(t *testing.T) {
	e, _ := newTestEngine(&fakePlayer{}, &recordingLight{})
	sub := e.Events(64)
	defer e.Unsubscribe(sub)

	buf := GenerateBinauralTone(testSampleRate, 200, 6, 4*time.Second, 0, 1)
	if err := e.StartAuto(buf); err != nil {
		t.Fatal(err)
	}
	waitDone(t, e)

	var got []Status
	for len(sub.C) > 0 {
		got = append(got, (<-sub.C).Status)
	}
	if len(got) < 3 {
		t.Fatalf("too few events: %v", got)
	}
	if got[0] != StatusProcessing || got[1] != StatusRunning || got[len(got)-1] != StatusPlaybackComplete {
		t.Errorf("unexpected event order: %v", got)
	}
}

func TestEngine_AutoRejectsMono(t *testing.T) {
	player := &fakePlayer{}
	e, _ := newTestEngine(player, &recordingLight{})

	mono := &SampleBuffer{SampleRate: testSampleRate, Channels: [][]float64{make([]float64, 4096)}}
	err := e.StartAuto(mono)
	if !errors.Is(err, ErrUnsupportedAudioKind) {
		t.Fatalf("got %v, want ErrUnsupportedAudioKind", err)
	}
	if starts, _ := player.counts(); starts != 0 {
		t.Error("playback must not start for mono input")
	}
	if e.State() != StateStopped || e.Status().Status != StatusError {
		t.Errorf("state=%v status=%v", e.State(), e.Status().Status)
	}
}

func TestEngine_AutoRejectsIdenticalChannels(t *testing.T) {
	player := &fakePlayer{}
	e, _ := newTestEngine(player, &recordingLight{})

	tone := GenerateBinauralTone(testSampleRate, 200, 6, 4*time.Second, 0, 1)
	buf := &SampleBuffer{SampleRate: testSampleRate, Channels: [][]float64{tone.Channels[0], tone.Channels[0]}}
	if err := e.StartAuto(buf); !errors.Is(err, ErrUnsupportedAudioKind) {
		t.Fatalf("got %v, want ErrUnsupportedAudioKind", err)
	}
	if starts, _ := player.counts(); starts != 0 {
		t.Error("playback must not start for identical channels")
	}
	if e.State() != StateStopped || e.Status().Status != StatusError {
		t.Errorf("state=%v status=%v", e.State(), e.Status().Status)
	}
}

func TestEngine_NoAudio(t *testing.T) {
	e, _ := newTestEngine(&fakePlayer{}, &recordingLight{})
	if err := e.StartAuto(&SampleBuffer{SampleRate: testSampleRate}); !errors.Is(err, ErrNoAudio) {
		t.Errorf("StartAuto: got %v, want ErrNoAudio", err)
	}
	if err := e.StartManual(nil, 10); !errors.Is(err, ErrNoAudio) {
		t.Errorf("StartManual: got %v, want ErrNoAudio", err)
	}
}

func TestEngine_ManualRejectsOutOfRange(t *testing.T) {
	for _, hz := range []float64{0, 0.4, 40.01, 41, -3} {
		player := &fakePlayer{}
		e, _ := newTestEngine(player, &recordingLight{})
		buf := GenerateBinauralTone(testSampleRate, 200, 6, time.Second, 0, 1)

		if err := e.StartManual(buf, hz); !errors.Is(err, ErrInvalidFrequency) {
			t.Errorf("%v Hz: got %v, want ErrInvalidFrequency", hz, err)
		}
		if starts, _ := player.counts(); starts != 0 {
			t.Errorf("%v Hz: playback started", hz)
		}
		if e.State() != StateIdle || e.Status().Status != StatusError {
			t.Errorf("%v Hz: state=%v status=%v", hz, e.State(), e.Status().Status)
		}
	}
}

func TestValidateManualFrequency_Bounds(t *testing.T) {
	cfg := DefaultConfig()
	for _, hz := range []float64{0.5, 10, 40} {
		if err := ValidateManualFrequency(cfg, hz); err != nil {
			t.Errorf("%v Hz rejected: %v", hz, err)
		}
	}
}

func TestParseFrequency(t *testing.T) {
	if hz, err := ParseFrequency(" 12.5 "); err != nil || hz != 12.5 {
		t.Errorf("ParseFrequency(12.5) = %v, %v", hz, err)
	}
	for _, s := range []string{"abc", "", "NaN", "Inf", "10Hz"} {
		if _, err := ParseFrequency(s); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ParseFrequency(%q): got %v, want ErrInvalidInput", s, err)
		}
	}
}

func TestEngine_ManualRunAndStop(t *testing.T) {
	player := &fakePlayer{}
	light := &recordingLight{}
	e, _ := newTestEngine(player, light)
	e.newTicker = time.NewTicker

	// 手动模式不做检测，单声道也可以
	mono := &SampleBuffer{SampleRate: testSampleRate, Channels: [][]float64{make([]float64, 10*testSampleRate)}}
	if err := e.StartManual(mono, 10); err != nil {
		t.Fatalf("StartManual: %v", err)
	}
	time.Sleep(120 * time.Millisecond)

	if e.State() != StateRunning || e.Frequency() != 10 {
		t.Errorf("state=%v frequency=%v", e.State(), e.Frequency())
	}
	if light.callCount() == 0 {
		t.Error("strobe did not toggle the light")
	}

	e.Stop()
	e.Stop()
	if e.State() != StateStopped || e.Status().Status != StatusStopped {
		t.Errorf("state=%v status=%v", e.State(), e.Status().Status)
	}
	if e.Frequency() != 0 {
		t.Errorf("frequency after stop = %v", e.Frequency())
	}
	if states := light.snapshot(); states[len(states)-1] {
		t.Error("light left ON after stop")
	}
	n := light.callCount()
	time.Sleep(150 * time.Millisecond)
	if light.callCount() != n {
		t.Error("light still toggling after Stop returned")
	}
}

func TestEngine_ManualEndsWithPlayback(t *testing.T) {
	player := &fakePlayer{finishAfter: 3}
	e, _ := newTestEngine(player, &recordingLight{})

	buf := GenerateBinauralTone(testSampleRate, 200, 6, time.Second, 0, 1)
	if err := e.StartManual(buf, 10); err != nil {
		t.Fatal(err)
	}
	waitDone(t, e)
	if got := e.Status().Status; got != StatusPlaybackComplete {
		t.Errorf("status = %v, want PlaybackComplete", got)
	}
}

func TestEngine_ManualEndsWhenLightLost(t *testing.T) {
	e, _ := newTestEngine(&fakePlayer{}, &recordingLight{failAfter: 2})
	e.newTicker = func(time.Duration) *time.Ticker { return time.NewTicker(time.Hour) }

	buf := GenerateBinauralTone(testSampleRate, 200, 6, time.Second, 0, 1)
	if err := e.StartManual(buf, 40); err != nil {
		t.Fatal(err)
	}
	waitDone(t, e)
	if got := e.Status().Status; got != StatusStopped {
		t.Errorf("status = %v, want Stopped", got)
	}
}

func TestEngine_PlayerFinishesEarly(t *testing.T) {
	e, rec := newTestEngine(&fakePlayer{finishAfter: 2}, &recordingLight{})

	buf := GenerateBinauralTone(testSampleRate, 200, 6, 10*time.Second, 0, 1)
	if err := e.StartAuto(buf); err != nil {
		t.Fatal(err)
	}
	waitDone(t, e)

	if n := len(rec.snapshot()); n != 2 {
		t.Errorf("analysed %d chunks, want 2", n)
	}
	if got := e.Status().Status; got != StatusPlaybackComplete {
		t.Errorf("status = %v, want PlaybackComplete", got)
	}
}

func TestEngine_PromptStop(t *testing.T) {
	player := &fakePlayer{}
	light := &recordingLight{}
	e, rec := newTestEngine(player, light)
	e.newTicker = func(time.Duration) *time.Ticker { return time.NewTicker(time.Hour) }

	buf := GenerateBinauralTone(testSampleRate, 200, 6, 10*time.Second, 0, 1)
	if err := e.StartAuto(buf); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(rec.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	start := time.Now()
	e.Stop()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop took %v", elapsed)
	}
	if e.State() != StateStopped || e.Status().Status != StatusStopped {
		t.Errorf("state=%v status=%v", e.State(), e.Status().Status)
	}
	if _, stops := player.counts(); stops < 1 {
		t.Error("playback not stopped")
	}
	if states := light.snapshot(); len(states) > 0 && states[len(states)-1] {
		t.Error("light left ON after stop")
	}
}

func TestEngine_AlreadyRunning(t *testing.T) {
	e, _ := newTestEngine(&fakePlayer{}, &recordingLight{})
	e.newTicker = func(time.Duration) *time.Ticker { return time.NewTicker(time.Hour) }

	buf := GenerateBinauralTone(testSampleRate, 200, 6, 10*time.Second, 0, 1)
	if err := e.StartAuto(buf); err != nil {
		t.Fatal(err)
	}
	if err := e.StartAuto(buf); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second StartAuto: got %v", err)
	}
	if err := e.StartManual(buf, 10); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("StartManual while running: got %v", err)
	}
	e.Stop()

	// 停止后可以再次启动
	e.newTicker = func(time.Duration) *time.Ticker { return time.NewTicker(time.Millisecond) }
	if err := e.StartAuto(buf); err != nil {
		t.Errorf("restart after stop: %v", err)
	}
	waitDone(t, e)
}

func TestEngine_PlayerStartError(t *testing.T) {
	e, _ := newTestEngine(&fakePlayer{startErr: errors.New("no device")}, &recordingLight{})

	buf := GenerateBinauralTone(testSampleRate, 200, 6, 4*time.Second, 0, 1)
	if err := e.StartAuto(buf); err != nil {
		t.Fatal(err)
	}
	waitDone(t, e)

	status := e.Status()
	if status.Status != StatusError || !strings.Contains(status.Message, "no device") {
		t.Errorf("got %v", status)
	}
	if e.State() != StateStopped {
		t.Errorf("state = %v", e.State())
	}
}

func TestEngine_RecoversPanic(t *testing.T) {
	e, _ := newTestEngine(&fakePlayer{panicOnStart: true}, &recordingLight{})

	buf := GenerateBinauralTone(testSampleRate, 200, 6, 4*time.Second, 0, 1)
	if err := e.StartAuto(buf); err != nil {
		t.Fatal(err)
	}
	waitDone(t, e)

	if e.Status().Status != StatusError || e.State() != StateStopped {
		t.Errorf("state=%v status=%v", e.State(), e.Status())
	}
}

func TestEngine_Load(t *testing.T) {
	e, _ := newTestEngine(&fakePlayer{}, &recordingLight{})

	e.load = func(string) (*SampleBuffer, error) { return nil, ErrDecode }
	if _, err := e.Load("broken.mp3"); !errors.Is(err, ErrDecode) {
		t.Errorf("got %v, want ErrDecode", err)
	}
	if e.Status().Status != StatusError {
		t.Errorf("status = %v, want Error", e.Status().Status)
	}

	want := GenerateBinauralTone(testSampleRate, 200, 6, time.Second, 0, 1)
	e.load = func(string) (*SampleBuffer, error) { return want, nil }
	got, err := e.Load("tone.wav")
	if err != nil || got != want {
		t.Fatalf("Load: %v", err)
	}
	if e.Status().Status != StatusReady {
		t.Errorf("status = %v, want Ready", e.Status().Status)
	}
}

func TestEngine_NilPlayer(t *testing.T) {
	light := &recordingLight{}
	e, rec := newTestEngine(nil, light)

	buf := GenerateBinauralTone(testSampleRate, 200, 6, 4*time.Second, 0, 1)
	if err := e.StartAuto(buf); err != nil {
		t.Fatal(err)
	}
	waitDone(t, e)

	if got := e.Status().Status; got != StatusPlaybackComplete {
		t.Errorf("status = %v, want PlaybackComplete", got)
	}
	if n := len(rec.snapshot()); n != 2 {
		t.Errorf("analysed %d chunks, want 2", n)
	}
	if light.callCount() == 0 {
		t.Error("strobe should still run without audio output")
	}
}

func TestEngine_PlayerStopPanics(t *testing.T) {
	e, _ := newTestEngine(&fakePlayer{panicOnStop: true}, &recordingLight{})

	buf := GenerateBinauralTone(testSampleRate, 200, 6, 4*time.Second, 0, 1)
	if err := e.StartAuto(buf); err != nil {
		t.Fatal(err)
	}
	waitDone(t, e)

	status := e.Status()
	if status.Status != StatusError || !strings.Contains(status.Message, "device vanished") {
		t.Errorf("got %v", status)
	}
	if e.State() != StateStopped || e.Frequency() != 0 {
		t.Errorf("state=%v frequency=%v", e.State(), e.Frequency())
	}
}
