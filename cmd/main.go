package main

import (
	"beatstrobe"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
)

func main() {
	cfg := beatstrobe.DefaultConfig()
	beatstrobe.ApplyEnv(cfg)

	// 1. 解析命令行参数
	inputFile := flag.String("file", "", "Audio file to play (.wav or .mp3)")
	mode := flag.String("mode", "auto", "auto (detect beat frequency) or manual")
	freq := flag.String("freq", strconv.FormatFloat(cfg.Manual.DefaultFrequency, 'f', -1, 64), "Strobe frequency for manual mode (0.5 - 40 Hz)")
	output := flag.String("output", cfg.Output.Kind, "Strobe output: terminal or serial")
	serialPort := flag.String("serial", cfg.Output.SerialPort, "Serial port of the LED driver (serial output)")
	chunk := flag.Duration("chunk", cfg.Sync.ChunkDuration, "Analysis chunk duration")
	chunkLog := flag.String("chunks", "", "Write per-chunk analysis to this CSV file")
	logFile := flag.String("log", "beatstrobe.log", "Log file (the terminal is used as the strobe screen)")
	flag.Parse()

	cfg.Output.Kind = *output
	cfg.Output.SerialPort = *serialPort
	cfg.Sync.ChunkDuration = *chunk
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if *inputFile == "" {
		fmt.Println("Please select an audio file first (-file).")
		os.Exit(1)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("Open log file: %v", err)
		}
		defer f.Close()
		logger.SetOutput(f)
	}

	// 2. 初始化输出、播放器和引擎
	light, closeLight, err := openLight(cfg)
	if err != nil {
		log.Fatalf("Strobe output unavailable: %v", err)
	}
	defer closeLight()

	player := beatstrobe.NewMalgoPlayer(cfg.Playback.DeviceName)
	player.Logger = logger

	engine := beatstrobe.NewEngine(cfg, player, light)
	engine.SetLogger(logger)
	if *chunkLog != "" {
		rec, err := beatstrobe.NewCsvAnalysisRecorder(*chunkLog)
		if err != nil {
			log.Fatalf("Create chunk log: %v", err)
		}
		defer rec.Close()
		engine.SetRecorder(rec)
	}

	// 终端输出时屏幕就是频闪画面，状态只写日志
	var statusOut io.Writer = os.Stdout
	if cfg.Output.Kind == "terminal" {
		statusOut = logger.Writer()
	}
	events := engine.Events(32)
	go func() {
		for ev := range events.C {
			fmt.Fprintln(statusOut, ev)
		}
	}()
	defer engine.Unsubscribe(events)

	// 3. 加载并启动
	buf, err := engine.Load(*inputFile)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	switch *mode {
	case "auto":
		err = engine.StartAuto(buf)
	case "manual":
		var hz float64
		hz, err = beatstrobe.ParseFrequency(*freq)
		if err == nil {
			err = engine.StartManual(buf, hz)
		}
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	// 4. 等待结束、ESC 或退出信号
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	keys := watchCancelKeys(ctx, logger)

	select {
	case <-ctx.Done():
	case <-keys:
	case <-engine.Done():
	}
	engine.Stop()
	closeLight()

	fmt.Println(engine.Status())
}

// openLight 按配置打开频闪输出，返回的 close 函数可重复调用
func openLight(cfg *beatstrobe.Config) (beatstrobe.Light, func(), error) {
	switch cfg.Output.Kind {
	case "serial":
		sl := beatstrobe.NewSerialLight(cfg.Output.SerialPort, cfg.Output.BaudRate)
		if err := sl.Open(); err != nil {
			return nil, nil, err
		}
		return sl, func() { _ = sl.Close() }, nil
	default:
		tl := beatstrobe.NewTerminalLight(os.Stdout, int(os.Stdout.Fd()))
		return tl, func() { _ = tl.Close() }, nil
	}
}
