package main

import (
	"beatstrobe"
	"flag"
	"fmt"
	"log"
	"time"
)

// 生成一段带双耳拍频的测试 WAV 文件
func main() {
	out := flag.String("out", "binaural.wav", "Output wav file")
	beat := flag.Float64("beat", 6.0, "Beat frequency carried by L-R (Hz)")
	carrier := flag.Float64("carrier", 200.0, "Carrier tone shared by both channels (Hz)")
	duration := flag.Duration("duration", 30*time.Second, "Length of the tone")
	rate := flag.Int("rate", 44100, "Sample rate")
	noise := flag.Float64("noise", 0.01, "Per-channel gaussian noise level")
	mono := flag.Bool("mono", false, "Write only the left channel")
	flag.Parse()

	buf := beatstrobe.GenerateBinauralTone(*rate, *carrier, *beat, *duration, *noise, time.Now().UnixNano())
	if *mono {
		buf.Channels = buf.Channels[:1]
	}

	w, err := beatstrobe.NewWavWriter(*out, buf.SampleRate, buf.NumChannels())
	if err != nil {
		log.Fatalf("Failed to create wav file: %v", err)
	}
	if err := w.WriteBuffer(buf); err != nil {
		log.Fatalf("Failed to write samples: %v", err)
	}
	if err := w.Close(); err != nil {
		log.Fatalf("Failed to finalize wav file: %v", err)
	}

	fmt.Printf("Wrote %s: %v, %d ch, %d Hz, beat %.1f Hz\n", *out, buf.Duration(), buf.NumChannels(), buf.SampleRate, *beat)
}
