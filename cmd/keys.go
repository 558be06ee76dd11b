package main

import (
	"context"
	"log"
	"sync"

	"github.com/eiannone/keyboard"
)

// watchCancelKeys 返回的通道在用户按下 ESC / q / Ctrl-C 时关闭
func watchCancelKeys(ctx context.Context, logger *log.Logger) <-chan struct{} {
	quit := make(chan struct{})

	if err := keyboard.Open(); err != nil {
		logger.Printf("keyboard input disabled: %v", err)
		return quit
	}

	closeOnce := &sync.Once{}
	go func() {
		<-ctx.Done()
		closeOnce.Do(func() {
			_ = keyboard.Close()
		})
	}()

	go func() {
		defer closeOnce.Do(func() {
			_ = keyboard.Close()
		})
		for {
			char, key, err := keyboard.GetKey()
			if err != nil {
				return
			}
			if key == keyboard.KeyEsc || key == keyboard.KeyCtrlC || char == 'q' || char == 'Q' {
				close(quit)
				return
			}
		}
	}()

	return quit
}
