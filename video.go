package main

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

const frameWaitTimeout = 60 * time.Second

// --- Structs ---

type Frame struct {
	Number int
	Data   []byte
}

type numberedImage struct {
	number int
	img    image.Image
}

// videoPipeline turns canvas snapshots into a video: workers PNG-encode
// frames in parallel, and a single encoder writes them to ffmpeg in order.
type videoPipeline struct {
	cmd       *exec.Cmd
	images    chan numberedImage
	frameChan chan Frame
	workers   sync.WaitGroup
	encoder   sync.WaitGroup
	next      int
	encodeErr error
}

// --- Video Pipeline ---

func startVideoPipeline(args *Arguments) (*videoPipeline, error) {
	rate := fmt.Sprintf("%f", args.Framerate)
	cmd := exec.Command("ffmpeg", "-y", "-f", "image2pipe", "-vcodec", "png", "-r", rate, "-i", "-",
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2", "-c:v", "libx264", "-b:v", args.Bitrate, "-pix_fmt", "yuv420p",
		"-r", rate, args.VideoFile)
	ffmpegIn, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get ffmpeg stdin pipe: %w", err)
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	p := &videoPipeline{
		cmd:       cmd,
		images:    make(chan numberedImage, args.Workers*2),
		frameChan: make(chan Frame, int(args.Framerate)*2),
	}

	p.encoder.Add(1)
	go p.encode(ffmpegIn)

	for i := 0; i < args.Workers; i++ {
		p.workers.Add(1)
		go p.generateFrames()
	}
	return p, nil
}

// AddFrame queues img as the next video frame. It blocks while the
// workers are busy.
func (p *videoPipeline) AddFrame(img image.Image) {
	p.images <- numberedImage{number: p.next, img: img}
	p.next++
}

func (p *videoPipeline) Frames() int {
	return p.next
}

func (p *videoPipeline) generateFrames() {
	defer p.workers.Done()
	pngBuffer := new(bytes.Buffer)

	for task := range p.images {
		pngBuffer.Reset()
		if err := png.Encode(pngBuffer, task.img); err != nil {
			log.Printf("Failed to encode frame %d: %v", task.number, err)
			continue
		}

		frameData := make([]byte, pngBuffer.Len())
		copy(frameData, pngBuffer.Bytes())

		p.frameChan <- Frame{Number: task.number, Data: frameData}
	}
}

// encode writes frames to ffmpeg in frame order, buffering frames that
// arrive early.
func (p *videoPipeline) encode(ffmpegIn io.WriteCloser) {
	defer p.encoder.Done()
	defer ffmpegIn.Close()

	bar := progressbar.Default(-1, "Encoding")
	defer bar.Finish()
	frameBuffer := make(map[int][]byte)
	nextFrameToWrite := 0
	timeout := time.NewTimer(frameWaitTimeout)
	defer timeout.Stop()

	for {
		select {
		case frame, ok := <-p.frameChan:
			if !ok {
				if len(frameBuffer) > 0 {
					log.Printf("Dropped %d frames after missing frame %d", len(frameBuffer), nextFrameToWrite)
				}
				return
			}

			frameBuffer[frame.Number] = frame.Data
			if !timeout.Stop() {
				<-timeout.C
			}
			timeout.Reset(frameWaitTimeout)

			for {
				data, found := frameBuffer[nextFrameToWrite]
				if !found {
					break
				}

				if _, err := ffmpegIn.Write(data); err != nil && p.encodeErr == nil {
					p.encodeErr = fmt.Errorf("error writing frame %d to ffmpeg: %w", nextFrameToWrite, err)
				}
				bar.Add(1)

				delete(frameBuffer, nextFrameToWrite)
				nextFrameToWrite++
			}

		case <-timeout.C:
			p.encodeErr = fmt.Errorf("stuck waiting for frame %d for over %v", nextFrameToWrite, frameWaitTimeout)
			// Keep draining so workers do not block forever.
			for range p.frameChan {
			}
			return
		}
	}
}

// Close flushes all queued frames and waits for ffmpeg to finish.
func (p *videoPipeline) Close() error {
	close(p.images)
	p.workers.Wait()
	close(p.frameChan)
	p.encoder.Wait()

	if err := p.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg command failed: %w", err)
	}
	return p.encodeErr
}
