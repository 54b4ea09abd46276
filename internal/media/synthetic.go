package media

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// opusSilence is a minimal valid Opus frame (CELT-only, 20 ms, silence).
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Synthetic is a Capturer for headless clients: the audio track carries
// Opus silence at a steady cadence so the RTP path stays warm, the video
// tracks exist but send no samples.
type Synthetic struct{}

func NewSynthetic() *Synthetic { return &Synthetic{} }

func (Synthetic) CaptureAudio() (*Source, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "synthetic")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}

	stop := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = track.WriteSample(media.Sample{
					Data:     opusSilence,
					Duration: 20 * time.Millisecond,
				})
			case <-stop:
				return
			}
		}
	}()

	return &Source{
		Track: track,
		Stop:  func() { once.Do(func() { close(stop) }) },
	}, nil
}

func (Synthetic) CaptureCamera() (*Source, error) {
	return syntheticVideo("camera")
}

func (Synthetic) CaptureScreen() (*Source, error) {
	return syntheticVideo("screen")
}

func syntheticVideo(id string) (*Source, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, id, "synthetic")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
	return &Source{Track: track, Stop: func() {}}, nil
}
