// Package media owns the local capture side of a call: which tracks are
// being sent, mute toggles, and the screen-share track swap.
package media

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/roomloop/roomloop/internal/protocol"
)

var (
	// ErrMediaAccessDenied means the user or OS refused the capture
	// request. The caller can retry after remediation.
	ErrMediaAccessDenied = errors.New("media access denied")
	// ErrMediaUnavailable means no usable capture device exists.
	ErrMediaUnavailable = errors.New("media unavailable")
)

// Source is one live capture: a sendable track plus its release hook.
// Ended, when non-nil, closes if the OS revokes the capture out-of-band
// (a user ending a screen share from the system UI).
type Source struct {
	Track webrtc.TrackLocal
	Stop  func()
	Ended <-chan struct{}
}

// Capturer acquires local media. Implementations return
// ErrMediaAccessDenied or ErrMediaUnavailable (possibly wrapped) on
// failure, never a half-acquired Source.
type Capturer interface {
	CaptureAudio() (*Source, error)
	CaptureCamera() (*Source, error)
	CaptureScreen() (*Source, error)
}

// Swapper replaces the outgoing video track on every live peer session
// without renegotiating. The negotiation engine satisfies it.
type Swapper interface {
	ReplaceVideoTrack(track webrtc.TrackLocal) error
}

// Signaler broadcasts media-state updates to the room.
type Signaler interface {
	Send(msg protocol.Message)
}

// Controller manages the local tracks of one call. Mute toggles are local
// flags plus a media-state broadcast; they never renegotiate. Screen share
// swaps the video track in place and restores the camera afterwards.
type Controller struct {
	capturer Capturer
	swapper  Swapper
	signaler Signaler

	mu           sync.Mutex
	audio        *Source
	camera       *Source
	screen       *Source
	shareDone    chan struct{}
	audioEnabled bool
	videoEnabled bool
}

func NewController(capturer Capturer, swapper Swapper, signaler Signaler) *Controller {
	return &Controller{capturer: capturer, swapper: swapper, signaler: signaler}
}

// Start acquires microphone and camera. On any failure everything already
// acquired is released before the error surfaces, so a failed Start leaves
// no live captures behind.
func (c *Controller) Start() error {
	audio, err := c.capturer.CaptureAudio()
	if err != nil {
		return fmt.Errorf("capture audio: %w", err)
	}
	camera, err := c.capturer.CaptureCamera()
	if err != nil {
		audio.Stop()
		return fmt.Errorf("capture camera: %w", err)
	}

	c.mu.Lock()
	c.audio = audio
	c.camera = camera
	c.audioEnabled = true
	c.videoEnabled = true
	c.mu.Unlock()
	return nil
}

// Tracks returns the tracks to attach to a new peer session: audio plus
// whichever video source is currently outgoing.
func (c *Controller) Tracks() []webrtc.TrackLocal {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []webrtc.TrackLocal
	if c.audio != nil {
		out = append(out, c.audio.Track)
	}
	switch {
	case c.screen != nil:
		out = append(out, c.screen.Track)
	case c.camera != nil:
		out = append(out, c.camera.Track)
	}
	return out
}

func (c *Controller) AudioEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audioEnabled
}

func (c *Controller) VideoEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.videoEnabled
}

// ToggleAudio flips the local mute flag and broadcasts the new state.
// Returns the new value. Muting is local, nothing renegotiates.
func (c *Controller) ToggleAudio() bool {
	c.mu.Lock()
	c.audioEnabled = !c.audioEnabled
	audio, video := c.audioEnabled, c.videoEnabled
	c.mu.Unlock()
	c.broadcastState(audio, video)
	return audio
}

// ToggleVideo flips the local camera-off flag and broadcasts the new
// state. Returns the new value.
func (c *Controller) ToggleVideo() bool {
	c.mu.Lock()
	c.videoEnabled = !c.videoEnabled
	audio, video := c.audioEnabled, c.videoEnabled
	c.mu.Unlock()
	c.broadcastState(audio, video)
	return video
}

func (c *Controller) broadcastState(audio, video bool) {
	c.signaler.Send(protocol.Message{
		Type:         protocol.TypeMediaState,
		AudioEnabled: protocol.Bool(audio),
		VideoEnabled: protocol.Bool(video),
	})
}

// Sharing reports whether a screen share is outgoing.
func (c *Controller) Sharing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen != nil
}

// StartScreenShare captures the screen and swaps it in as the outgoing
// video track on every live session. The camera source stays alive so
// StopScreenShare can restore it. No-op when a share is already running.
func (c *Controller) StartScreenShare() error {
	c.mu.Lock()
	if c.screen != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	screen, err := c.capturer.CaptureScreen()
	if err != nil {
		return fmt.Errorf("capture screen: %w", err)
	}
	if err := c.swapper.ReplaceVideoTrack(screen.Track); err != nil {
		screen.Stop()
		return fmt.Errorf("swap in screen track: %w", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.screen = screen
	c.shareDone = done
	c.mu.Unlock()

	if screen.Ended != nil {
		// The OS revoking the share takes the same restore path as a
		// manual stop.
		go func() {
			select {
			case <-screen.Ended:
				slog.Info("screen share ended by system, restoring camera")
				if err := c.StopScreenShare(); err != nil {
					slog.Error("restore camera after system revoke", "err", err)
				}
			case <-done:
			}
		}()
	}
	return nil
}

// StopScreenShare restores the camera track on every live session and
// releases the screen capture. No-op when nothing is being shared.
func (c *Controller) StopScreenShare() error {
	c.mu.Lock()
	screen := c.screen
	camera := c.camera
	done := c.shareDone
	c.screen = nil
	c.shareDone = nil
	c.mu.Unlock()

	if screen == nil {
		return nil
	}
	close(done)

	var cameraTrack webrtc.TrackLocal
	if camera != nil {
		cameraTrack = camera.Track
	}
	err := c.swapper.ReplaceVideoTrack(cameraTrack)
	screen.Stop()
	if err != nil {
		return fmt.Errorf("restore camera track: %w", err)
	}
	return nil
}

// Close releases every capture. The controller cannot be restarted.
func (c *Controller) Close() {
	if err := c.StopScreenShare(); err != nil {
		slog.Debug("stop screen share on close", "err", err)
	}

	c.mu.Lock()
	audio, camera := c.audio, c.camera
	c.audio, c.camera = nil, nil
	c.mu.Unlock()

	if audio != nil {
		audio.Stop()
	}
	if camera != nil {
		camera.Stop()
	}
}
