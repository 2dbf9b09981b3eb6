package speechflow

import (
	"sync"
	"time"
)

type State string

const (
	StateIdle        State = "idle"
	StateMicArmed    State = "mic-armed"
	StateListening   State = "listening"
	StateSendPending State = "send-pending"
)

type Config struct {
	// MicDelay debounces microphone activation against trailing audio
	// artifacts after playback ends.
	MicDelay time.Duration
	// MinSpeechDuration is the shortest speech span worth auto-submitting.
	MinSpeechDuration time.Duration
	// AutoSendDelay is the silence window after speech ends before the
	// utterance is submitted automatically.
	AutoSendDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		MicDelay:          500 * time.Millisecond,
		MinSpeechDuration: 1000 * time.Millisecond,
		AutoSendDelay:     5000 * time.Millisecond,
	}
}

// Controller drives hands-free turn taking: after AI audio finishes it arms
// the microphone, and after the candidate stops speaking it counts down and
// submits the utterance. All timer callbacks re-check a generation counter
// under the lock, so a callback from a superseded state is a no-op instead of
// firing into stale state.
type Controller struct {
	mu  sync.Mutex
	bus *Bus
	cfg Config

	onSend      func()
	onCountdown func(secondsLeft int)

	state        State
	enabled      bool
	userTurn     bool
	audioPlaying bool
	speechStart  time.Time
	countdown    int
	generation   uint64

	micTimer      *time.Timer
	sendTimer     *time.Timer
	countdownStop chan struct{}

	unsubs []func()
}

// NewController wires a controller to the bus. onSend is invoked when the
// auto-send countdown expires; onCountdown (optional) receives the remaining
// seconds once per second for UI display.
func NewController(bus *Bus, cfg Config, onSend func(), onCountdown func(int)) *Controller {
	c := &Controller{
		bus:         bus,
		cfg:         cfg,
		onSend:      onSend,
		onCountdown: onCountdown,
		state:       StateIdle,
		enabled:     true,
	}

	c.unsubs = append(c.unsubs,
		bus.Subscribe(TopicAudioPlaybackStarted, c.handleAudioStarted),
		bus.Subscribe(TopicAudioPlaybackEnded, c.handleAudioEnded),
		bus.Subscribe(TopicSpeechRecognitionStatus, c.handleRecognitionStatus),
		bus.Subscribe(TopicToggleSpeechRecognition, c.handleToggle),
		bus.Subscribe(TopicChatMessageSent, c.handleReset),
		bus.Subscribe(TopicChatInitializing, c.handleReset),
	)
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) CountdownRemaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countdown
}

// SetUserTurn marks whether it is the candidate's turn. Leaving the
// candidate's turn forcibly resets the controller from any state.
func (c *Controller) SetUserTurn(userTurn bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userTurn = userTurn
	if !userTurn {
		c.resetLocked()
	}
}

// SetEnabled toggles the whole auto flow. Disabling resets immediately.
func (c *Controller) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
	if !enabled {
		c.resetLocked()
	}
}

// CancelAutoSend clears any pending auto-send and its countdown. Callable at
// any time; maps to the user's explicit cancellation.
func (c *Controller) CancelAutoSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSendPending {
		c.resetLocked()
	}
}

// Close detaches the controller from the bus and cancels all timers.
func (c *Controller) Close() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Controller) handleAudioStarted(Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioPlaying = true
	// Auto-mic is suppressed while the speaker is active.
	c.stopMicTimerLocked()
}

func (c *Controller) handleAudioEnded(Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioPlaying = false
	if !c.enabled || !c.userTurn || c.state != StateIdle {
		return
	}

	gen := c.generation
	c.stopMicTimerLocked()
	c.micTimer = time.AfterFunc(c.cfg.MicDelay, func() {
		c.mu.Lock()
		if gen != c.generation || !c.enabled || !c.userTurn || c.audioPlaying || c.state != StateIdle {
			c.mu.Unlock()
			return
		}
		c.state = StateMicArmed
		c.mu.Unlock()
		c.bus.Publish(Event{Topic: TopicAutoActivateMicrophone})
	})
}

func (c *Controller) handleRecognitionStatus(ev Event) {
	if ev.RecognitionStatus == nil {
		return
	}
	c.mu.Lock()
	if !c.enabled || !c.userTurn {
		// A disabled (or out-of-turn) controller must never re-enter the
		// machine off a recognition event.
		c.mu.Unlock()
		return
	}
	if ev.RecognitionStatus.IsListening {
		// Speech (re)started: any pending auto-send is stale.
		c.stopSendTimerLocked()
		c.state = StateListening
		c.speechStart = time.Now()
		c.mu.Unlock()
		return
	}

	if c.state != StateListening {
		c.mu.Unlock()
		return
	}
	if time.Since(c.speechStart) < c.cfg.MinSpeechDuration {
		// Too short to act on.
		c.state = StateIdle
		c.mu.Unlock()
		return
	}
	c.enterSendPendingLocked()
	c.mu.Unlock()
}

func (c *Controller) handleToggle(Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// The user engaged the microphone themselves; no auto-activation needed,
	// and the audio player stops playback on this same event.
	c.stopMicTimerLocked()
}

func (c *Controller) handleReset(Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Controller) enterSendPendingLocked() {
	c.state = StateSendPending
	c.countdown = int((c.cfg.AutoSendDelay + time.Second - 1) / time.Second)
	gen := c.generation

	c.sendTimer = time.AfterFunc(c.cfg.AutoSendDelay, func() {
		c.mu.Lock()
		if gen != c.generation || c.state != StateSendPending {
			c.mu.Unlock()
			return
		}
		send := c.onSend
		c.resetLocked()
		c.mu.Unlock()
		if send != nil {
			send()
		}
	})

	stop := make(chan struct{})
	c.countdownStop = stop
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.mu.Lock()
				if gen != c.generation || c.state != StateSendPending {
					c.mu.Unlock()
					return
				}
				if c.countdown > 0 {
					c.countdown--
				}
				remaining := c.countdown
				cb := c.onCountdown
				c.mu.Unlock()
				if cb != nil {
					cb(remaining)
				}
			}
		}
	}()
}

// resetLocked returns to idle, invalidating every outstanding timer callback
// via the generation counter.
func (c *Controller) resetLocked() {
	c.generation++
	c.stopMicTimerLocked()
	c.stopSendTimerLocked()
	c.state = StateIdle
}

func (c *Controller) stopMicTimerLocked() {
	if c.micTimer != nil {
		c.micTimer.Stop()
		c.micTimer = nil
	}
}

func (c *Controller) stopSendTimerLocked() {
	if c.sendTimer != nil {
		c.sendTimer.Stop()
		c.sendTimer = nil
	}
	if c.countdownStop != nil {
		close(c.countdownStop)
		c.countdownStop = nil
	}
	c.countdown = 0
}
