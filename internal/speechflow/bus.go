// Package speechflow implements the client-side coordination between AI
// audio playback and the candidate's microphone: a typed in-process event
// bus, the auto-speech-flow controller that arms the mic and auto-submits
// utterances, and local persistence of whose turn it is.
package speechflow

import "sync"

// Topic names the events other UI pieces depend on. Keeping them typed (and
// payloads structured) makes the bus contract checkable instead of a set of
// string literals.
type Topic string

const (
	TopicAudioPlaybackStarted    Topic = "audio-playback-started"
	TopicAudioPlaybackEnded      Topic = "audio-playback-ended"
	TopicSpeechRecognitionStatus Topic = "speech-recognition-status"
	TopicAutoActivateMicrophone  Topic = "auto-activate-microphone"
	TopicToggleSpeechRecognition Topic = "toggle-speech-recognition"
	TopicChatMessageSent         Topic = "chat-message-sent"
	TopicChatInitializing        Topic = "chat-initializing"
)

// Event carries a topic plus its payload. Only speech-recognition-status
// events populate RecognitionStatus.
type Event struct {
	Topic             Topic
	RecognitionStatus *RecognitionStatus
}

type RecognitionStatus struct {
	IsListening bool
}

// Bus is a minimal synchronous publish/subscribe channel. Handlers run on
// the publisher's goroutine in subscription order, so events are observed
// strictly in emission order.
type subscription struct {
	id int
	fn func(Event)
}

type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[Topic][]subscription
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// Subscribe registers a handler for a topic and returns an unsubscribe
// function. Unsubscribing during dispatch takes effect on the next publish.
func (b *Bus) Subscribe(topic Topic, fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[topic] = append(b.subs[topic], subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[topic]
		for i, sub := range subs {
			if sub.id == id {
				b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers the event to current subscribers of its topic.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	handlers := make([]func(Event), 0, len(b.subs[ev.Topic]))
	for _, sub := range b.subs[ev.Topic] {
		handlers = append(handlers, sub.fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}
