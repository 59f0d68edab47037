package generate

import (
	"sync"
	"time"

	"github.com/daikw/banter/internal/audio"
	"github.com/daikw/banter/internal/voice/provider"
)

// Side is where a message is drawn in a chat view. Speakers alternate.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Message is one line of a generated conversation as shown to users.
type Message struct {
	Speaker        string `json:"speaker"`
	Text           string `json:"text"`
	Side           Side   `json:"side"`
	ConversationID string `json:"conversation_id"`
	// AudioHandle plays this line alone. It is empty when the line was
	// skipped or the provider only produces whole dialogues.
	AudioHandle string `json:"audio_handle,omitempty"`
	// ConversationAudioHandle is only set on the first message.
	ConversationAudioHandle string `json:"conversation_audio_handle,omitempty"`
	IsConversationStart     bool   `json:"is_conversation_start"`
}

// Conversation is a generated dialogue and the audio made for it.
type Conversation struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	mu       sync.RWMutex
	messages []Message
	// clip is the whole conversation track; clips holds the per-line
	// audio, nil where a line was skipped.
	clip  *audio.Clip
	clips []*audio.Clip
}

func newConversation(id, providerName, model string, utterances []provider.Utterance) *Conversation {
	c := &Conversation{
		ID:        id,
		Provider:  providerName,
		Model:     model,
		CreatedAt: time.Now(),
		messages:  make([]Message, len(utterances)),
	}
	for i, u := range utterances {
		side := SideLeft
		if i%2 == 1 {
			side = SideRight
		}
		c.messages[i] = Message{
			Speaker:             u.Speaker,
			Text:                u.Text,
			Side:                side,
			ConversationID:      id,
			IsConversationStart: i == 0,
		}
	}
	return c
}

// Messages returns a copy of the message records.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Clip returns the conversation track, or nil when no line produced audio.
func (c *Conversation) Clip() *audio.Clip {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clip
}

func (c *Conversation) setConversationHandle(handle string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) > 0 {
		c.messages[0].ConversationAudioHandle = handle
	}
}

func (c *Conversation) individualHandles() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var handles []string
	for _, m := range c.messages {
		if m.AudioHandle != "" {
			handles = append(handles, m.AudioHandle)
		}
	}
	return handles
}

// Request asks for audio for a dialogue.
type Request struct {
	Utterances []provider.Utterance
	Provider   string
	// Model re-targets the provider when set.
	Model  string
	Voices provider.VoiceLookup
}

// Result is the outcome of a generation. For an unconfigured provider it
// is empty: no conversation and no handles.
type Result struct {
	Conversation       *Conversation
	ConversationHandle string
	// Skipped lists the indices of lines that produced no audio.
	Skipped []int
}

// Messages returns the message records, or nil for an empty result.
func (r *Result) Messages() []Message {
	if r == nil || r.Conversation == nil {
		return nil
	}
	return r.Conversation.Messages()
}
