package harness

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/daikw/banter/internal/voice/provider"
)

// SessionStatus is the state of a whole voice test.
type SessionStatus string

const (
	SessionReady          SessionStatus = "ready"
	SessionProcessing     SessionStatus = "processing"
	SessionCompleted      SessionStatus = "completed"
	SessionPartialSuccess SessionStatus = "partial_success"
	SessionAllFailed      SessionStatus = "all_failed"
)

// ModelStatus is the pipeline stage of one model.
type ModelStatus string

const (
	ModelPending         ModelStatus = "pending"
	ModelGeneratingText  ModelStatus = "generating_text"
	ModelTextCompleted   ModelStatus = "text_completed"
	ModelGeneratingAudio ModelStatus = "generating_audio"
	ModelCompleted       ModelStatus = "completed"
	ModelFailed          ModelStatus = "failed"
)

// Timings records when each stage started and ended.
type Timings struct {
	TextStart  *time.Time `json:"text_start,omitempty"`
	TextEnd    *time.Time `json:"text_end,omitempty"`
	AudioStart *time.Time `json:"audio_start,omitempty"`
	AudioEnd   *time.Time `json:"audio_end,omitempty"`
}

// Prompt is what the dialogue writer was sent.
type Prompt struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// ModelRun is the progress and outcome of one model.
type ModelRun struct {
	Model
	Status         ModelStatus          `json:"status"`
	Progress       int                  `json:"progress"`
	RetryCount     int                  `json:"retry_count"`
	Error          string               `json:"error,omitempty"`
	Prompt         *Prompt              `json:"prompt,omitempty"`
	Dialogue       []provider.Utterance `json:"dialogue,omitempty"`
	ConversationID string               `json:"conversation_id,omitempty"`
	AudioHandle    string               `json:"audio_handle,omitempty"`
	Timings        Timings              `json:"timings"`
}

// SessionError is a failure reported by one model.
type SessionError struct {
	Model     string    `json:"model"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one voice test: a single input run against several models.
// All fields are guarded by mu; use Snapshot to read them.
type Session struct {
	mu        sync.RWMutex
	id        string
	input     string
	persona   string
	status    SessionStatus
	startTime time.Time
	endTime   time.Time
	runs      []*ModelRun
	errors    []SessionError
	done      chan struct{}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Done is closed when every model has finished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// View is a consistent copy of a session.
type View struct {
	ID         string         `json:"id"`
	UserInput  string         `json:"user_input"`
	Persona    string         `json:"persona,omitempty"`
	Status     SessionStatus  `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	DurationMS *int64         `json:"duration_ms,omitempty"`
	Models     []ModelRun     `json:"models"`
	Errors     []SessionError `json:"errors"`
}

// Snapshot copies the session state.
func (s *Session) Snapshot() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := View{
		ID:        s.id,
		UserInput: s.input,
		Persona:   s.persona,
		Status:    s.status,
		Timestamp: s.startTime,
		Models:    make([]ModelRun, len(s.runs)),
		Errors:    append([]SessionError{}, s.errors...),
	}
	for i, r := range s.runs {
		v.Models[i] = *r
		v.Models[i].Dialogue = append([]provider.Utterance(nil), r.Dialogue...)
	}
	if !s.endTime.IsZero() {
		ms := s.endTime.Sub(s.startTime).Milliseconds()
		v.DurationMS = &ms
	}
	return v
}

// Export renders the session as indented JSON.
func (s *Session) Export() ([]byte, error) {
	return json.MarshalIndent(s.Snapshot(), "", "  ")
}

// Counts returns how many models completed and failed.
func (v View) Counts() (completed, failed int) {
	for _, m := range v.Models {
		switch m.Status {
		case ModelCompleted:
			completed++
		case ModelFailed:
			failed++
		}
	}
	return completed, failed
}

func (s *Session) update(run *ModelRun, fn func(*ModelRun)) {
	s.mu.Lock()
	fn(run)
	s.mu.Unlock()
}

func (s *Session) fail(run *ModelRun, err error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	run.Status = ModelFailed
	run.Error = err.Error()
	run.Progress = 0
	s.errors = append(s.errors, SessionError{Model: run.Name, Error: err.Error(), Timestamp: now})
}

func (s *Session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endTime = time.Now()

	failed := 0
	for _, r := range s.runs {
		if r.Status == ModelFailed {
			failed++
		}
	}
	switch {
	case len(s.runs) > 0 && failed == len(s.runs):
		s.status = SessionAllFailed
	case failed > 0:
		s.status = SessionPartialSuccess
	default:
		s.status = SessionCompleted
	}
}

func stamp() *time.Time {
	now := time.Now()
	return &now
}
