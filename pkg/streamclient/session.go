package streamclient

import (
	"bytes"
	"sync"
	"unicode/utf8"

	"github.com/fpt/llmbench/pkg/usage"
)

// Stage is the lifecycle position of a streaming session
type Stage string

const (
	StageConnecting Stage = "connecting" // request sent, no response yet
	StageThinking   Stage = "thinking"   // headers received, no text yet
	StageStreaming  Stage = "streaming"
	StageComplete   Stage = "complete"
	StageError      Stage = "error"
)

// Session accumulates a streamed body and separates display content from
// the trailing usage data. It is safe for concurrent readers.
type Session struct {
	mu      sync.Mutex
	stage   Stage
	buf     []byte
	content string
	usage   *usage.UsageData
	err     error
}

// NewSession returns a session in the connecting stage
func NewSession() *Session {
	return &Session{stage: StageConnecting}
}

// Connected marks that response headers arrived
func (s *Session) Connected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage == StageConnecting {
		s.stage = StageThinking
	}
}

// Feed appends raw body bytes and returns the current display content.
// A multi-byte character or a marker prefix split across reads is held back
// until complete, so successive results only ever grow.
func (s *Session) Feed(p []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append(s.buf, p...)
	if len(p) > 0 {
		s.stage = StageStreaming
	}

	marker := []byte(usage.Marker)
	if idx := bytes.Index(s.buf, marker); idx >= 0 {
		s.content = string(s.buf[:idx])
	} else {
		s.content = string(withoutPartialMarker(completePrefix(s.buf)))
	}
	return s.content
}

// Finish ends the session after the body was fully read. A marker whose
// JSON does not parse leaves Usage nil; the content is kept either way.
func (s *Session) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, u, err := usage.SplitMarker(string(s.buf))
	s.content = content
	if err == nil {
		s.usage = u
	}
	s.stage = StageComplete
}

// Fail ends the session with err
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	s.stage = StageError
}

// Stage returns the current lifecycle stage
func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

// Content returns the text before the usage marker
func (s *Session) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content
}

// Usage returns the parsed usage data, or nil before completion or when the
// stream carried none
func (s *Session) Usage() *usage.UsageData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Err returns the failure of an errored session
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// completePrefix drops an incomplete trailing UTF-8 sequence
func completePrefix(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i]
			}
			break
		}
	}
	return b
}

// withoutPartialMarker drops a trailing prefix of the usage marker
func withoutPartialMarker(b []byte) []byte {
	for n := min(len(usage.Marker)-1, len(b)); n > 0; n-- {
		if bytes.HasSuffix(b, []byte(usage.Marker[:n])) {
			return b[:len(b)-n]
		}
	}
	return b
}
