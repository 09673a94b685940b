package tmux

import "sync"

// Mock is an in-memory Tmux implementation for tests. Each session's pane
// content is whatever was last set via SetCapture; Send/SpawnIn/Stop just
// record calls. DefaultCapture is returned for any session with no entry
// of its own, useful when the session name isn't known ahead of time
// (e.g. it embeds a timestamp).
type Mock struct {
	mu             sync.Mutex
	Spawned        []string
	Sent           map[string][]string
	Stopped        []string
	captures       map[string]string
	DefaultCapture string
	SpawnErr       error
	SendErr        error
	CaptureErr     error
}

// NewMock creates an empty Mock.
func NewMock() *Mock {
	return &Mock{
		Sent:     make(map[string][]string),
		captures: make(map[string]string),
	}
}

func (m *Mock) SpawnIn(sessionName, workspaceDir, command string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SpawnErr != nil {
		return m.SpawnErr
	}
	m.Spawned = append(m.Spawned, sessionName)
	return nil
}

func (m *Mock) Send(sessionName, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.Sent[sessionName] = append(m.Sent[sessionName], text)
	return nil
}

func (m *Mock) Capture(sessionName string, n int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CaptureErr != nil {
		return "", m.CaptureErr
	}
	if content, ok := m.captures[sessionName]; ok {
		return content, nil
	}
	return m.DefaultCapture, nil
}

func (m *Mock) Stop(sessionName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stopped = append(m.Stopped, sessionName)
	return nil
}

// SetCapture sets the pane content returned by every later Capture call on
// sessionName, until it is set again.
func (m *Mock) SetCapture(sessionName, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captures[sessionName] = content
}
