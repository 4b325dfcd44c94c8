package engine

import (
	"context"
	"strings"
	"sync"
)

// MockLLM is a scripted test implementation of the LLM client port. Calls
// are matched against registered user-prompt substrings first, then served
// from a FIFO response queue.
type MockLLM struct {
	err       error
	matchers  []mockMatcher
	queue     []string
	calls     []MockCall
	mu        sync.Mutex
	failureOn string
}

type mockMatcher struct {
	substring string
	response  string
}

// MockCall records one completion request.
type MockCall struct {
	SystemPrompt string
	UserPrompt   string
}

// NewMockLLM creates an empty mock client.
func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

// RespondWith registers a canned response for user prompts containing the
// given substring. Matchers take precedence over the queue and are checked
// in registration order.
func (m *MockLLM) RespondWith(substring, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matchers = append(m.matchers, mockMatcher{substring: substring, response: response})
}

// QueueResponse appends a response served to the next unmatched call.
func (m *MockLLM) QueueResponse(response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, response)
}

// FailWith makes every subsequent call return err.
func (m *MockLLM) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// FailOn makes calls whose user prompt contains substring return the error
// set via FailWith while other calls proceed normally.
func (m *MockLLM) FailOn(substring string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failureOn = substring
}

// Complete serves the scripted response for one request.
func (m *MockLLM) Complete(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{SystemPrompt: systemPrompt, UserPrompt: userPrompt})

	if m.err != nil && (m.failureOn == "" || strings.Contains(userPrompt, m.failureOn)) {
		return "", m.err
	}
	for _, matcher := range m.matchers {
		if strings.Contains(userPrompt, matcher.substring) {
			return matcher.response, nil
		}
	}
	if len(m.queue) > 0 {
		response := m.queue[0]
		m.queue = m.queue[1:]
		return response, nil
	}
	return "[]", nil
}

// Name identifies the mock in logs.
func (m *MockLLM) Name() string { return "mock" }

// Calls returns a copy of the recorded requests.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]MockCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallCount returns how many completions were requested.
func (m *MockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
