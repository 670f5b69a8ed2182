package llm

import (
	"context"
	"strings"
	"sync"
)

// ScriptedClient is a deterministic Client for tests. Responses are
// selected by substring match on the prompt, falling back to a default.
// Calls are recorded so tests can assert on what was sent.
type ScriptedClient struct {
	mu sync.Mutex

	// rules are checked in order; the first whose Match is contained in
	// the prompt wins.
	rules []scriptRule

	// defaultResponse answers prompts no rule matches.
	defaultResponse string

	// err, when set, fails every call.
	err error

	calls []Request
}

type scriptRule struct {
	match    string
	response string
	err      error
}

// NewScriptedClient returns a client whose unmatched calls answer with
// defaultResponse.
func NewScriptedClient(defaultResponse string) *ScriptedClient {
	return &ScriptedClient{defaultResponse: defaultResponse}
}

// Respond registers a response for prompts containing match.
func (s *ScriptedClient) Respond(match, response string) *ScriptedClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, scriptRule{match: match, response: response})
	return s
}

// FailOn registers an error for prompts containing match.
func (s *ScriptedClient) FailOn(match string, err error) *ScriptedClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, scriptRule{match: match, err: err})
	return s
}

// FailAll makes every call return err.
func (s *ScriptedClient) FailAll(err error) *ScriptedClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// Complete implements Client.
func (s *ScriptedClient) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)

	if s.err != nil {
		return "", s.err
	}
	for _, r := range s.rules {
		if strings.Contains(req.Prompt, r.match) || strings.Contains(req.System, r.match) {
			if r.err != nil {
				return "", r.err
			}
			return r.response, nil
		}
	}
	return s.defaultResponse, nil
}

// Available implements Client; a scripted client is always available.
func (s *ScriptedClient) Available(ctx context.Context) bool { return true }

// ModelName implements Client.
func (s *ScriptedClient) ModelName() string { return "scripted" }

// Calls returns a copy of every request seen so far.
func (s *ScriptedClient) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many completions were requested.
func (s *ScriptedClient) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

var _ Client = (*ScriptedClient)(nil)
