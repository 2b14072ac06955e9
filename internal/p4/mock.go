package p4

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Call records one invocation made against a MockClient.
type Call struct {
	Cmd   string
	Args  []string
	Input Record
}

// Key returns the lookup key used for scripted responses.
func (c Call) Key() string {
	return CommandKey(c.Cmd, c.Args...)
}

// CommandKey joins a command and its arguments with single spaces.
func CommandKey(cmd string, args ...string) string {
	return strings.TrimSpace(cmd + " " + strings.Join(args, " "))
}

type mockResponse struct {
	records []Record
	output  []byte
	err     error
}

// MockClient is an in-memory Client returning scripted responses. Commands
// without a scripted response fall through to Handler, and fail with
// ErrNotFound when no handler is set.
type MockClient struct {
	mu        sync.Mutex
	responses map[string]mockResponse
	outputs   map[string]mockResponse
	calls     []Call

	// Handler answers commands that have no scripted response.
	Handler func(call Call) ([]Record, error)
}

// Compile-time check that MockClient implements Client.
var _ Client = (*MockClient)(nil)

// NewMockClient creates an empty mock.
func NewMockClient() *MockClient {
	return &MockClient{
		responses: make(map[string]mockResponse),
		outputs:   make(map[string]mockResponse),
	}
}

// On scripts the records returned for an exact command line.
func (m *MockClient) On(cmd string, args []string, records ...Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.responses[CommandKey(cmd, args...)] = mockResponse{records: records}
}

// OnOutput scripts the raw stdout returned by Output for a command line.
func (m *MockClient) OnOutput(cmd string, args []string, output []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.outputs[CommandKey(cmd, args...)] = mockResponse{output: output}
}

// OnError scripts an error for an exact command line, for both Run and
// Output.
func (m *MockClient) OnError(cmd string, args []string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := CommandKey(cmd, args...)
	m.responses[key] = mockResponse{err: err}
	m.outputs[key] = mockResponse{err: err}
}

// Calls returns a copy of the recorded invocations.
func (m *MockClient) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Call, len(m.calls))
	copy(out, m.calls)

	return out
}

// Run implements Client.
func (m *MockClient) Run(_ context.Context, cmd string, args []string,
	input Record) ([]Record, error) {

	call := Call{Cmd: cmd, Args: append([]string(nil), args...)}
	if input != nil {
		call.Input = make(Record, len(input))
		for k, v := range input {
			call.Input[k] = v
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	resp, ok := m.responses[call.Key()]
	handler := m.Handler
	m.mu.Unlock()

	if ok {
		return copyRecords(resp.records), resp.err
	}
	if handler != nil {
		return handler(call)
	}

	return nil, fmt.Errorf("%w: unscripted command %q", ErrNotFound,
		call.Key())
}

// Output implements Client.
func (m *MockClient) Output(_ context.Context, cmd string,
	args []string) ([]byte, error) {

	call := Call{Cmd: cmd, Args: append([]string(nil), args...)}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, call)
	resp, ok := m.outputs[call.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: unscripted output %q", ErrNotFound,
			call.Key())
	}

	return append([]byte(nil), resp.output...), resp.err
}

func copyRecords(in []Record) []Record {
	if in == nil {
		return nil
	}
	out := make([]Record, len(in))
	for i, r := range in {
		cp := make(Record, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}

	return out
}
