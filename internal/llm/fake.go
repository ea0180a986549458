package llm

import (
	"context"
	"sync"
)

// FakeClient replays scripted responses for offline use and tests. Each call
// consumes the next response; the last one repeats once the script runs out.
// Requests are recorded for assertions.
type FakeClient struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     []Request
}

func NewFakeClient(responses ...string) *FakeClient {
	if len(responses) == 0 {
		responses = []string{fakeWidgetCode}
	}
	return &FakeClient{responses: responses}
}

const fakeWidgetCode = `export default function Widget({ model, html, React }) {
  const data = model.get("data") || [];
  return html` + "`" + `<section class="viz-shell"><p>${data.length} records</p></section>` + "`" + `;
}`

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

// FailWith queues an error before the scripted responses.
func (f *FakeClient) FailWith(errs ...error) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, errs...)
	return f
}

func (f *FakeClient) GenerateCode(_ context.Context, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return "", err
	}
	out := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return out, nil
}

// Calls returns a copy of every request seen so far.
func (f *FakeClient) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.calls...)
}

func (f *FakeClient) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
