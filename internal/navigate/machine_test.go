package navigate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jobkontakt/crawler/internal/core"
)

// fakeBrowser scripts a page: fixed status, final URL, content and a set of
// selectors that exist. Clicks and fills are recorded.
type fakeBrowser struct {
	status   int
	finalURL string
	content  string
	present  map[string]bool
	evalOut  map[string]any

	gotoErr error

	clicks []string
	fills  map[string]string
	evals  []string

	exported []byte
	imported []byte
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		status:  200,
		present: map[string]bool{},
		evalOut: map[string]any{},
		fills:   map[string]string{},
	}
}

func (f *fakeBrowser) Goto(_ context.Context, url string) (core.PageInfo, error) {
	if f.gotoErr != nil {
		return core.PageInfo{}, f.gotoErr
	}
	final := f.finalURL
	if final == "" {
		final = url
	}
	return core.PageInfo{StatusCode: f.status, FinalURL: final}, nil
}

func (f *fakeBrowser) Evaluate(_ context.Context, script string, out any) error {
	f.evals = append(f.evals, script)
	for key, val := range f.evalOut {
		if strings.Contains(script, key) {
			blob, err := json.Marshal(val)
			if err != nil {
				return err
			}
			return json.Unmarshal(blob, out)
		}
	}
	switch v := out.(type) {
	case *bool:
		*v = false
	case *string:
		*v = ""
	}
	return nil
}

func (f *fakeBrowser) Exists(_ context.Context, selector string) (bool, error) {
	return f.present[selector], nil
}

func (f *fakeBrowser) Click(_ context.Context, selector string) error {
	f.clicks = append(f.clicks, selector)
	return nil
}

func (f *fakeBrowser) Fill(_ context.Context, selector, value string) error {
	f.fills[selector] = value
	return nil
}

func (f *fakeBrowser) Attribute(_ context.Context, _, _ string) (string, bool, error) {
	return "", false, nil
}

func (f *fakeBrowser) Content(_ context.Context) (string, error) {
	return f.content, nil
}

func (f *fakeBrowser) Screenshot(_ context.Context) ([]byte, error) {
	return []byte("screenshot-png"), nil
}

func (f *fakeBrowser) ExportSession(_ context.Context) ([]byte, error) {
	if f.exported == nil {
		return []byte(`{"cookies":[]}`), nil
	}
	return f.exported, nil
}

func (f *fakeBrowser) ImportSession(_ context.Context, blob []byte) error {
	f.imported = blob
	return nil
}

type fakeSessions struct {
	blobs   map[string][]byte
	handled map[string]bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{blobs: map[string][]byte{}, handled: map[string]bool{}}
}

func (s *fakeSessions) Load(id string) ([]byte, bool, error) {
	blob, ok := s.blobs[id]
	return blob, ok, nil
}
func (s *fakeSessions) Save(id string, blob []byte) error { s.blobs[id] = blob; return nil }
func (s *fakeSessions) Handled(id string) bool            { return s.handled[id] }
func (s *fakeSessions) MarkHandled(id string) error       { s.handled[id] = true; return nil }

type fakeSolver struct {
	answer string
	err    error
	images [][]byte
}

func (s *fakeSolver) Solve(_ context.Context, image []byte) (string, error) {
	s.images = append(s.images, image)
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

func newMachine(t *testing.T, browser *fakeBrowser, solver core.ChallengeSolver, sessions core.SessionStore) *Machine {
	t.Helper()
	m, err := New(Config{WorkerID: "worker-1"}, browser, solver, sessions, zap.NewNop())
	require.NoError(t, err)
	return m
}

func TestProcessReadyWithoutChallenge(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	browser.content = "<html><main>Kontakt: jobs@acme.example</main></html>"
	sessions := newFakeSessions()
	sessions.handled["worker-1"] = true

	m := newMachine(t, browser, nil, sessions)
	outcome := m.Process(context.Background(), core.Target{URL: "https://jobs.example/job/1"})

	require.Equal(t, core.OutcomeReady, outcome.Status)
	require.Contains(t, outcome.Content, "jobs@acme.example")
	require.False(t, outcome.ChallengeSolved)
	require.Empty(t, outcome.RedirectDomain)
}

func TestProcess404NeverProbesConsentOrChallenge(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	browser.status = 404
	sessions := newFakeSessions()

	m := newMachine(t, browser, nil, sessions)
	outcome := m.Process(context.Background(), core.Target{URL: "https://jobs.example/job/1"})

	require.Equal(t, core.OutcomeNotFound, outcome.Status)
	require.Empty(t, browser.clicks)
	require.Empty(t, browser.evals)
	require.False(t, sessions.handled["worker-1"])
}

func TestProcessGonePhraseIsNotFound(t *testing.T) {
	t.Parallel()

	for _, phrase := range []string{
		"Die gewünschte Seite konnte nicht gefunden werden",
		"nicht mehr verfügbar",
		"bereits vergeben",
	} {
		browser := newFakeBrowser()
		browser.content = "<html><body>Dieses Stellenangebot ist " + phrase + ".</body></html>"

		m := newMachine(t, browser, nil, newFakeSessions())
		outcome := m.Process(context.Background(), core.Target{URL: "https://jobs.example/job/1"})
		require.Equal(t, core.OutcomeNotFound, outcome.Status, "phrase %q", phrase)
	}
}

func TestConsentExactSelectorWins(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	browser.content = "<html><main>ok</main></html>"
	browser.present[`button[data-testid="bahf-cookie-disclaimer-btn-alle"]`] = true
	sessions := newFakeSessions()

	m := newMachine(t, browser, nil, sessions)
	outcome := m.Process(context.Background(), core.Target{URL: "https://jobs.example/job/1"})

	require.Equal(t, core.OutcomeReady, outcome.Status)
	require.Equal(t, []string{`button[data-testid="bahf-cookie-disclaimer-btn-alle"]`}, browser.clicks)
	require.True(t, sessions.handled["worker-1"])
	// Session was persisted at consent time.
	require.Contains(t, sessions.blobs, "worker-1")
}

func TestConsentFallsBackToNameScan(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	browser.content = "<html><main>ok</main></html>"
	browser.evalOut["Alle Cookies akzeptieren"] = true
	sessions := newFakeSessions()

	m := newMachine(t, browser, nil, sessions)
	outcome := m.Process(context.Background(), core.Target{URL: "https://jobs.example/job/1"})

	require.Equal(t, core.OutcomeReady, outcome.Status)
	require.Empty(t, browser.clicks)
	require.Len(t, browser.evals, 1)
	require.True(t, sessions.handled["worker-1"])
}

func TestConsentAbsenceStillMarksHandled(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	browser.content = "<html><main>ok</main></html>"
	sessions := newFakeSessions()

	m := newMachine(t, browser, nil, sessions)
	first := m.Process(context.Background(), core.Target{URL: "https://jobs.example/job/1"})
	require.Equal(t, core.OutcomeReady, first.Status)
	require.True(t, sessions.handled["worker-1"])

	// Second item in the same session must not re-probe.
	browser.evals = nil
	second := m.Process(context.Background(), core.Target{URL: "https://jobs.example/job/2"})
	require.Equal(t, core.OutcomeReady, second.Status)
	require.Empty(t, browser.evals)
}

func TestChallengeSolvedAndSubmitted(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	browser.content = "<html><main>Kontakt: info@acme.de</main></html>"
	browser.present[`img[src*="captcha"]`] = true
	browser.present["main"] = true
	sessions := newFakeSessions()
	sessions.handled["worker-1"] = true
	solver := &fakeSolver{answer: "AB12"}

	m := newMachine(t, browser, solver, sessions)
	outcome := m.Process(context.Background(), core.Target{URL: "https://jobs.example/job/1"})

	require.Equal(t, core.OutcomeReady, outcome.Status)
	require.True(t, outcome.ChallengeSolved)
	require.Equal(t, "AB12", browser.fills[`input[id*="captcha"]`])
	require.Contains(t, browser.clicks, `button[type="submit"]`)
	require.Len(t, solver.images, 1)
	// Session saved right after the solve.
	require.Contains(t, sessions.blobs, "worker-1")
}

func TestChallengeSolverFailureFailsItem(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	browser.content = "<html><main>ok</main></html>"
	browser.present[`img[src*="captcha"]`] = true
	sessions := newFakeSessions()
	sessions.handled["worker-1"] = true
	solver := &fakeSolver{err: core.ErrChallengeTimeout}

	m := newMachine(t, browser, solver, sessions)
	outcome := m.Process(context.Background(), core.Target{URL: "https://jobs.example/job/1"})

	require.Equal(t, core.OutcomeChallengeFailed, outcome.Status)
	require.Empty(t, browser.fills)
}

func TestChallengeWithoutSolverFailsItem(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	browser.content = "<html><main>ok</main></html>"
	browser.present[`img[src*="captcha"]`] = true
	sessions := newFakeSessions()
	sessions.handled["worker-1"] = true

	m := newMachine(t, browser, nil, sessions)
	outcome := m.Process(context.Background(), core.Target{URL: "https://jobs.example/job/1"})
	require.Equal(t, core.OutcomeChallengeFailed, outcome.Status)
}

func TestChallengeNotReadyAfterSubmitFailsItem(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	browser.content = "<html><div>kein Inhalt</div></html>"
	browser.present[`img[src*="captcha"]`] = true
	browser.present["main"] = false
	sessions := newFakeSessions()
	sessions.handled["worker-1"] = true
	solver := &fakeSolver{answer: "AB12"}

	m := newMachine(t, browser, solver, sessions)
	outcome := m.Process(context.Background(), core.Target{URL: "https://jobs.example/job/1"})
	require.Equal(t, core.OutcomeChallengeFailed, outcome.Status)
}

func TestExternalRedirectDomainDiscovered(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	browser.content = "<html><main>Karriere bei Acme</main></html>"
	browser.finalURL = "https://www.acme-karriere.example/jobs/123"
	sessions := newFakeSessions()
	sessions.handled["worker-1"] = true

	m := newMachine(t, browser, nil, sessions)
	outcome := m.Process(context.Background(), core.Target{URL: "https://jobs.example/job/1"})

	require.Equal(t, core.OutcomeReady, outcome.Status)
	require.Equal(t, "acme-karriere.example", outcome.RedirectDomain)
}

func TestLoadFailureIsError(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	browser.gotoErr = fmt.Errorf("net::ERR_TIMED_OUT")

	m := newMachine(t, browser, nil, newFakeSessions())
	outcome := m.Process(context.Background(), core.Target{URL: "https://jobs.example/job/1"})
	require.Equal(t, core.OutcomeError, outcome.Status)
	require.Contains(t, outcome.Detail, "load failed")
}

func TestRestoreImportsSavedSession(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser()
	sessions := newFakeSessions()
	sessions.blobs["worker-1"] = []byte(`{"cookies":[{"name":"sid"}]}`)

	m := newMachine(t, browser, nil, sessions)
	require.NoError(t, m.Restore(context.Background()))
	require.Equal(t, sessions.blobs["worker-1"], browser.imported)
}

func TestExternalDomain(t *testing.T) {
	t.Parallel()

	require.Empty(t, externalDomain("https://a.example/x", "https://a.example/y"))
	require.Empty(t, externalDomain("https://a.example/x", "https://www.a.example/y"))
	require.Equal(t, "b.example", externalDomain("https://a.example/x", "https://b.example/"))
	require.Empty(t, externalDomain("https://a.example/x", ""))
}
