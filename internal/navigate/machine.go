// Package navigate implements the per-item navigation and verification state
// machine: load, gone-detection, consent, challenge solving, readiness.
package navigate

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/jobkontakt/crawler/internal/core"
)

// goneMarkers are page phrases that mean the listing no longer exists even
// when the server answers 200.
var goneMarkers = []string{
	"Die gewünschte Seite konnte nicht gefunden werden",
	"Seite nicht gefunden",
	"Fehler 404",
	"Error 404",
	"404 - Seite",
	"nicht mehr verfügbar",
	"bereits vergeben",
}

// Selectors names the page controls the machine interacts with. Zero values
// fall back to the defaults the target site uses.
type Selectors struct {
	ConsentButton   string
	ConsentName     string
	ChallengeImage  string
	ChallengeInput  string
	ChallengeSubmit string
	ContentReady    string
}

func (s *Selectors) applyDefaults() {
	if s.ConsentButton == "" {
		s.ConsentButton = `button[data-testid="bahf-cookie-disclaimer-btn-alle"]`
	}
	if s.ConsentName == "" {
		s.ConsentName = "Alle Cookies akzeptieren"
	}
	if s.ChallengeImage == "" {
		s.ChallengeImage = `img[src*="captcha"]`
	}
	if s.ChallengeInput == "" {
		s.ChallengeInput = `input[id*="captcha"]`
	}
	if s.ChallengeSubmit == "" {
		s.ChallengeSubmit = `button[type="submit"]`
	}
	if s.ContentReady == "" {
		s.ContentReady = "main"
	}
}

// Config controls a Machine.
type Config struct {
	WorkerID  string
	Selectors Selectors
}

// SessionExporter is the optional browser capability for carrying cookies
// across restarts. The chromedp browser implements it.
type SessionExporter interface {
	ExportSession(ctx context.Context) ([]byte, error)
	ImportSession(ctx context.Context, blob []byte) error
}

// Machine walks one work item through load, gone-detection, consent,
// challenge resolution and readiness. It owns no cross-item state beyond the
// per-session consent marker.
type Machine struct {
	cfg      Config
	browser  core.Browser
	solver   core.ChallengeSolver
	sessions core.SessionStore
	logger   *zap.Logger
}

// New builds a Machine. solver may be nil when no solving service is
// configured; challenges then fail the item immediately.
func New(cfg Config, browser core.Browser, solver core.ChallengeSolver, sessions core.SessionStore, logger *zap.Logger) (*Machine, error) {
	if browser == nil {
		return nil, fmt.Errorf("browser is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.WorkerID == "" {
		return nil, fmt.Errorf("worker id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Selectors.applyDefaults()
	return &Machine{
		cfg:      cfg,
		browser:  browser,
		solver:   solver,
		sessions: sessions,
		logger:   logger.With(zap.String("worker_id", cfg.WorkerID)),
	}, nil
}

// Restore loads the worker's saved session into the browser, if both the
// blob and the capability exist. Called once at worker start.
func (m *Machine) Restore(ctx context.Context) error {
	exporter, ok := m.browser.(SessionExporter)
	if !ok {
		return nil
	}
	blob, found, err := m.sessions.Load(m.cfg.WorkerID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !found {
		return nil
	}
	if err := exporter.ImportSession(ctx, blob); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	m.logger.Debug("session restored")
	return nil
}

// Process runs the state machine for one target. Every failure is folded
// into the returned outcome; Process never panics an item into the caller.
func (m *Machine) Process(ctx context.Context, target core.Target) core.NavigationOutcome {
	page, err := m.browser.Goto(ctx, target.URL)
	if err != nil {
		return core.NavigationOutcome{
			Status: core.OutcomeError,
			Detail: fmt.Sprintf("load failed: %v", err),
		}
	}

	redirectDomain := externalDomain(target.URL, page.FinalURL)

	// A gone listing is terminal before consent or challenge logic runs.
	if page.StatusCode >= 400 && page.StatusCode < 500 {
		return core.NavigationOutcome{
			Status:         core.OutcomeNotFound,
			RedirectDomain: redirectDomain,
			Detail:         fmt.Sprintf("status %d", page.StatusCode),
		}
	}
	content, err := m.browser.Content(ctx)
	if err != nil {
		return core.NavigationOutcome{
			Status: core.OutcomeError,
			Detail: fmt.Sprintf("read content: %v", err),
		}
	}
	if marker := goneMarker(content); marker != "" {
		return core.NavigationOutcome{
			Status:         core.OutcomeNotFound,
			RedirectDomain: redirectDomain,
			Detail:         "page text: " + marker,
		}
	}

	if err := m.ensureConsent(ctx); err != nil {
		return core.NavigationOutcome{
			Status: core.OutcomeError,
			Detail: fmt.Sprintf("consent: %v", err),
		}
	}

	present, err := m.browser.Exists(ctx, m.cfg.Selectors.ChallengeImage)
	if err != nil {
		return core.NavigationOutcome{
			Status: core.OutcomeError,
			Detail: fmt.Sprintf("challenge check: %v", err),
		}
	}
	solved := false
	if present {
		if err := m.solveChallenge(ctx); err != nil {
			return core.NavigationOutcome{
				Status: core.OutcomeChallengeFailed,
				Detail: err.Error(),
			}
		}
		solved = true
		// The solve replaced the page content.
		content, err = m.browser.Content(ctx)
		if err != nil {
			return core.NavigationOutcome{
				Status: core.OutcomeError,
				Detail: fmt.Sprintf("read content after solve: %v", err),
			}
		}
	}

	return core.NavigationOutcome{
		Status:          core.OutcomeReady,
		Content:         content,
		RedirectDomain:  redirectDomain,
		ChallengeSolved: solved,
	}
}

// ensureConsent probes for the accept-all control exactly once per worker
// session. Three strategies run in order; absence of all three is a valid
// outcome. The session is marked handled either way so later items skip the
// probe.
func (m *Machine) ensureConsent(ctx context.Context) error {
	if m.sessions.Handled(m.cfg.WorkerID) {
		return nil
	}

	clicked, err := m.clickConsent(ctx)
	if err != nil {
		return err
	}
	if clicked {
		m.logger.Info("consent accepted")
	} else {
		m.logger.Debug("no consent prompt found")
	}

	if err := m.persistSession(ctx); err != nil {
		m.logger.Warn("session save failed", zap.Error(err))
	}
	return m.sessions.MarkHandled(m.cfg.WorkerID)
}

func (m *Machine) clickConsent(ctx context.Context) (bool, error) {
	sel := m.cfg.Selectors

	// Strategy 1: exact attribute lookup.
	if ok, err := m.browser.Exists(ctx, sel.ConsentButton); err != nil {
		return false, err
	} else if ok {
		if err := m.browser.Click(ctx, sel.ConsentButton); err != nil {
			return false, err
		}
		return true, nil
	}

	// Strategy 2: accessible-name lookup across buttons.
	// Strategy 3: visible-text scan, same pass.
	script := fmt.Sprintf(`(() => {
		const want = %q.toLowerCase();
		for (const b of document.querySelectorAll('button')) {
			const name = (b.getAttribute('aria-label') || '').trim().toLowerCase();
			const text = (b.textContent || '').trim().toLowerCase();
			if (name === want || text.includes(want)) { b.click(); return true; }
		}
		return false;
	})()`, sel.ConsentName)

	var clicked bool
	if err := m.browser.Evaluate(ctx, script, &clicked); err != nil {
		return false, err
	}
	return clicked, nil
}

// solveChallenge captures the challenge image, asks the solver for the text,
// submits it and re-confirms the content container is visible. The session
// is saved immediately after a successful solve.
func (m *Machine) solveChallenge(ctx context.Context) error {
	if m.solver == nil {
		return fmt.Errorf("challenge present but no solver configured: %w", core.ErrChallengeRejected)
	}

	image, err := m.challengeImage(ctx)
	if err != nil {
		return fmt.Errorf("capture challenge image: %w", err)
	}

	answer, err := m.solver.Solve(ctx, image)
	if err != nil {
		return err
	}
	m.logger.Info("challenge solved", zap.Int("answer_len", len(answer)))

	sel := m.cfg.Selectors
	if err := m.browser.Fill(ctx, sel.ChallengeInput, answer); err != nil {
		return fmt.Errorf("enter solution: %w", err)
	}
	if err := m.browser.Click(ctx, sel.ChallengeSubmit); err != nil {
		return fmt.Errorf("submit solution: %w", err)
	}

	ready, err := m.browser.Exists(ctx, sel.ContentReady)
	if err != nil {
		return fmt.Errorf("readiness check: %w", err)
	}
	if !ready {
		return fmt.Errorf("content not visible after solve: %w", core.ErrChallengeRejected)
	}

	// A solved challenge changes session validity for the rest of the run.
	if err := m.persistSession(ctx); err != nil {
		m.logger.Warn("session save after solve failed", zap.Error(err))
	}
	return nil
}

// challengeImage renders the challenge image to a canvas in-page and decodes
// the data URL. Falls back to a viewport screenshot when the canvas is
// tainted or the image is not yet loaded.
func (m *Machine) challengeImage(ctx context.Context) ([]byte, error) {
	script := fmt.Sprintf(`(() => {
		const img = document.querySelector(%q);
		if (!img || !img.complete) { return ''; }
		const canvas = document.createElement('canvas');
		canvas.width = img.naturalWidth;
		canvas.height = img.naturalHeight;
		try {
			canvas.getContext('2d').drawImage(img, 0, 0);
			return canvas.toDataURL('image/png');
		} catch (e) { return ''; }
	})()`, m.cfg.Selectors.ChallengeImage)

	var dataURL string
	if err := m.browser.Evaluate(ctx, script, &dataURL); err != nil {
		return nil, err
	}
	if idx := strings.Index(dataURL, ","); idx > 0 {
		decoded, err := base64.StdEncoding.DecodeString(dataURL[idx+1:])
		if err == nil && len(decoded) > 0 {
			return decoded, nil
		}
	}
	return m.browser.Screenshot(ctx)
}

func (m *Machine) persistSession(ctx context.Context) error {
	exporter, ok := m.browser.(SessionExporter)
	if !ok {
		return nil
	}
	blob, err := exporter.ExportSession(ctx)
	if err != nil {
		return err
	}
	return m.sessions.Save(m.cfg.WorkerID, blob)
}

// goneMarker returns the first matching gone phrase, or "".
func goneMarker(content string) string {
	for _, marker := range goneMarkers {
		if strings.Contains(content, marker) {
			return marker
		}
	}
	return ""
}

// externalDomain returns the final host when navigation landed on a
// different registrable host than requested, or "".
func externalDomain(requested, final string) string {
	if final == "" {
		return ""
	}
	reqURL, err := url.Parse(requested)
	if err != nil {
		return ""
	}
	finURL, err := url.Parse(final)
	if err != nil {
		return ""
	}
	reqHost := strings.TrimPrefix(strings.ToLower(reqURL.Hostname()), "www.")
	finHost := strings.TrimPrefix(strings.ToLower(finURL.Hostname()), "www.")
	if reqHost == "" || finHost == "" || reqHost == finHost {
		return ""
	}
	return finHost
}
