// Package ui renders benchmark study progress, with a bubbletea TUI for
// interactive terminals and a plain text fallback for CI and pipes.
package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Phase represents a benchmark study phase.
type Phase int

const (
	// PhaseLoad is the test case loading phase.
	PhaseLoad Phase = iota
	// PhaseContexts is the session context preparation phase.
	PhaseContexts
	// PhaseTrials is the ranking trial execution phase.
	PhaseTrials
	// PhaseDone indicates the study is complete.
	PhaseDone
)

// String returns the human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseLoad:
		return "Loading"
	case PhaseContexts:
		return "Contexts"
	case PhaseTrials:
		return "Trials"
	case PhaseDone:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short phase icon for plain text output.
func (p Phase) Icon() string {
	switch p {
	case PhaseLoad:
		return "LOAD"
	case PhaseContexts:
		return "CTX"
	case PhaseTrials:
		return "TRIAL"
	case PhaseDone:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent represents a study progress update.
type ProgressEvent struct {
	Phase   Phase
	Current int
	Total   int
	CaseID  string
	Message string
}

// CaseError represents a failed or degraded trial.
type CaseError struct {
	CaseID string
	Err    error
	IsWarn bool
}

// StudyStats contains final study statistics.
type StudyStats struct {
	Cases        int
	Failures     int
	Warnings     int
	CacheHits    int
	Workers      int
	Duration     time.Duration
	MeanCaseTime time.Duration
}

// Renderer defines the interface for study progress display.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates progress display.
	UpdateProgress(event ProgressEvent)

	// AddError adds a trial error to display.
	AddError(event CaseError)

	// Complete marks rendering as complete with summary.
	Complete(stats StudyStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the study renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Study      string // study label shown in the header (cases file)
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithStudy sets the study label shown in the header.
func WithStudy(study string) ConfigOption {
	return func(c *Config) {
		c.Study = study
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer creates an appropriate renderer based on config and
// environment. It returns a TUI renderer for interactive terminals, and
// a plain text renderer for CI environments, pipes, or when plain output
// is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain {
		return NewPlainRenderer(cfg)
	}
	if !IsTTY(cfg.Output) {
		return NewPlainRenderer(cfg)
	}
	if DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}

// StudyTracker manages study progress state across phases.
// It is safe for concurrent use by worker goroutines.
type StudyTracker struct {
	mu         sync.Mutex
	phase      Phase
	current    int
	total      int
	caseID     string
	startTime  time.Time
	phaseStart time.Time
	errors     []CaseError
	warnings   []CaseError
	cacheHits  int

	// ETA smoothing to prevent wild fluctuations between trials
	lastETA time.Duration
}

// StudySnapshot contains a snapshot of current study progress.
type StudySnapshot struct {
	Phase      Phase
	Current    int
	Total      int
	Progress   float64
	ETA        time.Duration
	CaseID     string
	ErrorCount int
	WarnCount  int
	CacheHits  int
}

// NewStudyTracker creates a new study tracker.
func NewStudyTracker() *StudyTracker {
	now := time.Now()
	return &StudyTracker{
		phase:      PhaseLoad,
		startTime:  now,
		phaseStart: now,
	}
}

// SetPhase transitions to a new phase.
func (t *StudyTracker) SetPhase(phase Phase, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.phase = phase
	t.total = total
	t.current = 0
	t.caseID = ""
	t.phaseStart = time.Now()
	t.lastETA = 0
}

// Update updates progress within the current phase.
func (t *StudyTracker) Update(current int, caseID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = current
	if caseID != "" {
		t.caseID = caseID
	}
}

// AddError records a trial error or warning.
func (t *StudyTracker) AddError(event CaseError) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if event.IsWarn {
		t.warnings = append(t.warnings, event)
	} else {
		t.errors = append(t.errors, event)
	}
}

// AddCacheHit records a session context served from the study cache.
func (t *StudyTracker) AddCacheHit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cacheHits++
}

// Elapsed returns time since tracker creation.
func (t *StudyTracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.startTime)
}

// Errors returns the list of recorded errors.
func (t *StudyTracker) Errors() []CaseError {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]CaseError, len(t.errors))
	copy(result, t.errors)
	return result
}

// Stats returns a snapshot of current progress.
func (t *StudyTracker) Stats() StudySnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	progress := 0.0
	if t.total > 0 {
		progress = float64(t.current) / float64(t.total)
		if progress > 1.0 {
			progress = 1.0
		}
	}

	return StudySnapshot{
		Phase:      t.phase,
		Current:    t.current,
		Total:      t.total,
		Progress:   progress,
		ETA:        t.calculateETA(),
		CaseID:     t.caseID,
		ErrorCount: len(t.errors),
		WarnCount:  len(t.warnings),
		CacheHits:  t.cacheHits,
	}
}

// etaSmoothingFactor controls how much weight is given to new ETA values.
// Trials vary from sub-second (cached) to minutes (LLM evaluation), so a
// low factor keeps the display stable.
const etaSmoothingFactor = 0.3

// calculateETA estimates remaining time (must be called with lock held).
func (t *StudyTracker) calculateETA() time.Duration {
	if t.current == 0 || t.total == 0 {
		return 0
	}

	elapsed := time.Since(t.phaseStart)
	progress := float64(t.current) / float64(t.total)
	if progress <= 0 || progress >= 1.0 {
		return 0
	}

	totalEstimate := time.Duration(float64(elapsed) / progress)
	rawRemaining := totalEstimate - elapsed
	if rawRemaining < 0 {
		return 0
	}

	if t.lastETA == 0 {
		t.lastETA = rawRemaining
		return rawRemaining
	}

	smoothed := time.Duration(
		etaSmoothingFactor*float64(rawRemaining) +
			(1-etaSmoothingFactor)*float64(t.lastETA),
	)
	t.lastETA = smoothed
	return smoothed
}

// TUIRenderer provides rich terminal UI using bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *studyModel
	tracker *StudyTracker
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer.
// Returns an error if TUI initialization fails (e.g., non-TTY output).
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewStudyTracker()
	model := newStudyModel(tracker, cfg.Study)

	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	_, r.cancel = context.WithCancel(ctx)

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()

	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Phase != r.tracker.Stats().Phase {
		r.tracker.SetPhase(event.Phase, event.Total)
	}
	r.tracker.Update(event.Current, event.CaseID)

	if r.program != nil {
		r.program.Send(progressUpdateMsg(event))
	}
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event CaseError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.AddError(event)

	if r.program != nil {
		r.program.Send(caseErrorMsg(event))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats StudyStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.SetPhase(PhaseDone, 0)

	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.cancel()
	}

	if r.program != nil {
		r.program.Quit()

		// Wait with timeout to avoid hanging on an unresponsive TUI
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
		}
	}

	return nil
}

// Message types for bubbletea
type progressUpdateMsg ProgressEvent
type caseErrorMsg CaseError
type completeMsg StudyStats
type tickMsg time.Time

// studyModel is the bubbletea model for study progress.
type studyModel struct {
	tracker     *StudyTracker
	width       int
	quitting    bool
	complete    bool
	stats       StudyStats
	spinner     spinner.Model
	progressBar progress.Model
	styles      Styles
	study       string
}

func newStudyModel(tracker *StudyTracker, study string) *studyModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))

	p := progress.New(
		progress.WithSolidFill(ColorLime),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	return &studyModel{
		tracker:     tracker,
		spinner:     s,
		progressBar: p,
		styles:      DefaultStyles(),
		width:       80,
		study:       study,
	}
}

// Init implements tea.Model.
func (m *studyModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		tickCmd(),
	)
}

// tickCmd returns a command that ticks every 250ms.
func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *studyModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = msg.Width - 20
		if m.progressBar.Width < 20 {
			m.progressBar.Width = 20
		}

	case progressUpdateMsg:
		// Already handled by tracker in renderer
		return m, nil

	case caseErrorMsg:
		// Already handled by tracker in renderer
		return m, nil

	case completeMsg:
		m.complete = true
		m.stats = StudyStats(msg)
		return m, tea.Quit

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *studyModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}

	if m.complete {
		return m.renderComplete()
	}

	contentWidth := m.width - 4
	if contentWidth < 40 {
		contentWidth = 40
	}

	var sections []string
	sections = append(sections, m.renderPhases())
	sections = append(sections, m.renderDivider(contentWidth))
	sections = append(sections, m.renderProgress())

	if caseID := m.tracker.Stats().CaseID; caseID != "" {
		sections = append(sections, m.styles.Dim.Render("case "+caseID))
	}

	content := strings.Join(sections, "\n")

	title := "Medrank Bench"
	if m.study != "" {
		title = fmt.Sprintf("Medrank Bench • %s", m.study)
	}
	panel := m.wrapInPanel(title, content, contentWidth)

	return panel + "\n" + m.renderStatusBar()
}

// renderPhases renders the study phase indicators.
func (m *studyModel) renderPhases() string {
	currentPhase := m.tracker.Stats().Phase

	phases := []struct {
		phase Phase
		name  string
	}{
		{PhaseLoad, "Load"},
		{PhaseContexts, "Contexts"},
		{PhaseTrials, "Trials"},
	}

	var parts []string
	for _, p := range phases {
		var icon string
		var style lipgloss.Style

		switch {
		case p.phase < currentPhase:
			icon = "●"
			style = m.styles.Success
		case p.phase == currentPhase:
			icon = m.spinner.View()
			style = m.styles.Active
		default:
			icon = "○"
			style = m.styles.Dim
		}

		parts = append(parts, style.Render(icon+" "+p.name))
	}

	arrow := m.styles.Dim.Render(" → ")
	return strings.Join(parts, arrow)
}

// renderProgress renders the progress bar with counts and ETA.
func (m *studyModel) renderProgress() string {
	stats := m.tracker.Stats()

	if stats.Total == 0 {
		return fmt.Sprintf("%s %s...", m.spinner.View(), stats.Phase.String())
	}

	bar := m.progressBar.ViewAs(stats.Progress)
	pctStr := m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100))

	countLine := m.styles.Label.Render(fmt.Sprintf("%d / %d cases", stats.Current, stats.Total))
	if eta := stats.ETA; eta > 0 {
		countLine += m.styles.Dim.Render("  •  ETA " + formatDuration(eta))
	}

	return fmt.Sprintf("%s  %s\n%s", bar, pctStr, countLine)
}

// renderDivider renders a horizontal divider line.
func (m *studyModel) renderDivider(width int) string {
	return m.styles.Border.Render(strings.Repeat("─", width))
}

// wrapInPanel wraps content in a box border with title.
func (m *studyModel) wrapInPanel(title, content string, width int) string {
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(width)

	titleStyled := m.styles.Header.Render(title)

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyled,
		panel.Render(content),
	)
}

// renderStatusBar renders the bottom status bar with warnings/errors.
func (m *studyModel) renderStatusBar() string {
	stats := m.tracker.Stats()
	var parts []string

	if stats.WarnCount > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", stats.WarnCount)))
	}
	if stats.ErrorCount > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d failures", stats.ErrorCount)))
	}

	if len(parts) == 0 {
		return m.styles.Dim.Render("q to quit")
	}

	separator := m.styles.Dim.Render("  │  ")
	return strings.Join(parts, separator) + m.styles.Dim.Render("  │  q to quit")
}

// renderComplete renders the completion summary.
func (m *studyModel) renderComplete() string {
	contentWidth := m.width - 4
	if contentWidth < 40 {
		contentWidth = 40
	}

	var lines []string
	lines = append(lines, m.styles.Success.Render("✓ Study Complete"))
	lines = append(lines, "")

	casesLabel := m.styles.Label.Render("Cases:")
	durationLabel := m.styles.Label.Render("Duration:")
	lines = append(lines, fmt.Sprintf("%s    %s", casesLabel, m.styles.Active.Render(fmt.Sprintf("%d", m.stats.Cases))))
	lines = append(lines, fmt.Sprintf("%s %s", durationLabel, m.styles.Active.Render(formatDuration(m.stats.Duration))))

	if m.stats.MeanCaseTime > 0 {
		meanLabel := m.styles.Label.Render("Per case:")
		lines = append(lines, fmt.Sprintf("%s %s", meanLabel, m.styles.Active.Render(formatDuration(m.stats.MeanCaseTime))))
	}
	if m.stats.CacheHits > 0 {
		cacheLabel := m.styles.Label.Render("Cached:")
		lines = append(lines, fmt.Sprintf("%s   %s", cacheLabel, m.styles.Active.Render(fmt.Sprintf("%d contexts", m.stats.CacheHits))))
	}

	if m.stats.Failures > 0 || m.stats.Warnings > 0 {
		lines = append(lines, "")
		if m.stats.Failures > 0 {
			lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d failures", m.stats.Failures)))
		}
		if m.stats.Warnings > 0 {
			lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", m.stats.Warnings)))
		}
	}

	content := strings.Join(lines, "\n")

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorLime)).
		Padding(1, 2).
		Width(contentWidth)

	return panel.Render(content) + "\n"
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", h, m)
}

// Ensure TUIRenderer implements Renderer
var _ Renderer = (*TUIRenderer)(nil)
