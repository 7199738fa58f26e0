package sbomscanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dongwonkwak/ironpost/internal/ironcore"
	"github.com/dongwonkwak/ironpost/internal/observability"
	"github.com/dongwonkwak/ironpost/internal/sbomscanner/parser"
)

// Config is the subset of daemon configuration the scanner needs.
type Config struct {
	ScanPaths    []string
	VulnDBPath   string
	ScanInterval time.Duration // 0 disables the periodic task

	// MinSeverity suppresses findings below this severity — the zero
	// value, SeverityInfo, suppresses nothing.
	MinSeverity ironcore.Severity
}

// SbomDocument is the generated bill of materials for one scan pass.
type SbomDocument struct {
	GeneratedAt time.Time
	ScanPaths   []string
	Packages    []parser.Package
}

// Scanner discovers lockfiles, builds an SbomDocument, and matches its
// packages against the vulnerability database, emitting one AlertEvent
// per finding. Implements ironcore.Plugin.
type Scanner struct {
	cfg    Config
	logger *zap.Logger
	out    chan<- ironcore.AlertEvent

	db        *VulnDB
	degraded  bool
	metrics   *observability.Metrics

	state   ironcore.PluginState
	stateMu sync.RWMutex

	cancel context.CancelFunc
	done   chan struct{}
}

// Builder constructs a Scanner with a fluent, optional-field API,
// mirroring the teacher pipeline's own builder pattern for modules with
// several independently-optional settings.
type Builder struct {
	cfg     Config
	logger  *zap.Logger
	out     chan<- ironcore.AlertEvent
	metrics *observability.Metrics
}

// NewBuilder returns a Builder seeded with required fields.
func NewBuilder(cfg Config, logger *zap.Logger, out chan<- ironcore.AlertEvent) *Builder {
	return &Builder{cfg: cfg, logger: logger, out: out}
}

// WithMetrics attaches a metrics recorder to the built Scanner.
// Optional: omitting it means the scanner runs without instrumentation.
func (b *Builder) WithMetrics(m *observability.Metrics) *Builder {
	b.metrics = m
	return b
}

// Build returns the constructed Scanner. The vulnerability database is
// not opened here — that happens in Init, so a slow or missing DB file
// never blocks construction.
func (b *Builder) Build() *Scanner {
	return &Scanner{cfg: b.cfg, logger: b.logger, out: b.out, metrics: b.metrics, state: ironcore.StateCreated}
}

func (s *Scanner) Info() ironcore.PluginInfo {
	return ironcore.PluginInfo{Name: ironcore.ModuleSBOMScanner, Description: "discovers dependency lockfiles and matches them against known vulnerabilities"}
}

func (s *Scanner) State() ironcore.PluginState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Scanner) setState(st ironcore.PluginState) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// Init opens the vulnerability database and never fails. If the
// database cannot be opened (missing parent directory, corrupt or
// locked file, schema mismatch) or opens empty, Init logs a warning and
// continues in degraded (SBOM-only) mode: the scanner still generates
// SBOMs but raises no vulnerability alerts. The open is attempted
// directly rather than pre-checking existence (avoids a
// check-then-act race against a concurrent writer).
func (s *Scanner) Init(ctx context.Context) error {
	db, err := OpenVulnDB(s.cfg.VulnDBPath)
	if err != nil {
		s.logger.Warn("vulnerability database unavailable, scanner running in degraded (sbom-only) mode", zap.Error(err))
		s.degraded = true
		s.setState(ironcore.StateInitialized)
		return nil
	}
	s.db = db
	if db.Count() == 0 {
		s.logger.Warn("vulnerability database is empty, scanner running in degraded (sbom-only) mode")
		s.degraded = true
	}
	s.setState(ironcore.StateInitialized)
	return nil
}

// Start launches the periodic scan task, if configured, and leaves the
// scanner ready for on-demand Scan calls (from the control socket / CLI
// `scan` subcommand) regardless.
func (s *Scanner) Start(ctx context.Context) error {
	if s.State() == ironcore.StateRunning {
		return ironcore.ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	if s.cfg.ScanInterval > 0 {
		go s.periodicScan(runCtx)
	} else {
		close(s.done)
	}

	s.setState(ironcore.StateRunning)
	return nil
}

func (s *Scanner) periodicScan(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, path := range s.cfg.ScanPaths {
				if _, err := s.Scan(ctx, path); err != nil {
					s.logger.Warn("periodic sbom scan failed", zap.String("path", path), zap.Error(err))
				}
			}
		}
	}
}

// Scan runs one scan pass over dir: discovers lockfiles, builds an
// SbomDocument, and — unless running in degraded mode — matches every
// package against the vulnerability database, emitting one AlertEvent
// per finding via a non-blocking send (a finding that meets a full
// alert channel is logged and dropped, not fatal).
func (s *Scanner) Scan(ctx context.Context, dir string) (*SbomDocument, error) {
	pkgs, err := scanDirectory(s.logger, dir)
	if err != nil {
		return nil, &ironcore.SbomError{Path: dir, Reason: err.Error()}
	}

	doc := &SbomDocument{GeneratedAt: time.Now(), ScanPaths: []string{dir}, Packages: pkgs}

	if s.metrics != nil {
		s.metrics.ScansCompletedTotal.Inc()
		s.metrics.PackagesScannedTotal.Add(float64(len(pkgs)))
	}

	if s.degraded || s.db == nil {
		return doc, nil
	}

	for _, pkg := range pkgs {
		vulns, found := s.db.Lookup(pkg.Ecosystem, pkg.Name)
		if !found {
			continue
		}
		for _, v := range vulns {
			if !versionAffected(pkg.Version, v) {
				continue
			}
			if v.Severity < s.cfg.MinSeverity {
				continue
			}
			s.emitFinding(ironcore.ScanFinding{Vulnerability: v, PackageVersion: pkg.Version, SourceFile: dir})
		}
	}
	return doc, nil
}

// versionAffected reports whether pkgVersion falls inside one of v's
// affected ranges. Ranges are matched as exact strings or "*" (any
// version) — this scanner doesn't implement semver range arithmetic,
// matching the conservative, exact-match-first posture of the packages
// it's grounded on.
func versionAffected(pkgVersion string, v ironcore.Vulnerability) bool {
	for _, r := range v.AffectedRanges {
		if r == "*" || r == pkgVersion {
			return true
		}
	}
	return false
}

func (s *Scanner) emitFinding(finding ironcore.ScanFinding) {
	alert := ironcore.Alert{
		ID:          fmt.Sprintf("%s-%s", finding.Vulnerability.CVEID, finding.Vulnerability.Package),
		Title:       fmt.Sprintf("%s: %s", finding.Vulnerability.CVEID, finding.Vulnerability.Package),
		Description: finding.Vulnerability.Description,
		Severity:    finding.Vulnerability.Severity,
		RuleName:    "sbom-vulnerability-match",
		CreatedAt:   time.Now(),
	}
	alertEvent := ironcore.NewAlertEvent(ironcore.ModuleSBOMScanner, alert, finding.Vulnerability.Severity)

	select {
	case s.out <- alertEvent:
		if s.metrics != nil {
			s.metrics.VulnerabilitiesFoundTotal.WithLabelValues(finding.Vulnerability.Severity.String()).Inc()
			s.metrics.EventsProcessedTotal.WithLabelValues(ironcore.EventTypeAlert).Inc()
		}
	default:
		s.logger.Warn("alert channel full, dropping sbom finding", zap.String("cve", finding.Vulnerability.CVEID), zap.String("package", finding.Vulnerability.Package))
		if s.metrics != nil {
			s.metrics.EventsDroppedTotal.WithLabelValues(ironcore.ModuleSBOMScanner, ironcore.EventTypeAlert).Inc()
		}
	}
}

func (s *Scanner) Stop(ctx context.Context) error {
	if s.State() != ironcore.StateRunning {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("error closing vulnerability database", zap.Error(err))
		}
	}
	s.setState(ironcore.StateStopped)
	return nil
}

func (s *Scanner) HealthCheck(ctx context.Context) ironcore.HealthStatus {
	if s.State() == ironcore.StateFailed {
		return ironcore.Unhealthy("sbom scanner failed to initialize")
	}
	if s.degraded {
		return ironcore.DegradedHealth("vulnerability database unavailable or empty")
	}
	return ironcore.Healthy()
}
