// Package diagnostic collects the robot's runtime state for the diagnostics endpoint.
package diagnostic

import (
	"sort"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/omnidrive/domain/drive"
	"github.com/open-teleop/omnidrive/pkg/api"
	customlog "github.com/open-teleop/omnidrive/pkg/log"
	"github.com/open-teleop/omnidrive/pkg/processing"
)

const maxFaultHistory = 20

// StatusProvider is the drive as seen by diagnostics.
type StatusProvider interface {
	Status() drive.Status
}

// Session is a connected control client.
type Session struct {
	ID        string    `json:"id"`
	Remote    string    `json:"remote"`
	Connected time.Time `json:"connected"`
}

// FaultRecord is one entry of the fault history.
type FaultRecord struct {
	Error   string     `json:"error"`
	Raised  time.Time  `json:"raised"`
	Cleared *time.Time `json:"cleared,omitempty"`
}

// LinkMetrics summarizes what the observer has seen of the bus.
type LinkMetrics struct {
	AckInvalid    uint64    `json:"ack_invalid"`
	LastLatencyUs int64     `json:"last_latency_us"`
	MaxLatencyUs  int64     `json:"max_latency_us"`
	LastSpeeds    []float32 `json:"last_speeds,omitempty"`
	LastTransfer  time.Time `json:"last_transfer,omitempty"`
}

// Report is the body of GET /api/v1/diagnostics.
type Report struct {
	Timestamp  time.Time                             `json:"timestamp"`
	Uptime     string                                `json:"uptime"`
	Drive      drive.Status                          `json:"drive"`
	Link       LinkMetrics                           `json:"link"`
	Sessions   []Session                             `json:"sessions"`
	Faults     []FaultRecord                         `json:"faults"`
	Publishers map[string]processing.TransferMetrics `json:"publishers,omitempty"`
}

// DiagnosticService observes the drive and tracks control sessions.
type DiagnosticService struct {
	mu         sync.RWMutex
	drive      StatusProvider
	publishers func() map[string]processing.TransferMetrics
	logger     customlog.Logger
	started    time.Time
	link       LinkMetrics
	sessions   map[string]Session
	faults     []FaultRecord
}

var (
	_ drive.Observer     = (*DiagnosticService)(nil)
	_ api.SessionTracker = (*DiagnosticService)(nil)
)

func NewDiagnosticService(logger customlog.Logger) *DiagnosticService {
	return &DiagnosticService{
		logger:   logger,
		started:  time.Now(),
		sessions: make(map[string]Session),
	}
}

// SetDrive attaches the drive whose status is reported.
func (s *DiagnosticService) SetDrive(p StatusProvider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drive = p
}

// SetPublisherMetrics attaches a source of telemetry publisher counters.
func (s *DiagnosticService) SetPublisherMetrics(fn func() map[string]processing.TransferMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishers = fn
}

func (s *DiagnosticService) TransferCompleted(t drive.Transfer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	latency := t.Latency.Microseconds()
	s.link.LastLatencyUs = latency
	if latency > s.link.MaxLatencyUs {
		s.link.MaxLatencyUs = latency
	}
	speeds := t.Frame.Speeds()
	s.link.LastSpeeds = speeds[:]
	s.link.LastTransfer = t.Timestamp
	if !t.Ack.Valid() {
		s.link.AckInvalid++
	}
}

func (s *DiagnosticService) FaultRaised(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.faults = append(s.faults, FaultRecord{Error: err.Error(), Raised: time.Now()})
	if len(s.faults) > maxFaultHistory {
		s.faults = s.faults[len(s.faults)-maxFaultHistory:]
	}
}

func (s *DiagnosticService) FaultCleared() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.faults); n > 0 && s.faults[n-1].Cleared == nil {
		now := time.Now()
		s.faults[n-1].Cleared = &now
	}
}

func (s *DiagnosticService) SessionOpened(id, remote string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = Session{ID: id, Remote: remote, Connected: time.Now()}
	s.logger.Debugf("Session %s opened from %s (%d active)", id, remote, len(s.sessions))
}

func (s *DiagnosticService) SessionClosed(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	s.logger.Debugf("Session %s closed (%d active)", id, len(s.sessions))
}

// Report assembles the current diagnostics.
func (s *DiagnosticService) Report() Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := Report{
		Timestamp: time.Now(),
		Uptime:    time.Since(s.started).Truncate(time.Second).String(),
		Link:      s.link,
		Sessions:  make([]Session, 0, len(s.sessions)),
		Faults:    append([]FaultRecord{}, s.faults...),
	}
	if s.drive != nil {
		r.Drive = s.drive.Status()
	}
	if s.publishers != nil {
		r.Publishers = s.publishers()
	}
	for _, sess := range s.sessions {
		r.Sessions = append(r.Sessions, sess)
	}
	sort.Slice(r.Sessions, func(i, j int) bool {
		return r.Sessions[i].Connected.Before(r.Sessions[j].Connected)
	})
	return r
}

// GetDiagnosticsHandler serves the report.
func (s *DiagnosticService) GetDiagnosticsHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "success",
		"diagnostics": s.Report(),
	})
}

// RegisterRoutes mounts GET /api/v1/diagnostics.
func (s *DiagnosticService) RegisterRoutes(app fiber.Router) {
	app.Get("/api/v1/diagnostics", s.GetDiagnosticsHandler)
}
