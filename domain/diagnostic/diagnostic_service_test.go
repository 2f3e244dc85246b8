package diagnostic

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/omnidrive/domain/drive"
	"github.com/open-teleop/omnidrive/pkg/frame"
	"github.com/open-teleop/omnidrive/pkg/log"
	"github.com/open-teleop/omnidrive/pkg/processing"
)

type staticStatus drive.Status

func (s staticStatus) Status() drive.Status { return drive.Status(s) }

func TestTransfersUpdateLinkMetrics(t *testing.T) {
	s := NewDiagnosticService(log.Discard())

	f := frame.EncodeSpeeds([3]float32{1, 2, 3})
	s.TransferCompleted(drive.Transfer{Sequence: 1, Frame: f, Ack: frame.Ack{Raw: f}, Latency: 300 * time.Microsecond})
	s.TransferCompleted(drive.Transfer{Sequence: 2, Frame: f, Ack: frame.Ack{}, Latency: 100 * time.Microsecond})

	link := s.Report().Link
	if link.AckInvalid != 1 {
		t.Errorf("ack_invalid = %d, want 1", link.AckInvalid)
	}
	if link.LastLatencyUs != 100 || link.MaxLatencyUs != 300 {
		t.Errorf("latency last=%d max=%d", link.LastLatencyUs, link.MaxLatencyUs)
	}
	if len(link.LastSpeeds) != 3 || link.LastSpeeds[2] != 3 {
		t.Errorf("last speeds = %v", link.LastSpeeds)
	}
}

func TestFaultHistory(t *testing.T) {
	s := NewDiagnosticService(log.Discard())

	s.FaultRaised(errors.New("first"))
	s.FaultCleared()
	s.FaultRaised(errors.New("second"))

	faults := s.Report().Faults
	if len(faults) != 2 {
		t.Fatalf("got %d faults", len(faults))
	}
	if faults[0].Error != "first" || faults[0].Cleared == nil {
		t.Errorf("first fault = %+v", faults[0])
	}
	if faults[1].Error != "second" || faults[1].Cleared != nil {
		t.Errorf("second fault = %+v", faults[1])
	}

	for i := 0; i < maxFaultHistory+5; i++ {
		s.FaultRaised(errors.New("again"))
	}
	if n := len(s.Report().Faults); n != maxFaultHistory {
		t.Errorf("history length = %d, want %d", n, maxFaultHistory)
	}
}

func TestSessions(t *testing.T) {
	s := NewDiagnosticService(log.Discard())

	s.SessionOpened("a", "10.0.0.1:1")
	s.SessionOpened("b", "10.0.0.2:2")
	s.SessionClosed("a")

	sessions := s.Report().Sessions
	if len(sessions) != 1 || sessions[0].ID != "b" || sessions[0].Remote != "10.0.0.2:2" {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestDiagnosticsEndpoint(t *testing.T) {
	s := NewDiagnosticService(log.Discard())
	s.SetDrive(staticStatus{Faulted: true, Fault: "spi gone", Transfers: 12})
	s.SetPublisherMetrics(func() map[string]processing.TransferMetrics {
		return map[string]processing.TransferMetrics{"telemetry-wheels": {ProcessedCount: 12}}
	})

	app := fiber.New()
	s.RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/diagnostics", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Status      string `json:"status"`
		Diagnostics Report `json:"diagnostics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "success" {
		t.Errorf("status = %q", body.Status)
	}
	d := body.Diagnostics.Drive
	if !d.Faulted || d.Fault != "spi gone" || d.Transfers != 12 {
		t.Errorf("drive = %+v", d)
	}
	if body.Diagnostics.Publishers["telemetry-wheels"].ProcessedCount != 12 {
		t.Errorf("publishers = %+v", body.Diagnostics.Publishers)
	}
}
