package sim

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openride/devicesim/core/bus"
	"github.com/openride/devicesim/core/device"
	"github.com/openride/devicesim/core/telemetry"
	"github.com/openride/devicesim/infra/logger"
)

type pubRecord struct {
	topic   string
	payload []byte
}

type mockConn struct {
	mu         sync.Mutex
	pubs       []pubRecord
	deliveries chan bus.Delivery
	failTopic  string
	failErr    error
	closed     bool
}

func newMockConn() *mockConn {
	return &mockConn{deliveries: make(chan bus.Delivery, 8)}
}

func (c *mockConn) Publish(topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failTopic != "" && strings.HasPrefix(topic, c.failTopic) {
		return c.failErr
	}
	c.pubs = append(c.pubs, pubRecord{topic: topic, payload: payload})
	return nil
}

func (c *mockConn) Commands() <-chan bus.Delivery { return c.deliveries }

func (c *mockConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *mockConn) topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.pubs))
	for i, p := range c.pubs {
		out[i] = p.topic
	}
	return out
}

func (c *mockConn) payloadsFor(topicPrefix string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out [][]byte
	for _, p := range c.pubs {
		if strings.HasPrefix(p.topic, topicPrefix) {
			out = append(out, p.payload)
		}
	}
	return out
}

type mockConnector struct {
	conn *mockConn
	err  error
}

func (m *mockConnector) Connect(_ context.Context, _ string) (bus.Conn, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.conn, nil
}

func testRunner(t *testing.T, seed int64) (*Runner, *mockConn) {
	t.Helper()
	conn := newMockConn()
	dev := device.New("V1", rand.New(rand.NewSource(seed)))
	cfg := Config{}
	cfg.SetDefaults()
	r := NewRunner(dev, &mockConnector{conn: conn}, cfg, logger.NopLogger{}, nil)
	return r, conn
}

func TestTickCadence(t *testing.T) {
	r, conn := testRunner(t, 1)
	for i := 0; i < 4; i++ {
		if err := r.tick(conn, i); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	want := []string{
		"realtime.location.V1", "realtime.status.V1", "realtime.battery.V1",
		"realtime.location.V1", "realtime.status.V1",
		"realtime.location.V1", "realtime.status.V1", "realtime.battery.V1",
		"realtime.location.V1", "realtime.status.V1",
	}
	got := conn.topics()
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("record %d: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestScheduledMaintenanceReport(t *testing.T) {
	r, conn := testRunner(t, 2)
	r.maintenanceEvery = 2
	for i := 0; i < 3; i++ {
		if err := r.tick(conn, i); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	reports := conn.payloadsFor("report.maintenance.")
	if len(reports) != 1 {
		t.Fatalf("expected 1 scheduled maintenance report, got %d", len(reports))
	}
	var m telemetry.Maintenance
	if err := json.Unmarshal(reports[0], &m); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(m.RentalID, "RENT-") {
		t.Fatalf("expected synthesized rental id, got %q", m.RentalID)
	}
}

func TestEndToEndRentalScenario(t *testing.T) {
	r, conn := testRunner(t, 3)
	dev := r.dev

	start := bus.NewDelivery(bus.Command{Name: bus.CmdStartRent, Device: "V1", OrderID: "R1"})
	if err := r.handleCommand(conn, start); err != nil {
		t.Fatal(err)
	}
	if disp := <-start.Done(); disp != bus.DispositionAck {
		t.Fatalf("start_rent not acked: %v", disp)
	}
	if dev.Locked() || !dev.Active() || dev.RentalID() != "R1" {
		t.Fatalf("bad state after start: locked=%v active=%v rental=%s", dev.Locked(), dev.Active(), dev.RentalID())
	}

	for i := 0; i < 3; i++ {
		if err := r.tick(conn, i); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}
	var prev = 101.0
	for _, payload := range conn.payloadsFor("realtime.battery.") {
		var b telemetry.Battery
		if err := json.Unmarshal(payload, &b); err != nil {
			t.Fatal(err)
		}
		if b.BatteryLevel > prev {
			t.Fatalf("battery increased across ticks: %f -> %f", prev, b.BatteryLevel)
		}
		prev = b.BatteryLevel
	}
	for _, payload := range conn.payloadsFor("realtime.location.") {
		var loc telemetry.Location
		if err := json.Unmarshal(payload, &loc); err != nil {
			t.Fatal(err)
		}
		if loc.Speed < 0 {
			t.Fatalf("negative speed emitted: %f", loc.Speed)
		}
	}

	end := bus.NewDelivery(bus.Command{Name: bus.CmdEndRent, Device: "V1"})
	if err := r.handleCommand(conn, end); err != nil {
		t.Fatal(err)
	}
	if disp := <-end.Done(); disp != bus.DispositionAck {
		t.Fatalf("end_rent not acked: %v", disp)
	}
	if dev.RentalID() != "" {
		t.Fatalf("rental id not cleared after end: %s", dev.RentalID())
	}

	maint := conn.payloadsFor("report.maintenance.")
	perf := conn.payloadsFor("report.performance.")
	if len(maint) != 1 || len(perf) != 1 {
		t.Fatalf("expected one maintenance and one performance report, got %d/%d", len(maint), len(perf))
	}
	var m telemetry.Maintenance
	var p telemetry.Performance
	if err := json.Unmarshal(maint[0], &m); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(perf[0], &p); err != nil {
		t.Fatal(err)
	}
	if m.RentalID != "R1" || p.RentalID != "R1" {
		t.Fatalf("reports reference wrong rental: %s / %s", m.RentalID, p.RentalID)
	}
}

func TestSynthesizedRentalIDSharedByReports(t *testing.T) {
	r, conn := testRunner(t, 4)
	start := bus.NewDelivery(bus.Command{Name: bus.CmdStartRent, Device: "V1"})
	if err := r.handleCommand(conn, start); err != nil {
		t.Fatal(err)
	}
	end := bus.NewDelivery(bus.Command{Name: bus.CmdEndRent, Device: "V1"})
	if err := r.handleCommand(conn, end); err != nil {
		t.Fatal(err)
	}
	var m telemetry.Maintenance
	var p telemetry.Performance
	if err := json.Unmarshal(conn.payloadsFor("report.maintenance.")[0], &m); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(conn.payloadsFor("report.performance.")[0], &p); err != nil {
		t.Fatal(err)
	}
	if m.RentalID == "" || m.RentalID != p.RentalID {
		t.Fatalf("reports must share the synthesized id: %q / %q", m.RentalID, p.RentalID)
	}
}

func TestKillResolvedByLoopOnly(t *testing.T) {
	r, conn := testRunner(t, 5)
	dev := r.dev
	start := bus.NewDelivery(bus.Command{Name: bus.CmdStartRent, Device: "V1", OrderID: "R1"})
	if err := r.handleCommand(conn, start); err != nil {
		t.Fatal(err)
	}
	kill := bus.NewDelivery(bus.Command{Name: bus.CmdKillVehicle, Device: "V1"})
	if err := r.handleCommand(conn, kill); err != nil {
		t.Fatal(err)
	}
	if disp := <-kill.Done(); disp != bus.DispositionAck {
		t.Fatalf("kill_vehicle not acked: %v", disp)
	}
	if !dev.Active() || !dev.KillPending() {
		t.Fatal("kill must defer until the loop observes low speed")
	}
	for i := 0; i < 60 && dev.Active(); i++ {
		if err := r.tick(conn, i); err != nil {
			t.Fatal(err)
		}
	}
	if dev.Active() || dev.KillPending() || !dev.Locked() {
		t.Fatalf("kill never resolved: active=%v pending=%v locked=%v", dev.Active(), dev.KillPending(), dev.Locked())
	}
}

func TestUnknownCommandNacked(t *testing.T) {
	r, conn := testRunner(t, 6)
	d := bus.NewDelivery(bus.Command{Name: "reboot", Device: "V1"})
	if err := r.handleCommand(conn, d); err != nil {
		t.Fatal(err)
	}
	if disp := <-d.Done(); disp != bus.DispositionNack {
		t.Fatalf("unknown command should nack, got %v", disp)
	}
}

func TestTransientPublishFailureContinues(t *testing.T) {
	r, conn := testRunner(t, 7)
	conn.failTopic = "realtime.location."
	conn.failErr = errors.New("sink hiccup")
	if err := r.tick(conn, 0); err != nil {
		t.Fatalf("transient failure should not stop the loop: %v", err)
	}
	if len(conn.payloadsFor("realtime.status.")) != 1 {
		t.Fatal("status record missing, tick did not continue after failure")
	}
}

func TestPermanentFailureStopsLoop(t *testing.T) {
	r, conn := testRunner(t, 8)
	conn.failTopic = "realtime.location."
	conn.failErr = bus.ErrConnClosed
	err := r.tick(conn, 0)
	if err == nil || !errors.Is(err, bus.ErrConnClosed) {
		t.Fatalf("expected ErrConnClosed, got %v", err)
	}
}

func TestRunRegistrationFirstAndCleanClose(t *testing.T) {
	conn := newMockConn()
	dev := device.New("V1", rand.New(rand.NewSource(9)))
	cfg := Config{}
	cfg.SetDefaults()
	r := NewRunner(dev, &mockConnector{conn: conn}, cfg, logger.NopLogger{}, nil,
		WithRunnerInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(conn.topics()) < 5 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for records")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	topics := conn.topics()
	if topics[0] != bus.RegistrationTopic {
		t.Fatalf("first record should be the registration announcement, got %s", topics[0])
	}
	conn.mu.Lock()
	closed := conn.closed
	conn.mu.Unlock()
	if !closed {
		t.Fatal("connection not released on exit")
	}
}

func TestRunConnectFailureIsFatal(t *testing.T) {
	dev := device.New("V1", rand.New(rand.NewSource(10)))
	cfg := Config{}
	cfg.SetDefaults()
	r := NewRunner(dev, &mockConnector{err: errors.New("broker unreachable")}, cfg, logger.NopLogger{}, nil)
	if err := r.Run(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
}

func TestRunAppliesCommandsBetweenTicks(t *testing.T) {
	conn := newMockConn()
	dev := device.New("V1", rand.New(rand.NewSource(11)))
	cfg := Config{}
	cfg.SetDefaults()
	r := NewRunner(dev, &mockConnector{conn: conn}, cfg, logger.NopLogger{}, nil,
		WithRunnerInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	d := bus.NewDelivery(bus.Command{Name: bus.CmdStartRent, Device: "V1", OrderID: "R9"})
	conn.deliveries <- d
	select {
	case disp := <-d.Done():
		if disp != bus.DispositionAck {
			t.Fatalf("expected ack, got %v", disp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command was never settled")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run returned error: %v", err)
	}
}
