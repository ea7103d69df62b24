package mavlink

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/minimal"
)

const DefaultHeartbeatPeriod = time.Second

// NewHeartbeatMessage returns the keepalive announcing a ground station
// without an autopilot. It is identical on every send.
func NewHeartbeatMessage() *minimal.MessageHeartbeat {
	return &minimal.MessageHeartbeat{
		Type:           minimal.MAV_TYPE_GCS,
		Autopilot:      minimal.MAV_AUTOPILOT_INVALID,
		BaseMode:       0,
		CustomMode:     0,
		SystemStatus:   minimal.MAV_STATE_ACTIVE,
		MavlinkVersion: 3,
	}
}

// WithHeartbeatPeriod sets the send period
func WithHeartbeatPeriod(period time.Duration) func(*Heartbeat) {
	return func(h *Heartbeat) {
		h.period = period
	}
}

// WithHeartbeatClock sets the clock driving the ticker
func WithHeartbeatClock(clk clock.Clock) func(*Heartbeat) {
	return func(h *Heartbeat) {
		h.clock = clk
	}
}

// WithHeartbeatLogger sets the logger
func WithHeartbeatLogger(logger *slog.Logger) func(*Heartbeat) {
	return func(h *Heartbeat) {
		h.logger = logger
	}
}

// Heartbeat sends HEARTBEAT at a fixed period for as long as it runs. It
// shares the Transport with the odometry publisher and nothing else.
type Heartbeat struct {
	transport Transport
	period    time.Duration
	clock     clock.Clock
	logger    *slog.Logger
}

// NewHeartbeat creates a heartbeat task writing to transport
func NewHeartbeat(transport Transport, options ...func(*Heartbeat)) *Heartbeat {
	h := Heartbeat{
		transport: transport,
		period:    DefaultHeartbeatPeriod,
		clock:     clock.New(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&h)
	}

	if h.period <= 0 {
		h.period = DefaultHeartbeatPeriod
	}

	return &h
}

// Run sends a heartbeat immediately and then once per period until ctx is
// cancelled.
func (h *Heartbeat) Run(ctx context.Context) error {
	ticker := h.clock.Ticker(h.period)
	defer ticker.Stop()

	h.logger.Debug("heartbeat started", slog.Duration("period", h.period))

	msg := NewHeartbeatMessage()
	h.transport.Send(msg)

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("heartbeat stopped")
			return nil

		case <-ticker.C:
			h.transport.Send(msg)
		}
	}
}
