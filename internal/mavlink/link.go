package mavlink

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"sync"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/minimal"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"go.bug.st/serial"
)

const (
	EndpointUDP    EndpointKind = "udp"
	EndpointSerial EndpointKind = "serial"
)

const (
	DefaultSystemID    byte = 255
	DefaultComponentID byte = 1
	defaultBaud             = 57600
)

var (
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	ErrUnknownPort     = errors.New("serial port not found")
)

// portsList is swapped in tests
var portsList = serial.GetPortsList

// EndpointKind selects how the link reaches the autopilot
type EndpointKind string

// LinkConfig describes the outbound MAVLink channel
type LinkConfig struct {
	Kind        EndpointKind // udp or serial
	Address     string       // host:port of the autopilot, udp only
	Device      string       // serial device, e.g. /dev/ttyUSB0
	Baud        int          // serial baud rate
	SystemID    byte
	ComponentID byte
}

// Validate checks the endpoint settings. A serial device must be present in
// the host's port list.
func (c *LinkConfig) Validate() error {
	switch c.Kind {
	case EndpointUDP:
		if _, _, err := net.SplitHostPort(c.Address); err != nil {
			return fmt.Errorf("%w: udp address '%s': %w", ErrInvalidEndpoint, c.Address, err)
		}

	case EndpointSerial:
		if c.Device == "" {
			return fmt.Errorf("%w: serial device is required", ErrInvalidEndpoint)
		}

		ports, err := portsList()
		if err != nil {
			return fmt.Errorf("listing serial ports: %w", err)
		}
		if !slices.Contains(ports, c.Device) {
			return fmt.Errorf("%w: %s", ErrUnknownPort, c.Device)
		}

	default:
		return fmt.Errorf("%w: unknown kind '%s'", ErrInvalidEndpoint, c.Kind)
	}

	return nil
}

func (c *LinkConfig) endpoint() gomavlib.EndpointConf {
	if c.Kind == EndpointSerial {
		baud := c.Baud
		if baud <= 0 {
			baud = defaultBaud
		}
		return gomavlib.EndpointSerial{Device: c.Device, Baud: baud}
	}

	return gomavlib.EndpointUDPClient{Address: c.Address}
}

// WithLinkLogger sets the logger for channel events
func WithLinkLogger(logger *slog.Logger) func(*Link) {
	return func(l *Link) {
		l.logger = logger
	}
}

// Link is a Transport backed by a gomavlib node speaking MAVLink v2. The
// node's own heartbeat is disabled, liveness is owned by Heartbeat.
type Link struct {
	node   *gomavlib.Node
	logger *slog.Logger

	mu     sync.Mutex
	closed bool

	events sync.WaitGroup
}

// NewLink validates config and opens the node
func NewLink(config LinkConfig, options ...func(*Link)) (*Link, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.SystemID == 0 {
		config.SystemID = DefaultSystemID
	}
	if config.ComponentID == 0 {
		config.ComponentID = DefaultComponentID
	}

	l := Link{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&l)
	}

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:        []gomavlib.EndpointConf{config.endpoint()},
		Dialect:          common.Dialect,
		OutVersion:       gomavlib.V2,
		OutSystemID:      config.SystemID,
		OutComponentID:   config.ComponentID,
		HeartbeatDisable: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating mavlink node: %w", err)
	}

	l.node = node
	l.logger = l.logger.With(slog.String("endpoint", string(config.Kind)))

	l.events.Add(1)
	go l.handleEvents()

	return &l, nil
}

// Send writes m to every open channel. Write errors are not reported, the
// link is fire and forget.
func (l *Link) Send(m message.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	l.node.WriteMessageAll(m)
}

// Close shuts the node down. It is safe to call Close multiple times.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.node.Close()
	l.events.Wait()

	return nil
}

// handleEvents drains the node event channel until the node is closed
func (l *Link) handleEvents() {
	defer l.events.Done()

	var autopilotSeen bool

	for evt := range l.node.Events() {
		switch e := evt.(type) {
		case *gomavlib.EventChannelOpen:
			l.logger.Info("channel open", slog.Any("channel", e.Channel))

		case *gomavlib.EventChannelClose:
			l.logger.Info("channel closed", slog.Any("channel", e.Channel))

		case *gomavlib.EventParseError:
			l.logger.Debug("discarding inbound frame", slog.String("error", e.Error.Error()))

		case *gomavlib.EventFrame:
			if autopilotSeen {
				continue
			}
			if _, ok := e.Message().(*minimal.MessageHeartbeat); ok {
				autopilotSeen = true
				l.logger.Info("peer heartbeat received", slog.Int("system", int(e.SystemID())))
			}
		}
	}
}
