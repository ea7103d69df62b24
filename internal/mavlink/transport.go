package mavlink

import (
	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

// Transport accepts prebuilt MAVLink messages and takes care of the datagram
// I/O. Send is best effort and must be safe for concurrent use: the odometry
// and heartbeat publishers share one Transport. After Close, Send is a no-op.
type Transport interface {
	Send(m message.Message)
	Close() error
}
