package telemetry

import (
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher sends raw messages on a subject. *nats.Conn is a Publisher.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Connect dials a NATS server, reconnecting forever on connection loss.
func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.Name("pulseoxi"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
}
