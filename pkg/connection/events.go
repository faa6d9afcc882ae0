package connection

import "github.com/bytesock/bytesock-go/pkg/eventbus"

// Events bundles the connection's event topics. Subscribe before
// connecting to observe the full lifecycle. All topics are destroyed
// together by Destroy.
type Events struct {
	// Connected fires after each successful connect.
	Connected *eventbus.Topic[struct{}]

	// Disconnected fires after an unsolicited drop of an established
	// connection. An explicit Disconnect does not fire it.
	Disconnected *eventbus.Topic[struct{}]

	// Error carries transport failures and protocol violations.
	Error *eventbus.Topic[error]

	// Data carries each inbound binary frame, fragments concatenated.
	Data *eventbus.Topic[[]byte]
}

func newEvents() *Events {
	return &Events{
		Connected:    eventbus.NewTopic[struct{}](),
		Disconnected: eventbus.NewTopic[struct{}](),
		Error:        eventbus.NewTopic[error](),
		Data:         eventbus.NewTopic[[]byte](),
	}
}

func (e *Events) destroy() {
	e.Connected.Destroy()
	e.Disconnected.Destroy()
	e.Error.Destroy()
	e.Data.Destroy()
}
