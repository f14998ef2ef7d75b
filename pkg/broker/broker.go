package broker

// Broker is the transport for control events between the dashboard and
// running agents.
type Broker interface {
	Connect() error
	ConnectAndSubscribe(subHandler Handler, subTopics []string) error
	Disconnect() error
	Publish(topic string, payload interface{}) error
	Subscribe(topics []string, h Handler) error
	String() string
}

// Handler handles an event received from a topic.
type Handler func(Event) error

// Event is a raw message delivered to a Handler.
type Event struct {
	Topic   string
	Payload []byte
	Qos     byte
	Ack     func()
}
