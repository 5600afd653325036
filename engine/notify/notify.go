package notify

// Kind discriminates notification events.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notification is one event pushed to the sink when a mutation settles.
type Notification struct {
	Kind    Kind
	Message string
}

// Sink receives settled-mutation events. The rendering layer supplies an
// implementation (typically a toast queue); Notify must not block.
type Sink interface {
	Notify(n Notification)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(n Notification)

func (f SinkFunc) Notify(n Notification) {
	f(n)
}

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(Notification) {})

// Success builds a success notification.
func Success(message string) Notification {
	return Notification{Kind: KindSuccess, Message: message}
}

// Error builds an error notification.
func Error(message string) Notification {
	return Notification{Kind: KindError, Message: message}
}
