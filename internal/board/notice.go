package board

import (
	"fmt"

	"github.com/taskdeck/deck/internal/gateway"
)

// Level is the severity of a notice.
type Level int

const (
	Info Level = iota
	Success
	Error
)

func (l Level) String() string {
	switch l {
	case Info:
		return "info"
	case Success:
		return "success"
	case Error:
		return "error"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// Notice is a transient user-facing message.
type Notice struct {
	Level   Level
	Message string
}

// Notifier shows notices (a toast in the TUI, stderr in the CLI).
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notice) { f(n) }

type discardNotifier struct{}

func (discardNotifier) Notify(Notice) {}

// describe turns an error into the text shown to the user: the backend's
// detail message when there is one.
func describe(err error) string {
	if f, ok := gateway.AsFailure(err); ok {
		return f.Message
	}
	if gateway.IsTransport(err) {
		return "server unreachable"
	}
	return err.Error()
}
