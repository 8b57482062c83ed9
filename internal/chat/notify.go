package chat

import "time"

// Level is the severity of a notification.
type Level int

const (
	LevelInfo Level = iota
	LevelError
)

// DefaultNotificationDuration is how long transient notifications stay visible.
const DefaultNotificationDuration = 3 * time.Second

// Notification is a dismissible, timed message for the user.
type Notification struct {
	Text     string
	Level    Level
	Duration time.Duration
}

// Notifier displays notifications.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// discardNotifier drops every notification.
type discardNotifier struct{}

func (discardNotifier) Notify(Notification) {}
