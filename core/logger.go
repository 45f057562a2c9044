package core

// Logger reports messages to the application logs.
// args may carry errors, extra data (map[string]interface{}) and the user concerned.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// LogUser identifies the person a log entry is about.
type LogUser struct {
	ID       string
	Username string
	Email    string
}
