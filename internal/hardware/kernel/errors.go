package kernel

import (
	"errors"
	"fmt"

	"github.com/traintastic/traintastic-go/internal/log"
)

// LogMessageError is an I/O
// failure that carries a registered Message code plus its format
// arguments, so the caller can both log it and decide the resulting
// Interface state transition.
type LogMessageError struct {
	Message log.Message
	Args    []any
}

func (e *LogMessageError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Message.Code, fmt.Sprintf(e.Message.Format, e.Args...))
}

func NewLogMessageError(m log.Message, args ...any) *LogMessageError {
	return &LogMessageError{Message: m, Args: args}
}

// AsLogMessage unwraps err into a *LogMessageError if it is (or wraps) one.
func AsLogMessage(err error) (*LogMessageError, bool) {
	var e *LogMessageError
	ok := errors.As(err, &e)
	return e, ok
}
