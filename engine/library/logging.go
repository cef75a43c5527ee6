package library

import (
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/mborders/logmatic"
)

var maxLevel int32 = 4

var logger = newLogger()

func newLogger() *logmatic.Logger {
	l := logmatic.NewLogger()
	l.SetLevel(logmatic.TRACE)
	l.ExitOnFatal = false
	return l
}

// SetLogLevel sets the highest level LogCLI will print (see LogCLI for the scale).
func SetLogLevel(level int) {
	atomic.StoreInt32(&maxLevel, int32(level))
}

// Logs to the terminal. Level options are: 0 fatal error (stack dump), 1 serious error (stack dump), 2 warning, 3 debug, 4 info, 5 trace (stack dump).
func LogCLI(message interface{}, level int) {
	if int32(level) > atomic.LoadInt32(&maxLevel) {
		return
	}
	message = fmt.Sprint(message)
	switch level {
	case 5:
		debug.PrintStack()
		logger.Trace("%v", message)
	case 4:
		logger.Info("%v", message)
	case 3:
		logger.Debug("%v", message)
	case 2:
		logger.Warn("%v", message)
	case 1:
		debug.PrintStack()
		logger.Error("%v", message)
	case 0:
		debug.PrintStack()
		logger.Error("%v", message)
	}
}
