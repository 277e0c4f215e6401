package badger

import (
	"fmt"
	"strings"

	"github.com/marmos91/relaystream/internal/logger"
)

// badgerLogger routes badger's internal logging through the process logger.
// Badger is chatty at info level, so info is demoted to debug.
type badgerLogger struct{}

func msg(format string, args ...any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}

func (badgerLogger) Errorf(format string, args ...any) {
	logger.Error(msg(format, args...), "component", "badger")
}

func (badgerLogger) Warningf(format string, args ...any) {
	logger.Warn(msg(format, args...), "component", "badger")
}

func (badgerLogger) Infof(format string, args ...any) {
	logger.Debug(msg(format, args...), "component", "badger")
}

func (badgerLogger) Debugf(format string, args ...any) {
	logger.Debug(msg(format, args...), "component", "badger")
}
