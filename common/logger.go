package common

import (
	"fmt"

	"github.com/devlights/gomy/output"
)

type LogLevel int32

const (
	DEBUG_INFO_DETAIL LogLevel = 1
	DEBUG_INFO                 = 2
	RDB_OP_FUNC_CALL           = 4
	DEBUGGING                  = 8
	INFO                       = 16
	WARN                       = 32
	ERROR                      = 64
	FATAL                      = 128
)

// LogLevelSetting is the bitmask of LogLevel values that are actually
// printed. Tests leave it at zero so ShPrintf is silent.
var LogLevelSetting LogLevel = 0

func ShPrintf(logLevel LogLevel, fmtStr string, a ...interface{}) {
	if logLevel&LogLevelSetting > 0 {
		output.Stdoutl(logPrefix(logLevel), fmt.Sprintf(fmtStr, a...))
	}
}

func logPrefix(logLevel LogLevel) string {
	switch logLevel {
	case DEBUG_INFO_DETAIL:
		return "[DEBUG-DETAIL]"
	case DEBUG_INFO:
		return "[DEBUG]"
	case RDB_OP_FUNC_CALL:
		return "[CALL]"
	case DEBUGGING:
		return "[DBG]"
	case INFO:
		return "[INFO]"
	case WARN:
		return "[WARN]"
	case ERROR:
		return "[ERROR]"
	case FATAL:
		return "[FATAL]"
	default:
		return "[LOG]"
	}
}
