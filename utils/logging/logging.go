package logging

import (
	"log/slog"
)

type LogCode string

const (
	// SYSTEM EVENTS (SYSTEM*)
	SYSTEM LogCode = "SYSTEM"

	// WORKSPACE DATA OPERATIONS (DATA*)
	DATA_SAVE      LogCode = "DATA_SAVE"
	DATA_LOAD      LogCode = "DATA_LOAD"
	DATA_INIT      LogCode = "DATA_INIT"
	DATA_PURGE     LogCode = "DATA_PURGE"
	DATA_INTEGRITY LogCode = "DATA_INTEGRITY"

	// SESSION OPERATIONS (SESSION*)
	SESSION_RESOLVE LogCode = "SESSION_RESOLVE"
	SESSION_REPAIR  LogCode = "SESSION_REPAIR"

	// REALTIME OPERATIONS (REALTIME*)
	REALTIME_PUBLISH   LogCode = "REALTIME_PUBLISH"
	REALTIME_SUBSCRIBE LogCode = "REALTIME_SUBSCRIBE"

	// ASSISTANT OPERATIONS (ASSISTANT*)
	ASSISTANT_REQUEST LogCode = "ASSISTANT_REQUEST"
)

// VictoriaLogs has fixed field name for time (_time) and message(_msg). This function maps fields msg -> _msg and time -> _time.
func convertKeysToVictoriaLogs(keys []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.Attr{Key: "_time", Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05"))}
	}
	if a.Key == slog.MessageKey {
		return slog.Attr{Key: "_msg", Value: a.Value}
	}
	return a
}

func GetVictoriaLogsOptions(addSource bool) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: convertKeysToVictoriaLogs,
		AddSource:   addSource,
	}
}
