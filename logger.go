package auth

import (
	"github.com/goliatone/go-logger/glog"
)

type staticLoggerProvider struct {
	logger Logger
}

func (p staticLoggerProvider) GetLogger(string) Logger {
	return p.logger
}

// ResolveLogger picks the logger for name. A provider wins over an explicit
// logger, and the package default is used when neither yields one.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if provider != nil {
		if resolved := provider.GetLogger(name); resolved != nil {
			return provider, resolved
		}
	}

	if logger != nil {
		return staticLoggerProvider{logger: logger}, logger
	}

	base := defaultLogger()
	return staticLoggerProvider{logger: base}, base
}

func defaultLogger() Logger {
	return glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Info),
		glog.WithName("auth"),
		glog.WithAddSource(false),
	)
}
