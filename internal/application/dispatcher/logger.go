package dispatcher

import "go.uber.org/zap"

type zapLogger struct {
	s *zap.SugaredLogger
}

// ZapLogger adapts a zap logger to the dispatcher Logger
func ZapLogger(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return zapLogger{s: l.Sugar()}
}

func (z zapLogger) Info(msg string, keysAndValues ...interface{}) {
	z.s.Infow(msg, keysAndValues...)
}

func (z zapLogger) Error(msg string, keysAndValues ...interface{}) {
	z.s.Errorw(msg, keysAndValues...)
}
