package logging

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// impl fans every entry out to its appenders. Subloggers share the appender slice of their parent
// but own their level and bound fields.
type impl struct {
	name      string
	level     AtomicLevel
	inUTC     bool
	appenders []Appender
	bound     []zapcore.Field
}

// errUnpairedKey stands in for the value of a trailing key passed without one.
var errUnpairedKey = errors.New("unpaired log key")

// callerDepth is the number of frames between runtime.Caller in entry and the code that called a
// leveled method: entry, emit*, the leveled method.
const callerDepth = 3

func (l *impl) AddAppender(appender Appender) {
	l.appenders = append(l.appenders, appender)
}

func (l *impl) SetLevel(level Level) {
	l.level.Set(level)
}

func (l *impl) GetLevel() Level {
	return l.level.Get()
}

func (l *impl) child(name string, extra []zapcore.Field) *impl {
	bound := make([]zapcore.Field, 0, len(l.bound)+len(extra))
	bound = append(bound, l.bound...)
	bound = append(bound, extra...)
	return &impl{
		name:      name,
		level:     NewAtomicLevelAt(l.level.Get()),
		inUTC:     l.inUTC,
		appenders: l.appenders,
		bound:     bound,
	}
}

func (l *impl) Sublogger(subname string) Logger {
	if l.name == "" {
		return l.child(subname, nil)
	}
	return l.child(l.name+"."+subname, nil)
}

func (l *impl) WithFields(keysAndValues ...interface{}) Logger {
	return l.child(l.name, pairsToFields(keysAndValues))
}

func (l *impl) Sync() error {
	var err error
	for _, appender := range l.appenders {
		err = multierr.Append(err, appender.Sync())
	}
	return err
}

// entry stamps a zap entry with the time, the logger name and the site that issued the log.
func (l *impl) entry(level Level, msg string) zapcore.Entry {
	now := time.Now()
	if l.inUTC {
		now = now.UTC()
	}
	ent := zapcore.Entry{
		Level:      level.AsZap(),
		Time:       now,
		LoggerName: l.name,
		Message:    msg,
	}
	if pc, file, line, ok := runtime.Caller(callerDepth); ok {
		ent.Caller = zapcore.EntryCaller{Defined: true, PC: pc, File: file, Line: line}
		if fn := runtime.FuncForPC(pc); fn != nil {
			ent.Caller.Function = fn.Name()
		}
	}
	return ent
}

func (l *impl) write(ent zapcore.Entry, fields []zapcore.Field) {
	if len(l.bound) > 0 {
		fields = append(append([]zapcore.Field{}, l.bound...), fields...)
	}
	for _, appender := range l.appenders {
		if err := appender.Write(ent, fields); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func (l *impl) emit(level Level, args []interface{}) {
	if level < l.level.Get() {
		return
	}
	l.write(l.entry(level, fmt.Sprint(args...)), nil)
}

func (l *impl) emitf(level Level, template string, args []interface{}) {
	if level < l.level.Get() {
		return
	}
	l.write(l.entry(level, fmt.Sprintf(template, args...)), nil)
}

func (l *impl) emitw(level Level, msg string, keysAndValues []interface{}) {
	if level < l.level.Get() {
		return
	}
	l.write(l.entry(level, msg), pairsToFields(keysAndValues))
}

// pairsToFields reads alternating keys and values. A key with no value is kept and given an error
// value so the mistake shows up in the output.
func pairsToFields(keysAndValues []interface{}) []zapcore.Field {
	fields := make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		var key string
		switch k := keysAndValues[i].(type) {
		case string:
			key = k
		case fmt.Stringer:
			key = k.String()
		default:
			key = fmt.Sprint(k)
		}
		if i+1 == len(keysAndValues) {
			fields = append(fields, zap.Any(key, errUnpairedKey))
			break
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

func (l *impl) Debug(args ...interface{})                       { l.emit(DEBUG, args) }
func (l *impl) Debugf(template string, args ...interface{})     { l.emitf(DEBUG, template, args) }
func (l *impl) Debugw(msg string, keysAndValues ...interface{}) { l.emitw(DEBUG, msg, keysAndValues) }
func (l *impl) Info(args ...interface{})                        { l.emit(INFO, args) }
func (l *impl) Infof(template string, args ...interface{})      { l.emitf(INFO, template, args) }
func (l *impl) Infow(msg string, keysAndValues ...interface{})  { l.emitw(INFO, msg, keysAndValues) }
func (l *impl) Warn(args ...interface{})                        { l.emit(WARN, args) }
func (l *impl) Warnf(template string, args ...interface{})      { l.emitf(WARN, template, args) }
func (l *impl) Warnw(msg string, keysAndValues ...interface{})  { l.emitw(WARN, msg, keysAndValues) }
func (l *impl) Error(args ...interface{})                       { l.emit(ERROR, args) }
func (l *impl) Errorf(template string, args ...interface{})     { l.emitf(ERROR, template, args) }
func (l *impl) Errorw(msg string, keysAndValues ...interface{}) { l.emitw(ERROR, msg, keysAndValues) }

// Fatal logs at error level whatever the configured level, then exits.
func (l *impl) Fatal(args ...interface{}) { l.fatal(fmt.Sprint(args...)) }

// Fatalf is Fatal with a format string.
func (l *impl) Fatalf(template string, args ...interface{}) { l.fatal(fmt.Sprintf(template, args...)) }

func (l *impl) fatal(msg string) {
	l.write(l.entry(ERROR, msg), nil)
	os.Exit(1)
}
