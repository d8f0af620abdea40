// Package logrus adapts sirupsen/logrus to swcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/swcache"
)

var _ swcache.Logger = Logger{}

// Logger logs through a logrus entry. An "err" field holding an error is
// attached with WithError so it lands under logrus.ErrorKey.
type Logger struct{ E *logrus.Entry }

func New(l *logrus.Logger) Logger { return Logger{E: logrus.NewEntry(l)} }

func (l Logger) Debug(msg string, f swcache.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f swcache.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f swcache.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f swcache.Fields) { l.with(f).Error(msg) }

func (l Logger) with(f swcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	lf := make(logrus.Fields, len(f))
	var err error
	for k, v := range f {
		if e, ok := v.(error); ok && k == "err" {
			err = e
			continue
		}
		lf[k] = v
	}
	e := l.E.WithFields(lf)
	if err != nil {
		e = e.WithError(err)
	}
	return e
}
