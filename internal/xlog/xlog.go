// Package xlog centralizes the glog verbosity levels used across the
// chunk streaming engine, the way the teacher gates chatty per-slice
// logging behind glog.FastV(4, glog.SmoduleEC) in ec/putjogger.go.
package xlog

import "github.com/golang/glog"

// Verbosity levels for glog.V(). Keep these few and coarse: per-target
// I/O (connect/frame/response) logs at VTarget, per-meta-chunk lifecycle
// events log at VChunk.
const (
	VChunk  glog.Level = 2
	VTarget glog.Level = 4
)

// Enabled reports whether level is currently active, for callers that
// need to skip computing an expensive log argument (e.g. a checksum)
// rather than just skipping the log line itself.
func Enabled(level glog.Level) bool {
	return bool(glog.V(level))
}

// Infof logs at the given verbosity if enabled.
func Infof(level glog.Level, format string, args ...interface{}) {
	if glog.V(level) {
		glog.Infof(format, args...)
	}
}

// Errorf always logs; target and source failures are diagnostic even
// when a meta-chunk write ultimately succeeds past quorum.
func Errorf(format string, args ...interface{}) {
	glog.Errorf(format, args...)
}

// Warningf always logs.
func Warningf(format string, args ...interface{}) {
	glog.Warningf(format, args...)
}
