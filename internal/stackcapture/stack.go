// Package stackcapture implements Stack Capture (§4.7): recording a
// textual call-site description at the point of every user-initiated
// port operation, so an async failure can be attributed to the client
// call site that caused it rather than to noise from the server's own
// stack.
//
// Grounded on the teacher's internal/buildinfo package, the one place
// in the teacher repo that reaches directly into the runtime package
// (for Go/OS/arch info) rather than a wrapping library. No example repo
// in the pack imports a stack-trace library (e.g. pkg/errors or
// go-errors/errors) for this purpose, so this is implemented on
// runtime.Caller/runtime.FuncForPC directly; that absence is the
// standard-library justification this package's use requires.
package stackcapture

import (
	"fmt"
	"runtime"
)

// Site describes a single call-site captured via runtime.Caller.
type Site struct {
	Function string
	File     string
	Line     int
}

// String renders the call site as "function (file:line)", the format
// used when a Site replaces a deserialized server error's stack.
func (s Site) String() string {
	if s.Function == "" && s.File == "" {
		return ""
	}
	return fmt.Sprintf("%s (%s:%d)", s.Function, s.File, s.Line)
}

// Capture records the caller skip frames above its own invocation.
// skip 0 means "my immediate caller" — the usual case for a port
// operation capturing the site that invoked it.
func Capture(skip int) Site {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Site{}
	}
	fn := runtime.FuncForPC(pc)
	name := "unknown"
	if fn != nil {
		name = fn.Name()
	}
	return Site{Function: name, File: file, Line: line}
}

// Resolve returns provided if non-empty (a caller-supplied stack
// overriding automatic capture, per the optional {stack?} operation
// argument in §4.6), otherwise captures fresh at skip+1 frames above
// its own invocation.
func Resolve(provided string, skip int) string {
	if provided != "" {
		return provided
	}
	return Capture(skip + 1).String()
}
