package log

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// implemented by internal/xerrors
type (
	stackTracer interface{ StackPCs() []uintptr }
	pcCarrier   interface{ PC() uintptr }
)

// errorFields are appended to every Error record with a non-nil err.
func errorFields(err error, links int) []any {
	surface, cause := errorTypes(err)
	kv := []any{"err", err, "error_type", surface, "cause_type", cause}
	if chain := errorChain(err); len(chain) > 1 {
		kv = append(kv, "error_chain", chain)
	}
	if links > 0 {
		kv = append(kv, "error_links", errorLinks(err, links))
	}
	return kv
}

// errorChain lists distinct messages down the Unwrap chain, then the
// members of a joined error at the top.
func errorChain(err error) []string {
	var out []string
	add := func(msg string) {
		if len(out) == 0 || out[len(out)-1] != msg {
			out = append(out, msg)
		}
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		add(e.Error())
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range j.Unwrap() {
			add(e.Error())
		}
	}
	return out
}

// errorLinks reports where each link of the chain was created, when the
// link knows. The top link is always present.
func errorLinks(err error, limit int) []map[string]any {
	var out []map[string]any
	depth := 0
	for e := err; e != nil && depth < limit; e = errors.Unwrap(e) {
		link := map[string]any{"msg": e.Error()}
		var fr runtime.Frame
		var ok bool
		switch v := e.(type) {
		case pcCarrier:
			fr, ok = frameAt(v.PC())
		case stackTracer:
			fr, ok = firstAppFrame(v.StackPCs())
		}
		if ok {
			link["func"], link["file"], link["line"] = fr.Function, fr.File, fr.Line
		}
		if ok || depth == 0 {
			out = append(out, link)
		}
		depth++
	}
	return out
}

// errorTypes names the first non-wrapper type and the innermost type.
func errorTypes(err error) (surface, cause string) {
	if err == nil {
		return "", ""
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		cause = fmt.Sprintf("%T", e)
		if surface == "" && !isWrapper(e) {
			surface = cause
		}
	}
	if surface == "" {
		surface = fmt.Sprintf("%T", err)
	}
	return surface, cause
}

func isWrapper(e error) bool {
	t := reflect.TypeOf(e)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return strings.HasSuffix(t.PkgPath(), "/internal/xerrors") || (t.PkgPath() == "fmt" && t.Name() == "wrapError")
}

// machinery reports frames of slog, this package's methods and xerrors.
func machinery(fn string) bool {
	return strings.HasPrefix(fn, "log/slog.") ||
		strings.Contains(fn, "/internal/log.(") ||
		strings.Contains(fn, "/internal/xerrors.")
}

func frameAt(pc uintptr) (runtime.Frame, bool) {
	if pc == 0 {
		return runtime.Frame{}, false
	}
	fr, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	return fr, true
}

func firstAppFrame(pcs []uintptr) (runtime.Frame, bool) {
	if len(pcs) == 0 {
		return runtime.Frame{}, false
	}
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if !strings.HasPrefix(fr.Function, "runtime.") && !machinery(fr.Function) {
			return fr, true
		}
		if !more {
			return runtime.Frame{}, false
		}
	}
}

// renderStack prints "func\n\tfile:line" per frame, dropping leading
// logging frames and everything from the runtime on.
func renderStack(pcs []uintptr) string {
	var b strings.Builder
	frames := runtime.CallersFrames(pcs)
	started := false
	for {
		fr, more := frames.Next()
		if strings.HasPrefix(fr.Function, "runtime.") {
			break
		}
		if started || !machinery(fr.Function) {
			started = true
			fmt.Fprintf(&b, "%s\n\t%s:%d\n", fr.Function, fr.File, fr.Line)
		}
		if !more {
			break
		}
	}
	return strings.TrimSpace(b.String())
}
