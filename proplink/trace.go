package proplink

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/golang/glog"
)

// IsDoneError reports whether r (a recovered panic value) represents a
// routine context-cancellation, which HandleError treats as expected and
// does not log.
func IsDoneError(r any) bool {
	switch v := r.(type) {
	case error:
		return v.Error() == "Done"
	case string:
		return v == "Done"
	default:
		return false
	}
}

// HandleError runs do, recovering any panic it raises. Recovered panics
// are logged at Warning (unless IsDoneError) and turned into an error
// passed to any func(error) handlers. This is how every PropLink
// callback invocation (on-change, on-fire, async reply delivery) is
// wrapped, so a bug in user code surfaces as an error to the caller
// instead of killing the dispatch or I/O loop.
func HandleError(do func(), handlers ...func(error)) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if !IsDoneError(r) {
			glog.Warningf("Unexpected error: %s\n", errorJSON(r, debug.Stack()))
		}
		err, ok := r.(error)
		if !ok {
			err = fmt.Errorf("%v", r)
		}
		for _, handler := range handlers {
			handler(err)
		}
	}()
	do()
}

func errorJSON(err any, stack []byte) string {
	lines := []string{}
	for _, line := range strings.Split(string(stack), "\n") {
		lines = append(lines, strings.TrimSpace(line))
	}
	b, _ := json.Marshal(map[string]any{
		"error": fmt.Sprintf("%T=%v", err, err),
		"stack": lines,
	})
	return string(b)
}

// Trace logs the start and end time of do, at glog verbosity level 2.
// Used to trace each request handled by the server's worker pool.
func Trace(tag string, do func()) {
	start := time.Now()
	glog.V(2).Infof("[start   ]%s (%d)\n", tag, start.UnixMilli())
	do()
	end := time.Now()
	millis := float64(end.Sub(start)) / float64(time.Millisecond)
	glog.V(2).Infof("[end     ]%s (%.2fms)\n", tag, millis)
}
