package loop

import (
	"runtime"
	"sync"
)

var stackBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 64)
		return &b
	},
}

// goroutineID returns the current goroutine ID, parsed from the first line of
// runtime.Stack ("goroutine N [running]:"). It returns 0 if parsing fails.
func goroutineID() int64 {
	bp := stackBufPool.Get().(*[]byte)
	defer stackBufPool.Put(bp)
	buf := *bp
	n := runtime.Stack(buf, false)
	return parseGoroutineID(buf[:n])
}

func parseGoroutineID(stack []byte) int64 {
	const prefix = "goroutine "
	if len(stack) < len(prefix) || string(stack[:len(prefix)]) != prefix {
		return 0
	}
	var id int64
	for _, b := range stack[len(prefix):] {
		if b < '0' || b > '9' {
			break
		}
		id = id*10 + int64(b-'0')
	}
	return id
}
