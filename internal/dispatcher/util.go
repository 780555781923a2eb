package dispatcher

import (
	"fmt"
	"runtime"
)

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("job panic: %w", err)
	}
	return fmt.Errorf("job panic: %v", r)
}

func yieldToScheduler() {
	runtime.Gosched()
}
