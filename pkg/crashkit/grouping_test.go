package crashkit

import (
	"testing"
)

func eventWithStack(class, stack string) *Event {
	return &Event{Errors: []Error{{Class: class, Message: "varies", Stacktrace: stack}}}
}

func TestGroupingHash_Stability(t *testing.T) {
	e := eventWithStack("*errors.errorString", `goroutine 1 [running]:
main.doSomething()
	/app/main.go:42 +0x123
main.helper()
	/app/main.go:30 +0x456
main.main()
	/app/main.go:10 +0x789`)

	h1 := GroupingHash(e)
	h2 := GroupingHash(e)

	if h1 != h2 {
		t.Errorf("same event produced different hashes: %q vs %q", h1, h2)
	}
	if len(h1) != 32 {
		t.Errorf("hash length = %d, want 32", len(h1))
	}
}

func TestGroupingHash_IgnoresLineNumbersAndAddresses(t *testing.T) {
	e1 := eventWithStack("*fs.PathError", `goroutine 1 [running]:
main.handler(0x1234abcd)
	/app/main.go:42 +0x100`)
	e2 := eventWithStack("*fs.PathError", `goroutine 7 [running]:
main.handler(0xdeadbeef)
	/app/main.go:99 +0x200`)
	e2.Errors[0].Message = "different message"

	if GroupingHash(e1) != GroupingHash(e2) {
		t.Error("events differing only in variable data should share a hash")
	}
}

func TestGroupingHash_DifferentClass(t *testing.T) {
	stack := "main.run()\n\t/app/main.go:1"
	if GroupingHash(eventWithStack("A", stack)) == GroupingHash(eventWithStack("B", stack)) {
		t.Error("different error classes should not share a hash")
	}
}

func TestNormalizeStackTrace_SkipsPanicFrames(t *testing.T) {
	frames := normalizeStackTrace(`goroutine 1 [running]:
runtime/debug.Stack()
	/usr/local/go/src/runtime/debug/stack.go:26 +0x5e
github.com/strongdm/ai-crashkit/pkg/crashkit.Recover({0x1, 0x2}, {0x3, 0x4})
	/src/recover.go:50 +0x1
panic({0x10, 0x20})
	/usr/local/go/src/runtime/panic.go:770 +0x132
main.(*Worker).Run(0xc000010000)
	/app/worker.go:12 +0x1
main.main()
	/app/main.go:5 +0x1`)

	want := []string{"main.(*Worker).Run", "main.main"}
	if len(frames) != len(want) {
		t.Fatalf("frames = %v, want %v", frames, want)
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Errorf("frames[%d] = %q, want %q", i, frames[i], want[i])
		}
	}
}
