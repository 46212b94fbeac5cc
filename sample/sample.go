// Package sample holds the test classes shipped with the harness binary.
// They exercise every feature of daemon.T and are what the end-to-end
// tests run.
package sample

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lguibr/harness/daemon"
)

// Property keys read by the sample classes.
const (
	// SumProperty, when set, is the sum PropertyTest expects for 2+2.
	SumProperty = "sample.sum"
	// SleepProperty is how long SleepingTest sleeps (default 10ms).
	SleepProperty = "sample.sleep"
)

// Register adds the sample classes to c.
func Register(c *daemon.Catalog) *daemon.Catalog {
	return c.
		Add("sample/PassingTest", passing).
		Add("sample/FailingTest", failing).
		Add("sample/NestedTest", nested).
		Add("sample/ParallelTest", parallel).
		Add("sample/PropertyTest", property).
		Add("sample/SleepingTest", sleeping)
}

func passing(t *daemon.T) {
	words := strings.Fields("the quick brown fox")
	sort.Strings(words)
	if got := strings.Join(words, " "); got != "brown fox quick the" {
		t.Errorf("sorted words = %q", got)
	}
}

func failing(t *daemon.T) {
	t.Errorf("expected failure: %d != %d", 1, 2)
}

func nested(t *daemon.T) {
	t.Run("first", func(t *daemon.T) {})
	t.Run("second", func(t *daemon.T) {
		t.Run("deeper", func(t *daemon.T) {})
	})
}

// parallel runs nested tests from several goroutines; they all belong to
// the class's run.
func parallel(t *daemon.T) {
	var mu sync.Mutex
	seen := map[int]bool{}
	for i := 0; i < 4; i++ {
		i := i
		t.Go(func(ctx context.Context) {
			t.Run(fmt.Sprintf("worker-%d", i), func(t *daemon.T) {
				mu.Lock()
				defer mu.Unlock()
				seen[i] = true
			})
		})
	}
	t.Go(func(ctx context.Context) {
		select {
		case <-ctx.Done():
			t.Errorf("test context cancelled early")
		case <-time.After(time.Millisecond):
		}
	})
}

func property(t *daemon.T) {
	want, ok := t.Property(SumProperty)
	if !ok {
		return
	}
	if got := fmt.Sprint(2 + 2); got != want {
		t.Errorf("2+2 = %s, want %s", got, want)
	}
}

func sleeping(t *daemon.T) {
	d := 10 * time.Millisecond
	if v, ok := t.Property(SleepProperty); ok {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			t.Fatalf("bad %s: %v", SleepProperty, err)
		}
		d = parsed
	}
	time.Sleep(d)
}
