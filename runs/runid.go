// File: runs/runid.go
package runs

import (
	"fmt"
	"sync/atomic"
)

// RunID identifies one logical run of tests. Zero is never handed out.
type RunID int

func (id RunID) String() string {
	return fmt.Sprintf("RunId(%d)", int(id))
}

// RunIDSequence hands out unique run IDs, starting at 1. Safe for
// concurrent use.
type RunIDSequence struct {
	last atomic.Int64
}

// NewRunIDSequence creates a sequence whose first ID is 1.
func NewRunIDSequence() *RunIDSequence {
	return &RunIDSequence{}
}

// Next returns the next unused ID.
func (s *RunIDSequence) Next() RunID {
	return RunID(s.last.Add(1))
}
