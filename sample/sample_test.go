package sample

import (
	"testing"

	"github.com/lguibr/harness/daemon"
	"github.com/stretchr/testify/assert"
)

func TestRegister(t *testing.T) {
	c := Register(daemon.NewCatalog())

	assert.Equal(t, []string{
		"sample/FailingTest",
		"sample/NestedTest",
		"sample/ParallelTest",
		"sample/PassingTest",
		"sample/PropertyTest",
		"sample/SleepingTest",
	}, c.Names())
}
