//go:build !unix

package process

import "os"

// Without signals there is no graceful way; terminate kills.
func terminate(p *os.Process) error {
	return p.Kill()
}
