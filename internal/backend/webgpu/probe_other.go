//go:build !windows

package webgpu

import "fmt"

// probe reports the backend as unavailable: the native bindings are only
// wired up for windows builds.
func probe() (bool, error) {
	return false, fmt.Errorf("webgpu: not available on this platform")
}
