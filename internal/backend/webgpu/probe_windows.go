//go:build windows

package webgpu

import (
	"fmt"

	"github.com/go-webgpu/webgpu/wgpu"
)

// probe creates an instance and requests an adapter, releasing both.
func probe() (ok bool, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return false, fmt.Errorf("webgpu: failed to create instance: %w", err)
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false, fmt.Errorf("webgpu: failed to request adapter: %w", err)
	}
	adapter.Release()
	return true, nil
}
