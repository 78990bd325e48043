//go:build !linux

package rocm

import "errors"

// DefaultLibrary is unused off Linux; kept so callers build everywhere.
const DefaultLibrary = "librocprofiler-sdk.so"

// Open is only supported on Linux, where the ROCm runtime lives.
func Open(path string) (Library, error) {
	return nil, errors.New("rocm: rocprofiler is only available on linux")
}
