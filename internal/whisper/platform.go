// Package whisper builds whisper.cpp command lines and runs the engine as a
// subprocess, turning its output into a stream of transcript events.
package whisper

import "runtime"

// OS families the engine is packaged for.
const (
	OSWindows = "windows"
	OSDarwin  = "darwin"
	OSLinux   = "linux"
)

// PlatformCapabilities describes the host the engine runs on. GPU only matters
// on Windows and CoreML only on POSIX hosts, matching how whisper.cpp builds
// are shipped.
type PlatformCapabilities struct {
	OS   string // GOOS value
	Arch string // GOARCH value
}

// DetectPlatform reads the current host's OS and architecture.
func DetectPlatform() PlatformCapabilities {
	return PlatformCapabilities{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// IsWindows reports whether the engine uses the Windows build layout.
func (p PlatformCapabilities) IsWindows() bool {
	return p.OS == OSWindows
}

// buildPlatform maps GOOS to the platform segment of a build directory name.
func (p PlatformCapabilities) buildPlatform() string {
	if p.OS == OSWindows {
		return "win32"
	}
	return p.OS
}

// buildArch maps GOARCH to the arch segment of a build directory name.
func (p PlatformCapabilities) buildArch() string {
	switch p.Arch {
	case "amd64":
		return "x64"
	case "386":
		return "ia32"
	default:
		return p.Arch
	}
}
