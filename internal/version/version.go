package version

// Version is the application version. Override via ldflags:
//
//	go build -ldflags "-X openclawsetup/internal/version.Version=1.2.3 -X openclawsetup/internal/version.Build=153 -X openclawsetup/internal/version.OpenClawPinned=2026.2.9"
var Version = "0.0.1"

// Build is the build number, injected at compile time.
var Build = "dev"

// OpenClawPinned is the OpenClaw release installed from the registry tarball.
var OpenClawPinned = "2026.2.9"

// Node.js 版本区间：>= NodeFloorMajor.NodeFloorMinor 且 < NodeCeilingMajor
const (
	NodeFloorMajor   = 22
	NodeFloorMinor   = 12
	NodeCeilingMajor = 24
)

// String 返回 "版本 (构建号)" 形式
func String() string {
	return Version + " (" + Build + ")"
}
