package commands

import (
	"runtime"

	"openclawsetup/internal/constants"
	"openclawsetup/internal/output"
	"openclawsetup/internal/version"
)

type versionInfo struct {
	Version  string `json:"version"`
	Build    string `json:"build"`
	OpenClaw string `json:"openclaw"`
	Go       string `json:"go"`
	Platform string `json:"platform"`
}

func Version(jsonOut bool) int {
	info := versionInfo{
		Version:  version.Version,
		Build:    version.Build,
		OpenClaw: version.OpenClawPinned,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
	if jsonOut {
		_ = output.JSON(info)
		return constants.ExitOK
	}
	output.Printf("openclawsetup %s\n", version.String())
	output.Printf("OpenClaw %s, %s, %s\n", info.OpenClaw, info.Go, info.Platform)
	return constants.ExitOK
}
