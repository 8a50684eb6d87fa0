package constants

// Journal actions
const (
	ActionCheck          = "prereq.check"
	ActionInstallRuntime = "runtime.install"
	ActionInstallTool    = "tool.install"
	ActionCleanup        = "tool.cleanup"
	ActionUninstall      = "tool.uninstall"
	ActionGatewayStart   = "gateway.start"
	ActionGatewayStop    = "gateway.stop"
	ActionGatewayRestart = "gateway.restart"
	ActionServiceInstall = "gateway.install_service"
	ActionConfigWrite    = "config.write"
)

// Journal results
const (
	ResultSuccess  = "success"
	ResultFailed   = "failed"
	ResultDeclined = "declined"
	ResultPending  = "pending"
	ResultWarning  = "warning"
)

// Package names
const (
	OpenClawPackage = "openclaw"
	OpenClawBin     = "openclaw"
	NodeBin         = "node"
	NpmBin          = "npm"
)

// Exit codes for the command-line surface
const (
	ExitOK       = 0
	ExitFailed   = 1
	ExitUsage    = 2
	ExitDeclined = 3
	ExitPending  = 4
)

// DefaultGatewayPort is the OpenClaw gateway's default listening port.
const DefaultGatewayPort = 18789

// MinFreeDiskGB is the disk space floor for installing the runtime and the tool.
const MinFreeDiskGB = 2.0
