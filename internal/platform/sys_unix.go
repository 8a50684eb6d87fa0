//go:build !windows

package platform

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// sysProcAttr 后台进程使用新会话，脱离安装器的控制终端
func sysProcAttr(visible, detached bool) *syscall.SysProcAttr {
	if detached {
		return &syscall.SysProcAttr{Setsid: true}
	}
	return nil
}

// registryPath Unix 没有系统级 PATH 存储，PATH 由 KnownBinDirs 补全
func registryPath() string { return "" }

func diskFreeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}

func listeningPIDs(port int) ([]int, error) {
	return nil, ErrUnsupported
}
