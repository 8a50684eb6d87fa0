//go:build windows

package platform

import (
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

var (
	modiphlpapi             = windows.NewLazySystemDLL("iphlpapi.dll")
	procGetExtendedTcpTable = modiphlpapi.NewProc("GetExtendedTcpTable")
)

// TCP_TABLE_OWNER_PID_LISTENER
const tcpTableOwnerPIDListener = 3

// sysProcAttr 隐藏窗口用 CREATE_NO_WINDOW；后台进程放入新进程组，使其在安装器退出后继续运行
func sysProcAttr(visible, detached bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{}
	switch {
	case detached && visible:
		attr.CreationFlags = windows.CREATE_NEW_CONSOLE | windows.CREATE_NEW_PROCESS_GROUP
	case detached:
		attr.CreationFlags = windows.CREATE_NEW_PROCESS_GROUP | windows.CREATE_NO_WINDOW
		attr.HideWindow = true
	case !visible:
		attr.CreationFlags = windows.CREATE_NO_WINDOW
		attr.HideWindow = true
	}
	return attr
}

// registryPath 读取系统与当前用户的 Path，安装程序修改注册表后已运行的进程不会自动获得新值
func registryPath() string {
	locations := []struct {
		root registry.Key
		path string
	}{
		{registry.LOCAL_MACHINE, `SYSTEM\CurrentControlSet\Control\Session Manager\Environment`},
		{registry.CURRENT_USER, `Environment`},
	}
	var parts []string
	for _, loc := range locations {
		k, err := registry.OpenKey(loc.root, loc.path, registry.QUERY_VALUE)
		if err != nil {
			continue
		}
		v, _, err := k.GetStringValue("Path")
		k.Close()
		if err != nil || strings.TrimSpace(v) == "" {
			continue
		}
		if expanded, err := registry.ExpandString(v); err == nil {
			v = expanded
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, ";")
}

func diskFreeBytes(path string) (uint64, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	var free, total, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree); err != nil {
		return 0, err
	}
	return free, nil
}

// listeningPIDs 通过 GetExtendedTcpTable 读取 IPv4 监听表
func listeningPIDs(port int) ([]int, error) {
	if err := procGetExtendedTcpTable.Find(); err != nil {
		return nil, err
	}
	size := uint32(16 * 1024)
	for attempt := 0; attempt < 4; attempt++ {
		buf := make([]byte, size)
		ret, _, _ := procGetExtendedTcpTable.Call(
			uintptr(unsafe.Pointer(&buf[0])),
			uintptr(unsafe.Pointer(&size)),
			0,
			uintptr(windows.AF_INET),
			tcpTableOwnerPIDListener,
			0,
		)
		switch errno := syscall.Errno(ret); errno {
		case 0:
			return ParseTCPTable(buf, port), nil
		case windows.ERROR_INSUFFICIENT_BUFFER:
			continue
		default:
			return nil, errno
		}
	}
	return nil, windows.ERROR_INSUFFICIENT_BUFFER
}
