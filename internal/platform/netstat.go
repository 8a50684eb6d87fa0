package platform

import (
	"encoding/binary"
	"strconv"
	"strings"
)

// ParseNetstatListeners 解析 `netstat -ano` 输出，返回监听 port 的 PID
func ParseNetstatListeners(out string, port int) []int {
	suffix := ":" + strconv.Itoa(port)
	var pids []int
	seen := map[int]bool{}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 || !strings.EqualFold(fields[0], "TCP") {
			continue
		}
		if !strings.EqualFold(fields[3], "LISTENING") || !strings.HasSuffix(fields[1], suffix) {
			continue
		}
		pid, err := strconv.Atoi(fields[4])
		if err != nil || pid <= 0 || seen[pid] {
			continue
		}
		seen[pid] = true
		pids = append(pids, pid)
	}
	return pids
}

// mibTCPRowOwnerPIDSize MIB_TCPROW_OWNER_PID: state, localAddr, localPort, remoteAddr, remotePort, owningPid
const mibTCPRowOwnerPIDSize = 24

// ParseTCPTable 解析 GetExtendedTcpTable(TCP_TABLE_OWNER_PID_*) 返回的 MIB_TCPTABLE_OWNER_PID
func ParseTCPTable(buf []byte, port int) []int {
	if len(buf) < 4 {
		return nil
	}
	n := int(binary.LittleEndian.Uint32(buf[:4]))
	var pids []int
	seen := map[int]bool{}
	for i := 0; i < n; i++ {
		off := 4 + i*mibTCPRowOwnerPIDSize
		if off+mibTCPRowOwnerPIDSize > len(buf) {
			break
		}
		row := buf[off : off+mibTCPRowOwnerPIDSize]
		// dwLocalPort 低 16 位为网络字节序
		raw := binary.LittleEndian.Uint32(row[8:12])
		local := int(raw&0xff)<<8 | int(raw>>8&0xff)
		if local != port {
			continue
		}
		pid := int(binary.LittleEndian.Uint32(row[20:24]))
		if pid <= 0 || seen[pid] {
			continue
		}
		seen[pid] = true
		pids = append(pids, pid)
	}
	return pids
}
