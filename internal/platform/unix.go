package platform

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"openclawsetup/internal/logger"
)

// unixForceStop 先按进程名 pkill，再按端口找到监听进程补刀
func unixForceStop(ctx context.Context, b *base, port int) error {
	pkillFound := true
	for _, pattern := range b.opts.GatewayPatterns {
		_, err := b.RunSilent(ctx, "pkill", "-f", pattern)
		if IsNotFound(err) {
			pkillFound = false
			break
		}
		// pkill 未匹配到进程时退出码为 1，不算失败
	}

	if port <= 0 {
		return nil
	}
	res, err := b.RunSilent(ctx, "lsof", "-nP", "-t", "-iTCP:"+strconv.Itoa(port), "-sTCP:LISTEN")
	if err != nil {
		if !pkillFound {
			return errors.New("未找到 pkill 与 lsof，无法强制终止网关进程")
		}
		return nil
	}
	for _, pid := range parsePIDLines(res.Stdout) {
		if _, err := b.RunSilent(ctx, "kill", "-9", strconv.Itoa(pid)); err != nil {
			logger.Platform.Warn().Err(err).Int("pid", pid).Msg("kill 失败")
		}
	}
	return nil
}

func parsePIDLines(out string) []int {
	var pids []int
	seen := map[int]bool{}
	for _, line := range strings.Split(out, "\n") {
		pid, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || pid <= 0 || seen[pid] {
			continue
		}
		seen[pid] = true
		pids = append(pids, pid)
	}
	return pids
}
