package platform

import (
	"os"
	"path/filepath"
	"strings"
)

// proxyVars 原样透传给子进程的代理变量
var proxyVars = []string{
	"HTTP_PROXY", "HTTPS_PROXY", "NO_PROXY", "ALL_PROXY",
	"http_proxy", "https_proxy", "no_proxy", "all_proxy",
}

// ProxyVars 返回需要透传的代理变量名
func ProxyVars() []string {
	return append([]string(nil), proxyVars...)
}

func lookupEnv(env []string, key string, caseInsensitive bool) (string, bool) {
	for i := len(env) - 1; i >= 0; i-- {
		k, v, ok := strings.Cut(env[i], "=")
		if !ok {
			continue
		}
		if k == key || (caseInsensitive && strings.EqualFold(k, key)) {
			return v, true
		}
	}
	return "", false
}

// mergeEnv 用 extra 中的 KEY=VALUE 覆盖 base 中的同名变量
func mergeEnv(base, extra []string, caseInsensitive bool) []string {
	if len(extra) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(extra))
	override := map[string]bool{}
	for _, kv := range extra {
		k, _, _ := strings.Cut(kv, "=")
		override[normKey(k, caseInsensitive)] = true
	}
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if override[normKey(k, caseInsensitive)] {
			continue
		}
		out = append(out, kv)
	}
	return append(out, extra...)
}

func normKey(k string, caseInsensitive bool) string {
	if caseInsensitive {
		return strings.ToUpper(k)
	}
	return k
}

// splitPathList 按目标平台的分隔符拆分 PATH
func splitPathList(value string, target Target) []string {
	sep := ":"
	if target == Windows {
		sep = ";"
	}
	var out []string
	for _, p := range strings.Split(value, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinPathList(entries []string, target Target) string {
	sep := ":"
	if target == Windows {
		sep = ";"
	}
	return strings.Join(entries, sep)
}

func dedupPaths(in []string, caseInsensitive bool) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		key := normKey(filepath.Clean(p), caseInsensitive)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

// KnownBinDirs 返回 GUI 启动的进程拿不到登录 shell PATH 时需要补充的目录：
// Node.js 各类安装方式、npm 全局前缀、以及 OpenClaw 的安装目录
func KnownBinDirs(target Target, home, installDir string) []string {
	var dirs []string
	if installDir != "" {
		dirs = append(dirs, filepath.Join(installDir, "node_modules", ".bin"))
	}

	switch target {
	case Windows:
		dirs = append(dirs,
			`C:\Program Files\nodejs`,
			`C:\Program Files (x86)\nodejs`,
		)
		if appData := os.Getenv("APPDATA"); appData != "" {
			dirs = append(dirs, filepath.Join(appData, "npm"))
		}
		if nvmSymlink := os.Getenv("NVM_SYMLINK"); nvmSymlink != "" {
			dirs = append(dirs, nvmSymlink)
		}
		if home != "" {
			dirs = append(dirs,
				filepath.Join(home, "AppData", "Roaming", "nvm", "current"),
				filepath.Join(home, "AppData", "Local", "Volta", "bin"),
				filepath.Join(home, "AppData", "Roaming", "fnm", "aliases", "default"),
				filepath.Join(home, "scoop", "shims"),
			)
		}
		dirs = append(dirs, `C:\ProgramData\chocolatey\bin`)

	case MacOS:
		dirs = append(dirs,
			"/opt/homebrew/bin",
			"/opt/homebrew/opt/node@22/bin",
			"/usr/local/bin",
			"/usr/local/opt/node@22/bin",
			"/usr/bin",
			"/bin",
			"/usr/sbin",
			"/sbin",
		)
		dirs = append(dirs, unixHomeDirs(home)...)

	default:
		dirs = append(dirs,
			"/usr/local/bin",
			"/usr/bin",
			"/bin",
			"/usr/local/sbin",
			"/usr/sbin",
			"/sbin",
			"/snap/bin",
		)
		dirs = append(dirs, unixHomeDirs(home)...)
	}
	return dirs
}

func unixHomeDirs(home string) []string {
	if home == "" {
		return nil
	}
	dirs := []string{
		filepath.Join(home, ".npm-global", "bin"),
		filepath.Join(home, ".local", "bin"),
		filepath.Join(home, ".volta", "bin"),
		filepath.Join(home, ".asdf", "shims"),
		filepath.Join(home, ".local", "share", "mise", "shims"),
		filepath.Join(home, ".fnm", "aliases", "default", "bin"),
	}
	// nvm 默认版本
	if data, err := os.ReadFile(filepath.Join(home, ".nvm", "alias", "default")); err == nil {
		if v := strings.TrimSpace(string(data)); v != "" {
			if !strings.HasPrefix(v, "v") {
				v = "v" + v
			}
			dirs = append(dirs, filepath.Join(home, ".nvm", "versions", "node", v, "bin"))
		}
	}
	return dirs
}
