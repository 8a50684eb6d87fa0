// Package errclass 将安装失败时的原始输出归类为固定的错误类别，
// 附带说明、建议操作以及是否可以自动修复。
package errclass

import (
	"strings"
	"unicode/utf8"
)

// Category 错误类别，按优先级从高到低排列
type Category string

const (
	MissingNativeRuntimeDependency Category = "missing_native_runtime_dependency"
	PlatformBuildToolsMissing      Category = "platform_build_tools_missing"
	CorruptPackageCache            Category = "corrupt_package_cache"
	TLSCertificateError            Category = "tls_certificate_error"
	NetworkUnreachable             Category = "network_unreachable"
	DiskSpaceExhausted             Category = "disk_space_exhausted"
	SecuritySoftwareInterference   Category = "security_software_interference"
	PermissionDenied               Category = "permission_denied"
	OptionalNativeModuleFailed     Category = "optional_native_module_build_failed"
	Unknown                        Category = "unknown"
)

// MaxRawLength 原始输出在展示给用户前截断的长度
const MaxRawLength = 400

// Analysis 一次失败的分类结果
type Analysis struct {
	Category    Category `json:"category"`
	Description string   `json:"description"`
	Remedy      string   `json:"remedy"`
	AutoFixable bool     `json:"auto_fixable"`
	// RequiresVCS 输出表明安装过程需要 git（依赖通过 git 地址声明）
	RequiresVCS bool `json:"requires_vcs"`
}

// Classifier 针对某个目标系统的分类器。
// 编译工具缺失只在 Linux/macOS 上可自动修复
type Classifier struct {
	goos string
}

func New(goos string) *Classifier {
	return &Classifier{goos: goos}
}

type rule struct {
	category    Category
	description string
	remedy      string
	autoFixable bool
	match       func(text string) bool
}

var (
	nativeRuntimeSignatures = []string{
		"vcruntime140.dll",
		"vcruntime140_1.dll",
		"msvcp140.dll",
		"the specified module could not be found",
		"找不到指定的模块",
		"0xc0000135",
		"3221225781",
		"error while loading shared libraries",
		"cannot open shared object file",
		"glibcxx_",
		"glibc_2.",
		"libstdc++.so",
	}
	buildToolSignatures = []string{
		"gyp err! find vs",
		"could not find any visual studio installation",
		"gyp err! find python",
		"xcrun: error: invalid active developer path",
		"no developer tools were found",
		"xcode-select: note: no developer tools",
		"make: not found",
		"make: command not found",
		"not found: make",
		"g++: command not found",
		"g++: not found",
		"c++: command not found",
		"c++: not found",
		"gcc: command not found",
		"cc: not found",
	}
	cacheSignatures = []string{
		"ejsonparse",
		"unexpected end of json input",
		"invalid package.json",
		"eintegrity",
		"integrity checksum failed",
		"cache corrupt",
		"tar_bad_archive",
		"unexpected end of data",
		"zlib: unexpected end of file",
	}
	cachePathSignatures = []string{"npm-cache", "_cacache", ".npm/", `.npm\`, "-cache/", `-cache\`}
	tlsSignatures       = []string{
		"unable_to_get_issuer_cert",
		"unable to get local issuer certificate",
		"self_signed_cert_in_chain",
		"self-signed certificate",
		"self signed certificate",
		"depth_zero_self_signed_cert",
		"cert_has_expired",
		"certificate has expired",
		"unable_to_verify_leaf_signature",
		"unable to verify the first certificate",
		"err_tls_cert_altname_invalid",
		"ssl routines",
		"err_ssl_",
		"eproto",
	}
	networkSignatures = []string{
		"enotfound",
		"eai_again",
		"etimedout",
		"esockettimedout",
		"econnreset",
		"econnrefused",
		"enetunreach",
		"ehostunreach",
		"network timeout",
		"socket hang up",
		"getaddrinfo",
		"network is unreachable",
		"could not resolve host",
		"fetch failed",
	}
	diskSignatures = []string{
		"enospc",
		"no space left on device",
		"not enough space on the disk",
		"磁盘空间不足",
		"disk full",
		"there is not enough space",
	}
	abnormalExitSignatures = []string{
		"0xc0000005",
		"3221225477",
		"0xc0000409",
		"3221226505",
		"-4048",
		"ebusy",
		"resource busy or locked",
		"operation not permitted, rename",
		"operation not permitted, unlink",
		"virus",
		"quarantine",
	}
	permissionSignatures = []string{
		"eperm",
		"eacces",
		"permission denied",
		"operation not permitted",
		"access is denied",
		"拒绝访问",
	}
	optionalNativeSignatures = []string{
		"prebuild-install warn",
		"prebuild-install err",
		"prebuild-install info",
		"node-pre-gyp warn",
		"node-pre-gyp err",
		"gyp err! build error",
		"gyp err! configure error",
		"gyp err! stack error",
		"node-gyp rebuild",
		"sharp: installation error",
		"response status 404",
	}
	vcsSignatures = []string{
		"spawn git enoent",
		"enogit",
		"git: not found",
		"git: command not found",
		"'git' is not recognized",
		"unknown git error",
		"git dep preparation failed",
		"git-upload-pack",
		"git://",
		"git+ssh://",
		"git+https://",
	}
)

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

// cacheENOENT 同一行同时出现 ENOENT 和缓存路径，或 npm 报 ENOENT 且出错路径位于缓存中。
// npm 总会打印位于缓存目录的日志路径，不能只看整段文本
func cacheENOENT(text string) bool {
	if !strings.Contains(text, "enoent") {
		return false
	}
	codeENOENT := strings.Contains(text, "code enoent")
	for _, line := range strings.Split(text, "\n") {
		if !containsAny(line, cachePathSignatures) {
			continue
		}
		if strings.Contains(line, "enoent") {
			return true
		}
		if codeENOENT && strings.Contains(line, "err! path") {
			return true
		}
	}
	return false
}

// rules 的顺序就是优先级：第一个命中的规则胜出
var rules = []rule{
	{
		category:    MissingNativeRuntimeDependency,
		description: "缺少系统运行库（Windows 上通常是 VC++ 运行库，Linux 上是 libstdc++）",
		remedy:      "安装缺失的系统运行库后重试",
		autoFixable: true,
		match:       func(t string) bool { return containsAny(t, nativeRuntimeSignatures) },
	},
	{
		category:    PlatformBuildToolsMissing,
		description: "缺少编译原生模块所需的工具链（make/g++/Xcode 命令行工具）",
		remedy:      "安装系统编译工具后重试",
		autoFixable: true,
		match:       func(t string) bool { return containsAny(t, buildToolSignatures) },
	},
	{
		category:    CorruptPackageCache,
		description: "npm 缓存已损坏或不完整",
		remedy:      "清理安装目录中的 npm 缓存后重试",
		autoFixable: true,
		match: func(t string) bool {
			if containsAny(t, cacheSignatures) {
				return true
			}
			return cacheENOENT(t)
		},
	},
	{
		category:    TLSCertificateError,
		description: "HTTPS 证书校验失败，通常由公司代理或抓包软件替换证书引起",
		remedy:      "检查系统代理与证书设置，或为 npm 配置受信任的 CA 证书（cafile）后重试",
		match:       func(t string) bool { return containsAny(t, tlsSignatures) },
	},
	{
		category:    NetworkUnreachable,
		description: "无法连接到 npm 软件源（DNS 解析失败、连接超时或被重置）",
		remedy:      "检查网络连接与代理设置（HTTP_PROXY/HTTPS_PROXY），或切换到可访问的软件源后重试",
		match:       func(t string) bool { return containsAny(t, networkSignatures) },
	},
	{
		category:    DiskSpaceExhausted,
		description: "磁盘空间不足",
		remedy:      "清理磁盘，保证至少 2GB 可用空间后重试",
		match:       func(t string) bool { return containsAny(t, diskSignatures) },
	},
	{
		category:    SecuritySoftwareInterference,
		description: "安全软件拦截了安装过程中的文件操作",
		remedy:      "暂时关闭杀毒软件的实时防护，或将安装目录加入信任列表后重试",
		match: func(t string) bool {
			return containsAny(t, abnormalExitSignatures) && containsAny(t, permissionSignatures)
		},
	},
	{
		category:    PermissionDenied,
		description: "没有写入目标目录的权限",
		remedy:      "确认安装目录归当前用户所有，不要以其他用户身份运行过安装",
		match:       func(t string) bool { return containsAny(t, permissionSignatures) },
	},
	{
		category:    OptionalNativeModuleFailed,
		description: "可选的原生组件编译或下载失败",
		remedy:      "该组件是可选的，OpenClaw 核心功能不受影响",
		match:       func(t string) bool { return containsAny(t, optionalNativeSignatures) },
	},
}

// Classify 对 stdout+stderr 的拼接文本分类。纯函数，相同输入总是得到相同结果
func (c *Classifier) Classify(raw string) Analysis {
	text := strings.ToLower(raw)
	a := Analysis{RequiresVCS: containsAny(text, vcsSignatures)}

	for _, r := range rules {
		if !r.match(text) {
			continue
		}
		a.Category = r.category
		a.Description = r.description
		a.Remedy = r.remedy
		a.AutoFixable = r.autoFixable
		if r.category == PlatformBuildToolsMissing && c.goos == "windows" {
			a.AutoFixable = false
			a.Remedy = "安装 Visual Studio Build Tools（勾选「使用 C++ 的桌面开发」）后重试"
		}
		return a
	}

	a.Category = Unknown
	a.Description = "未能识别的安装错误"
	a.Remedy = TruncateRaw(raw)
	if a.Remedy == "" {
		a.Remedy = "没有可用的错误输出，请查看日志"
	}
	return a
}

// Classify 使用给定系统的分类器
func Classify(goos, raw string) Analysis {
	return New(goos).Classify(raw)
}

// TruncateRaw 截断原始输出，保证可以直接展示
func TruncateRaw(raw string) string {
	s := strings.TrimSpace(raw)
	if utf8.RuneCountInString(s) <= MaxRawLength {
		return s
	}
	r := []rune(s)
	return string(r[:MaxRawLength]) + "..."
}

// Title 类别的简短中文名
func (c Category) Title() string {
	switch c {
	case MissingNativeRuntimeDependency:
		return "缺少系统运行库"
	case PlatformBuildToolsMissing:
		return "缺少编译工具"
	case CorruptPackageCache:
		return "npm 缓存损坏"
	case TLSCertificateError:
		return "证书错误"
	case NetworkUnreachable:
		return "网络不可达"
	case DiskSpaceExhausted:
		return "磁盘空间不足"
	case SecuritySoftwareInterference:
		return "安全软件拦截"
	case PermissionDenied:
		return "权限不足"
	case OptionalNativeModuleFailed:
		return "可选组件失败"
	default:
		return "未知错误"
	}
}
