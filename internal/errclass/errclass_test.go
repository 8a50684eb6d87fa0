package errclass

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Categories(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		category    Category
		autoFixable bool
	}{
		{
			name:        "windows vc runtime missing",
			raw:         "Error: The specified module could not be found.\n\\\\?\\C:\\openclaw\\node_modules\\sharp\\build\\Release\\sharp.node (VCRUNTIME140.dll)",
			category:    MissingNativeRuntimeDependency,
			autoFixable: true,
		},
		{
			name:        "linux libstdc++ too old",
			raw:         "Error: /lib/x86_64-linux-gnu/libstdc++.so.6: version `GLIBCXX_3.4.29' not found",
			category:    MissingNativeRuntimeDependency,
			autoFixable: true,
		},
		{
			name:        "missing make",
			raw:         "gyp ERR! build error\ngyp ERR! stack Error: not found: make",
			category:    PlatformBuildToolsMissing,
			autoFixable: true,
		},
		{
			name:        "xcode cli missing",
			raw:         "xcrun: error: invalid active developer path (/Library/Developer/CommandLineTools), missing xcrun",
			category:    PlatformBuildToolsMissing,
			autoFixable: true,
		},
		{
			name:        "cache enoent with permission noise",
			raw:         "npm ERR! code ENOENT ... npm-cache ... EACCES",
			category:    CorruptPackageCache,
			autoFixable: true,
		},
		{
			name: "cacache index missing",
			raw: "npm ERR! code ENOENT\nnpm ERR! syscall open\nnpm ERR! path /home/u/.openclaw/.openclaw-cache/_cacache/index-v5/aa/bb\n" +
				"npm ERR! errno -2",
			category:    CorruptPackageCache,
			autoFixable: true,
		},
		{
			name:        "malformed json",
			raw:         "npm ERR! code EJSONPARSE\nnpm ERR! JSON.parse Unexpected end of JSON input while parsing near ''",
			category:    CorruptPackageCache,
			autoFixable: true,
		},
		{
			name:        "integrity",
			raw:         "npm ERR! code EINTEGRITY\nnpm ERR! sha512-abc integrity checksum failed when using sha512",
			category:    CorruptPackageCache,
			autoFixable: true,
		},
		{
			name:     "corporate proxy certificate",
			raw:      "npm ERR! code SELF_SIGNED_CERT_IN_CHAIN\nnpm ERR! errno SELF_SIGNED_CERT_IN_CHAIN\nrequest to https://registry.npmjs.org/openclaw failed, reason: self-signed certificate in certificate chain",
			category: TLSCertificateError,
		},
		{
			name:     "local issuer",
			raw:      "npm ERR! code UNABLE_TO_GET_ISSUER_CERT_LOCALLY\nunable to get local issuer certificate",
			category: TLSCertificateError,
		},
		{
			name:     "dns failure",
			raw:      "npm ERR! code ENOTFOUND\nnpm ERR! network request to https://registry.npmjs.org/openclaw failed, reason: getaddrinfo ENOTFOUND registry.npmjs.org",
			category: NetworkUnreachable,
		},
		{
			name:     "connection reset",
			raw:      "npm ERR! code ECONNRESET\nnpm ERR! network aborted",
			category: NetworkUnreachable,
		},
		{
			name:     "disk full",
			raw:      "npm ERR! code ENOSPC\nnpm ERR! syscall write\nnpm ERR! nospc ENOSPC: no space left on device, write",
			category: DiskSpaceExhausted,
		},
		{
			name:     "antivirus locking rename",
			raw:      "npm ERR! code EPERM\nnpm ERR! syscall rename\nnpm ERR! errno -4048\nnpm ERR! Error: EPERM: operation not permitted, rename 'C:\\a' -> 'C:\\b'",
			category: SecuritySoftwareInterference,
		},
		{
			name:     "access violation exit with access denied",
			raw:      "process exited with code 3221225477\nError: EACCES: access is denied",
			category: SecuritySoftwareInterference,
		},
		{
			name:     "plain permission",
			raw:      "npm ERR! code EACCES\nnpm ERR! syscall mkdir\nnpm ERR! path /usr/lib/node_modules/openclaw\nnpm ERR! Error: EACCES: permission denied, mkdir '/usr/lib/node_modules/openclaw'",
			category: PermissionDenied,
		},
		{
			name:     "prebuilt binary 404",
			raw:      "prebuild-install warn install No prebuilt binaries found (target=22.12.0 runtime=node arch=x64)\nnode-pre-gyp WARN Tried to download(404)",
			category: OptionalNativeModuleFailed,
		},
		{
			name:     "native addon build error",
			raw:      "gyp ERR! build error\ngyp ERR! stack Error: `make` failed with exit code: 2",
			category: OptionalNativeModuleFailed,
		},
		{
			name:     "unknown",
			raw:      "something completely different happened",
			category: Unknown,
		},
	}

	c := New("linux")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := c.Classify(tt.raw)
			assert.Equal(t, tt.category, a.Category)
			assert.Equal(t, tt.autoFixable, a.AutoFixable)
			assert.NotEmpty(t, a.Description)
			assert.NotEmpty(t, a.Remedy)
		})
	}
}

func TestClassify_Deterministic(t *testing.T) {
	raw := "npm ERR! code ECONNRESET\nnpm ERR! network aborted"
	c := New("darwin")
	assert.Equal(t, c.Classify(raw), c.Classify(raw))
}

func TestClassify_CachePrecedesPermission(t *testing.T) {
	a := Classify("linux", "npm ERR! code ENOENT ... npm-cache ... EACCES")
	assert.Equal(t, CorruptPackageCache, a.Category)
	assert.True(t, a.AutoFixable)
}

func TestClassify_LogPathInCacheIsNotCorruption(t *testing.T) {
	raw := "npm ERR! code ENOENT\nnpm ERR! syscall spawn git\nnpm ERR! path git\nnpm ERR! enoent An unknown git error occurred\n" +
		"npm ERR! A complete log of this run can be found in: /home/u/app/.openclaw-cache/_logs/debug-0.log"
	a := Classify("linux", raw)
	assert.NotEqual(t, CorruptPackageCache, a.Category)
	assert.True(t, a.RequiresVCS)
}

func TestClassify_BuildToolsNotAutoFixableOnWindows(t *testing.T) {
	raw := "gyp ERR! find VS could not find a version of Visual Studio 2017 or newer to use"
	win := Classify("windows", raw)
	assert.Equal(t, PlatformBuildToolsMissing, win.Category)
	assert.False(t, win.AutoFixable)
	assert.Contains(t, win.Remedy, "Visual Studio")

	mac := Classify("darwin", "xcrun: error: invalid active developer path")
	assert.True(t, mac.AutoFixable)
}

func TestClassify_RequiresVCS(t *testing.T) {
	a := Classify("linux", "npm ERR! syscall spawn git\nnpm ERR! Error: spawn git ENOENT")
	assert.True(t, a.RequiresVCS)

	b := Classify("linux", "npm ERR! code ECONNRESET")
	assert.False(t, b.RequiresVCS)
}

func TestClassify_UnknownRemedyIsTruncatedRaw(t *testing.T) {
	raw := strings.Repeat("x", MaxRawLength+50)
	a := Classify("linux", raw)
	assert.Equal(t, Unknown, a.Category)
	assert.False(t, a.AutoFixable)
	assert.Equal(t, MaxRawLength+3, len(a.Remedy))
	assert.True(t, strings.HasSuffix(a.Remedy, "..."))

	empty := Classify("linux", "   ")
	assert.Equal(t, Unknown, empty.Category)
	assert.NotEmpty(t, empty.Remedy)
}

func TestCategory_Title(t *testing.T) {
	assert.Equal(t, "npm 缓存损坏", CorruptPackageCache.Title())
	assert.Equal(t, "未知错误", Category("whatever").Title())
}
