package prereq

import (
	"fmt"
	"regexp"
	"strconv"

	"openclawsetup/internal/version"
)

var versionRe = regexp.MustCompile(`v?(\d+)\.(\d+)(?:\.(\d+))?`)

// Version 运行时版本号
type Version struct {
	Major int
	Minor int
	Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ParseVersion 解析 "v22.12.0" / "22.12" 形式的版本号
func ParseVersion(s string) (Version, error) {
	m := versionRe.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("无法解析版本号: %q", s)
	}
	var v Version
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		v.Patch, _ = strconv.Atoi(m[3])
	}
	return v, nil
}

// Requirement 运行时版本要求：下限 FloorMajor.FloorMinor，CeilingMajor 及以上视为过新
type Requirement struct {
	FloorMajor   int
	FloorMinor   int
	CeilingMajor int
}

// DefaultRequirement 当前 OpenClaw 版本要求的 Node.js 范围
func DefaultRequirement() Requirement {
	return Requirement{
		FloorMajor:   version.NodeFloorMajor,
		FloorMinor:   version.NodeFloorMinor,
		CeilingMajor: version.NodeCeilingMajor,
	}
}

// MeetsFloor 版本不低于下限
func (r Requirement) MeetsFloor(v Version) bool {
	return v.Major > r.FloorMajor || (v.Major == r.FloorMajor && v.Minor >= r.FloorMinor)
}

// IsTooNew 主版本达到上限，可能存在兼容性问题
func (r Requirement) IsTooNew(v Version) bool {
	return r.CeilingMajor > 0 && v.Major >= r.CeilingMajor
}

// IsCompatible 不低于下限且未达到上限
func (r Requirement) IsCompatible(v Version) bool {
	return r.MeetsFloor(v) && !r.IsTooNew(v)
}

func (r Requirement) String() string {
	return fmt.Sprintf(">= %d.%d, < %d", r.FloorMajor, r.FloorMinor, r.CeilingMajor)
}
