package peerview

import "fmt"

// 版本信息，构建时通过 -ldflags 注入
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// VersionInfo 返回完整版本字符串
func VersionInfo() string {
	return fmt.Sprintf("go-peerview %s (commit %s, built %s)", Version, GitCommit, BuildDate)
}
