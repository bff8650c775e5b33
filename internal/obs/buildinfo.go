package obs

import (
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ServiceName labels build_info and the tracing handler.
const ServiceName = "horizon-api"

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "horizon_build_info",
			Help: "Constant 1, labelled with the running build.",
		},
		[]string{"service", "version", "commit", "go_version"},
	)
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string
	Commit    string
	GoVersion string
}

// ResolveBuild fills gaps in the linker-supplied values from the module's
// embedded build info. A commit of "" or "dev" is replaced by vcs.revision.
func ResolveBuild(version, commit string) BuildInfo {
	info := BuildInfo{Version: version, Commit: commit, GoVersion: "unknown"}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return withDefaults(info)
	}
	info.GoVersion = bi.GoVersion
	if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	if info.Commit == "" || info.Commit == "dev" {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				info.Commit = s.Value
				if len(info.Commit) > 12 {
					info.Commit = info.Commit[:12]
				}
			}
		}
	}
	return withDefaults(info)
}

func withDefaults(info BuildInfo) BuildInfo {
	if info.Version == "" {
		info.Version = "unknown"
	}
	if info.Commit == "" {
		info.Commit = "dev"
	}
	return info
}

// InitBuildInfo registers horizon_build_info once and sets it for the
// resolved build.
func InitBuildInfo(version, commit string) BuildInfo {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	info := ResolveBuild(version, commit)
	buildInfo.WithLabelValues(ServiceName, info.Version, info.Commit, info.GoVersion).Set(1)
	return info
}
