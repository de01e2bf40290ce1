package health

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// getBuildInfo renders the module version and VCS revision stamped into
// the binary by the Go toolchain.
func getBuildInfo() string {
	version, revision, modified := "dev", "unknown", false

	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			version = v
		}
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				revision = setting.Value[:min(len(setting.Value), 7)]
			case "vcs.modified":
				modified = setting.Value == "true"
			}
		}
	}

	if modified {
		revision += "-dirty"
	}

	return fmt.Sprintf("%s-%s (%s)", version, revision, runtime.Version())
}
