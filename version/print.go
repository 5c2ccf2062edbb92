// Package version reports the build of the running binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Short is the module version, or "(devel)" for local builds.
var Short = "(devel)"

var (
	GitCommit string
	GitDirty  bool
)

func init() {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if v := bi.Main.Version; v != "" {
		Short = v
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			GitCommit = s.Value
		case "vcs.modified":
			GitDirty = s.Value == "true"
		}
	}
}

func String() string {
	var ret strings.Builder
	ret.WriteString("apidash ")
	ret.WriteString(Short)
	ret.WriteByte('\n')
	if GitCommit != "" {
		var dirty string
		if GitDirty {
			dirty = "-dirty"
		}
		fmt.Fprintf(&ret, "  commit: %s%s\n", GitCommit, dirty)
	}
	fmt.Fprintf(&ret, "  go version: %s\n", runtime.Version())
	return strings.TrimSpace(ret.String())
}
