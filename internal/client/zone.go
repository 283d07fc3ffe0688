package client

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalZone returns the IANA name of the local time zone.
// It tries $TZ, then the /etc/localtime symlink target, then time.Local.
func LocalZone() string {
	if tz := strings.TrimPrefix(os.Getenv("TZ"), ":"); tz != "" && !strings.HasPrefix(tz, "/") {
		return tz
	}
	if target, err := filepath.EvalSymlinks("/etc/localtime"); err == nil {
		if name, ok := zoneFromPath(target); ok {
			return name
		}
	}
	if name := time.Local.String(); name != "" && name != "Local" {
		return name
	}
	return "UTC"
}

func zoneFromPath(path string) (string, bool) {
	const marker = "zoneinfo/"
	i := strings.LastIndex(path, marker)
	if i < 0 {
		return "", false
	}
	name := path[i+len(marker):]
	for _, prefix := range []string{"posix/", "right/"} {
		name = strings.TrimPrefix(name, prefix)
	}
	if name == "" {
		return "", false
	}
	return name, true
}
