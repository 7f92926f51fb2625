package storage

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// NightlyRoot is the key namespace holding all nightly backups.
const NightlyRoot = "nightly/"

// DateStampLayout is the UTC run date embedded in archive names.
const DateStampLayout = "20060102"

var dateStampRe = regexp.MustCompile(`_(\d{8})\.tar\.gz(\.enc)?$`)

// DateStamp formats t as the YYYYMMDD UTC run date.
func DateStamp(t time.Time) string {
	return t.UTC().Format(DateStampLayout)
}

// ArchiveName returns "{container}_{date}.tar.gz".
func ArchiveName(container, date string) string {
	return fmt.Sprintf("%s_%s.tar.gz", container, date)
}

// ContainerPrefix returns "nightly/{nodeID}/{container}/".
func ContainerPrefix(nodeID, container string) string {
	return fmt.Sprintf("%s%s/%s/", NightlyRoot, nodeID, container)
}

// NightlyKey returns "nightly/{nodeID}/{container}/{container}_{date}.tar.gz".
func NightlyKey(nodeID, container, date string) string {
	return ContainerPrefix(nodeID, container) + ArchiveName(container, date)
}

// ContainerPrefixOf returns the container prefix a nightly key belongs to.
func ContainerPrefixOf(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, NightlyRoot)
	if !ok {
		return "", false
	}
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", false
	}
	return ContainerPrefix(parts[0], parts[1]), true
}

// DateFromKey extracts the run date embedded in an archive key.
func DateFromKey(key string) (time.Time, bool) {
	m := dateStampRe.FindStringSubmatch(key)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(DateStampLayout, m[1])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// LogicalDate returns the backup date of an object: the store timestamp when
// it falls on the day named in the key, otherwise midnight UTC of that day.
func LogicalDate(key string, modified time.Time) time.Time {
	day, ok := DateFromKey(key)
	if !ok {
		return modified.UTC()
	}
	if DateStamp(modified) == day.Format(DateStampLayout) {
		return modified.UTC()
	}
	return day
}
