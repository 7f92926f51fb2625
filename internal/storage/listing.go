package storage

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/edvin/backupd/internal/model"
)

// listingLineRe matches "2026-02-13 03:00    104857600   s3://bucket/key".
var listingLineRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2})\s+(\d+)\s+(\S+)$`)

const listingTimeLayout = "2006-01-02 15:04"

// ParseListing parses line-oriented store listing output. uriPrefix (for
// example "s3://bucket/") is stripped from each object URI. Lines that do not
// match the expected shape, such as directory markers, are skipped.
func ParseListing(r io.Reader, uriPrefix string) ([]model.SpacesObject, error) {
	var objects []model.SpacesObject
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		obj, ok := parseListingLine(sc.Text(), uriPrefix)
		if ok {
			objects = append(objects, obj)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return objects, nil
}

func parseListingLine(line, uriPrefix string) (model.SpacesObject, bool) {
	m := listingLineRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return model.SpacesObject{}, false
	}
	date, err := time.ParseInLocation(listingTimeLayout, m[1], time.UTC)
	if err != nil {
		return model.SpacesObject{}, false
	}
	size, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return model.SpacesObject{}, false
	}
	path := strings.TrimPrefix(strings.TrimPrefix(m[3], uriPrefix), "/")
	if path == "" || strings.HasSuffix(path, "/") {
		return model.SpacesObject{}, false
	}
	return model.SpacesObject{Path: path, Size: size, Date: date}, true
}
