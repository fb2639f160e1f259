package repo

import (
	"database/sql"
	"errors"
	"sort"
	"strconv"
	"strings"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// encodeIDList stores a set of ids as comma-delimited text. Duplicates are
// dropped and the result is sorted so equal sets encode identically.
func encodeIDList(ids []int64) any {
	if len(ids) == 0 {
		return nil
	}
	seen := map[int64]bool{}
	var uniq []int64
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		uniq = append(uniq, id)
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })
	parts := make([]string, len(uniq))
	for i, id := range uniq {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func decodeIDList(raw sql.NullString) []int64 {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var ids []int64
	for _, part := range strings.Split(raw.String, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func encodeStringList(items []string) any {
	if len(items) == 0 {
		return nil
	}
	return strings.Join(items, ",")
}

func decodeStringList(raw sql.NullString) []string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var items []string
	for _, part := range strings.Split(raw.String, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		items = append(items, part)
	}
	return items
}
