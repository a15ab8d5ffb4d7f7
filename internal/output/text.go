package output

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

func Plural(n int, singular string, plural string) string {
	if n != 1 {
		return plural
	}
	return singular
}

// Count renders "1 file" or "3 files".
func Count(n int, singular string, plural string) string {
	return fmt.Sprintf("%d %s", n, Plural(n, singular, plural))
}

func Filesize(i int64) string {
	if i < 1024 {
		return Count(int(i), "byte", "bytes")
	}
	return fmt.Sprintf("%s (%d bytes)", humanize.IBytes(uint64(i)), i)
}
