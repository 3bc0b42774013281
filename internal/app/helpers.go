package app

import (
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

// humanizeDuration keeps the two largest non-zero units: 1d6h, 1h30m, 42s.
func humanizeDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	units := []struct {
		size   time.Duration
		suffix string
	}{
		{day, "d"},
		{time.Hour, "h"},
		{time.Minute, "m"},
		{time.Second, "s"},
	}
	var b strings.Builder
	shown := 0
	for _, u := range units {
		n := d / u.size
		d -= n * u.size
		if n == 0 {
			if shown > 0 {
				break
			}
			continue
		}
		b.WriteString(strconv.FormatInt(int64(n), 10))
		b.WriteString(u.suffix)
		if shown++; shown == 2 {
			break
		}
	}
	return b.String()
}
