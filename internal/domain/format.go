// Package domain holds presentation helpers shared across the CLI's
// human-facing output — `vsmcore status` and `vsmcore variety` render
// their counts the same way.
package domain

import "github.com/dustin/go-humanize"

// HumanSize renders a byte count in SI units, e.g. "1.5 MB".
func HumanSize(bytes uint64) string {
	return humanize.Bytes(bytes)
}

// HumanCount renders a large integer count with thousands separators,
// used for anything that can grow into the thousands (message counts,
// operation counts) where a bare digit string is hard to scan.
func HumanCount(n int64) string {
	return humanize.Comma(n)
}
