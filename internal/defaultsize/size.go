// Package defaultsize holds the default batch sizes used when parsing
// dataframe partitions.
package defaultsize

import "flag"

var (
	// Chunk is the default number of rows decoded into a single arrow
	// record, configured by flag.
	Chunk int
	// Buffer is the default read buffer size, in bytes, used when
	// scanning partition byte ranges.
	Buffer int
)

func init() {
	flag.IntVar(&Chunk, "coiled-internal-default-chunk-rows", 1<<16,
		"Number of CSV rows decoded into each arrow record.")
	flag.IntVar(&Buffer, "coiled-internal-default-buffer-bytes", 1<<20,
		"Read buffer size used when scanning partition byte ranges.")
}
