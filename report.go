package huffman

import (
	"fmt"
	"time"
)

// Report describes one compress or decompress run. It is informational only.
type Report struct {
	OriginalSize   int           // Text size in bytes
	CompressedSize int           // Container size in bytes
	Elapsed        time.Duration // Wall time of the run
}

// Ratio returns the space saved as a percentage of the original size. It is
// negative when the container is larger than the text and zero for empty text.
func (r Report) Ratio() float64 {
	if r.OriginalSize == 0 {
		return 0
	}
	return float64(r.OriginalSize-r.CompressedSize) / float64(r.OriginalSize) * 100
}

// String formats the report as the CLI prints it.
func (r Report) String() string {
	return fmt.Sprintf("original size:   %d bytes\ncompressed size: %d bytes\ncompression:     %.2f%%\nelapsed:         %s",
		r.OriginalSize, r.CompressedSize, r.Ratio(), r.Elapsed.Round(time.Microsecond))
}
