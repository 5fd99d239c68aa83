package protocol

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Checksum computes the hex-encoded xxhash64 digest carried by FileEnd
// messages. It detects corruption across a transfer; it is not a security
// boundary.
func Checksum(data []byte) string {
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}
