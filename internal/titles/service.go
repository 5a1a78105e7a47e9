package titles

import (
	"strings"

	"github.com/example/viewtrack/internal/record"
)

// Detect maps a page hostname to the streaming service it belongs to.
func Detect(host string) record.Service {
	host = strings.ToLower(strings.TrimSpace(host))
	switch {
	case strings.Contains(host, "unext.jp"):
		return record.ServiceUNext
	case strings.Contains(host, "netflix.com"):
		return record.ServiceNetflix
	case strings.Contains(host, "primevideo.com"):
		return record.ServiceAmazonPrime
	case strings.Contains(host, "disneyplus.com"):
		return record.ServiceDisneyPlus
	default:
		return record.ServiceUnknown
	}
}
