package engine

import (
	"encoding/json"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/statlens/statlens-worker/internal/models"
)

// Fingerprint derives the memo-cache key for a request payload from the
// sample count, the last sample's timestamp, and a serialization of the
// summary. Structurally distinct inputs collapse to distinct keys with high
// probability; collisions are tolerated.
func Fingerprint(samples []models.Sample, summary *models.Summary) string {
	digest := xxhash.New()
	_, _ = digest.WriteString(strconv.Itoa(len(samples)))
	_, _ = digest.WriteString("|")
	if len(samples) > 0 {
		last := samples[len(samples)-1].Timestamp
		_, _ = digest.WriteString(strconv.FormatInt(last.UnixNano(), 10))
	}
	_, _ = digest.WriteString("|")
	if summary != nil {
		if raw, err := json.Marshal(summary); err == nil {
			_, _ = digest.Write(raw)
		}
	}
	return strconv.FormatUint(digest.Sum64(), 16)
}
