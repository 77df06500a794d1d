package repository

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/iliyamo/showtime-sync/internal/model"
)

// LoadPerformancesFile reads a JSON array of performance records, the
// shape produced by table exports.  Records that only carry the legacy
// `id` field keep it in LegacyID; callers use Performance.Key().
func LoadPerformancesFile(path string) ([]model.Performance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read performances file: %w", err)
	}
	var out []model.Performance
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode performances file: %w", err)
	}
	return out, nil
}
