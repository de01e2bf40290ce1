package types

// CacheEntry is a single key/value pair as held by the cache and written
// to snapshot records.
type CacheEntry struct {
	Key   string `yaml:"key" json:"key" validate:"required"`
	Value string `yaml:"value" json:"value"`
}
