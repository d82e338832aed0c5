package cachefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// ConfigFileName is the default name for an on-disk, HuJSON-formatted
// options file (comments and trailing commas allowed), loaded by
// [LoadOptions]. Mirrors the layered-config idiom the teacher corpus uses
// for its own ".tk.json" project config.
const ConfigFileName = ".cachefsrc"

// fileOptions is the on-disk shape of [ConfigFileName]. MaxMB is in
// megabytes, matching the decimal-megabytes convention spec §6 specifies
// for Cache.size.
type fileOptions struct {
	Dir    string `json:"dir,omitempty"`
	Prefix string `json:"prefix,omitempty"`
	MaxMB  uint64 `json:"max_mb,omitempty"`
}

// LoadOptions layers configuration the way the teacher's own config
// loader does (compiled-in defaults, weakest, up through increasingly
// specific sources): it reads configPath if non-empty and present,
// then applies any non-zero field of explicit on top. Fields left zero
// in explicit fall back to the file; fields left zero in both fall back
// to the Options zero value (and so, for Prefix, ultimately to
// [ErrBadConfig] from [New]; for Dir, to a disabled cache).
//
// A missing configPath is not an error — it simply means there is
// nothing to layer under explicit.
func LoadOptions(configPath string, explicit Options) (Options, error) {
	merged := explicit

	if configPath == "" {
		return merged, nil
	}

	raw, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return merged, nil
	}
	if err != nil {
		return Options{}, fmt.Errorf("%w: reading %s: %w", ErrBadConfig, configPath, err)
	}

	std, err := hujson.Standardize(raw)
	if err != nil {
		return Options{}, fmt.Errorf("%w: parsing %s: %w", ErrBadConfig, configPath, err)
	}

	var fc fileOptions
	if err := json.Unmarshal(std, &fc); err != nil {
		return Options{}, fmt.Errorf("%w: decoding %s: %w", ErrBadConfig, configPath, err)
	}

	if merged.Dir == "" {
		merged.Dir = fc.Dir
	}
	if merged.Prefix == "" {
		merged.Prefix = fc.Prefix
	}
	if merged.MaxBytes == 0 {
		merged.MaxBytes = fc.MaxMB << 20
	}

	return merged, nil
}
