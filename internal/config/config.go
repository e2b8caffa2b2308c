// Package config loads the oio-sds style sds.conf configuration file
// (oiopy/utils.py:load_sds_conf reads /etc/oio/sds.conf, any drop-in under
// /etc/oio/sds.conf.d/, then ~/.oio/sds.conf, keyed by namespace section).
// The section layout mirrors the teacher's cmn/config.go (one struct per
// concern, durations kept as the strings read off disk and parsed by
// Config.Timeouts) adapted from JSON to ini, since the
// original format this client must read is ini, not JSON.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/ini.v1"

	"github.com/mailanetworks/oiokit/content"
)

// ClientConf holds the per-namespace client tunables read out of the
// sds.conf section named after the namespace.
type ClientConf struct {
	ProxyURL string `ini:"proxy_url"`
	Account  string `ini:"account"`

	ConnectionTimeoutStr string `ini:"connection_timeout"`
	ChunkTimeoutStr       string `ini:"chunk_timeout"`
	ClientTimeoutStr       string `ini:"client_timeout"`

	ReadChunkSize  int `ini:"read_chunk_size"`
	WriteChunkSize int `ini:"write_chunk_size"`
	PutQueueDepth  int `ini:"put_queue_depth"`
}

// LogConf mirrors the teacher's LogConf (cmn/config.go), trimmed to the
// two fields a glog-backed client actually reads at startup.
type LogConf struct {
	Dir   string `ini:"log_dir"`
	Level string `ini:"log_level"`
}

// Config is the parsed contents of one sds.conf namespace section.
type Config struct {
	Namespace string
	Client    ClientConf
	Log       LogConf
}

// DefaultPaths returns the search order oiopy/utils.py:load_sds_conf uses:
// the system file, any drop-ins, then the user override, in that priority
// order (later files win on conflicting keys).
func DefaultPaths() []string {
	paths := []string{"/etc/oio/sds.conf"}
	if matches, err := filepath.Glob("/etc/oio/sds.conf.d/*"); err == nil {
		paths = append(paths, matches...)
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".oio", "sds.conf"))
	}
	return paths
}

// Load reads and merges every existing file in paths and returns the
// section named ns. A missing file is skipped, not an error, since
// load_sds_conf treats the three candidate locations as optional.
func Load(ns string, paths []string) (*Config, error) {
	var existing []interface{}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		existing = append(existing, p)
	}
	if len(existing) == 0 {
		return nil, fmt.Errorf("config: no sds.conf found in %v", paths)
	}

	cfg, err := ini.LoadSources(ini.LoadOptions{}, existing[0], existing[1:]...)
	if err != nil {
		return nil, fmt.Errorf("config: parse sds.conf: %w", err)
	}
	if !cfg.HasSection(ns) {
		return nil, fmt.Errorf("config: namespace %q not found", ns)
	}

	out := &Config{Namespace: ns}
	sec := cfg.Section(ns)
	if err := sec.MapTo(&out.Client); err != nil {
		return nil, fmt.Errorf("config: decode [%s] client fields: %w", ns, err)
	}
	if err := sec.MapTo(&out.Log); err != nil {
		return nil, fmt.Errorf("config: decode [%s] log fields: %w", ns, err)
	}
	return out, nil
}

// Timeouts converts the ini duration strings into a content.Timeouts,
// starting from content.NewTimeouts() defaults and overriding whatever
// the section actually set. An empty or unparseable duration string
// falls back to the default rather than failing the whole load, since a
// partially specified sds.conf section is the common case.
func (c *Config) Timeouts() content.Timeouts {
	t := content.NewTimeouts()
	if d, err := time.ParseDuration(c.Client.ConnectionTimeoutStr); err == nil {
		t.Connection = d
	}
	if d, err := time.ParseDuration(c.Client.ChunkTimeoutStr); err == nil {
		t.Chunk = d
	}
	if d, err := time.ParseDuration(c.Client.ClientTimeoutStr); err == nil {
		t.Client = d
	}
	if c.Client.ReadChunkSize > 0 {
		t.ReadChunkSize = c.Client.ReadChunkSize
	}
	if c.Client.WriteChunkSize > 0 {
		t.WriteChunkSize = c.Client.WriteChunkSize
	}
	if c.Client.PutQueueDepth > 0 {
		t.PutQueueDepth = c.Client.PutQueueDepth
	}
	return t
}
