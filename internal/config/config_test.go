package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mailanetworks/oiokit/content"
	"github.com/mailanetworks/oiokit/devtools/tutils/tassert"
)

func writeConf(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "sds.conf")
	tassert.CheckFatal(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadAppliesOverridesOverDefaults(t *testing.T) {
	p := writeConf(t, `
[OPENIO]
proxy_url = http://127.0.0.1:6000
account = myaccount
connection_timeout = 2s
chunk_timeout = 30s
read_chunk_size = 4096
put_queue_depth = 3
`)

	cfg, err := Load("OPENIO", []string{p})
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, cfg.Client.ProxyURL == "http://127.0.0.1:6000", "ProxyURL = %q", cfg.Client.ProxyURL)
	tassert.Fatalf(t, cfg.Client.Account == "myaccount", "Account = %q", cfg.Client.Account)

	tm := cfg.Timeouts()
	tassert.Fatalf(t, tm.Connection.String() == "2s", "Connection = %v", tm.Connection)
	tassert.Fatalf(t, tm.Chunk.String() == "30s", "Chunk = %v", tm.Chunk)
	tassert.Fatalf(t, tm.ReadChunkSize == 4096, "ReadChunkSize = %d", tm.ReadChunkSize)
	tassert.Fatalf(t, tm.PutQueueDepth == 3, "PutQueueDepth = %d", tm.PutQueueDepth)
	// Client timeout was left unset in the fixture: must keep the default.
	tassert.Fatalf(t, tm.Client == content.DefaultClientTimeout, "Client = %v, want default", tm.Client)
}

func TestLoadMissingNamespace(t *testing.T) {
	p := writeConf(t, "[OTHER]\nproxy_url = http://x\n")
	_, err := Load("OPENIO", []string{p})
	if err == nil {
		t.Fatal("expected error for missing namespace")
	}
}

func TestLoadNoFilesFound(t *testing.T) {
	_, err := Load("OPENIO", []string{filepath.Join(t.TempDir(), "missing.conf")})
	if err == nil {
		t.Fatal("expected error when no sds.conf file exists")
	}
}
