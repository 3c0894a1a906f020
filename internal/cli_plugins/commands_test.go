package cliplugins

import (
	"bytes"
	"context"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"announce/internal/announcer"
	"announce/internal/identity"
	"announce/internal/storage/peerstore"
	"announce/pkg/cli"
)

type testEnv struct {
	dir     string
	keyFile string
	peersDB string
	app     *AppContext
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	env := &testEnv{
		dir:     dir,
		keyFile: filepath.Join(dir, "secret.seed"),
		peersDB: filepath.Join(dir, "peers.db"),
	}

	cfg := fmt.Sprintf(`env: prod
port: 8008
local_addr: 10.0.0.5
broadcast_addr: 127.0.0.1
broadcast_port: 47999
interval: 50ms
key_file: %s
peers_db: %s
`, env.keyFile, env.peersDB)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0600))

	env.app = &AppContext{ConfigPath: path, LogOutput: &bytes.Buffer{}}
	return env
}

func (e *testEnv) run(ctx context.Context, args ...string) (string, error) {
	c := cli.NewCLI(ctx, "announce", "test")
	var out bytes.Buffer
	c.Root().SetOut(&out)
	c.Root().SetErr(&out)

	DescribeConfig(c.Root())
	c.RegisterPlugin(NewRunCommand(e.app))
	c.RegisterPlugin(NewBeaconCommand(e.app))
	c.RegisterPlugin(NewKeygenCommand(e.app))
	c.RegisterPlugin(NewListenCommand(e.app))
	c.RegisterPlugin(NewPeersCommand(e.app))

	err := c.Run(args)
	return out.String(), err
}

func TestKeygen(t *testing.T) {
	env := setupEnv(t)

	out, err := env.run(context.Background(), "keygen")
	require.NoError(t, err)

	keys, err := identity.Load(env.keyFile)
	require.NoError(t, err)
	assert.Contains(t, out, keys.ID())

	_, err = env.run(context.Background(), "keygen")
	assert.Error(t, err)

	_, err = env.run(context.Background(), "keygen", "--force")
	require.NoError(t, err)

	replaced, err := identity.Load(env.keyFile)
	require.NoError(t, err)
	assert.NotEqual(t, keys.ShsKey(), replaced.ShsKey())
}

func TestBeacon(t *testing.T) {
	env := setupEnv(t)

	_, err := env.run(context.Background(), "beacon")
	assert.ErrorIs(t, err, identity.ErrKeyNotFound)

	_, err = env.run(context.Background(), "keygen")
	require.NoError(t, err)
	keys, err := identity.Load(env.keyFile)
	require.NoError(t, err)

	out, err := env.run(context.Background(), "beacon")
	require.NoError(t, err)
	assert.Contains(t, out, "net:10.0.0.5:8008~shs:"+keys.ShsKey())
	assert.Contains(t, out, "127.0.0.1:47999")
}

func TestPeers(t *testing.T) {
	env := setupEnv(t)

	out, err := env.run(context.Background(), "peers")
	require.NoError(t, err)
	assert.Contains(t, out, "no peers")

	store, err := peerstore.New(peerstore.Config{Path: env.peersDB})
	require.NoError(t, err)
	_, _, err = store.Record(announcer.Identity{
		Addr:      netip.MustParseAddr("10.0.0.7"),
		Port:      8008,
		PublicKey: "peerkey",
	}, netip.MustParseAddrPort("10.0.0.7:8008"))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out, err = env.run(context.Background(), "peers")
	require.NoError(t, err)
	assert.Contains(t, out, "peerkey")
	assert.Contains(t, out, "10.0.0.7:8008")

	out, err = env.run(context.Background(), "peers", "--prune", "1ns")
	require.NoError(t, err)
	assert.Contains(t, out, "pruned 1")
	assert.Contains(t, out, "no peers")
}

func TestRun_StopsOnCancel(t *testing.T) {
	env := setupEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := env.run(ctx, "run", "--interval", "20ms")
	require.NoError(t, err)

	// run creates the identity on first start
	_, err = identity.Load(env.keyFile)
	assert.NoError(t, err)

	logs := env.app.LogOutput.(*bytes.Buffer).String()
	assert.Contains(t, logs, "Announcing")
	assert.Contains(t, logs, "net:10.0.0.5:8008~shs:")
}

func TestRun_InvalidFlag(t *testing.T) {
	env := setupEnv(t)

	_, err := env.run(context.Background(), "run", "--interval=-1s")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "interval"))
}

func TestHelp_ListsConfigEnv(t *testing.T) {
	env := setupEnv(t)

	out, err := env.run(context.Background(), "run", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "KEY_FILE")
	assert.Contains(t, out, "INTERVAL")
}
