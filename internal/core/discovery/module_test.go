package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/core/capability"
	"github.com/dep2p/go-nodehost/internal/core/eventbus"
	"github.com/dep2p/go-nodehost/internal/core/identity"
	"github.com/dep2p/go-nodehost/internal/core/peerstore"
	"github.com/dep2p/go-nodehost/pkg/types"
)

func TestBuildMechanisms(t *testing.T) {
	cfg := config.DefaultDiscoveryConfig()
	ms, err := BuildMechanisms(cfg)
	require.NoError(t, err)
	require.Len(t, ms, 1, "默认只有 mdns，bootstrap 没有节点时不创建")
	assert.Equal(t, "mdns", ms[0].Name())

	cfg.Bootstrap.Peers = []string{"bad"}
	_, err = BuildMechanisms(cfg)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestModule_ProvidesCoordinator(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Discovery.MDNS.Enabled = false
	cfg.Discovery.Bootstrap.Peers = []string{"/ip4/10.0.0.1/tcp/4001/p2p/" + types.TestPeerID("boot").String()}

	var c *Coordinator
	var reg *capability.Registry
	app := fxtest.New(t,
		fx.Supply(cfg),
		identity.Module(),
		peerstore.Module(),
		eventbus.Module(),
		capability.Module(),
		Module(),
		fx.Populate(&c, &reg),
	)
	app.RequireStart()
	defer app.RequireStop()

	assert.Equal(t, []string{"bootstrap"}, c.Mechanisms())
	assert.Equal(t, []string{"bootstrap"}, reg.IDs(types.KindDiscovery))
}
