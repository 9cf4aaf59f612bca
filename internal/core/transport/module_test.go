package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/core/capability"
	"github.com/dep2p/go-nodehost/internal/core/transport/tcp"
	"github.com/dep2p/go-nodehost/internal/core/transport/websocket"
	"github.com/dep2p/go-nodehost/pkg/types"
)

func TestBuild_RespectsSwitches(t *testing.T) {
	cfg := config.DefaultTransportConfig()
	cfg.EnableWebSocket = false

	ts, err := Build(cfg)
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, tcp.ID, ts[0].ID())
}

func TestModule_RegistersTransports(t *testing.T) {
	var r *capability.Registry
	app := fxtest.New(t,
		fx.Supply(config.NewConfig()),
		capability.Module(),
		Module(),
		fx.Populate(&r),
	)
	app.RequireStart()
	defer app.RequireStop()

	assert.Equal(t, []string{tcp.ID, websocket.ID}, r.IDs(types.KindTransport))
}
