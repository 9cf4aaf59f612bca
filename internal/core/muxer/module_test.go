package muxer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/core/capability"
	"github.com/dep2p/go-nodehost/internal/core/muxer/hashicorp"
	"github.com/dep2p/go-nodehost/internal/core/muxer/yamux"
	"github.com/dep2p/go-nodehost/pkg/types"
)

func TestBuild_Unknown(t *testing.T) {
	_, err := Build("mplex")
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestModule_PreferenceOrder(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Muxer.Preference = []string{config.MuxerHashicorpYamux, config.MuxerYamux}

	var r *capability.Registry
	app := fxtest.New(t,
		fx.Supply(cfg),
		capability.Module(),
		Module(),
		fx.Populate(&r),
	)
	app.RequireStart()
	defer app.RequireStop()

	assert.Equal(t, []string{hashicorp.ID, yamux.ID}, r.IDs(types.KindMuxer))
	assert.Len(t, r.Muxers(), 2)
}
