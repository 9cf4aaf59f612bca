package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-nodehost/config"
	"github.com/dep2p/go-nodehost/internal/core/capability"
	"github.com/dep2p/go-nodehost/internal/core/identity"
	"github.com/dep2p/go-nodehost/internal/core/security/noise"
	"github.com/dep2p/go-nodehost/internal/core/security/tls"
	"github.com/dep2p/go-nodehost/pkg/types"
)

func TestBuild_Unknown(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)

	_, err = Build("plaintext", id)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestModule_PreferenceOrder(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Security.Preference = []string{config.SecurityTLS, config.SecurityNoise}

	var r *capability.Registry
	app := fxtest.New(t,
		fx.Supply(cfg),
		identity.Module(),
		capability.Module(),
		Module(),
		fx.Populate(&r),
	)
	app.RequireStart()
	defer app.RequireStop()

	assert.Equal(t, []string{tls.ID, noise.ID}, r.IDs(types.KindSecurity))
	st, ok := r.SecurityByID(noise.ID)
	require.True(t, ok)
	assert.Equal(t, noise.ID, st.ID())
}
