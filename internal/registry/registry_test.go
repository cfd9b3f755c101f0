package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"ndjobi.org/internal/domain"
)

func TestDefaultCatalogLookups(t *testing.T) {
	req := require.New(t)
	reg := Default()

	req.Equal("app-ndjobi-demo", reg.DefaultAppID())
	req.Len(reg.ListNetworks(), 3)
	req.Len(reg.ListApps(), 7)

	app, ok := reg.GetApp("app-mairie-libreville")
	req.True(ok)
	req.Equal("tenant-libreville", app.TenantID)
	req.True(app.EnabledModules[domain.ModuleICorrespondance])

	net, ok := reg.GetNetworkForApp("app-mairie-libreville")
	req.True(ok)
	req.Equal(domain.NetworkGovernment, net.Type)
	req.True(net.HasMember("app-mairie-libreville"))

	_, ok = reg.GetApp("nope")
	req.False(ok)
	_, ok = reg.GetNetwork("nope")
	req.False(ok)
	_, ok = reg.GetNetworkForApp("nope")
	req.False(ok)
}

func TestListsAreCopies(t *testing.T) {
	reg := Default()
	apps := reg.ListApps()
	apps[0].EnabledModules[domain.ModuleICom] = false
	apps[0].Name = "mutated"

	again, ok := reg.GetApp(apps[0].ID)
	require.True(t, ok)
	require.True(t, again.EnabledModules[domain.ModuleICom])
	require.NotEqual(t, "mutated", again.Name)
}

func TestLoadRejectsBrokenCatalogs(t *testing.T) {
	cases := map[string]string{
		"dangling network": `
networks: []
apps:
  - {app_id: a1, tenant_id: t, network_id: missing, status: active}
`,
		"unknown module": `
networks:
  - {network_id: n1, network_type: commercial, modules_policy: {ichat: true}}
`,
		"unknown member": `
networks:
  - {network_id: n1, network_type: commercial, member_apps: [ghost]}
`,
		"duplicate app": `
networks:
  - {network_id: n1, network_type: commercial}
apps:
  - {app_id: a1, network_id: n1, status: active}
  - {app_id: a1, network_id: n1, status: active}
`,
		"bad default": `
default_app: ghost
networks:
  - {network_id: n1, network_type: government}
`,
		"not yaml": "networks: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(doc))
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidCatalog))
		})
	}
}

func TestLoadFallsBackToFirstApp(t *testing.T) {
	reg, err := Load([]byte(`
networks:
  - {network_id: n1, network_type: commercial, member_apps: [a1]}
apps:
  - {app_id: a1, tenant_id: t1, network_id: n1, status: active}
`))
	require.NoError(t, err)
	require.Equal(t, "a1", reg.DefaultAppID())
}
