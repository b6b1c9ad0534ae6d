package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/panel/internal/model"
)

func TestDefault_IsValid(t *testing.T) {
	cat := Default()
	require.NoError(t, cat.Validate())

	php, ok := cat.Service("php")
	require.True(t, ok)
	assert.True(t, php.MultiVersion)
	assert.Contains(t, php.Versions, "8.2")
	assert.Contains(t, php.Versions, "8.3")
}

func TestDefault_WordPressTemplate(t *testing.T) {
	cat := Default()
	var wp *model.AppTemplate
	for i := range cat.Templates {
		if cat.Templates[i].ID == "wordpress" {
			wp = &cat.Templates[i]
		}
	}
	require.NotNil(t, wp)
	assert.Equal(t, "localhost", wp.Environment["WORDPRESS_DB_HOST"])
	assert.Equal(t, 256, wp.MinMemory)
}

func TestDefault_ReturnsFreshCopy(t *testing.T) {
	a := Default()
	a.Services[0].Name = "changed"
	b := Default()
	assert.NotEqual(t, "changed", b.Services[0].Name)
}

func TestPackagesFor(t *testing.T) {
	php, _ := Default().Service("php")
	pkgs := php.PackagesFor("8.2")
	assert.Contains(t, pkgs, "php8.2-fpm")
	assert.Contains(t, pkgs, "php8.2-cli")

	def := ServiceDef{ID: "caddy"}
	assert.Equal(t, []string{"caddy"}, def.PackagesFor("2.7"))
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	err := os.WriteFile(path, []byte(`
services:
  - id: nginx
    name: Nginx (mainline)
    type: webserver
    versions: ["1.27"]
    unit: nginx
  - id: haproxy
    name: HAProxy
    type: webserver
    versions: ["2.8"]
    unit: haproxy
    options:
      - key: maxconn
        type: number
        default: "2000"
        restart: true
templates:
  - id: uptime-kuma
    name: Uptime Kuma
    category: Monitoring
    image: louislam/uptime-kuma:1
    ports: ["3001:3001"]
    min_memory_mb: 128
`), 0o644)
	require.NoError(t, err)

	cat, err := Load(path)
	require.NoError(t, err)

	nginx, ok := cat.Service("nginx")
	require.True(t, ok)
	assert.Equal(t, []string{"1.27"}, nginx.Versions)

	_, ok = cat.Service("haproxy")
	assert.True(t, ok)
	_, ok = cat.Service("mysql")
	assert.True(t, ok, "defaults stay in place")

	assert.Equal(t, "uptime-kuma", cat.Templates[len(cat.Templates)-1].ID)
}

func TestLoad_RejectsInvalidOption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
services:
  - id: broken
    type: tool
    versions: ["1"]
    options:
      - key: level
        type: number
        default: high
`), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "not a number")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read catalog")
}

func TestValidate_UnknownType(t *testing.T) {
	cat := &Catalog{Services: []ServiceDef{{ID: "x", Type: "gadget", Versions: []string{"1"}}}}
	assert.ErrorContains(t, cat.Validate(), "unknown type")
}

func TestParsePort(t *testing.T) {
	pm, err := ParsePort("8080:80")
	require.NoError(t, err)
	assert.Equal(t, model.PortMapping{HostPort: 8080, ContainerPort: 80, Protocol: "tcp"}, pm)

	pm, err = ParsePort("53:53/udp")
	require.NoError(t, err)
	assert.Equal(t, "udp", pm.Protocol)

	pm, err = ParsePort("9000")
	require.NoError(t, err)
	assert.Equal(t, 0, pm.HostPort)
	assert.Equal(t, 9000, pm.ContainerPort)

	for _, bad := range []string{"", "abc:80", "80:0", "80:80/sctp", "70000:80"} {
		_, err := ParsePort(bad)
		assert.Error(t, err, bad)
	}
}
