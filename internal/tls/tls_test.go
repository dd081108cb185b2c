package tls

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/extbox/internal/config"
)

func TestForServerDisabled(t *testing.T) {
	c, err := ForServer(config.ServerConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = ForServer(config.ServerConfig{TLS: &config.TLSConfig{Enabled: false, Dir: t.TempDir()}})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestForServerGeneratesIntoDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tls")
	srv := config.ServerConfig{
		Listen:        "127.0.0.1:0",
		TLSMinVersion: "1.2",
		TLS: &config.TLSConfig{
			Enabled:      true,
			Dir:          dir,
			AutoGenerate: true,
			AutoGen:      &config.AutoGenTLS{CommonName: "extbox.local", ValidDays: 30},
		},
	}
	c, err := ForServer(srv)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, uint16(tls.VersionTLS12), c.MinVersion)
	assert.Equal(t, uint16(tls.VersionTLS13), c.MaxVersion)

	for _, f := range []string{CertName, KeyName} {
		_, err := os.Stat(filepath.Join(dir, f))
		assert.NoError(t, err, f)
	}
	cert, err := c.GetCertificate(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, "extbox.local", leaf.Subject.CommonName)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), leaf.NotAfter, time.Hour)
}

func TestBuildWithExplicitFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Options{Dir: dir, Identity: Identity{CommonName: "a"}}.generate())

	c, err := ForServer(config.ServerConfig{TLS: &config.TLSConfig{
		Enabled:  true,
		CertFile: filepath.Join(dir, CertName),
		KeyFile:  filepath.Join(dir, KeyName),
	}})
	require.NoError(t, err)
	_, err = c.GetCertificate(&tls.ClientHelloInfo{})
	assert.NoError(t, err)
}

func TestBuildFailsEarly(t *testing.T) {
	_, err := ForServer(config.ServerConfig{TLS: &config.TLSConfig{Enabled: true}})
	assert.ErrorIs(t, err, ErrNoMaterial)

	// directory without material and without generation
	_, err = Options{Dir: t.TempDir()}.Build()
	assert.Error(t, err)

	_, err = Options{Dir: t.TempDir(), Generate: true, MinVersion: tls.VersionTLS13, MaxVersion: tls.VersionTLS12}.Build()
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	for in, want := range map[string]uint16{
		"":       0,
		"1.2":    tls.VersionTLS12,
		"TLS1.3": tls.VersionTLS13,
		"tls1.2": tls.VersionTLS12,
	} {
		v, err := Version(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, v, in)
	}
	_, err := Version("1.1")
	assert.Error(t, err)

	_, err = ForServer(config.ServerConfig{TLSMaxVersion: "1.0", TLS: &config.TLSConfig{Enabled: true, Dir: t.TempDir()}})
	assert.Error(t, err)
}

func TestRotatedKeyPairIsReloaded(t *testing.T) {
	dir := t.TempDir()
	o := Options{Dir: dir, Generate: true, Identity: Identity{CommonName: "first"}}
	c, err := o.Build()
	require.NoError(t, err)

	first, err := c.GetCertificate(nil)
	require.NoError(t, err)
	again, err := c.GetCertificate(nil)
	require.NoError(t, err)
	assert.Same(t, first, again, "unchanged files are served from cache")

	o.Identity.CommonName = "second"
	require.NoError(t, o.generate())
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(filepath.Join(dir, CertName), later, later))
	require.NoError(t, os.Chtimes(filepath.Join(dir, KeyName), later, later))

	rotated, err := c.GetCertificate(nil)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(rotated.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, "second", leaf.Subject.CommonName)
}
