// Package tls builds the status endpoint's listener TLS settings from the
// [server.tls] table.
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/loykin/extbox/internal/config"
)

// File names used inside a certificate directory.
const (
	CertName   = "tls.crt"
	KeyName    = "tls.key"
	CACertName = "tls_ca.crt"
)

var ErrNoMaterial = errors.New("tls enabled but neither cert_file/key_file nor dir is set")

// Options is the resolved listener setup. Zero MinVersion and MaxVersion
// mean TLS 1.3.
type Options struct {
	CertFile   string
	KeyFile    string
	Dir        string
	Generate   bool
	Identity   Identity
	MinVersion uint16
	MaxVersion uint16
}

// Identity describes a generated self-signed certificate.
type Identity struct {
	CommonName   string
	Organization string
	DNSNames     []string
	IPAddresses  []string
	ValidFor     time.Duration
}

// FromServer resolves Options from the server config. ok is false when
// TLS is disabled.
func FromServer(cfg config.ServerConfig) (opts Options, ok bool, err error) {
	t := cfg.TLS
	if t == nil || !t.Enabled {
		return Options{}, false, nil
	}
	opts = Options{
		CertFile: t.CertFile,
		KeyFile:  t.KeyFile,
		Dir:      t.Dir,
		Generate: t.AutoGenerate,
		Identity: Identity{CommonName: "localhost", Organization: "extbox"},
	}
	if g := t.AutoGen; g != nil {
		if g.CommonName != "" {
			opts.Identity.CommonName = g.CommonName
		}
		if g.Organization != "" {
			opts.Identity.Organization = g.Organization
		}
		opts.Identity.DNSNames = g.DNSNames
		opts.Identity.IPAddresses = g.IPAddresses
		if g.ValidDays > 0 {
			opts.Identity.ValidFor = time.Duration(g.ValidDays) * 24 * time.Hour
		}
	}
	if opts.MinVersion, err = Version(cfg.TLSMinVersion); err != nil {
		return Options{}, false, err
	}
	if opts.MaxVersion, err = Version(cfg.TLSMaxVersion); err != nil {
		return Options{}, false, err
	}
	return opts, true, nil
}

// Version maps "1.2"/"1.3" (optionally prefixed "tls") to the crypto/tls
// constant. Empty means 0, the package default.
func Version(s string) (uint16, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "tls") {
	case "", "default":
		return 0, nil
	case "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	}
	return 0, fmt.Errorf("unsupported tls version %q", s)
}

// ForServer returns the listener config for cfg, or nil when TLS is off.
func ForServer(cfg config.ServerConfig) (*tls.Config, error) {
	opts, ok, err := FromServer(cfg)
	if err != nil || !ok {
		return nil, err
	}
	return opts.Build()
}

// Build resolves the key pair paths, generating a self-signed pair into
// Dir when asked to and none exists yet, and loads the pair once to fail
// early on bad material.
func (o Options) Build() (*tls.Config, error) {
	certPath, keyPath := o.CertFile, o.KeyFile
	switch {
	case certPath != "" && keyPath != "":
	case o.Dir != "":
		certPath = filepath.Join(o.Dir, CertName)
		keyPath = filepath.Join(o.Dir, KeyName)
		if o.Generate && !exists(certPath, keyPath) {
			if err := o.generate(); err != nil {
				return nil, fmt.Errorf("generate certificate: %w", err)
			}
		}
	default:
		return nil, ErrNoMaterial
	}

	minV, maxV := o.MinVersion, o.MaxVersion
	if minV == 0 {
		minV = tls.VersionTLS13
	}
	if maxV == 0 {
		maxV = tls.VersionTLS13
	}
	if minV > maxV {
		return nil, fmt.Errorf("tls min version above max version")
	}

	kp := &keyPair{certPath: certPath, keyPath: keyPath}
	if _, err := kp.get(); err != nil {
		return nil, err
	}
	// #nosec G402 min version is configurable down to 1.2 only
	return &tls.Config{
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) { return kp.get() },
		MinVersion:     minV,
		MaxVersion:     maxV,
	}, nil
}

func (o Options) generate() error {
	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return err
	}
	id := o.Identity
	if len(id.DNSNames) == 0 {
		id.DNSNames = []string{"localhost"}
	}
	if len(id.IPAddresses) == 0 {
		id.IPAddresses = []string{"127.0.0.1"}
	}
	if id.ValidFor <= 0 {
		id.ValidFor = 5 * 365 * 24 * time.Hour
	}
	return GenerateSelfSignedCert(CertConfig{
		CommonName:   id.CommonName,
		Organization: id.Organization,
		DNSNames:     id.DNSNames,
		IPAddresses:  id.IPAddresses,
		NotAfter:     time.Now().Add(id.ValidFor),
		CertPath:     filepath.Join(o.Dir, CertName),
		KeyPath:      filepath.Join(o.Dir, KeyName),
		CACertPath:   filepath.Join(o.Dir, CACertName),
	})
}

// keyPair caches the parsed certificate and reloads it when either file's
// modification time changes, so rotated certificates are picked up
// without a restart.
type keyPair struct {
	certPath, keyPath string

	mu       sync.Mutex
	cert     *tls.Certificate
	certTime time.Time
	keyTime  time.Time
}

func (k *keyPair) get() (*tls.Certificate, error) {
	ci, err := os.Stat(k.certPath)
	if err != nil {
		return nil, err
	}
	ki, err := os.Stat(k.keyPath)
	if err != nil {
		return nil, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cert != nil && ci.ModTime().Equal(k.certTime) && ki.ModTime().Equal(k.keyTime) {
		return k.cert, nil
	}
	c, err := tls.LoadX509KeyPair(k.certPath, k.keyPath)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	k.cert, k.certTime, k.keyTime = &c, ci.ModTime(), ki.ModTime()
	return k.cert, nil
}

func exists(paths ...string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}
