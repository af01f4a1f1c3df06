// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Reservd Contributors

// Package tls provides certificate generation and loading for mutual TLS
// between reservd services.
//
// Every service holds one certificate, signed by a shared cluster CA, that it
// presents both as a server and as a client.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"io/fs"
	"math/big"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/oops"
)

// File names inside a certs directory.
const (
	caCertFile = "root-ca.crt"
	caKeyFile  = "root-ca.key"
)

// caCNPrefix prefixes the CA common name; the cluster id follows it.
const caCNPrefix = "Reservd CA "

// CA holds a certificate authority certificate and private key.
type CA struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// ServiceCert holds a service certificate and private key.
type ServiceCert struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
	Name        string
}

// GenerateCA creates a new root CA for a cluster. The cluster id is embedded
// in the CN ("Reservd CA {id}") and as a URI SAN (reservd://cluster/{id}).
func GenerateCA(clusterID string) (*CA, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, oops.Code("TLS_GENERATE_FAILED").With("what", "ca key").Wrap(err)
	}

	serial, err := newSerial()
	if err != nil {
		return nil, err
	}

	clusterURI, err := url.Parse("reservd://cluster/" + clusterID)
	if err != nil {
		return nil, oops.Code("TLS_GENERATE_FAILED").With("cluster_id", clusterID).Wrap(err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Reservd"},
			CommonName:   caCNPrefix + clusterID,
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		URIs:                  []*url.URL{clusterURI},
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, oops.Code("TLS_GENERATE_FAILED").With("what", "ca certificate").Wrap(err)
	}

	cert, err := x509.ParseCertificate(certBytes)
	if err != nil {
		return nil, oops.Code("TLS_GENERATE_FAILED").With("what", "ca certificate").Wrap(err)
	}

	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// GenerateServiceCert creates a certificate for the named service signed by
// ca. It is valid for server and client authentication, for "localhost",
// 127.0.0.1, the bare service name and "reservd-{name}".
func GenerateServiceCert(ca *CA, name string) (*ServiceCert, error) {
	if ca == nil {
		return nil, oops.Code("TLS_GENERATE_FAILED").Errorf("CA is required")
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, oops.Code("TLS_GENERATE_FAILED").With("what", "service key").Wrap(err)
	}

	serial, err := newSerial()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Reservd"},
			CommonName:   "reservd-" + name,
		},
		NotBefore:   time.Now(),
		NotAfter:    time.Now().AddDate(1, 0, 0),
		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:    []string{"localhost", name, "reservd-" + name},
		IPAddresses: []net.IP{net.ParseIP("127.0.0.1")},
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, template, ca.Certificate, &key.PublicKey, ca.PrivateKey)
	if err != nil {
		return nil, oops.Code("TLS_GENERATE_FAILED").With("service", name).Wrap(err)
	}

	cert, err := x509.ParseCertificate(certBytes)
	if err != nil {
		return nil, oops.Code("TLS_GENERATE_FAILED").With("service", name).Wrap(err)
	}

	return &ServiceCert{Certificate: cert, PrivateKey: key, Name: name}, nil
}

func newSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, oops.Code("TLS_GENERATE_FAILED").With("what", "serial").Wrap(err)
	}
	return serial, nil
}

// SaveCertificates saves the CA and any service certificates to certsDir.
// The CA is saved as root-ca.crt and root-ca.key, each service as
// {name}.crt and {name}.key.
func SaveCertificates(certsDir string, ca *CA, services ...*ServiceCert) error {
	if err := os.MkdirAll(certsDir, 0o700); err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("dir", certsDir).Wrap(err)
	}

	if err := saveCert(filepath.Join(certsDir, caCertFile), ca.Certificate); err != nil {
		return err
	}
	if err := saveKey(filepath.Join(certsDir, caKeyFile), ca.PrivateKey); err != nil {
		return err
	}

	for _, svc := range services {
		if err := saveCert(filepath.Join(certsDir, svc.Name+".crt"), svc.Certificate); err != nil {
			return err
		}
		if err := saveKey(filepath.Join(certsDir, svc.Name+".key"), svc.PrivateKey); err != nil {
			return err
		}
	}

	return nil
}

// LoadCA loads an existing CA from certsDir.
func LoadCA(certsDir string) (*CA, error) {
	cert, err := readCertificate(filepath.Join(certsDir, caCertFile))
	if err != nil {
		return nil, err
	}

	keyPath := filepath.Clean(filepath.Join(certsDir, caKeyFile))
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("path", keyPath).Wrap(err)
	}
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("path", keyPath).Errorf("no PEM block in CA key")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("path", keyPath).Wrap(err)
	}

	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// ClusterID returns the cluster id embedded in the CA stored in certsDir.
func ClusterID(certsDir string) (string, error) {
	cert, err := readCertificate(filepath.Join(certsDir, caCertFile))
	if err != nil {
		return "", err
	}
	id, ok := strings.CutPrefix(cert.Subject.CommonName, caCNPrefix)
	if !ok || id == "" {
		return "", oops.Code("TLS_LOAD_FAILED").
			With("cn", cert.Subject.CommonName).
			Errorf("CA common name lacks %q prefix", caCNPrefix)
	}
	return id, nil
}

// EnsureCertificates makes certsDir hold a CA and a certificate for each
// named service, generating whatever is missing. An existing CA is reused so
// previously issued certificates stay valid. It returns the names of the
// service certificates it generated.
func EnsureCertificates(certsDir, clusterID string, services ...string) ([]string, error) {
	ca, err := LoadCA(certsDir)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		ca, err = GenerateCA(clusterID)
		if err != nil {
			return nil, err
		}
		if err := SaveCertificates(certsDir, ca); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	var generated []string
	for _, name := range services {
		if _, err := os.Stat(filepath.Join(certsDir, name+".crt")); err == nil {
			continue
		}
		svc, err := GenerateServiceCert(ca, name)
		if err != nil {
			return generated, err
		}
		if err := SaveCertificates(certsDir, ca, svc); err != nil {
			return generated, err
		}
		generated = append(generated, name)
	}
	return generated, nil
}

// LoadServerTLS loads the mTLS configuration for the named service's gRPC
// server. Clients must present a certificate signed by the cluster CA.
func LoadServerTLS(certsDir, name string) (*cryptotls.Config, error) {
	cert, pool, err := loadPair(certsDir, name)
	if err != nil {
		return nil, err
	}
	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{cert},
		ClientCAs:    pool,
		ClientAuth:   cryptotls.RequireAndVerifyClientCert,
		MinVersion:   cryptotls.VersionTLS13,
	}, nil
}

// LoadClientTLS loads the mTLS configuration the named service uses to call
// peer. The peer's certificate must carry "reservd-{peer}".
func LoadClientTLS(certsDir, name, peer string) (*cryptotls.Config, error) {
	cert, pool, err := loadPair(certsDir, name)
	if err != nil {
		return nil, err
	}
	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   cryptotls.VersionTLS13,
		ServerName:   "reservd-" + peer,
	}, nil
}

func loadPair(certsDir, name string) (cryptotls.Certificate, *x509.CertPool, error) {
	certPath := filepath.Clean(filepath.Join(certsDir, name+".crt"))
	keyPath := filepath.Clean(filepath.Join(certsDir, name+".key"))
	caPath := filepath.Clean(filepath.Join(certsDir, caCertFile))

	cert, err := cryptotls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return cryptotls.Certificate{}, nil, oops.Code("TLS_LOAD_FAILED").With("service", name).Wrap(err)
	}

	caPEM, err := os.ReadFile(caPath)
	if err != nil {
		return cryptotls.Certificate{}, nil, oops.Code("TLS_LOAD_FAILED").With("path", caPath).Wrap(err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return cryptotls.Certificate{}, nil, oops.Code("TLS_LOAD_FAILED").With("path", caPath).Errorf("no CA certificate in PEM")
	}
	return cert, pool, nil
}

// CertificateInfo summarises a certificate on disk.
type CertificateInfo struct {
	Name     string    `yaml:"name"`
	Subject  string    `yaml:"subject"`
	NotAfter time.Time `yaml:"not_after"`
	DNSNames []string  `yaml:"dns_names,omitempty"`
	IsCA     bool      `yaml:"is_ca"`
}

// Inspect describes every certificate in certsDir, CA first.
func Inspect(certsDir string) ([]CertificateInfo, error) {
	paths, err := filepath.Glob(filepath.Join(certsDir, "*.crt"))
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("dir", certsDir).Wrap(err)
	}
	infos := make([]CertificateInfo, 0, len(paths))
	for _, p := range paths {
		cert, err := readCertificate(p)
		if err != nil {
			return nil, err
		}
		info := CertificateInfo{
			Name:     strings.TrimSuffix(filepath.Base(p), ".crt"),
			Subject:  cert.Subject.CommonName,
			NotAfter: cert.NotAfter.UTC(),
			DNSNames: cert.DNSNames,
			IsCA:     cert.IsCA,
		}
		if info.IsCA {
			infos = append([]CertificateInfo{info}, infos...)
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func readCertificate(path string) (*x509.Certificate, error) {
	path = filepath.Clean(path)
	certPEM, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("path", path).Wrap(err)
	}
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("path", path).Errorf("no PEM block in certificate")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, oops.Code("TLS_LOAD_FAILED").With("path", path).Wrap(err)
	}
	return cert, nil
}

// saveCert saves a certificate to a PEM file.
func saveCert(path string, cert *x509.Certificate) error {
	return writePEM(path, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

// saveKey saves an ECDSA private key to a PEM file.
func saveKey(path string, key *ecdsa.PrivateKey) error {
	keyBytes, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}
	return writePEM(path, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})
}

func writePEM(path string, block *pem.Block) error {
	f, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}

	if err := pem.Encode(f, block); err != nil {
		_ = f.Close()
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}

	if err := f.Close(); err != nil {
		return oops.Code("TLS_SAVE_FAILED").With("path", path).Wrap(err)
	}

	return nil
}
