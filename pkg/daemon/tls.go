package daemon

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/google/uuid"
	"github.com/nexusshell/corectl/pkg/config"
	"github.com/nexusshell/corectl/pkg/security"
	"github.com/nexusshell/corectl/pkg/storage"
)

const (
	nodeIDBucket = "security"
	nodeIDKey    = "node_id"
)

// nodeIdentity returns the daemon's stable node ID, generating and
// persisting one on first boot. The same ID seeds the at-rest encryption
// key (security.DeriveKeyFromNodeID) and the CA's node certificate CN.
func nodeIdentity(store storage.Store) (string, error) {
	if err := store.EnsureBucket(nodeIDBucket); err != nil {
		return "", fmt.Errorf("ensure node-id bucket: %w", err)
	}
	if existing, err := store.Get(nodeIDBucket, nodeIDKey); err == nil && len(existing) > 0 {
		return string(existing), nil
	}

	id := uuid.NewString()
	if err := store.Put(nodeIDBucket, nodeIDKey, []byte(id)); err != nil {
		return "", fmt.Errorf("persist node id: %w", err)
	}
	return id, nil
}

// buildTLSConfig wires pkg/security's CertAuthority into a mutual-TLS
// server config for both the RPC and HTTP listeners (§4.8 "control plane
// exposes both a binary RPC listener ... over mTLS"), gated on
// cfg.Security.Enabled. It returns (nil, nil) when TLS is disabled.
func buildTLSConfig(cfg config.Config, store storage.Store) (*tls.Config, error) {
	if !cfg.Security.Enabled {
		return nil, nil
	}

	nodeID, err := nodeIdentity(store)
	if err != nil {
		return nil, err
	}
	if err := security.SetClusterEncryptionKey(security.DeriveKeyFromNodeID(nodeID)); err != nil {
		return nil, fmt.Errorf("set cluster encryption key: %w", err)
	}

	ca := security.NewCertAuthority(store)
	if err := ca.LoadFromStore(); err != nil {
		if err := ca.Initialize(); err != nil {
			return nil, fmt.Errorf("initialize CA: %w", err)
		}
		if err := ca.SaveToStore(); err != nil {
			return nil, fmt.Errorf("persist CA: %w", err)
		}
	}

	nodeCert, err := ca.IssueNodeCertificate(nodeID, []string{"localhost", nodeID}, nil)
	if err != nil {
		return nil, fmt.Errorf("issue node certificate: %w", err)
	}

	rootPool := x509.NewCertPool()
	rootDER := ca.GetRootCACert()
	rootCert, err := x509.ParseCertificate(rootDER)
	if err != nil {
		return nil, fmt.Errorf("parse root CA certificate: %w", err)
	}
	rootPool.AddCert(rootCert)

	return &tls.Config{
		Certificates: []tls.Certificate{*nodeCert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    rootPool,
		RootCAs:      rootPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
