/*
Package security provides the certificate authority and at-rest encryption
corectl uses to secure its control-plane connections.

# Certificate Authority

CertAuthority issues a 10-year RSA-4096 self-signed root, then 90-day
RSA-2048 leaf certificates for daemon instances (server+client auth, for
peer-to-peer dispatcher connections) and CLI clients (client auth only):

	ca := security.NewCertAuthority(store)
	if err := ca.Initialize(); err != nil { ... }
	if err := ca.SaveToStore(); err != nil { ... }

	nodeCert, err := ca.IssueNodeCertificate(nodeID, dnsNames, ips)
	cliCert, err := ca.IssueClientCertificate(clientID)

The root private key is stored encrypted (AES-256-GCM, see Encrypt/Decrypt)
under the "security" bucket of the daemon's storage.Store; SetClusterEncryptionKey
must be called once at daemon startup with a key derived via DeriveKeyFromNodeID
before LoadFromStore or SaveToStore are used.

# Certificate files

GetCertDir/GetCLICertDir, SaveCertToFile/LoadCertFromFile, and
SaveCACertToFile/LoadCACertFromFile manage the on-disk PEM layout under
~/.corectl/certs used by daemon instances and CLI clients that don't share
the daemon's storage.Store directly. CertNeedsRotation flags certificates
within 30 days of expiry.
*/
package security
