/*
Package security provides cryptographic services for shardmail clusters.

This package implements two core capabilities: a per-cluster symmetric
encryption key derived from the cluster id, and a Certificate Authority
(CA) issuing mTLS certificates for peer-to-peer cluster traffic. Together
they keep the CA's own root key encrypted at rest and every peer
connection mutually authenticated.

# Architecture

	┌─────────────────────────────────────────────────────────────┐
	│                    Security Architecture                    │
	└─────┬─────────────────────────────┬─────────────────────────┘
	      │                             │
	      ▼                             ▼
	┌─────────────┐              ┌────────────────┐
	│  Encrypt /  │              │       CA        │
	│  Decrypt    │              │  (Root + node)  │
	└─────┬───────┘              └────────┬────────┘
	      │                               │
	      ▼                               ▼
	  AES-256-GCM                  RSA 4096-bit root
	  cluster key                  10-year validity

## Cluster Encryption Key

All security is rooted in the cluster encryption key, a 32-byte key
derived from the cluster id at startup:

	clusterKey = SHA-256("shardmail-cluster-key:" + clusterID)

Every node configured with the same cluster id arrives at the same key
without an out-of-band exchange. SetClusterEncryptionKey installs it
before CertAuthority.Initialize/LoadFromStore/SaveToStore run, since the
CA's root private key is encrypted with this key before it touches
storage.

# Encryption

Encrypt/Decrypt are package-level functions, not a stateful manager:
AES-256-GCM with a random 12-byte nonce prepended to the ciphertext.

	ciphertext, err := security.Encrypt(plaintext)
	...
	plaintext, err := security.Decrypt(ciphertext)

The CA uses these to seal its root private key in pkg/storage's CA
bucket; nothing else in this package holds plaintext key material
outside of a running process's memory.

# Certificate Authority

## Root CA

	Root CA (self-signed)
	├── 10-year validity
	├── RSA 4096-bit key
	├── KeyUsage: CertSign, CRLSign
	└── Subject: CN=ShardMail Root CA, O=ShardMail Cluster

CertAuthority.Initialize generates the root once, on the bootstrap node.
SaveToStore/LoadFromStore persist and reload it from a CAStore (the same
interface pkg/storage.Store satisfies), encrypting the private key with
the cluster key on the way in.

## Node and Client Certificates

	Node Certificate                     Client Certificate
	├── 90-day validity                  ├── 90-day validity
	├── RSA 2048-bit key                  ├── RSA 2048-bit key
	├── KeyUsage: DigitalSignature,       ├── KeyUsage: DigitalSignature,
	│   KeyEncipherment                   │   KeyEncipherment
	├── ExtKeyUsage: ServerAuth,          ├── ExtKeyUsage: ClientAuth
	│   ClientAuth                        └── Subject: CN=cli-{clientID}
	└── Subject: CN={role}-{nodeID}

IssueNodeCertificate gives every cluster peer a certificate usable both
as TLS server and client, since peer connections are symmetric — any
node may dial any other. IssueClientCertificate is for one-off tooling
(e.g. a CLI) that only ever dials in. VerifyCertificate checks a
presented certificate against the root, used on both ends of mTLS.

# Usage

	store, err := storage.NewBoltStore(dataDir)
	...
	key := security.DeriveKeyFromClusterID(cfg.ClusterID)
	if err := security.SetClusterEncryptionKey(key); err != nil {
		...
	}

	ca := security.NewCertAuthority(store)
	if bootstrap {
		if err := ca.Initialize(); err != nil {
			...
		}
		if err := ca.SaveToStore(); err != nil {
			...
		}
	} else if err := ca.LoadFromStore(); err != nil {
		...
	}

	cert, err := ca.IssueNodeCertificate(nodeIDStr, "peer", nil, nil)
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	}

## Certificate Rotation Helpers

certs.go also carries file-based certificate storage and rotation
helpers (SaveCertToFile, LoadCertFromFile, CertNeedsRotation,
GetCertInfo, and related functions) for operators managing certificates
outside of the CA's own BoltDB-backed store:

	certDir, _ := security.GetCertDir(role, nodeID)
	if security.CertNeedsRotation(cert.Leaf) {
		newCert, _ := ca.IssueNodeCertificate(nodeID, role, dnsNames, ips)
		security.SaveCertToFile(newCert, certDir)
	}

# Integration Points

This package integrates with:

  - pkg/storage: CAStore persists the root cert/key (cmd/shardmaild's
    BoltStore satisfies it)
  - pkg/cluster: Coordinator's TLS transport is built from CA-issued
    node certificates
  - cmd/shardmaild: bootstrap/join initialize or load the CA and the
    cluster key before starting the coordinator

# Security Considerations

  - The cluster encryption key and CA private keys are never logged.
  - Loss of the cluster id (and therefore the derived key) makes a
    backed-up root CA private key unrecoverable.
  - Node certificates expire after 90 days; nothing in this package
    rotates them automatically yet — see certs.go's rotation helpers.

# See Also

  - pkg/storage: CAStore bucket layout
  - pkg/cluster: where issued certificates become TLS configs
*/
package security
