package security

import (
	"crypto/x509"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeCAStore stands in for pkg/storage's CA bucket -- CertAuthority only
// ever needs the two methods in CAStore, so tests don't need a real bbolt
// file on disk.
type fakeCAStore struct {
	data []byte
}

func (f *fakeCAStore) SaveCA(data []byte) error {
	f.data = append([]byte(nil), data...)
	return nil
}

func (f *fakeCAStore) GetCA() ([]byte, error) {
	return f.data, nil
}

func newTestCA(t *testing.T) (*CertAuthority, *fakeCAStore) {
	t.Helper()
	require.NoError(t, SetClusterEncryptionKey(DeriveKeyFromClusterID("test-cluster")))
	store := &fakeCAStore{}
	return NewCertAuthority(store), store
}

func TestInitializeCA(t *testing.T) {
	ca, _ := newTestCA(t)

	require.NoError(t, ca.Initialize())
	require.True(t, ca.IsInitialized())
	require.NotNil(t, ca.rootCert)
	require.NotNil(t, ca.rootKey)
	require.True(t, ca.rootCert.IsCA)

	expectedExpiry := time.Now().Add(rootCAValidity)
	require.False(t, ca.rootCert.NotAfter.Before(expectedExpiry.Add(-time.Hour)))
}

func TestSaveLoadCA(t *testing.T) {
	ca1, store := newTestCA(t)
	require.NoError(t, ca1.Initialize())
	require.NoError(t, ca1.SaveToStore())

	ca2 := NewCertAuthority(store)
	require.NoError(t, ca2.LoadFromStore())
	require.True(t, ca2.IsInitialized())
	require.True(t, ca1.rootCert.Equal(ca2.rootCert))
	require.Zero(t, ca1.rootKey.N.Cmp(ca2.rootKey.N))
}

func TestIssueNodeCertificate(t *testing.T) {
	ca, _ := newTestCA(t)
	require.NoError(t, ca.Initialize())

	tests := []struct {
		name   string
		nodeID string
		role   string
	}{
		{"leader certificate", "node1", "leader"},
		{"follower certificate", "node2", "follower"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert, err := ca.IssueNodeCertificate(tt.nodeID, tt.role, []string{}, []net.IP{})
			require.NoError(t, err)
			require.NotNil(t, cert.Leaf)
			require.Equal(t, tt.role+"-"+tt.nodeID, cert.Leaf.Subject.CommonName)

			expectedExpiry := time.Now().Add(nodeCertValidity)
			require.False(t, cert.Leaf.NotAfter.Before(expectedExpiry.Add(-time.Hour)))
			require.NotZero(t, cert.Leaf.KeyUsage&x509.KeyUsageDigitalSignature)

			var hasClientAuth, hasServerAuth bool
			for _, usage := range cert.Leaf.ExtKeyUsage {
				hasClientAuth = hasClientAuth || usage == x509.ExtKeyUsageClientAuth
				hasServerAuth = hasServerAuth || usage == x509.ExtKeyUsageServerAuth
			}
			require.True(t, hasClientAuth)
			require.True(t, hasServerAuth)
		})
	}
}

func TestIssueClientCertificate(t *testing.T) {
	ca, _ := newTestCA(t)
	require.NoError(t, ca.Initialize())

	clientID := "operator@laptop"
	cert, err := ca.IssueClientCertificate(clientID)
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)
	require.Equal(t, "cli-"+clientID, cert.Leaf.Subject.CommonName)

	var hasClientAuth, hasServerAuth bool
	for _, usage := range cert.Leaf.ExtKeyUsage {
		hasClientAuth = hasClientAuth || usage == x509.ExtKeyUsageClientAuth
		hasServerAuth = hasServerAuth || usage == x509.ExtKeyUsageServerAuth
	}
	require.True(t, hasClientAuth)
	require.False(t, hasServerAuth)
}

func TestVerifyCertificate(t *testing.T) {
	ca, _ := newTestCA(t)
	require.NoError(t, ca.Initialize())

	cert, err := ca.IssueNodeCertificate("test-node", "follower", []string{}, []net.IP{})
	require.NoError(t, err)
	require.NoError(t, ca.VerifyCertificate(cert.Leaf))
}

func TestGetRootCACert(t *testing.T) {
	ca, _ := newTestCA(t)
	require.NoError(t, ca.Initialize())

	rootCertDER := ca.GetRootCACert()
	require.NotNil(t, rootCertDER)

	parsedCert, err := x509.ParseCertificate(rootCertDER)
	require.NoError(t, err)
	require.True(t, parsedCert.Equal(ca.rootCert))
}

func TestCertCache(t *testing.T) {
	ca, _ := newTestCA(t)
	require.NoError(t, ca.Initialize())

	nodeID := "test-node"
	_, err := ca.IssueNodeCertificate(nodeID, "follower", []string{}, []net.IP{})
	require.NoError(t, err)

	cached, exists := ca.GetCachedCert(nodeID)
	require.True(t, exists)
	require.NotNil(t, cached)
	require.Equal(t, "follower-"+nodeID, cached.Cert.Subject.CommonName)
}
