package httpserver

import (
	"context"
	"crypto/tls"
)

// PeerInfo describes the TLS side of a connection. It is captured once,
// right after the handshake.
type PeerInfo struct {
	RemoteAddr  string
	ServerName  string
	Protocol    string
	CipherSuite string
	TLSVersion  string
	// ClientCN is the subject common name of the client certificate, if one
	// was presented.
	ClientCN string
}

func newPeerInfo(c *tls.Conn) PeerInfo {
	st := c.ConnectionState()
	p := PeerInfo{
		RemoteAddr:  c.RemoteAddr().String(),
		ServerName:  st.ServerName,
		Protocol:    st.NegotiatedProtocol,
		CipherSuite: tls.CipherSuiteName(st.CipherSuite),
		TLSVersion:  tls.VersionName(st.Version),
	}
	if len(st.PeerCertificates) > 0 {
		p.ClientCN = st.PeerCertificates[0].Subject.CommonName
	}
	return p
}

type peerKey struct{}

func withPeer(ctx context.Context, p PeerInfo) context.Context {
	return context.WithValue(ctx, peerKey{}, p)
}

// PeerFromContext returns the PeerInfo of the connection a request arrived
// on.
func PeerFromContext(ctx context.Context) (PeerInfo, bool) {
	p, ok := ctx.Value(peerKey{}).(PeerInfo)
	return p, ok
}
