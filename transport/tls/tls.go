package tls

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"

	"github.com/opentrail/trailship/transport"
)

func init() {
	transport.Register(new(tlsTransport), "tls")
}

type tlsTransport int

// Dial wraps a TCP connection in TLS. Recognized options:
//
//	ca    - path to a PEM bundle of CAs to trust instead of the system pool
//	cert  - path to a client certificate (requires key)
//	key   - path to the client certificate key
func (*tlsTransport) Dial(addr string, options map[string]string) (net.Conn, error) {
	config := &tls.Config{}

	if capath := options["ca"]; capath != "" {
		pem, err := os.ReadFile(capath)
		if err != nil {
			return nil, err
		}
		capool := x509.NewCertPool()
		if !capool.AppendCertsFromPEM(pem) {
			return nil, &os.PathError{Op: "parse", Path: capath, Err: os.ErrInvalid}
		}
		config.RootCAs = capool
	}

	if certpath := options["cert"]; certpath != "" {
		cert, err := tls.LoadX509KeyPair(certpath, options["key"])
		if err != nil {
			return nil, err
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return tls.Dial("tcp", addr, config)
}
