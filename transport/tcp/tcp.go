package tcp

import (
	"net"
	"time"

	"github.com/opentrail/trailship/transport"
)

func init() {
	transport.Register(new(tcpTransport), "tcp")
}

type tcpTransport int

func (*tcpTransport) Dial(addr string, options map[string]string) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
