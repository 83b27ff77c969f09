package network

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/msthilaire5/Level-Site-PPDT/pkg/common"
	"github.com/msthilaire5/Level-Site-PPDT/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestEchoServer(t *testing.T) {
	srv := NewTCPServer("echo", HandlerFunc(func(ctx context.Context, conn net.Conn) {
		io.Copy(conn, conn)
	}), nil)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	go srv.Serve()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, srv.Addr().String(), time.Second, nil)
	require.NoError(t, err)

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))
	require.NoError(t, conn.Close())

	require.NoError(t, srv.Close())
}

func TestDialFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	_, err = Dial(context.Background(), addr, time.Second, nil)
	require.True(t, common.IsKind(err, common.KindTransport))
}

func TestTLSConfigDisabled(t *testing.T) {
	c, err := ServerTLS(config.TLSConfig{})
	require.NoError(t, err)
	require.Nil(t, c)
	c, err = ClientTLS(config.TLSConfig{})
	require.NoError(t, err)
	require.Nil(t, c)

	_, err = ServerTLS(config.TLSConfig{Enabled: true, Cert: "missing.pem", Key: "missing.key"})
	require.True(t, common.IsKind(err, common.KindConfig))
	_, err = ClientTLS(config.TLSConfig{Enabled: true, CA: "missing.pem"})
	require.True(t, common.IsKind(err, common.KindConfig))
}
