package transport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// QUICTransport runs the same framed dialog as TCPTransport but over a QUIC
// connection's single bidirectional stream per dialog, opened eagerly on
// Accept/Dial. The envelope framing in pkg/protocol is transport-agnostic -
// a QUIC stream is an io.ReadWriteCloser like a net.Conn - so nothing above
// this package needs to know which is in use.
type QUICTransport struct{}

// NewQUICTransport constructs a QUICTransport.
func NewQUICTransport() *QUICTransport { return &QUICTransport{} }

func (t *QUICTransport) Name() string { return "quic" }

func (t *QUICTransport) Listen(_ context.Context, addr string) (Listener, error) {
	tlsConf, err := generateTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("transport: generate tls config: %w", err)
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:     30 * time.Second,
		KeepAlivePeriod:    5 * time.Second,
		MaxIncomingStreams: 10,
	}

	listener, err := quic.ListenAddr(addr, tlsConf, quicConfig)
	if err != nil {
		return nil, fmt.Errorf("transport: listen: %w", err)
	}
	return &quicListener{ln: listener}, nil
}

func (t *QUICTransport) Dial(ctx context.Context, addr string) (Conn, error) {
	tlsConf := &tls.Config{
		InsecureSkipVerify: true, // the listener's certificate is self-signed; the dialog does no authentication
		NextProtos:         []string{"flockd"},
	}

	conn, err := quic.DialAddr(ctx, addr, tlsConf, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "open stream failed")
		return nil, fmt.Errorf("transport: open stream: %w", err)
	}
	return &quicConn{conn: conn, Stream: stream}, nil
}

type quicListener struct {
	ln *quic.Listener
}

func (l *quicListener) Accept(ctx context.Context) (Conn, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		conn.CloseWithError(0, "accept stream failed")
		return nil, err
	}
	return &quicConn{conn: conn, Stream: stream}, nil
}

func (l *quicListener) Close() error   { return l.ln.Close() }
func (l *quicListener) Addr() net.Addr { return l.ln.Addr() }

// quicConn pairs the one stream used for a dialog with its parent connection
// so Close can tear both down.
type quicConn struct {
	conn *quic.Conn
	*quic.Stream
}

func (c *quicConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *quicConn) Close() error {
	err := c.Stream.Close()
	c.conn.CloseWithError(0, "dialog complete")
	return err
}

// generateTLSConfig produces a throwaway self-signed certificate. QUIC
// requires TLS for every connection; the dialog carries no authentication of
// its own and the dialer does not verify the certificate, so an ephemeral
// cert is sufficient.
func generateTLSConfig() (*tls.Config, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	template := x509.Certificate{SerialNumber: big.NewInt(1)}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	tlsCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{"flockd"},
	}, nil
}
