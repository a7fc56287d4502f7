// Package tlsconf builds the server TLS context from PEM files.
package tlsconf

import (
	"crypto/tls"
	"fmt"
)

// Load reads a PEM certificate chain and private key and returns a server
// TLS config. Errors here are fatal to startup; they are never surfaced at
// request time.
func Load(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
