package conn

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultDialTimeout = 15 * time.Second

// sshClientConfig builds the client config for an SSH or SFTP endpoint.
// Host keys are checked against extras.known_hosts when it is set.
func sshClientConfig(ep *Endpoint) (*ssh.ClientConfig, error) {
	creds := ep.Credentials()
	var auth []ssh.AuthMethod
	if creds.PrivateKey != "" {
		pem, err := os.ReadFile(creds.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("read private key for %s: %w", ep.Name, err)
		}
		var signer ssh.Signer
		if creds.PrivateKeyPwd != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(creds.PrivateKeyPwd))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key for %s: %w", ep.Name, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if creds.Password != "" {
		auth = append(auth, ssh.Password(creds.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("connection %q has neither a password nor a private key", ep.Name)
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if v, ok := ep.Extras.Get("known_hosts"); ok && v.Text() != "" {
		cb, err := knownhosts.New(v.Text())
		if err != nil {
			return nil, fmt.Errorf("load known_hosts for %s: %w", ep.Name, err)
		}
		hostKey = cb
	}
	return &ssh.ClientConfig{
		User:            ep.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         defaultDialTimeout,
	}, nil
}

// dialSSH opens an SSH client to ep, honouring ctx for the TCP dial and
// the handshake.
func dialSSH(ctx context.Context, ep *Endpoint) (*ssh.Client, error) {
	cfg, err := sshClientConfig(ep)
	if err != nil {
		return nil, err
	}
	addr := ep.Addr()
	var raw net.Conn
	if ep.Tunnel != nil {
		raw, err = Dial(ctx, ep.Tunnel, addr)
	} else {
		d := net.Dialer{Timeout: defaultDialTimeout}
		raw, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = raw.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(raw, addr, cfg)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	_ = raw.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

type tunnelConn struct {
	net.Conn
	client *ssh.Client
}

func (c *tunnelConn) Close() error {
	err := c.Conn.Close()
	if cerr := c.client.Close(); err == nil {
		err = cerr
	}
	return err
}

// Dial opens a TCP connection to addr. When via is non-nil the connection
// is forwarded through that SSH endpoint; otherwise it is dialed directly.
func Dial(ctx context.Context, via *Endpoint, addr string) (net.Conn, error) {
	if via == nil {
		d := net.Dialer{Timeout: defaultDialTimeout}
		return d.DialContext(ctx, "tcp", addr)
	}
	client, err := dialSSH(ctx, via)
	if err != nil {
		return nil, err
	}
	c, err := client.Dial("tcp", addr)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("forward to %s through %s: %w", addr, via.Addr(), err)
	}
	return &tunnelConn{Conn: c, client: client}, nil
}
