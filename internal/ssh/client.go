package sshutil

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

const dialTimeout = 10 * time.Second

// Target describes the remote nginx host.
type Target struct {
	Host    string
	Port    int
	User    string
	KeyPath string
	// HostKey is the expected host key in authorized_keys format. When empty
	// the connection is refused unless InsecureIgnoreHostKey is set.
	HostKey               string
	InsecureIgnoreHostKey bool
}

func (t Target) addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Host, fmt.Sprintf("%d", port))
}

// Dial establishes an SSH connection to t using public key authentication.
func Dial(t Target) (*ssh.Client, error) {
	signer, err := LoadPrivateKey(t.KeyPath)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := t.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	config := &ssh.ClientConfig{
		User: t.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         dialTimeout,
	}

	client, err := ssh.Dial("tcp", t.addr(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", t.addr(), err)
	}
	return client, nil
}

func (t Target) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if t.HostKey != "" {
		pubKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(t.HostKey))
		if err != nil {
			return nil, fmt.Errorf("invalid host key: %w", err)
		}
		return ssh.FixedHostKey(pubKey), nil
	}
	if t.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return nil, fmt.Errorf("no host key configured for %s (run `whitelister hostkey` to fetch one)", t.Host)
}

// GetHostKey connects to the host without authenticating and returns its
// host key in authorized_keys format.
func GetHostKey(host string, port int) (string, error) {
	t := Target{Host: host, Port: port}
	var hostKey ssh.PublicKey

	config := &ssh.ClientConfig{
		User: "probe",
		HostKeyCallback: func(hostname string, remote net.Addr, key ssh.PublicKey) error {
			hostKey = key
			return nil
		},
		Timeout: dialTimeout,
	}

	conn, err := ssh.Dial("tcp", t.addr(), config)
	if conn != nil {
		conn.Close()
	}
	if hostKey != nil {
		return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(hostKey))), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get host key: %w", err)
	}
	return "", fmt.Errorf("no host key received")
}

// RunCommand executes a single command on the remote host and returns the
// combined stdout+stderr output. Cancelling ctx closes the session.
func RunCommand(ctx context.Context, client *ssh.Client, cmd string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			session.Close()
		case <-done:
		}
	}()

	output, err := session.CombinedOutput(cmd)
	if err != nil {
		if ctx.Err() != nil {
			return strings.TrimSpace(string(output)), ctx.Err()
		}
		return strings.TrimSpace(string(output)), fmt.Errorf("command failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}
