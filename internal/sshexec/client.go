package sshexec

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/patchrun/patchrun/internal/models"
	"golang.org/x/crypto/ssh"
)

const defaultPort = 22

// Client executes commands over SSH.
type Client struct {
	connectTimeout time.Duration
	hostKeyCheck   ssh.HostKeyCallback
}

func NewClient(connectTimeout time.Duration) *Client {
	return &Client{
		connectTimeout: connectTimeout,
		hostKeyCheck:   ssh.InsecureIgnoreHostKey(),
	}
}

func (c *Client) Execute(ctx context.Context, req Request) (Result, error) {
	auth, err := authMethods(req.Credential)
	if err != nil {
		return Result{}, err
	}

	config := &ssh.ClientConfig{
		User:            req.User,
		Auth:            auth,
		HostKeyCallback: c.hostKeyCheck,
		Timeout:         c.connectTimeout,
	}

	port := req.Port
	if port == 0 {
		port = defaultPort
	}
	addr := net.JoinHostPort(req.Address, strconv.Itoa(port))

	conn, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return Result{}, &ConnectionError{Address: req.Address, Err: err}
	}
	defer conn.Close()

	session, err := conn.NewSession()
	if err != nil {
		return Result{}, &ConnectionError{Address: req.Address, Err: err}
	}
	defer session.Close()

	var output bytes.Buffer
	session.Stdout = &output
	session.Stderr = &output

	if err := session.Start(req.Command); err != nil {
		return Result{}, &ConnectionError{Address: req.Address, Err: err}
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	var timeout <-chan time.Time
	if req.Timeout > 0 {
		timer := time.NewTimer(req.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-done:
		return sessionResult(output.String(), req.Address, err)
	case <-timeout:
		session.Close()
		return Result{Output: output.String()}, &TimeoutError{Address: req.Address, After: req.Timeout}
	case <-ctx.Done():
		session.Close()
		return Result{Output: output.String()}, &ConnectionError{Address: req.Address, Err: ctx.Err()}
	}
}

func sessionResult(output, address string, err error) (Result, error) {
	if err == nil {
		return Result{Output: output}, nil
	}
	if exitErr, ok := err.(*ssh.ExitError); ok {
		return Result{Output: output, ExitCode: exitErr.ExitStatus()}, nil
	}
	return Result{Output: output}, &ConnectionError{Address: address, Err: err}
}

func authMethods(cred models.Credential) ([]ssh.AuthMethod, error) {
	switch cred.Method {
	case models.AuthKey:
		path, err := homedir.Expand(cred.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("expand key path %q: %w", cred.KeyPath, err)
		}
		key, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read private key %q: %w", path, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse private key %q: %w", path, err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil

	case models.AuthPassword:
		if cred.Password == "" {
			return nil, &CapabilityError{Method: string(cred.Method)}
		}
		return []ssh.AuthMethod{
			ssh.Password(cred.Password),
			ssh.KeyboardInteractive(func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = cred.Password
				}
				return answers, nil
			}),
		}, nil

	default:
		return nil, &CapabilityError{Method: string(cred.Method)}
	}
}
