package main

import (
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/drunlade/go-zxmit/zxmit"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"
)

// splitJumpHost parses "[user@]host[:port]".
func splitJumpHost(hostSpec string) (string, string) {
	name := ""
	if i := strings.LastIndex(hostSpec, "@"); i >= 0 {
		name, hostSpec = hostSpec[:i], hostSpec[i+1:]
	}
	if name == "" {
		if u, err := user.Current(); err == nil {
			name = u.Username
		}
	}
	return name, zxmit.JoinAddress(hostSpec, 22)
}

// readSecret prompts on the terminal without echo.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal to prompt for " + strings.TrimSuffix(prompt, ": "))
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	return string(b), err
}

func keySigner(path string) (ssh.Signer, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(pem)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		pass, perr := readSecret(fmt.Sprintf("Passphrase for %s: ", path))
		if perr != nil {
			return nil, perr
		}
		return ssh.ParsePrivateKeyWithPassphrase(pem, []byte(pass))
	}
	return signer, err
}

func hostKeyCallback(insecure bool) (ssh.HostKeyCallback, error) {
	if insecure {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return knownhosts.New(filepath.Join(home, ".ssh", "known_hosts"))
}

// dialJumpHost connects to the SSH server that can reach the receiver.
func dialJumpHost(hostSpec, keyPath string, insecure bool) (*zxmit.SSHDialer, error) {
	name, addr := splitJumpHost(hostSpec)

	var auth []ssh.AuthMethod
	if keyPath != "" {
		signer, err := keySigner(keyPath)
		if err != nil {
			return nil, fmt.Errorf("loading ssh key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	auth = append(auth, ssh.PasswordCallback(func() (string, error) {
		if pass := os.Getenv("SSH_PASSWORD"); pass != "" {
			return pass, nil
		}
		return readSecret(fmt.Sprintf("%s@%s's password: ", name, addr))
	}))

	callback, err := hostKeyCallback(insecure)
	if err != nil {
		return nil, fmt.Errorf("loading known hosts: %w", err)
	}

	config := &ssh.ClientConfig{
		User:            name,
		Auth:            auth,
		HostKeyCallback: callback,
		Timeout:         zxmit.DefaultDialTimeout,
	}
	return zxmit.DialSSH(addr, config)
}
