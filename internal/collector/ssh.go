package collector

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"regexp"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Device describes one SSH-reachable network device and the command
// that prints its neighbor table.
type Device struct {
	Name           string `json:"name"`
	Address        string `json:"address"`
	Port           uint   `json:"port"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	PrivateKeyPath string `json:"private_key_path"`
	Command        string `json:"command"`
}

const defaultNeighborCommand = "ip -4 neighbor"

var neighborLladdrRegex = regexp.MustCompile(`lladdr ([^ ]+)`)

// SSHSource scrapes a device's ARP/NDP table over SSH. One connection
// per collection; shells are more trouble than reconnecting is worth.
type SSHSource struct {
	device Device
	logger *slog.Logger
}

func NewSSHSource(device Device, logger *slog.Logger) *SSHSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSHSource{device: device, logger: logger}
}

func (s *SSHSource) Name() string {
	if s.device.Name != "" {
		return s.device.Name
	}
	return s.device.Address
}

func (s *SSHSource) Collect(ctx context.Context) (map[string]string, error) {
	config, err := s.clientConfig()
	if err != nil {
		return nil, err
	}

	port := s.device.Port
	if port == 0 {
		port = 22
	}
	address := fmt.Sprintf("%s:%d", s.device.Address, port)

	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", address, err)
	}
	// The ssh handshake and command do not take a context; closing the
	// underlying connection on cancellation unblocks both.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", address, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("opening session on %s: %w", address, err)
	}
	defer session.Close()

	command := s.device.Command
	if command == "" {
		command = defaultNeighborCommand
	}
	output, err := session.Output(command)
	if err != nil {
		return nil, fmt.Errorf("running %q on %s: %w", command, address, err)
	}

	return s.parseNeighbors(strings.Split(string(output), "\n")), nil
}

// parseNeighbors reads `ip neighbor` style output: the address is the
// first field, the mac follows "lladdr". Entries without a resolved
// mac (FAILED, INCOMPLETE) are kept with an empty mac; the address was
// still seen on the wire.
func (s *SSHSource) parseNeighbors(lines []string) map[string]string {
	table := make(map[string]string)
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		ip := fields[0]
		if net.ParseIP(ip) == nil {
			s.logger.Debug("unparseable neighbor line", "device", s.Name(), "line", line)
			continue
		}

		mac := ""
		if match := neighborLladdrRegex.FindStringSubmatch(line); match != nil {
			normalized, err := NormalizeMAC(match[1])
			if err != nil {
				s.logger.Warn("bad mac in neighbor table", "device", s.Name(), "ip", ip, "err", err.Error())
			} else {
				mac = normalized
			}
		}
		table[ip] = mac
	}
	return table
}

func (s *SSHSource) clientConfig() (*ssh.ClientConfig, error) {
	authMethods := make([]ssh.AuthMethod, 0, 2)
	if s.device.Password != "" {
		authMethods = append(authMethods, ssh.Password(s.device.Password))
	}
	if s.device.PrivateKeyPath != "" {
		key, err := os.ReadFile(s.device.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key %s: %w", s.device.PrivateKeyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parsing private key %s: %w", s.device.PrivateKeyPath, err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}
	if len(authMethods) == 0 {
		return nil, fmt.Errorf("device %s has no password and no private key", s.Name())
	}

	return &ssh.ClientConfig{
		User:            s.device.Username,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}, nil
}
