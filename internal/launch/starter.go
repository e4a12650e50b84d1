package launch

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// AppSpec describes one launch of the application binary.
type AppSpec struct {
	InstallDir string
	ConfigDir  string
	Port       int
	VendorID   string
	NoGraphics bool
}

func (s AppSpec) args() []string {
	args := []string{"--port", strconv.Itoa(s.Port)}
	if s.NoGraphics {
		args = append(args, "--noGraphics")
	}
	if s.VendorID != "" {
		args = append(args, "--vendorid", s.VendorID)
	}
	return args
}

func (s AppSpec) binary() string {
	return filepath.Join(s.InstallDir, "bin", "connectconsole")
}

// Process is a handle on a started application instance.
type Process interface {
	Kill() error
	Wait() error
}

// Starter launches the application and exposes its diagnostic stream. The
// supervisor only ever consumes the stream and the process handle, so tests
// and remote deployments can substitute their own implementations.
type Starter interface {
	Start(ctx context.Context, spec AppSpec) (Process, io.ReadCloser, error)
}

// LocalStarter runs the application on this host.
type LocalStarter struct{}

func (LocalStarter) Start(ctx context.Context, spec AppSpec) (Process, io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, spec.binary(), spec.args()...)
	cmd.Env = append(os.Environ(),
		EnvInstallDir+"="+spec.InstallDir,
		"LD_LIBRARY_PATH="+filepath.Join(spec.InstallDir, "bin")+":"+os.Getenv("LD_LIBRARY_PATH"),
		EnvConfigDir+"="+spec.ConfigDir,
	)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	return localProcess{cmd: cmd}, stderr, nil
}

type localProcess struct {
	cmd *exec.Cmd
}

func (p localProcess) Kill() error {
	return p.cmd.Process.Kill()
}

func (p localProcess) Wait() error {
	return p.cmd.Wait()
}

// SSHStarter runs the application on a remote host over SSH. The remote
// host must have the install directory in place; the diagnostic stream is
// the remote stderr.
type SSHStarter struct {
	Host                        string
	Port                        string
	User                        string
	KeyPath                     string
	Passphrase                  []byte
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	Timeout                     time.Duration
}

func (r SSHStarter) Start(ctx context.Context, spec AppSpec) (Process, io.ReadCloser, error) {
	client, err := r.dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	session, err := client.NewSession()
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, nil, err
	}
	if err := session.Start(remoteCommand(spec)); err != nil {
		_ = session.Close()
		_ = client.Close()
		return nil, nil, err
	}
	return &sshProcess{client: client, session: session}, io.NopCloser(stderr), nil
}

func remoteCommand(spec AppSpec) string {
	env := []string{
		EnvInstallDir + "=" + shellEscape(spec.InstallDir),
		"LD_LIBRARY_PATH=" + shellEscape(filepath.Join(spec.InstallDir, "bin")) + ":$LD_LIBRARY_PATH",
		EnvConfigDir + "=" + shellEscape(spec.ConfigDir),
	}
	var builder strings.Builder
	builder.WriteString(strings.Join(env, " "))
	builder.WriteByte(' ')
	builder.WriteString(shellEscape(spec.binary()))
	for _, arg := range spec.args() {
		builder.WriteByte(' ')
		builder.WriteString(shellEscape(arg))
	}
	return builder.String()
}

func shellEscape(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

type sshProcess struct {
	client  *ssh.Client
	session *ssh.Session
}

func (p *sshProcess) Kill() error {
	_ = p.session.Signal(ssh.SIGKILL)
	err := p.session.Close()
	if cerr := p.client.Close(); err == nil {
		err = cerr
	}
	return err
}

func (p *sshProcess) Wait() error {
	err := p.session.Wait()
	_ = p.client.Close()
	return err
}

func (r SSHStarter) dial(ctx context.Context) (*ssh.Client, error) {
	address, err := r.address()
	if err != nil {
		return nil, err
	}
	config, err := r.clientConfig()
	if err != nil {
		return nil, err
	}

	var dialer net.Dialer
	dialer.Timeout = r.Timeout
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return ssh.NewClient(clientConn, chans, reqs), nil
}

func (r SSHStarter) address() (string, error) {
	host := strings.TrimSpace(r.Host)
	if host == "" {
		return "", fmt.Errorf("launch: ssh host is required")
	}
	if r.Port != "" {
		return net.JoinHostPort(host, r.Port), nil
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}
	return net.JoinHostPort(host, "22"), nil
}

func (r SSHStarter) clientConfig() (*ssh.ClientConfig, error) {
	if r.User == "" {
		return nil, fmt.Errorf("launch: ssh user is required")
	}
	signer, err := r.signer()
	if err != nil {
		return nil, err
	}

	var hostKeyCallback ssh.HostKeyCallback
	if r.InsecureSkipHostKeyChecking {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	} else {
		callback, err := r.knownHostsCallback()
		if err != nil {
			return nil, err
		}
		hostKeyCallback = callback
	}

	return &ssh.ClientConfig{
		User:            r.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         r.Timeout,
	}, nil
}

func (r SSHStarter) signer() (ssh.Signer, error) {
	if r.KeyPath == "" {
		return nil, fmt.Errorf("launch: ssh key path is required")
	}
	privateKey, err := os.ReadFile(r.KeyPath)
	if err != nil {
		return nil, err
	}
	if len(r.Passphrase) > 0 {
		return ssh.ParsePrivateKeyWithPassphrase(privateKey, r.Passphrase)
	}
	return ssh.ParsePrivateKey(privateKey)
}

func (r SSHStarter) knownHostsCallback() (ssh.HostKeyCallback, error) {
	path := strings.TrimSpace(r.KnownHostsPath)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("launch: known hosts path not set and home dir unavailable")
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	return knownhosts.New(path)
}
