package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"path"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/sftp"
	"github.com/telebroad/ftpengine/keys"
	"golang.org/x/crypto/ssh"
)

// sftpBackend serves a Tree from a directory on a remote SFTP server.
type sftpBackend struct {
	client *sftp.Client
	root   string
}

func (b *sftpBackend) remote(name string) string {
	return path.Join(b.root, name)
}

func (b *sftpBackend) Stat(name string) (fs.FileInfo, error) {
	return b.client.Stat(b.remote(name))
}

func (b *sftpBackend) ReadDir(name string) ([]fs.FileInfo, error) {
	return b.client.ReadDir(b.remote(name))
}

func (b *sftpBackend) Mkdir(name string) error {
	return b.client.Mkdir(b.remote(name))
}

// Remove uses RMDIR for directories, servers differ in what REMOVE does with them.
func (b *sftpBackend) Remove(name string) error {
	info, err := b.client.Stat(b.remote(name))
	if err != nil {
		return err
	}
	if info.IsDir() {
		return b.client.RemoveDirectory(b.remote(name))
	}
	return b.client.Remove(b.remote(name))
}

func (b *sftpBackend) OpenFile(name string, flag int) (io.ReadWriteCloser, error) {
	return b.client.OpenFile(b.remote(name), flag)
}

// Owner reports the numeric uid and gid sent by the server. SFTP v3 has no link count.
func (b *sftpBackend) Owner(name string, info fs.FileInfo) (int, string, string) {
	if st, ok := info.Sys().(*sftp.FileStat); ok {
		return 1, strconv.FormatUint(uint64(st.UID), 10), strconv.FormatUint(uint64(st.GID), 10)
	}
	return 1, defaultOwner, defaultOwner
}

// NewSFTPFactory serves the directory root of the server behind client.
func NewSFTPFactory(client *sftp.Client, root string) Factory {
	if root == "" {
		root = "/"
	}
	b := &sftpBackend{client: client, root: path.Clean(root)}
	return func() (Storage, error) {
		return newTree(b), nil
	}
}

// SFTPConfig describes how to reach the SFTP server of an SFTP backed storage.
type SFTPConfig struct {
	Addr     string
	User     string
	Password string
	// PrivateKey is a PEM encoded client key, used alongside Password when set.
	PrivateKey []byte
	// HostKeyCallback verifies the server, required.
	HostKeyCallback ssh.HostKeyCallback
	Timeout         time.Duration
}

// SFTPConn is an open SFTP session and the SSH connection carrying it.
type SFTPConn struct {
	Client *sftp.Client
	ssh    *ssh.Client
}

// Close closes the SFTP session and then the SSH connection.
func (c *SFTPConn) Close() error {
	var result *multierror.Error
	if err := c.Client.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("error closing sftp client: %w", err))
	}
	if err := c.ssh.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		result = multierror.Append(result, fmt.Errorf("error closing ssh connection: %w", err))
	}
	return result.ErrorOrNil()
}

// DialSFTP connects to an SFTP server.
func DialSFTP(cfg SFTPConfig) (*SFTPConn, error) {
	if cfg.HostKeyCallback == nil {
		return nil, errors.New("sftp: missing host key callback")
	}
	var auth []ssh.AuthMethod
	if len(cfg.PrivateKey) > 0 {
		signer, err := keys.Signer(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("error loading sftp private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}

	sshClient, err := ssh.Dial("tcp", cfg.Addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: cfg.HostKeyCallback,
		Timeout:         cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to sftp server: %w", err)
	}

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("error starting sftp session: %w", err)
	}
	return &SFTPConn{Client: client, ssh: sshClient}, nil
}
