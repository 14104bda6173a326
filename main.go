// Description: This is the main file of the ftp engine
// It reads the environment, picks the storage backend and the users,
// starts the ftp server and closes it on SIGINT or SIGTERM.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/telebroad/ftpengine/config"
	"github.com/telebroad/ftpengine/ftp"
	"github.com/telebroad/ftpengine/keys"
	"github.com/telebroad/ftpengine/storage"
	"github.com/telebroad/ftpengine/users"
	"golang.org/x/crypto/ssh"
)

func main() {
	// setting up the slog logger
	logger := setupLogger()
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("ftp engine stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	env, err := config.GetEnv(logger)
	if err != nil {
		return fmt.Errorf("error getting environment: %w", err)
	}

	factory, closeStorage, err := GetStorage(env, logger)
	if err != nil {
		return err
	}
	defer closeStorage.Close()

	auth, closeUsers, err := GetUsers(env, logger)
	if err != nil {
		return err
	}
	defer closeUsers.Close()

	ftpServer := &ftp.Server{
		Addr:           env.FtpAddr,
		PasvMinPort:    env.PasvMinPort,
		PasvMaxPort:    env.PasvMaxPort,
		Storage:        factory,
		Authenticator:  auth,
		WelcomeMessage: env.WelcomeMessage,
		IdleTimeout:    env.IdleTimeout,
		DataTimeout:    env.DataTimeout,
	}
	ftpServer.SetLogger(logger)

	// seting the public server ip for passive mode
	if env.FtpServerIPv4 == "" {
		logger.Info("FTP_SERVER_IPV4 was empty so Getting public ip from ipify.org...")
		ftpServer.PublicServerIPv4, err = ftp.GetServerPublicIP(context.Background())
	} else {
		ftpServer.PublicServerIPv4, err = ftp.ParseIPv4(env.FtpServerIPv4)
	}
	if err != nil {
		return fmt.Errorf("error setting public server ip: %w", err)
	}

	// try is the same of listen and serve but with a timeout if no error is returned it returns nil
	if err := ftpServer.TryListenAndServe(time.Second); err != nil {
		return fmt.Errorf("error starting ftp server: %w", err)
	}
	logger.Info("FTP server started", "addr", env.FtpAddr, "storage", env.Storage)

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM)
	sig := <-stopChan
	logger.Info("shutting down", "signal", sig.String())
	return ftpServer.Close()
}

func setupLogger() *slog.Logger {
	logLevel := slog.LevelInfo
	AddSource := false
	switch os.Getenv("LOG_LEVEL") {
	case "DEBUG":
		logLevel = slog.LevelDebug
		AddSource = true
	case "INFO":
		logLevel = slog.LevelInfo
	case "WARN":
		logLevel = slog.LevelWarn
	case "ERROR":
		logLevel = slog.LevelError
	}

	handler := tint.NewHandler(os.Stdout, &tint.Options{
		AddSource: AddSource,
		Level:     logLevel,
	})

	logger := slog.New(handler).With("app", "ftp-engine")
	logger.Info("Logger initialized", "level", logLevel)
	return logger
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// GetStorage returns the storage factory selected by FTP_STORAGE and what has
// to be closed on shutdown.
func GetStorage(env *config.Environment, logger *slog.Logger) (storage.Factory, io.Closer, error) {
	switch env.Storage {
	case config.StorageMemory:
		logger.Warn("using in-memory storage, files are lost on restart")
		return storage.NewMemoryFactory(nil), nopCloser{}, nil
	case config.StorageSFTP:
		cfg := storage.SFTPConfig{
			Addr:     env.SftpAddr,
			User:     env.SftpUser,
			Password: env.SftpPass,
			Timeout:  10 * time.Second,
		}
		if env.SftpKeyFile != "" {
			key, created, err := keys.LoadOrGenerate(env.SftpKeyFile, env.SftpKeyType)
			if err != nil {
				return nil, nil, err
			}
			if created {
				signer, err := keys.Signer(key)
				if err != nil {
					return nil, nil, err
				}
				logger.Warn("generated a new sftp client key, add it to authorized_keys on the sftp server",
					"file", env.SftpKeyFile,
					"public_key", strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey()))))
			}
			cfg.PrivateKey = key
		}
		if env.SftpHostKey != "" {
			hostKey, err := readHostKey(env.SftpHostKey)
			if err != nil {
				return nil, nil, err
			}
			cfg.HostKeyCallback = ssh.FixedHostKey(hostKey)
		} else {
			logger.Warn("SFTP_INSECURE is set, the sftp host key is not checked")
			cfg.HostKeyCallback = ssh.InsecureIgnoreHostKey()
		}
		conn, err := storage.DialSFTP(cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("connected to sftp storage", "addr", env.SftpAddr, "root", env.SftpRoot)
		return storage.NewSFTPFactory(conn.Client, env.SftpRoot), conn, nil
	default:
		factory, err := storage.NewLocalFactory(env.FtpServerRoot)
		if err != nil {
			return nil, nil, err
		}
		return factory, nopCloser{}, nil
	}
}

// readHostKey reads the first key of an authorized_keys style file.
func readHostKey(name string) (ssh.PublicKey, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("error reading host key file: %w", err)
	}
	key, _, _, _, err := ssh.ParseAuthorizedKey(b)
	if err != nil {
		return nil, fmt.Errorf("error parsing host key: %w", err)
	}
	return key, nil
}

// GetUsers returns the users file when FTP_USERS_FILE is set, otherwise a
// table with the default user.
func GetUsers(env *config.Environment, logger *slog.Logger) (users.Authenticator, io.Closer, error) {
	if env.UsersFile != "" {
		fileUsers, err := users.NewFileUsers(env.UsersFile, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := fileUsers.Watch(); err != nil {
			logger.Warn("users file is not watched, restart to reload it", "error", err)
		}
		return fileUsers, fileUsers, nil
	}

	localUsers := users.NewLocalUsers()
	logger.Debug("FTP_DEFAULT_USER is", "username", env.DefaultUser)
	user, err := localUsers.Add(env.DefaultUser, env.DefaultPass)
	if err != nil {
		return nil, nil, fmt.Errorf("error adding default user: %w", err)
	}
	for _, ip := range env.DefaultIPs {
		if err := user.AddIP(ip); err != nil {
			return nil, nil, fmt.Errorf("error adding default user ip: %w", err)
		}
	}
	return localUsers, nopCloser{}, nil
}
