// Package config reads the server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/telebroad/ftpengine/keys"
)

// Storage backends selected by FTP_STORAGE.
const (
	StorageLocal  = "local"
	StorageMemory = "memory"
	StorageSFTP   = "sftp"
)

// Environment is the environment of the server
type Environment struct {
	FtpAddr        string
	FtpServerIPv4  string // public ip for PASV replies, empty means ask ipify.org
	PasvMinPort    int
	PasvMaxPort    int
	WelcomeMessage string
	IdleTimeout    time.Duration
	DataTimeout    time.Duration

	Storage       string
	FtpServerRoot string

	SftpAddr     string
	SftpUser     string
	SftpPass     string
	SftpKeyFile  string // generated on first start when missing
	SftpKeyType  string // keys.TypeED25519 or keys.TypeRSA, used to generate SftpKeyFile
	SftpHostKey  string // authorized_keys style file with the host key of SftpAddr
	SftpInsecure bool   // skip the host key check
	SftpRoot     string

	UsersFile   string
	DefaultUser string
	DefaultPass string
	DefaultIPs  []string
}

// GetEnv returns a new Environment with the environment variables
func GetEnv(logger *slog.Logger) (*Environment, error) {
	return Load(os.Getenv, logger)
}

// Load builds the Environment from getenv.
func Load(getenv func(string) string, logger *slog.Logger) (env *Environment, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	env = &Environment{
		FtpAddr:        withDefault(getenv("FTP_SERVER_ADDR"), ":21"),
		FtpServerIPv4:  getenv("FTP_SERVER_IPV4"),
		WelcomeMessage: getenv("FTP_WELCOME"),
		Storage:        strings.ToLower(withDefault(getenv("FTP_STORAGE"), StorageLocal)),
		FtpServerRoot:  withDefault(getenv("FTP_SERVER_ROOT"), "."),
		SftpAddr:       getenv("SFTP_ADDR"),
		SftpUser:       getenv("SFTP_USER"),
		SftpPass:       getenv("SFTP_PASS"),
		SftpKeyFile:    getenv("SFTP_KEY_FILE"),
		SftpKeyType:    strings.ToLower(withDefault(getenv("SFTP_KEY_TYPE"), keys.TypeED25519)),
		SftpHostKey:    getenv("SFTP_HOST_KEY"),
		SftpRoot:       withDefault(getenv("SFTP_ROOT"), "/"),
		UsersFile:      getenv("FTP_USERS_FILE"),
		DefaultUser:    getenv("FTP_DEFAULT_USER"),
		DefaultPass:    getenv("FTP_DEFAULT_PASS"),
	}
	for _, ip := range strings.Split(getenv("FTP_DEFAULT_IP"), ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			env.DefaultIPs = append(env.DefaultIPs, ip)
		}
	}

	var errs *multierror.Error
	env.PasvMinPort, err = intEnv(getenv, "PASV_MIN_PORT")
	errs = multierror.Append(errs, err)
	env.PasvMaxPort, err = intEnv(getenv, "PASV_MAX_PORT")
	errs = multierror.Append(errs, err)
	env.IdleTimeout, err = durationEnv(getenv, "FTP_IDLE_TIMEOUT")
	errs = multierror.Append(errs, err)
	env.DataTimeout, err = durationEnv(getenv, "FTP_DATA_TIMEOUT")
	errs = multierror.Append(errs, err)
	if v := getenv("SFTP_INSECURE"); v != "" {
		env.SftpInsecure, err = strconv.ParseBool(v)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("SFTP_INSECURE: %w", err))
		}
	}
	errs = multierror.Append(errs, env.validate())
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	logger.Debug("FTP_SERVER_ADDR is", "ADDR", env.FtpAddr)
	logger.Debug("FTP_SERVER_IPV4 is", "IP", env.FtpServerIPv4)
	logger.Debug("PASV ports are", "min", env.PasvMinPort, "max", env.PasvMaxPort)
	logger.Debug("FTP_STORAGE is", "storage", env.Storage)
	logger.Debug("FTP_SERVER_ROOT is", "ROOT", env.FtpServerRoot)
	logger.Debug("FTP_USERS_FILE is", "file", env.UsersFile)
	return env, nil
}

func (env *Environment) validate() error {
	var errs *multierror.Error
	for name, port := range map[string]int{"PASV_MIN_PORT": env.PasvMinPort, "PASV_MAX_PORT": env.PasvMaxPort} {
		if port < 0 || port > 65535 {
			errs = multierror.Append(errs, fmt.Errorf("%s: %d is not a port", name, port))
		}
	}
	if env.PasvMaxPort != 0 && env.PasvMaxPort < env.PasvMinPort {
		errs = multierror.Append(errs, fmt.Errorf("PASV_MAX_PORT %d is below PASV_MIN_PORT %d", env.PasvMaxPort, env.PasvMinPort))
	}
	switch env.Storage {
	case StorageLocal, StorageMemory:
	case StorageSFTP:
		if env.SftpAddr == "" || env.SftpUser == "" {
			errs = multierror.Append(errs, errors.New("sftp storage needs SFTP_ADDR and SFTP_USER"))
		}
		if env.SftpPass == "" && env.SftpKeyFile == "" {
			errs = multierror.Append(errs, errors.New("sftp storage needs SFTP_PASS or SFTP_KEY_FILE"))
		}
		if env.SftpKeyType != keys.TypeED25519 && env.SftpKeyType != keys.TypeRSA {
			errs = multierror.Append(errs, fmt.Errorf("SFTP_KEY_TYPE: unknown key type %q", env.SftpKeyType))
		}
		if env.SftpHostKey == "" && !env.SftpInsecure {
			errs = multierror.Append(errs, errors.New("sftp storage needs SFTP_HOST_KEY or SFTP_INSECURE=true"))
		}
	default:
		errs = multierror.Append(errs, fmt.Errorf("FTP_STORAGE: unknown storage %q", env.Storage))
	}
	if env.UsersFile == "" && (env.DefaultUser == "" || env.DefaultPass == "") {
		errs = multierror.Append(errs, errors.New("set FTP_USERS_FILE or FTP_DEFAULT_USER and FTP_DEFAULT_PASS"))
	}
	return errs.ErrorOrNil()
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intEnv(getenv func(string) string, name string) (int, error) {
	v := getenv(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

func durationEnv(getenv func(string) string, name string) (time.Duration, error) {
	v := getenv(name)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}
