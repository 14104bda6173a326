// Package users is the authenticator collaborator of the FTP engine.
package users

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrUserExists is returned by Add when the username is taken.
var ErrUserExists = errors.New("user already exists")

// Authenticator checks credentials. A rejected login is (false, nil), an error
// means the check itself could not be done.
type Authenticator interface {
	Authenticate(username, password string) (bool, error)
}

// AddrAuthenticator is implemented by authenticators that also restrict where
// a user may log in from. The FTP engine prefers it over Authenticate.
type AddrAuthenticator interface {
	Authenticator
	AuthenticateAddr(username, password string, remote net.Addr) (bool, error)
}

type User struct {
	Username     string
	PasswordHash []byte
	// IPs are the prefixes the user may connect from, empty allows any address.
	IPs map[string]netip.Prefix
}

// FindIP reports whether ip is inside one of the user's prefixes.
func (u *User) FindIP(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, v := range u.IPs {
		if v.Contains(addr) {
			return true
		}
	}
	return false
}

// AddIP adds an IP prefix to the user
// if the ip is without the prefix, it is a single host
func (u *User) AddIP(ip string) error {
	prefix, err := parsePrefix(ip)
	if err != nil {
		return err
	}
	if u.IPs == nil {
		u.IPs = make(map[string]netip.Prefix)
	}
	u.IPs[prefix.String()] = prefix
	return nil
}

func parsePrefix(ip string) (netip.Prefix, error) {
	if !strings.Contains(ip, "/") {
		addr, err := netip.ParseAddr(ip)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("error parsing IP: %w", err)
		}
		return netip.PrefixFrom(addr, addr.BitLen()), nil
	}
	prefix, err := netip.ParsePrefix(ip)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("error parsing IP: %w", err)
	}
	return prefix.Masked(), nil
}

var _ AddrAuthenticator = &LocalUsers{}

// LocalUsers is an in-memory user table with bcrypt password hashes.
type LocalUsers struct {
	users map[string]*User
	mu    sync.RWMutex
	cost  int

	// dummyHash is compared for unknown users, so a miss costs as much as a wrong password.
	dummyOnce sync.Once
	dummyHash []byte
}

func NewLocalUsers() *LocalUsers {
	return &LocalUsers{
		users: make(map[string]*User),
		cost:  bcrypt.DefaultCost,
	}
}

// SetCost sets the bcrypt cost used by Add.
func (u *LocalUsers) SetCost(cost int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cost = cost
}

// Add hashes pass and adds the user.
func (u *LocalUsers) Add(user, pass string) (*User, error) {
	u.mu.RLock()
	cost := u.cost
	u.mu.RUnlock()

	hash, err := bcrypt.GenerateFromPassword([]byte(pass), cost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}
	return u.AddHash(user, hash)
}

// AddHash adds a user whose password is already a bcrypt hash.
func (u *LocalUsers) AddHash(user string, hash []byte) (*User, error) {
	if user == "" {
		return nil, errors.New("empty username")
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.users[user]; ok {
		return nil, fmt.Errorf("%s: %w", user, ErrUserExists)
	}
	newUser := &User{
		Username:     user,
		PasswordHash: hash,
		IPs:          make(map[string]netip.Prefix),
	}
	u.users[user] = newUser
	return newUser, nil
}

func (u *LocalUsers) Remove(user string) *User {
	u.mu.Lock()
	defer u.mu.Unlock()
	oldUser := u.users[user]
	delete(u.users, user)
	return oldUser
}

// Get finds a user by username
func (u *LocalUsers) Get(username string) (*User, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	user, ok := u.users[username]
	return user, ok
}

// List returns the sorted usernames.
func (u *LocalUsers) List() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	names := make([]string, 0, len(u.users))
	for name := range u.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Authenticate checks username and password.
func (u *LocalUsers) Authenticate(username, password string) (bool, error) {
	user, ok := u.Get(username)
	if !ok {
		bcrypt.CompareHashAndPassword(u.dummy(), []byte(password))
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("error checking password of %s: %w", username, err)
	}
}

func (u *LocalUsers) dummy() []byte {
	u.dummyOnce.Do(func() {
		u.mu.RLock()
		cost := u.cost
		u.mu.RUnlock()
		u.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("no such user"), cost)
	})
	return u.dummyHash
}

// AuthenticateAddr checks the credentials and that remote is allowed for the user.
func (u *LocalUsers) AuthenticateAddr(username, password string, remote net.Addr) (bool, error) {
	ok, err := u.Authenticate(username, password)
	if !ok || err != nil {
		return ok, err
	}
	user, _ := u.Get(username)
	if len(user.IPs) == 0 {
		return true, nil
	}
	host, _, err := net.SplitHostPort(remote.String())
	if err != nil {
		host = remote.String()
	}
	return user.FindIP(host), nil
}
