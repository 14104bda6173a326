package ftp

import (
	"io"
	"strings"
	"testing"
	"time"

	ftpclient "github.com/jlaffaye/ftp"
	"golang.org/x/crypto/bcrypt"

	"github.com/telebroad/ftpengine/users"
)

func dialClient(t *testing.T, addr string) *ftpclient.ServerConn {
	t.Helper()
	c, err := ftpclient.Dial(addr, ftpclient.DialWithTimeout(5*time.Second), ftpclient.DialWithDisabledEPSV(true))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Quit() })
	return c
}

func TestClient_Session(t *testing.T) {
	srv := startServer(t, nil)
	c := dialClient(t, srv.addr)

	if err := c.Login("u", "wrong"); err == nil {
		t.Fatal("login with a wrong password succeeded")
	}
	if err := c.Login("u", "p"); err != nil {
		t.Fatal(err)
	}
	if err := c.NoOp(); err != nil {
		t.Fatal(err)
	}

	if err := c.MakeDir("reports"); err != nil {
		t.Fatal(err)
	}
	if err := c.MakeDir("empty"); err != nil {
		t.Fatal(err)
	}
	if err := c.Stor("reports/q1.csv", strings.NewReader("a,b\n1,2\n")); err != nil {
		t.Fatal(err)
	}

	entries, err := c.List("reports")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("List = %d entries", len(entries))
	}
	if e := entries[0]; e.Name != "q1.csv" || e.Type != ftpclient.EntryTypeFile || e.Size != 8 {
		t.Errorf("entry = %+v", e)
	}

	names, err := c.NameList("")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(names, ",") != "empty,reports" {
		t.Errorf("NameList = %v", names)
	}

	size, err := c.FileSize("reports/q1.csv")
	if err != nil {
		t.Fatal(err)
	}
	if size != 8 {
		t.Errorf("FileSize = %d", size)
	}

	r, err := c.Retr("reports/q1.csv")
	if err != nil {
		t.Fatal(err)
	}
	b, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "a,b\n1,2\n" {
		t.Errorf("Retr = %q", b)
	}

	if err := c.RemoveDir("empty"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Retr("missing.csv"); err == nil {
		t.Error("Retr of a missing file succeeded")
	}
	// the control connection is still usable after a failed command
	if err := c.NoOp(); err != nil {
		t.Fatal(err)
	}
}

func TestClient_AddrAuthenticator(t *testing.T) {
	table := users.NewLocalUsers()
	table.SetCost(bcrypt.MinCost)
	local, err := table.Add("local", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if err := local.AddIP("127.0.0.0/8"); err != nil {
		t.Fatal(err)
	}
	remote, err := table.Add("remote", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if err := remote.AddIP("198.51.100.0/24"); err != nil {
		t.Fatal(err)
	}

	srv := startServer(t, func(s *Server) { s.Authenticator = table })

	if err := dialClient(t, srv.addr).Login("local", "secret"); err != nil {
		t.Errorf("loopback user rejected: %v", err)
	}
	if err := dialClient(t, srv.addr).Login("remote", "secret"); err == nil {
		t.Error("user restricted to another network logged in")
	}
}
