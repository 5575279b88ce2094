package tunnel

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	ncerr "tlscat/internal/errors"
	"tlscat/util"
)

func TestParseJump(t *testing.T) {
	tests := []struct {
		spec     string
		wantUser string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"bastion", "me", "bastion", 22, false},
		{"ops@bastion", "ops", "bastion", 22, false},
		{"ops@bastion:2222", "ops", "bastion", 2222, false},
		{"[::1]:2200", "me", "::1", 2200, false},
		{"bastion:0", "", "", 0, true},
		{"bastion:ssh", "", "", 0, true},
		{"@bastion", "", "", 0, true},
		{"ops@", "", "", 0, true},
		{"", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			cfg, err := ParseJump(tt.spec, "me")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseJump(%q) = %+v, want error", tt.spec, cfg)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseJump(%q): %v", tt.spec, err)
			}
			if cfg.User != tt.wantUser || cfg.Host != tt.wantHost || cfg.Port != tt.wantPort {
				t.Errorf("got %s@%s:%d, want %s@%s:%d",
					cfg.User, cfg.Host, cfg.Port, tt.wantUser, tt.wantHost, tt.wantPort)
			}
		})
	}
}

// ── in-process jump host ─────────────────────────────────────────────

type directTCPIP struct {
	Host     string
	Port     uint32
	OrigHost string
	OrigPort uint32
}

// startJumpServer runs an SSH server that accepts only authorized and
// forwards direct-tcpip channels.
func startJumpServer(t *testing.T, authorized ssh.PublicKey) (host string, port int) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, fmt.Errorf("key rejected")
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go serveJump(c, cfg)
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func serveJump(c net.Conn, cfg *ssh.ServerConfig) {
	sconn, chans, reqs, err := ssh.NewServerConn(c, cfg)
	if err != nil {
		c.Close()
		return
	}
	defer sconn.Close()

	go func() {
		for req := range reqs {
			if req.WantReply {
				req.Reply(req.Type == "keepalive@openssh.com", nil) //nolint:errcheck
			}
		}
	}()

	for nc := range chans {
		if nc.ChannelType() != "direct-tcpip" {
			nc.Reject(ssh.UnknownChannelType, "unsupported") //nolint:errcheck
			continue
		}
		var p directTCPIP
		if err := ssh.Unmarshal(nc.ExtraData(), &p); err != nil {
			nc.Reject(ssh.ConnectionFailed, err.Error()) //nolint:errcheck
			continue
		}
		target, err := net.Dial("tcp", net.JoinHostPort(p.Host, strconv.Itoa(int(p.Port))))
		if err != nil {
			nc.Reject(ssh.ConnectionFailed, err.Error()) //nolint:errcheck
			continue
		}
		ch, creqs, err := nc.Accept()
		if err != nil {
			target.Close()
			continue
		}
		go ssh.DiscardRequests(creqs)
		go func() { io.Copy(ch, target); ch.Close() }()     //nolint:errcheck
		go func() { io.Copy(target, ch); target.Close() }() //nolint:errcheck
	}
}

func startEcho(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				io.Copy(c, c) //nolint:errcheck
			}()
		}
	}()
	return ln.Addr().String()
}

func testSigner(t *testing.T) ssh.Signer {
	t.Helper()
	s, err := ssh.ParsePrivateKey(testKey(t))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestJumpHost_DialThrough(t *testing.T) {
	host, port := startJumpServer(t, testSigner(t).PublicKey())
	echo := startEcho(t)

	j := NewJumpHost(&JumpConfig{
		User:      "tester",
		Host:      host,
		Port:      port,
		KeyPath:   writeTestKey(t),
		KeepAlive: 20 * time.Millisecond,
	}, util.NewLogger(0))
	if err := j.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer j.Close()
	if !j.IsAlive() {
		t.Fatal("jump host should be alive")
	}

	conn, err := j.Dial(context.Background(), "tcp", echo)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// An expired read deadline is reported and leaves the conn usable.
	conn.SetReadDeadline(time.Now().Add(30 * time.Millisecond)) //nolint:errcheck
	if _, err := conn.Read(make([]byte, 1)); !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("read before data = %v, want deadline exceeded", err)
	}
	conn.SetReadDeadline(time.Time{}) //nolint:errcheck

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "ping" {
		t.Errorf("echo = %q, want ping", buf)
	}

	time.Sleep(60 * time.Millisecond) // let a few keepalives run
	if !j.IsAlive() {
		t.Error("keepalive should not drop a healthy jump host")
	}

	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if j.IsAlive() {
		t.Error("closed jump host reported alive")
	}
	if _, err := j.Dial(context.Background(), "tcp", echo); !errors.Is(err, ncerr.ErrTunnelClosed) {
		t.Errorf("dial after close = %v, want ErrTunnelClosed", err)
	}
}

func TestJumpHost_RejectedKey(t *testing.T) {
	_, other, _ := ed25519.GenerateKey(rand.Reader)
	otherSigner, err := ssh.NewSignerFromKey(other)
	if err != nil {
		t.Fatal(err)
	}
	host, port := startJumpServer(t, otherSigner.PublicKey())

	j := NewJumpHost(&JumpConfig{
		User: "tester", Host: host, Port: port,
		KeyPath:  writeTestKey(t),
		Attempts: 3,
	}, util.NewLogger(0))

	start := time.Now()
	err = j.Connect(context.Background())
	var sshErr *ncerr.SSHError
	if !errors.As(err, &sshErr) {
		t.Fatalf("err = %v, want SSHError", err)
	}
	if sshErr.Op != "auth" || !errors.Is(err, ncerr.ErrAuthFailed) {
		t.Errorf("err = %v, want auth failure", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("authentication failure should not be retried")
	}
}

func TestJumpHost_HostKeyMismatch(t *testing.T) {
	host, port := startJumpServer(t, testSigner(t).PublicKey())

	// known_hosts pins some other key for the jump host
	_, other, _ := ed25519.GenerateKey(rand.Reader)
	otherSigner, err := ssh.NewSignerFromKey(other)
	if err != nil {
		t.Fatal(err)
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	kh := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(addr)}, otherSigner.PublicKey())
	if err := os.WriteFile(kh, []byte(line+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	j := NewJumpHost(&JumpConfig{
		User: "tester", Host: host, Port: port,
		KeyPath:       writeTestKey(t),
		StrictHostKey: true,
		KnownHosts:    kh,
	}, util.NewLogger(0))

	err = j.Connect(context.Background())
	if !errors.Is(err, ncerr.ErrHostKeyMismatch) {
		t.Fatalf("err = %v, want ErrHostKeyMismatch", err)
	}
	var sshErr *ncerr.SSHError
	if !errors.As(err, &sshErr) || sshErr.Op != "hostkey" {
		t.Errorf("err = %v, want hostkey SSHError", err)
	}
	if j.IsAlive() {
		t.Error("rejected jump host reported alive")
	}
}

func TestJumpHost_DialBeforeConnect(t *testing.T) {
	j := NewJumpHost(&JumpConfig{Host: "127.0.0.1"}, util.NewLogger(0))
	if _, err := j.Dial(context.Background(), "tcp", "127.0.0.1:1"); !errors.Is(err, ncerr.ErrTunnelClosed) {
		t.Errorf("err = %v, want ErrTunnelClosed", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("Close on idle jump host: %v", err)
	}
}
