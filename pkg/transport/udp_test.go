package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestNewUDP(t *testing.T) {
	t.Run("listen", func(t *testing.T) {
		u, err := NewUDP(UDPConfig{ListenAddr: "127.0.0.1:0"})
		if err != nil {
			t.Fatalf("NewUDP() error = %v", err)
		}
		defer u.Close()

		if u.LocalAddr() == nil {
			t.Error("LocalAddr() is nil")
		}
		if u.Peer() != nil {
			t.Errorf("Peer() = %v, want nil", u.Peer())
		}
	})

	t.Run("with injected conn", func(t *testing.T) {
		conn, err := net.ListenPacket("udp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("ListenPacket() error = %v", err)
		}

		u, err := NewUDP(UDPConfig{Conn: conn})
		if err != nil {
			t.Fatalf("NewUDP() error = %v", err)
		}
		defer u.Close()

		if u.conn != conn {
			t.Error("NewUDP() did not use injected conn")
		}
	})
}

func TestUDPSendWithoutPeer(t *testing.T) {
	u, err := NewUDP(UDPConfig{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("NewUDP() error = %v", err)
	}
	defer u.Close()

	if err := u.Send([]byte{0x03}); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("Send() error = %v, want ErrInvalidAddress", err)
	}
}

func TestUDPRoundtrip(t *testing.T) {
	device, err := NewUDP(UDPConfig{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("NewUDP() error = %v", err)
	}
	defer device.Close()

	provisioner, err := DialUDP(device.LocalAddr().String(), nil)
	if err != nil {
		t.Fatalf("DialUDP() error = %v", err)
	}
	defer provisioner.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	invite := []byte{0x03, 0x00, 0x00}
	if err := provisioner.Send(invite); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got, err := device.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if !bytes.Equal(got, invite) {
		t.Errorf("Receive() = %x, want %x", got, invite)
	}
	// The dialer binds the wildcard address, so only the port identifies it.
	learned, ok := device.Peer().(*net.UDPAddr)
	if !ok || learned.Port != provisioner.LocalAddr().(*net.UDPAddr).Port {
		t.Errorf("device learned peer %v, want port of %v", device.Peer(), provisioner.LocalAddr())
	}

	reply := []byte{0x03, 0x01, 0x01, 0x00, 0x01, 0, 0, 0, 0, 0, 0, 0, 0}
	if err := device.Send(reply); err != nil {
		t.Fatalf("device Send() error = %v", err)
	}
	got, err = provisioner.Receive(ctx)
	if err != nil {
		t.Fatalf("provisioner Receive() error = %v", err)
	}
	if !bytes.Equal(got, reply) {
		t.Errorf("Receive() = %x, want %x", got, reply)
	}
}

func TestUDPDropsUnknownPeer(t *testing.T) {
	device, err := NewUDP(UDPConfig{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("NewUDP() error = %v", err)
	}
	defer device.Close()

	first, err := DialUDP(device.LocalAddr().String(), nil)
	if err != nil {
		t.Fatalf("DialUDP() error = %v", err)
	}
	defer first.Close()
	second, err := DialUDP(device.LocalAddr().String(), nil)
	if err != nil {
		t.Fatalf("DialUDP() error = %v", err)
	}
	defer second.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := first.Send([]byte("first")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got, err := device.Receive(ctx); err != nil || string(got) != "first" {
		t.Fatalf("Receive() = %q, %v", got, err)
	}

	if err := second.Send([]byte("intruder")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := first.Send([]byte("again")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got, err := device.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if string(got) != "again" {
		t.Errorf("Receive() = %q, want %q", got, "again")
	}
}

func TestUDPClose(t *testing.T) {
	u, err := NewUDP(UDPConfig{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("NewUDP() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := u.Receive(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	u.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Receive() error = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive() did not return after Close")
	}

	if err := u.Send([]byte{0x03}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send() after Close error = %v, want ErrClosed", err)
	}
	if err := u.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
