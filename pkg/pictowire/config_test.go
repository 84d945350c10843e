package pictowire

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.PeerAddr != "127.0.0.1" {
		t.Fatalf("got PeerAddr %q", c.PeerAddr)
	}
	if c.SendPort != 5008 || c.RecvPort != 5007 {
		t.Fatalf("got ports %d/%d", c.SendPort, c.RecvPort)
	}
	if c.GridRows != 6 || c.GridCols != 8 {
		t.Fatalf("got grid %dx%d", c.GridRows, c.GridCols)
	}
	if c.MaxContentLength != 115167 {
		t.Fatalf("got MaxContentLength %d", c.MaxContentLength)
	}
	if c.LogLevel != zerolog.InfoLevel {
		t.Fatalf("got LogLevel %v", c.LogLevel)
	}
}

func TestUnmarshalEnvOverridesDefaults(t *testing.T) {
	var c Config
	err := c.UnmarshalEnv([]string{
		"PICTOWIRE_PEER_ADDR=10.0.0.5",
		"PICTOWIRE_SEND_PORT=9001",
		"PICTOWIRE_LOG_PRETTY=false",
	}, false)
	if err != nil {
		t.Fatal(err)
	}
	if c.PeerAddr != "10.0.0.5" {
		t.Fatalf("got PeerAddr %q", c.PeerAddr)
	}
	if c.SendPort != 9001 {
		t.Fatalf("got SendPort %d", c.SendPort)
	}
	if c.LogPretty {
		t.Fatal("expected LogPretty=false override to take effect")
	}
	// untouched fields still get their defaults
	if c.RecvPort != 5007 {
		t.Fatalf("got RecvPort %d", c.RecvPort)
	}
}

func TestUnmarshalEnvIncrementalLeavesUnsetFieldsAlone(t *testing.T) {
	c := DefaultConfig()
	c.PeerAddr = "existing"
	err := c.UnmarshalEnv([]string{"PICTOWIRE_SEND_PORT=1234"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if c.PeerAddr != "existing" {
		t.Fatalf("incremental update should not reset PeerAddr, got %q", c.PeerAddr)
	}
	if c.SendPort != 1234 {
		t.Fatalf("got SendPort %d", c.SendPort)
	}
}

func TestUnmarshalEnvRejectsUnknownVariable(t *testing.T) {
	var c Config
	err := c.UnmarshalEnv([]string{"PICTOWIRE_NOT_A_REAL_FIELD=x"}, false)
	if err == nil {
		t.Fatal("expected error for unknown environment variable")
	}
}
