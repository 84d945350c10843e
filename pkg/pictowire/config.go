package pictowire

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds everything an encrypted socket needs, all overridable via
// environment variables following the `env:"KEY=default"` /
// `env:"KEY?=default"` convention.
type Config struct {
	// PeerAddr is the remote peer's IP or hostname.
	PeerAddr string `env:"PICTOWIRE_PEER_ADDR=127.0.0.1"`

	// SendPort/RecvPort are the default port pair; the two Links within
	// one socket mirror these with the roles swapped.
	SendPort int `env:"PICTOWIRE_SEND_PORT=5008"`
	RecvPort int `env:"PICTOWIRE_RECV_PORT=5007"`

	// GridRows/GridCols size the tile grid each message is split into.
	GridRows int `env:"PICTOWIRE_GRID_ROWS=6"`
	GridCols int `env:"PICTOWIRE_GRID_COLS=8"`

	// MaxContentLength truncates oversize plaintext before encoding.
	MaxContentLength int `env:"PICTOWIRE_MAX_CONTENT_LENGTH=115167"`

	// CoverWidth/CoverHeight size the cover image fetched or synthesized
	// for each message.
	CoverWidth  int `env:"PICTOWIRE_COVER_WIDTH=640"`
	CoverHeight int `env:"PICTOWIRE_COVER_HEIGHT=480"`

	// CoverImageAPIEndpoint is a printf-style URL template (%d,%d for
	// width,height) for an external cover-image source. Empty disables it,
	// always falling back to a synthesized solid-colour image.
	CoverImageAPIEndpoint string `env:"PICTOWIRE_COVER_API_ENDPOINT?="`
	CoverImageAPIKey      string `env:"PICTOWIRE_COVER_API_KEY?="`

	// JournalPath is the sqlite3 file the session journal is stored in. If
	// empty, the journal is disabled.
	JournalPath string `env:"PICTOWIRE_JOURNAL_PATH?="`

	// MetricsAddr, if non-empty, is the address an HTTP /metrics endpoint
	// is served on.
	MetricsAddr string `env:"PICTOWIRE_METRICS_ADDR?="`

	// LogLevel is the minimum zerolog level to emit.
	LogLevel zerolog.Level `env:"PICTOWIRE_LOG_LEVEL=info"`

	// LogPretty selects zerolog's human-readable console writer over
	// plain JSON output.
	LogPretty bool `env:"PICTOWIRE_LOG_PRETTY=true"`

	// HandshakeTimeout bounds how long each worker, once its link is up,
	// waits for the peer's DH handshake frames before giving up.
	HandshakeTimeout time.Duration `env:"PICTOWIRE_HANDSHAKE_TIMEOUT=30s"`
}

// DefaultConfig returns a Config with every field set to its documented
// default, equivalent to UnmarshalEnv(nil, false).
func DefaultConfig() Config {
	var c Config
	if err := c.UnmarshalEnv(nil, false); err != nil {
		panic(fmt.Errorf("pictowire: build default config: %w", err))
	}
	return c
}

// UnmarshalEnv unmarshals environment variable assignments (as returned by
// os.Environ or a parsed env file) into c, applying each field's default
// when the corresponding variable is absent. If incremental is true,
// absent variables leave their current field value untouched instead of
// resetting to the default, so a partial override can be applied on top of
// an already-populated Config.
func (c *Config) UnmarshalEnv(env []string, incremental bool) error {
	em := map[string]string{}
	for _, e := range env {
		if strings.HasPrefix(e, "PICTOWIRE_") {
			if k, v, ok := strings.Cut(e, "="); ok {
				em[k] = v
			}
		}
	}

	cv := reflect.ValueOf(c).Elem()
	for _, ctf := range reflect.VisibleFields(cv.Type()) {
		tag, ok := ctf.Tag.Lookup("env")
		if !ok {
			continue
		}

		var unsettable bool
		key, def, _ := strings.Cut(tag, "=")
		if strings.HasSuffix(key, "?") {
			key = strings.TrimSuffix(key, "?")
			unsettable = true
		}

		val := def
		if v, exists := em[key]; exists {
			if unsettable || v != "" {
				val = v
			}
			delete(em, key)
		} else if incremental {
			continue
		}

		field := cv.FieldByName(ctf.Name)
		if err := setConfigField(field, key, val); err != nil {
			return err
		}
	}

	for key, val := range em {
		if val != "" {
			return fmt.Errorf("pictowire: unknown environment variable %q", key)
		}
	}
	return nil
}

func setConfigField(field reflect.Value, key, val string) error {
	switch field.Interface().(type) {
	case string:
		field.SetString(val)
	case int, int8, int16, int32, int64:
		if val == "" {
			field.SetInt(0)
			return nil
		}
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return fmt.Errorf("pictowire: env %s: parse %q: %w", key, val, err)
		}
		field.SetInt(n)
	case bool:
		if val == "" {
			field.SetBool(false)
			return nil
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("pictowire: env %s: parse %q: %w", key, val, err)
		}
		field.SetBool(b)
	case zerolog.Level:
		lvl, err := zerolog.ParseLevel(val)
		if err != nil {
			return fmt.Errorf("pictowire: env %s: parse %q: %w", key, val, err)
		}
		field.Set(reflect.ValueOf(lvl))
	case time.Duration:
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("pictowire: env %s: parse %q: %w", key, val, err)
		}
		field.Set(reflect.ValueOf(d))
	default:
		return fmt.Errorf("pictowire: env %s: unhandled field type %s", key, field.Type())
	}
	return nil
}
