// Copyright (c) 2012-2014 Jeremy Latt
// Copyright (c) 2014-2015 Edmund Huber
// Copyright (c) 2016-2017 Daniel Oaks <daniel@danieloaks.net>
// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package irc

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"strconv"

	"code.cloudfoundry.org/bytefmt"
	"github.com/ergochat/irc-go/ircutils"
	"gopkg.in/yaml.v2"

	"github.com/ergochat/bouncer/irc/jwt"
	"github.com/ergochat/bouncer/irc/logger"
	"github.com/ergochat/bouncer/irc/transport"
)

const (
	defaultServerName = "irc.proxy"
	defaultQueueSize  = 16
	defaultNick       = "testtest"
	defaultUser       = "test"
	defaultRealname   = "test"

	defaultHistoryLength = 1024

	// RFC 1459 line limit, including the CRLF
	minLineBytes = 512
)

// TLSListenConfig defines configuration options for listening on TLS.
type TLSListenConfig struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

// Config returns the TLS configuration associated with this TLSListenConfig.
func (conf *TLSListenConfig) Config() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(conf.Cert, conf.Key)
	if err != nil {
		return nil, ErrInvalidCertKeyPair
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
	}, err
}

// OriginConfig describes the upstream session.
type OriginConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  struct {
		Enabled            bool   `yaml:"enabled"`
		ServerName         string `yaml:"server-name"`
		InsecureSkipVerify bool   `yaml:"insecure-skip-verify"`
	} `yaml:"tls"`
	Nick                string   `yaml:"nick"`
	User                string   `yaml:"user"`
	Realname            string   `yaml:"realname"`
	Password            string   `yaml:"password"`
	Autojoin            []string `yaml:"autojoin"`
	MaxLineLengthString string   `yaml:"max-line-length"`

	maxLineBytes int
}

// Address is the host:port to dial.
func (conf *OriginConfig) Address() string {
	return net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port))
}

// TLSConfig returns nil if the origin is plaintext.
func (conf *OriginConfig) TLSConfig() *tls.Config {
	if !conf.TLS.Enabled {
		return nil
	}
	serverName := conf.TLS.ServerName
	if serverName == "" {
		serverName = conf.Host
	}
	return &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: conf.TLS.InsecureSkipVerify,
	}
}

// ServerConfig describes the downstream listeners.
type ServerConfig struct {
	Name                    string           `yaml:"name"`
	Listen                  string           `yaml:"listen"`
	WebsocketListen         string           `yaml:"websocket-listen"`
	WebsocketAllowedOrigins []string         `yaml:"websocket-allowed-origins"`
	TLS                     *TLSListenConfig `yaml:"tls"`
	QueueSize               int              `yaml:"queue-size"`
	MaxLineLengthString     string           `yaml:"max-line-length"`

	maxLineBytes int
	tlsConfig    *tls.Config
	// the session nick, used as the target of numerics sent downstream
	nick string
}

// APIConfig describes the HTTP control interface.
type APIConfig struct {
	Enabled      bool              `yaml:"enabled"`
	Listen       string            `yaml:"listen"`
	BearerTokens []string          `yaml:"bearer-tokens"`
	JWT          jwt.JWTAuthConfig `yaml:"jwt"`
	QueueSize    int               `yaml:"queue-size"`

	bearerTokenBytes [][]byte
}

// HistoryConfig describes the in-memory history recorder.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`
	Length  int  `yaml:"length"`
}

// BufferLength is the size of history buffer to keep; 0 disables recording.
func (conf *HistoryConfig) BufferLength() int {
	if !conf.Enabled {
		return 0
	}
	return conf.Length
}

// Config defines the overall configuration.
type Config struct {
	Origin   OriginConfig           `yaml:"origin"`
	Server   ServerConfig           `yaml:"server"`
	API      APIConfig              `yaml:"api"`
	History  HistoryConfig          `yaml:"history"`
	LockFile string                 `yaml:"lock-file"`
	Logging  []logger.LoggingConfig `yaml:"logging"`

	Filename string `yaml:"-"`
}

// DefaultConfig is the configuration used when no file is given; the caller
// still has to supply the origin and the listening address.
func DefaultConfig() *Config {
	config := &Config{}
	config.Origin.Nick = defaultNick
	config.Origin.User = defaultUser
	config.Origin.Realname = defaultRealname
	config.Server.Name = defaultServerName
	config.Server.QueueSize = defaultQueueSize
	config.API.QueueSize = defaultQueueSize
	config.History.Enabled = true
	config.History.Length = defaultHistoryLength
	return config
}

// LoadConfig loads the given YAML configuration file over the defaults.
// The result must be postprocessed before use.
func LoadConfig(filename string) (config *Config, err error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	config = DefaultConfig()
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, err
	}

	config.Filename = filename
	return config, nil
}

// SetEndpoints applies the command-line origin and listening port, which
// take precedence over the configuration file.
func (config *Config) SetEndpoints(host string, port int, listenPort int) {
	config.Origin.Host = host
	config.Origin.Port = port
	config.Server.Listen = net.JoinHostPort("", strconv.Itoa(listenPort))
}

// Postprocess validates the configuration and fills in derived values.
func (config *Config) Postprocess() (err error) {
	if config.Origin.Host == "" {
		return ErrOriginHostMissing
	}
	if config.Origin.Port < 1 || config.Origin.Port > 65535 {
		return ErrOriginPortInvalid
	}
	if config.Origin.Nick == "" {
		return ErrOriginNickMissing
	}
	if config.Origin.User == "" {
		config.Origin.User = config.Origin.Nick
	}
	if config.Origin.Realname == "" {
		config.Origin.Realname = config.Origin.Nick
	}
	config.Origin.maxLineBytes, err = parseMaxLineLength(config.Origin.MaxLineLengthString)
	if err != nil {
		return err
	}

	if config.Server.Name == "" {
		return ErrServerNameMissing
	}
	if !ircutils.HostnameIsValid(config.Server.Name) {
		return ErrServerNameNotHostname
	}
	if config.Server.Listen == "" {
		return ErrNoListenersDefined
	}
	if config.Server.QueueSize < 1 {
		return ErrQueueSizeInvalid
	}
	config.Server.maxLineBytes, err = parseMaxLineLength(config.Server.MaxLineLengthString)
	if err != nil {
		return err
	}
	if config.Server.TLS != nil {
		config.Server.tlsConfig, err = config.Server.TLS.Config()
		if err != nil {
			return err
		}
	}
	config.Server.nick = config.Origin.Nick

	if config.API.Enabled {
		if config.API.Listen == "" {
			return ErrAPIListenerMissing
		}
		if len(config.API.BearerTokens) == 0 && !config.API.JWT.Enabled {
			return ErrAPINoCredentials
		}
		config.API.bearerTokenBytes = make([][]byte, len(config.API.BearerTokens))
		for i, token := range config.API.BearerTokens {
			config.API.bearerTokenBytes[i] = []byte(token)
		}
		if err = config.API.JWT.Postprocess(); err != nil {
			return fmt.Errorf("Could not load API JWT configuration: %w", err)
		}
		if config.API.QueueSize < 1 {
			return ErrQueueSizeInvalid
		}
	}

	if config.History.Length < 1 {
		config.History.Enabled = false
	}

	if len(config.Logging) == 0 {
		config.Logging = logger.DefaultConfig(logger.LogInfo)
	}
	for i := range config.Logging {
		if err = config.Logging[i].Postprocess(); err != nil {
			return err
		}
	}

	return nil
}

// parseMaxLineLength parses a size like "4k"; empty means the default.
func parseMaxLineLength(value string) (int, error) {
	if value == "" {
		return transport.DefaultMaxLineBytes, nil
	}
	maxBytes, err := bytefmt.ToBytes(value)
	if err != nil {
		return 0, fmt.Errorf("Could not parse max line length (make sure it only contains whole numbers): %w", err)
	}
	if maxBytes < minLineBytes {
		return 0, ErrLineLengthTooSmall
	}
	return int(maxBytes), nil
}
