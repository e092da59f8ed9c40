// Copyright (c) 2021-2026 Rustam Gilyazov and Contributors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package chdb

// In this file: connection configuration, validation and the mapping onto
// clickhouse-go client options.

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
)

// Protocol is the wire protocol used to talk to the ClickHouse server.
type Protocol string

const (
	// ProtocolNative is the ClickHouse native TCP protocol (default).
	ProtocolNative Protocol = "native"
	// ProtocolHTTP is the ClickHouse HTTP interface.
	ProtocolHTTP Protocol = "http"
)

// String implements flag.Value.
func (p Protocol) String() string {
	return string(p)
}

// Set implements flag.Value, so that Protocol can be used as a command line
// flag variable.
func (p *Protocol) Set(v string) error {
	switch strings.ToLower(v) {
	case string(ProtocolNative), "tcp": // "tcp" is an alias some clients use
		*p = ProtocolNative
	case string(ProtocolHTTP):
		*p = ProtocolHTTP
	default:
		return fmt.Errorf("unknown protocol %q (must be %q or %q)", v, ProtocolNative, ProtocolHTTP)
	}
	return nil
}

// Default ports per protocol.  A Port of zero in the Config means "use the
// default for the protocol", which depends on whether TLS is enabled.
const (
	defPortNative       = 9000
	defPortNativeSecure = 9440
	defPortHTTP         = 8123
	defPortHTTPSecure   = 8443
)

const (
	// DefConnectTimeout is the default dial timeout.
	DefConnectTimeout = 10 * time.Second
	// DefMaxExecutionTime is the default cap on server-side query execution
	// time.  Zero disables the cap, leaving the server default in effect.
	DefMaxExecutionTime = 30 * time.Second
)

// Config holds the ClickHouse connection parameters.  It is populated once at
// startup (flags with environment defaults) and is read-only afterwards.
type Config struct {
	Host     string   `validate:"required"`
	Port     int      `validate:"min=0,lte=65535"` // 0 = protocol default
	Database string   // empty = server default
	Username string   `validate:"required"`
	Password string
	Protocol Protocol `validate:"oneof=native http"`

	// TLS settings.  Secure enables TLS; Verify controls server certificate
	// verification.  CACert, ClientCert and ClientKey are paths to PEM files.
	Secure     bool
	Verify     bool
	CACert     string `validate:"omitempty,file"`
	ClientCert string `validate:"omitempty,file"`
	ClientKey  string `validate:"required_with=ClientCert,omitempty,file"`

	ConnectTimeout   time.Duration `validate:"min=0"`
	MaxExecutionTime time.Duration `validate:"min=0"`

	// ReadOnly makes every query run with the readonly=1 setting, rejecting
	// DDL and DML server-side.
	ReadOnly bool

	// RatePerMin caps query admission at this many queries per minute.
	// Zero means unlimited.
	RatePerMin int `validate:"min=0"`
}

// DefaultConfig returns the configuration defaults.  These match the
// documented environment variable defaults.
func DefaultConfig() Config {
	return Config{
		Host:             "127.0.0.1",
		Port:             0,
		Username:         "default",
		Protocol:         ProtocolNative,
		Verify:           true,
		ConnectTimeout:   DefConnectTimeout,
		MaxExecutionTime: DefMaxExecutionTime,
		ReadOnly:         true,
	}
}

var (
	validate = validator.New()

	// ErrTranslations is the english translations for the validation errors,
	// for presenting them to the user.
	ErrTranslations ut.Translator
)

func init() {
	english := en.New()
	uni := ut.New(english, english)
	var ok bool
	ErrTranslations, ok = uni.GetTranslator("en")
	if !ok {
		panic("internal error: failed to init translator")
	}
	if err := entranslations.RegisterDefaultTranslations(validate, ErrTranslations); err != nil {
		panic(fmt.Sprintf("internal error: failed to register translations: %s", err))
	}
}

// Validate validates the configuration.  On failure it returns a
// validator.ValidationErrors which the caller may translate with
// ErrTranslations.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// ExplainErr returns human-readable messages for a validation error returned
// by Validate.  Any other error yields its text verbatim.
func ExplainErr(err error) []string {
	var vErr validator.ValidationErrors
	if !errors.As(err, &vErr) {
		return []string{err.Error()}
	}
	msgs := make([]string, 0, len(vErr))
	for _, fe := range vErr {
		msgs = append(msgs, fe.Translate(ErrTranslations))
	}
	return msgs
}

// port returns the configured port, or the protocol default if the port is
// zero.
func (c *Config) port() int {
	if c.Port != 0 {
		return c.Port
	}
	if c.Protocol == ProtocolHTTP {
		if c.Secure {
			return defPortHTTPSecure
		}
		return defPortHTTP
	}
	if c.Secure {
		return defPortNativeSecure
	}
	return defPortNative
}

// Addr returns the host:port address of the server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.port()))
}

// DSN returns a display form of the connection target with the password
// redacted.  It must never leak credentials into logs.
func (c *Config) DSN() string {
	var sb strings.Builder
	sb.WriteString("clickhouse://")
	if c.Username != "" {
		sb.WriteString(c.Username)
		if c.Password != "" {
			sb.WriteString(":***")
		}
		sb.WriteString("@")
	}
	sb.WriteString(c.Addr())
	sb.WriteString("/")
	sb.WriteString(c.Database)
	return sb.String()
}

// options maps the Config onto clickhouse-go client options.  It does not
// dial.
func (c *Config) options() (*clickhouse.Options, error) {
	opts := &clickhouse.Options{
		Addr: []string{c.Addr()},
		Auth: clickhouse.Auth{
			Database: c.Database,
			Username: c.Username,
			Password: c.Password,
		},
		DialTimeout: c.ConnectTimeout,
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{
				{Name: clientProduct, Version: productVersion()},
			},
		},
	}
	switch c.Protocol {
	case ProtocolHTTP:
		opts.Protocol = clickhouse.HTTP
	case ProtocolNative, "":
		opts.Protocol = clickhouse.Native
		opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	default:
		return nil, fmt.Errorf("unknown protocol %q", c.Protocol)
	}
	tc, err := c.tlsConfig()
	if err != nil {
		return nil, err
	}
	opts.TLS = tc
	return opts, nil
}

// tlsConfig builds the TLS configuration, or returns nil if TLS is disabled.
func (c *Config) tlsConfig() (*tls.Config, error) {
	if !c.Secure {
		return nil, nil
	}
	t := &tls.Config{
		InsecureSkipVerify: !c.Verify,
	}
	if c.CACert != "" {
		pem, err := os.ReadFile(c.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %q", c.CACert)
		}
		t.RootCAs = pool
	}
	if c.ClientCert != "" {
		cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		t.Certificates = []tls.Certificate{cert}
	}
	return t, nil
}
