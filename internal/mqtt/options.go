package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/ktwin/mqtt-bridge/internal/config"
	"github.com/ktwin/mqtt-bridge/internal/util"
)

// TLSOptions holds TLS configuration for brokers behind ssl:// or tls://.
type TLSOptions struct {
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

type Options struct {
	Brokers        []string
	ClientID       string
	Username       string
	Password       string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	AutoReconnect  bool
	ConnectRetry   bool
	TLS            *TLSOptions
}

func OptionsFromConfig(cfg config.MQTTConfig) Options {
	o := Options{
		Brokers:        cfg.Brokers,
		ClientID:       cfg.ClientID,
		Username:       cfg.Username,
		Password:       cfg.Password,
		KeepAlive:      cfg.KeepAlive,
		ConnectTimeout: cfg.ConnectTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		AutoReconnect:  cfg.AutoReconnect,
		ConnectRetry:   cfg.ConnectRetry,
	}
	if cfg.TLS.Enabled {
		o.TLS = &TLSOptions{
			CAFile:             cfg.TLS.CAFile,
			CertFile:           cfg.TLS.CertFile,
			KeyFile:            cfg.TLS.KeyFile,
			ServerName:         cfg.TLS.ServerName,
			InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
		}
	}
	return o
}

func (o Options) pahoOptions() (*paho.ClientOptions, error) {
	if len(o.Brokers) == 0 {
		return nil, fmt.Errorf("no broker configured")
	}

	opts := paho.NewClientOptions()
	for _, b := range o.Brokers {
		u, err := url.Parse(strings.TrimSpace(b))
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid broker url %q", b)
		}
		opts.AddBroker(u.String())
	}

	clientID := o.ClientID
	if clientID == "" {
		clientID = util.NewClientID("mqtt-bridge")
	}
	opts.SetClientID(clientID)

	if o.Username != "" {
		opts.SetUsername(o.Username)
	}
	if o.Password != "" {
		opts.SetPassword(o.Password)
	}
	if o.KeepAlive > 0 {
		opts.SetKeepAlive(o.KeepAlive)
	}
	if o.ConnectTimeout > 0 {
		opts.SetConnectTimeout(o.ConnectTimeout)
	}
	if o.WriteTimeout > 0 {
		opts.SetWriteTimeout(o.WriteTimeout)
	}
	if o.TLS != nil {
		tlsCfg, err := createTLSConfig(o.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.SetCleanSession(true)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(o.AutoReconnect)
	opts.SetConnectRetry(o.ConnectRetry)

	return opts, nil
}

func createTLSConfig(o *TLSOptions) (*tls.Config, error) {
	cfg := &tls.Config{
		InsecureSkipVerify: o.InsecureSkipVerify,
		ServerName:         o.ServerName,
		MinVersion:         tls.VersionTLS12,
	}

	if o.CAFile != "" {
		pem, err := os.ReadFile(o.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		cfg.RootCAs = pool
	}

	if o.CertFile != "" || o.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(o.CertFile, o.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}
