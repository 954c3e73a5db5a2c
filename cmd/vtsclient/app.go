package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/codefionn/vtsclient/internal/client"
	"github.com/codefionn/vtsclient/internal/config"
	"github.com/codefionn/vtsclient/internal/events"
	"github.com/codefionn/vtsclient/internal/logger"
	"github.com/codefionn/vtsclient/internal/metrics"
	"github.com/codefionn/vtsclient/internal/mux"
	"github.com/codefionn/vtsclient/internal/retry"
	"github.com/codefionn/vtsclient/internal/secrets"
	"github.com/codefionn/vtsclient/internal/securemem"
	"github.com/codefionn/vtsclient/internal/tokenfile"
	"github.com/codefionn/vtsclient/internal/transport"
	"github.com/codefionn/vtsclient/internal/transport/coderws"
	"github.com/codefionn/vtsclient/internal/transport/gorillaws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const passwordEnv = "VTSCLIENT_TOKEN_PASSWORD"

// app is everything a command needs to talk to VTube Studio
type app struct {
	cfg     *config.Config
	client  *client.Client
	store   *tokenfile.Store
	metrics *metricsServer
	log     *logger.Logger

	// events is the client's event stream. Only set for commands that
	// stream events.
	events *events.Subscription

	// held while this process waits for the user to allow the plugin
	tokenLock *tokenfile.Lock
}

// setup loads the configuration, restores the stored token and builds the
// client. The caller must call close.
func setup(cmd *cobra.Command, stream bool) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	securemem.Init()

	a := &app{cfg: cfg, log: logger.Global().WithPrefix("cli")}

	a.store, err = openTokenStore(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	token, err := a.store.Load()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	icon, err := loadIcon(cfg.Plugin.IconPath)
	if err != nil {
		a.close()
		return nil, err
	}

	b := client.NewBuilder().
		Connector(newConnector(cfg)).
		AuthToken(token).
		Authentication(cfg.Plugin.Name, cfg.Plugin.Developer, icon).
		OutgoingBuffer(cfg.OutgoingBuffer).
		Logger(logger.Global()).
		OnNewToken(func(token string) {
			if err := a.store.Save(token); err != nil {
				a.log.Error("Failed to save token: %v", err)
			}
			a.releaseTokenLock()
		})

	// Without a token the first call waits for the user to accept the
	// popup in VTube Studio.
	if token != "" {
		b.RequestTimeout(cfg.RequestTimeout.Std())
	} else {
		a.tokenLock, err = a.store.Lock()
		if err != nil {
			a.close()
			return nil, fmt.Errorf("cannot request a token: %w", err)
		}
		fmt.Fprintln(os.Stderr, "No stored token: allow the plugin in VTube Studio when asked.")
	}
	if !cfg.Reconnect.Disabled {
		b.RetryPolicy(retry.Policy{
			MaxAttempts:       cfg.Reconnect.MaxAttempts,
			InitialInterval:   cfg.Reconnect.InitialDelay.Std(),
			MaxInterval:       cfg.Reconnect.MaxDelay.Std(),
			Multiplier:        2,
			RetryOnDisconnect: true,
		})
	}
	if cfg.IDScheme == config.IDSchemeUUID {
		b.IDGenerator(mux.NewUUIDIDs())
	}

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		collector, err := metrics.New(reg)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		b.Metrics(collector)
		a.metrics = newMetricsServer(cfg.MetricsAddr, reg, enablePprof)
		go func() {
			if err := a.metrics.Start(); err != nil {
				a.log.Error("Metrics server stopped: %v", err)
			}
		}()
	}

	var sub *events.Subscription
	a.client, sub = b.Build()
	if stream {
		a.events = sub
	} else {
		// Nobody reads it; an open subscription would queue every event.
		sub.Close()
	}
	return a, nil
}

func (a *app) close() {
	if a.events != nil {
		a.events.Close()
	}
	if a.client != nil {
		_ = a.client.Close()
	}
	if a.metrics != nil {
		_ = a.metrics.Stop()
	}
	a.releaseTokenLock()
	securemem.Purge()
	_ = logger.Global().Close()
}

func (a *app) releaseTokenLock() {
	if a.tokenLock == nil {
		return
	}
	if err := a.tokenLock.Release(); err != nil {
		a.log.Warn("Failed to release token lock: %v", err)
	}
}

func newConnector(cfg *config.Config) transport.Connector {
	if cfg.Transport == config.TransportCoder {
		return coderws.New(cfg.URL)
	}
	return gorillaws.New(cfg.URL)
}

// openTokenStore asks for the token password when the token is or should be
// sealed. The password comes from the environment or the terminal.
func openTokenStore(cfg *config.Config) (*tokenfile.Store, error) {
	password := os.Getenv(passwordEnv)
	if password == "" && (cfg.SealToken || isSealedFile(cfg.TokenFile)) {
		var err error
		password, err = promptForPassword("Token password: ")
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		if password == "" {
			return nil, errors.New("a password is required for the sealed token")
		}
	}
	if password == "" {
		return tokenfile.New(cfg.TokenFile), nil
	}
	return tokenfile.New(cfg.TokenFile, tokenfile.WithPassword(securemem.NewSecret(password), cfg.Plugin.Name)), nil
}

func isSealedFile(path string) bool {
	raw, err := os.ReadFile(path)
	return err == nil && secrets.IsSealed(strings.TrimSpace(string(raw)))
}

func promptForPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	fmt.Fprint(os.Stderr, prompt)

	if term.IsTerminal(fd) {
		bytes, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		defer securemem.Wipe(bytes)
		return strings.TrimSpace(string(bytes)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// loadIcon reads a PNG and encodes it the way the token request expects
func loadIcon(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read plugin icon: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// commandContext ends on interrupt
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithCancel(ctx)
}
