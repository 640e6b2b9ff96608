package ngrok

import (
	"context"
	"fmt"
	"os"
	"sync"

	"radyo/internal/config"

	"github.com/sirupsen/logrus"
	"golang.ngrok.com/ngrok/v2"
)

// Service exposes the control API through an ngrok endpoint so phone
// surfaces can reach the daemon away from the LAN
type Service struct {
	config *config.NgrokConfig
	agent  ngrok.Agent
	logger *logrus.Logger

	mu     sync.Mutex
	tunnel ngrok.EndpointForwarder
}

// NewService creates the agent, or returns nil when tunneling is disabled.
// A nil *Service is safe to use.
func NewService(cfg *config.NgrokConfig, logger *logrus.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	authToken := cfg.AuthToken
	if authToken == "" {
		authToken = os.Getenv("NGROK_AUTHTOKEN")
	}
	if authToken == "" {
		return nil, fmt.Errorf("ngrok auth token not found, set NGROK_AUTHTOKEN in .env or ngrok.auth_token in config")
	}

	agent, err := ngrok.NewAgent(ngrok.WithAuthtoken(authToken))
	if err != nil {
		return nil, fmt.Errorf("failed to create ngrok agent: %w", err)
	}

	return &Service{
		config: cfg,
		agent:  agent,
		logger: logger,
	}, nil
}

// StartTunnel forwards the public endpoint to localAddress
func (s *Service) StartTunnel(ctx context.Context, localAddress string) error {
	if s == nil {
		return nil
	}

	s.logger.Info("Starting ngrok tunnel...")

	tunnel, err := s.agent.Forward(ctx, ngrok.WithUpstream(localAddress), endpointOptions(s.config)...)
	if err != nil {
		return fmt.Errorf("failed to create ngrok tunnel: %w", err)
	}
	s.mu.Lock()
	s.tunnel = tunnel
	s.mu.Unlock()

	fields := logrus.Fields{
		"public_url": tunnel.URL().String(),
		"upstream":   localAddress,
	}
	if s.config.EnableAuth {
		fields["oauth_provider"] = s.config.AuthProvider
	}
	s.logger.WithFields(fields).Info("Ngrok tunnel active")

	return nil
}

func (s *Service) current() ngrok.EndpointForwarder {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tunnel
}

// PublicURL returns the tunnel URL, or "" before StartTunnel. The
// control API reports it to surfaces.
func (s *Service) PublicURL() string {
	tunnel := s.current()
	if tunnel == nil {
		return ""
	}
	return tunnel.URL().String()
}

// Stop closes the tunnel
func (s *Service) Stop() error {
	tunnel := s.current()
	if tunnel == nil {
		return nil
	}

	s.logger.Info("Stopping ngrok tunnel...")
	return tunnel.Close()
}

// Done is closed when the tunnel goes away. It is nil (blocks forever)
// when no tunnel is running.
func (s *Service) Done() <-chan struct{} {
	tunnel := s.current()
	if tunnel == nil {
		return nil
	}
	return tunnel.Done()
}

func endpointOptions(cfg *config.NgrokConfig) []ngrok.EndpointOption {
	var opts []ngrok.EndpointOption
	if cfg.Domain != "" {
		opts = append(opts, ngrok.WithURL(cfg.Domain))
	}
	if cfg.EnableAuth {
		opts = append(opts, ngrok.WithTrafficPolicy(trafficPolicy(cfg.AuthProvider)))
	}
	return opts
}

// trafficPolicy puts an OAuth login in front of every request. The
// bearer token check in the control API still applies behind it.
func trafficPolicy(provider string) string {
	return fmt.Sprintf(`on_http_request:
  - actions:
      - type: oauth
        config:
          provider: %s
`, provider)
}
