// Package proxy forwards Bakong API calls from a fixed egress address, so the
// bot can run on hosts whose IPs Bakong does not accept.
package proxy

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"khqr-payment-bot/internal/config"
	"khqr-payment-bot/internal/infra/metrics"
)

// client-identifying headers never forwarded upstream
var strippedHeaders = []string{
	"X-Forwarded-For",
	"X-Forwarded-Host",
	"X-Forwarded-Port",
	"X-Forwarded-Proto",
	"X-Real-Ip",
	"Cf-Connecting-Ip",
	"Cf-Ray",
	"True-Client-Ip",
}

type Server struct {
	cfg      config.ProxyConfig
	upstream *url.URL
	router   chi.Router
	server   *http.Server
	client   *http.Client
	log      *zerolog.Logger
	now      func() time.Time
}

func NewServer(cfg config.ProxyConfig, logger *zerolog.Logger) (*Server, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("proxy api key is required")
	}
	upstream, err := url.Parse(strings.TrimRight(cfg.Upstream, "/"))
	if err != nil || upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q", cfg.Upstream)
	}
	l := logger.With().Str("component", "bakong_proxy").Logger()
	s := &Server{
		cfg:      cfg,
		upstream: upstream,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      &l,
		now:      time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Get("/health", s.handleHealth)
	r.Get("/diagnostic", s.handleDiagnostic)
	r.Get("/public-ip", s.handlePublicIP)
	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
		r.Handle("/*", s.reverseProxy())
	})
	s.router = r

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Str("upstream", s.upstream.String()).Msg("KHQR proxy listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) reverseProxy() *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(s.upstream)
			for _, h := range strippedHeaders {
				pr.Out.Header.Del(h)
			}
			pr.Out.Header.Del("X-Api-Key")
			// let the transport negotiate and decode compression itself
			pr.Out.Header.Del("Accept-Encoding")
			if s.cfg.BakongToken != "" && pr.Out.Header.Get("Authorization") == "" {
				pr.Out.Header.Set("Authorization", "Bearer "+s.cfg.BakongToken)
			}
			if pr.Out.Header.Get("Accept") == "" {
				pr.Out.Header.Set("Accept", "application/json")
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Del("Content-Encoding")
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("proxy error")
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":   "Proxy error",
				"details": err.Error(),
			})
		},
	}
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-KEY")
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.APIKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid or missing API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.IncProxyRequest(r.Method, status)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("proxy request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"service": "khqr-proxy",
		"time":    s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleDiagnostic(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                    true,
		"masked_api_key":        mask(s.cfg.APIKey),
		"bakong_api_url":        s.upstream.String(),
		"port":                  s.cfg.Port,
		"env_proxy_key_present": s.cfg.APIKey != "",
		"bakong_token_present":  s.cfg.BakongToken != "",
	})
}

// handlePublicIP reports the egress address Bakong sees, for allow-listing.
func (s *Server) handlePublicIP(w http.ResponseWriter, r *http.Request) {
	ip, err := s.lookupPublicIP(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"ok":      false,
			"error":   "Failed to fetch public IP",
			"details": err.Error(),
		})
		return
	}
	source := s.cfg.PublicIPURL
	if u, err := url.Parse(s.cfg.PublicIPURL); err == nil && u.Host != "" {
		source = u.Host
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"ip":     ip,
		"source": source,
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) lookupPublicIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.PublicIPURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ip lookup http %d", resp.StatusCode)
	}
	var out struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.IP == "" {
		return "", errors.New("ip lookup returned no address")
	}
	return out.IP, nil
}

func mask(v string) string {
	if v == "" {
		return "MISSING"
	}
	if len(v) < 12 {
		return "***"
	}
	return v[:6] + "…" + v[len(v)-4:]
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
