package source

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

import (
	"gopkg.in/yaml.v3"
)

import (
	"github.com/nanjiek/pixiu-cow/internal/config"
)

const defaultDocPath = "/flags"

// HTTPSource pulls a flag document from a config server via HTTP.
type HTTPSource struct {
	cfg    config.SourceCfg
	client *http.Client
	log    *slog.Logger
}

func NewHTTPSource(cfg config.SourceCfg) *HTTPSource {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPSource{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		log:    slog.Default(),
	}
}

func (s *HTTPSource) Fetch(ctx context.Context) (Payload, error) {
	if !s.cfg.Enabled() {
		return Payload{}, errors.New("source is disabled")
	}

	reqURL, err := s.buildURL()
	if err != nil {
		return Payload{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Payload{}, err
	}
	if s.cfg.Username != "" {
		req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Payload{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Payload{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Payload{}, fmt.Errorf("flag fetch failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	version := resp.Header.Get("Content-MD5")
	if version == "" {
		sum := md5.Sum(body)
		version = fmt.Sprintf("%x", sum[:])
	}

	flags, err := parseFlags(body, s.cfg.Format)
	if err != nil {
		return Payload{}, err
	}

	return Payload{
		Flags:   flags,
		Version: version,
	}, nil
}

func (s *HTTPSource) buildURL() (string, error) {
	base, err := url.Parse(s.cfg.Addr)
	if err != nil {
		return "", err
	}

	path := s.cfg.Path
	if path == "" {
		path = defaultDocPath
	}
	base.Path = strings.TrimRight(base.Path, "/") + path

	return base.String(), nil
}

func parseFlags(raw []byte, format string) ([]config.Flag, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty flags payload")
	}

	format = strings.ToLower(strings.TrimSpace(format))

	if format == "json" || format == "" {
		if flags, ok := tryParseJSON(trimmed); ok {
			return flags, nil
		}
		if format == "json" {
			return nil, errors.New("invalid json flags payload")
		}
	}

	if format == "yaml" || format == "" {
		if flags, ok := tryParseYAML(trimmed); ok {
			return flags, nil
		}
		if format == "yaml" {
			return nil, errors.New("invalid yaml flags payload")
		}
	}

	slog.Warn("failed to parse flags payload; unknown format", "format", format)
	return nil, errors.New("unsupported flags payload format")
}

func tryParseJSON(raw []byte) ([]config.Flag, bool) {
	var list []config.Flag
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, true
	}
	var wrapper struct {
		Flags []config.Flag `json:"flags"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Flags != nil {
		return wrapper.Flags, true
	}
	return nil, false
}

func tryParseYAML(raw []byte) ([]config.Flag, bool) {
	var list []config.Flag
	if err := yaml.Unmarshal(raw, &list); err == nil {
		return list, true
	}
	var wrapper struct {
		Flags []config.Flag `yaml:"flags"`
	}
	if err := yaml.Unmarshal(raw, &wrapper); err == nil && wrapper.Flags != nil {
		return wrapper.Flags, true
	}
	return nil, false
}
