package main

import (
	"fmt"
	"net"
	"strings"

	configpkg "endlessdrive/server/internal/config"
	httpapi "endlessdrive/server/internal/http"
)

// servedEndpoint is one surface announced in the startup log.
type servedEndpoint struct {
	Name string
	URL  string
	TLS  bool
}

// servedEndpoints lists where players and tools can reach a running server.
// The gRPC entry is a dial target rather than a URL.
func servedEndpoints(cfg *configpkg.Config) []servedEndpoint {
	if cfg == nil {
		return nil
	}
	endpoints := []servedEndpoint{
		{Name: "http", URL: listenerURL("http", cfg.Address)},
		{Name: "chat", URL: listenerURL("ws", cfg.Address) + httpapi.ChatPath},
	}
	if cfg.GRPCAddress != "" {
		endpoints = append(endpoints, servedEndpoint{
			Name: "grpc",
			URL:  normaliseHostPort(cfg.GRPCAddress),
			TLS:  cfg.GRPCMutualTLS(),
		})
	}
	return endpoints
}

// listenerURL renders a listen address under scheme, so wildcard hosts
// become localhost.
func listenerURL(scheme, address string) string {
	return fmt.Sprintf("%s://%s", scheme, normaliseHostPort(address))
}

func normaliseHostPort(address string) string {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "localhost"
	}
	host, port, err := net.SplitHostPort(trimmed)
	if err != nil {
		if strings.HasPrefix(trimmed, ":") {
			return "localhost" + trimmed
		}
		return trimmed
	}
	switch strings.TrimSpace(host) {
	case "", "0.0.0.0", "::", "[::]":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
