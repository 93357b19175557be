package main

import (
	"testing"

	configpkg "endlessdrive/server/internal/config"
)

func TestNormaliseHostPort(t *testing.T) {
	cases := map[string]string{
		"":                   "localhost",
		":8085":              "localhost:8085",
		"0.0.0.0:8085":       "localhost:8085",
		"[::]:8086":          "localhost:8086",
		"127.0.0.1:9000":     "127.0.0.1:9000",
		"[2001:db8::1]:8085": "[2001:db8::1]:8085",
		"drive.example:8085": "drive.example:8085",
		"drive.example":      "drive.example",
	}
	for address, want := range cases {
		if got := normaliseHostPort(address); got != want {
			t.Fatalf("normaliseHostPort(%q) = %q, want %q", address, got, want)
		}
	}
}

func TestServedEndpointsListsEverySurface(t *testing.T) {
	cfg := &configpkg.Config{Address: ":8085", GRPCAddress: "0.0.0.0:8086"}
	endpoints := servedEndpoints(cfg)
	if len(endpoints) != 3 {
		t.Fatalf("expected http, chat and grpc endpoints, got %+v", endpoints)
	}
	if endpoints[0].URL != "http://localhost:8085" || endpoints[1].URL != "ws://localhost:8085/ws/chat" {
		t.Fatalf("unexpected http surfaces %+v", endpoints[:2])
	}
	if endpoints[2].Name != "grpc" || endpoints[2].URL != "localhost:8086" || endpoints[2].TLS {
		t.Fatalf("unexpected grpc endpoint %+v", endpoints[2])
	}
}

func TestServedEndpointsReflectsGRPCSettings(t *testing.T) {
	cfg := &configpkg.Config{
		Address:          "127.0.0.1:8085",
		GRPCAddress:      ":8086",
		GRPCCertPath:     "server.pem",
		GRPCKeyPath:      "server.key",
		GRPCClientCAPath: "ca.pem",
	}
	endpoints := servedEndpoints(cfg)
	if last := endpoints[len(endpoints)-1]; last.Name != "grpc" || !last.TLS {
		t.Fatalf("expected mutual TLS on the grpc endpoint, got %+v", last)
	}

	//1.- An empty gRPC address disables the listener, so it is not announced.
	cfg.GRPCAddress = ""
	for _, endpoint := range servedEndpoints(cfg) {
		if endpoint.Name == "grpc" {
			t.Fatalf("expected no grpc endpoint when disabled, got %+v", endpoint)
		}
	}
	if servedEndpoints(nil) != nil {
		t.Fatalf("expected no endpoints without config")
	}
}
