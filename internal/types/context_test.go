package types

import (
	"context"
	"testing"
)

func TestWithRequestID_GetRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	if got := GetRequestID(ctx); got != "req-123" {
		t.Errorf("GetRequestID() = %q, want %q", got, "req-123")
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() on empty context = %q, want empty", got)
	}
}

func TestWithShopDomain_GetShopDomain(t *testing.T) {
	tests := []struct {
		name   string
		ctx    context.Context
		want   string
		wantOK bool
	}{
		{"set", WithShopDomain(context.Background(), "demo.myshopify.com"), "demo.myshopify.com", true},
		{"empty string", WithShopDomain(context.Background(), ""), "", false},
		{"unset", context.Background(), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := GetShopDomain(tt.ctx)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("GetShopDomain() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestContextValues_DoNotInterfere(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithShopDomain(ctx, "a.myshopify.com")

	if got := GetRequestID(ctx); got != "req-1" {
		t.Errorf("GetRequestID() = %q after WithShopDomain", got)
	}
	// A plain string key with the same text must not collide with the private key.
	ctx = context.WithValue(ctx, "shop_domain", "other") //nolint:staticcheck
	if got, _ := GetShopDomain(ctx); got != "a.myshopify.com" {
		t.Errorf("GetShopDomain() = %q, want a.myshopify.com", got)
	}
}

func TestNormalizeShopDomain(t *testing.T) {
	tests := map[string]string{
		"Demo.MyShopify.com":    "demo.myshopify.com",
		"  shop.example.com\t":  "shop.example.com",
		"":                      "",
		"already.myshopify.com": "already.myshopify.com",
	}
	for in, want := range tests {
		if got := NormalizeShopDomain(in); got != want {
			t.Errorf("NormalizeShopDomain(%q) = %q, want %q", in, got, want)
		}
	}
}
