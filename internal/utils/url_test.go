package utils

import "testing"

func TestNormalizeURL(t *testing.T) {
	normalized, domain, err := NormalizeURL("https://Example.com/path?utm_source=test&x=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if domain != "example.com" {
		t.Fatalf("unexpected domain: %s", domain)
	}
	if normalized != "https://example.com/path?x=1" {
		t.Fatalf("unexpected normalized url: %s", normalized)
	}
}

func TestNormalizeDomainPunycode(t *testing.T) {
	if got := NormalizeDomain("Bücher.example."); got != "xn--bcher-kva.example" {
		t.Fatalf("unexpected domain: %s", got)
	}
}

func TestLinksTo(t *testing.T) {
	content := "grab it at https://cdn.Example.com/file.zip or http://other.org"
	if !LinksTo(content, "example.com") {
		t.Fatalf("expected subdomain match")
	}
	if LinksTo(content, "ample.com") {
		t.Fatalf("expected suffix without dot to not match")
	}
	if LinksTo("no links here", "example.com") {
		t.Fatalf("expected no match without links")
	}
}
