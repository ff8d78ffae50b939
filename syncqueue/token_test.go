package syncqueue

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-barangay-registry/pkg/testsupport"
)

func TestStaticToken(t *testing.T) {
	if _, err := StaticToken("").Token(context.Background()); err == nil {
		t.Fatal("expected error for empty token")
	}
	tok, err := StaticToken("abc").Token(context.Background())
	if err != nil || tok != "abc" {
		t.Fatalf("Token() = %q, %v", tok, err)
	}
}

func TestNewJWTSource_Validation(t *testing.T) {
	if _, err := NewJWTSource("", "sync", "service_role", time.Minute, nil); err == nil {
		t.Fatal("expected error without secret")
	}
	if _, err := NewJWTSource("secret", "sync", "service_role", 10*time.Second, nil); err == nil {
		t.Fatal("expected error for short ttl")
	}
}

func TestJWTSource_ReusesUntilNearExpiry(t *testing.T) {
	clock := testsupport.NewClock(time.Now())
	src, err := NewJWTSource("secret", "registry-sync", "service_role", 15*time.Minute, clock.Now)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	first, err := src.Token(ctx)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	clock.Advance(time.Minute)
	second, _ := src.Token(ctx)
	if first != second {
		t.Fatal("token re-minted before expiry")
	}

	clock.Advance(14*time.Minute - 10*time.Second)
	third, _ := src.Token(ctx)
	if third == first {
		t.Fatal("token not refreshed near expiry")
	}
}

func TestParseSessionToken(t *testing.T) {
	src, err := NewJWTSource("secret", "registry-sync", "service_role", 15*time.Minute, nil)
	if err != nil {
		t.Fatal(err)
	}
	tok, err := src.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	claims, err := ParseSessionToken(tok, "secret")
	if err != nil {
		t.Fatalf("ParseSessionToken() error = %v", err)
	}
	if claims.Subject != "registry-sync" || claims.Role != "service_role" || claims.ID == "" {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := ParseSessionToken(tok, "other-secret"); err == nil {
		t.Fatal("expected signature error")
	}
}
