package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestCreateAndParseSession(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{
		SessionTTL:    time.Hour,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "life-helper",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.CreateSession("42", "qrcode")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	claims, err := m.ParseSession(token)
	if err != nil {
		t.Fatalf("parse session: %v", err)
	}
	if claims.UID != "42" || claims.Subject != "42" || claims.Channel != "qrcode" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
	if left := time.Until(claims.ExpiresAt.Time); left <= 59*time.Minute || left > time.Hour {
		t.Fatalf("unexpected expiry %v", claims.ExpiresAt.Time)
	}

	other, err := m.CreateSession("42", "qrcode")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if other == token {
		t.Fatal("expected distinct tokens per mint")
	}
}

func TestCreateSessionRequiresSubject(t *testing.T) {
	m, err := NewManager(Config{SessionTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := m.CreateSession("", "weixin"); err == nil {
		t.Fatal("expected empty uid to be rejected")
	}
}

func TestNewManagerRejectsShortHMACSecret(t *testing.T) {
	if _, err := NewManager(Config{SessionTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")}); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
}

func TestParseSessionRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{SessionTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := SessionClaims{UID: "u1", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseSession(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseSessionIssuerAudienceAndLeeway(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		SessionTTL:    time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "life-helper",
		Audience:      "api",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	sign := func(c SessionClaims) string {
		t.Helper()
		s, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c).SignedString(priv)
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		return s
	}

	wrongIssuer := sign(SessionClaims{UID: "u1", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "other",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}})
	if _, err := m.ParseSession(wrongIssuer); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	wrongAudience := sign(SessionClaims{UID: "u1", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "life-helper",
		Audience:  gjwt.ClaimStrings{"other-api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}})
	if _, err := m.ParseSession(wrongAudience); err == nil {
		t.Fatal("expected wrong audience to fail")
	}

	withinLeeway := sign(SessionClaims{UID: "u1", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "life-helper",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-15 * time.Second)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}})
	if _, err := m.ParseSession(withinLeeway); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}

	expired := sign(SessionClaims{UID: "u1", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "life-helper",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-3 * time.Minute)),
	}})
	if _, err := m.ParseSession(expired); err == nil {
		t.Fatal("expected expired token to fail")
	}

	noUID := sign(SessionClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "life-helper",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}})
	if _, err := m.ParseSession(noUID); err == nil {
		t.Fatal("expected token without uid to fail")
	}

	noExp := sign(SessionClaims{UID: "u1", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:   "life-helper",
		Audience: gjwt.ClaimStrings{"api"},
	}})
	if _, err := m.ParseSession(noExp); err == nil {
		t.Fatal("expected token without exp to fail")
	}
}

func TestParseSessionUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		SessionTTL:    time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys: map[string][]byte{
			"k1": pub1,
		},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := SessionClaims{UID: "u1", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	token, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseSession(token); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	good, err := m.CreateSession("u1", "weixin")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := m.ParseSession(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	m2, _ := NewManager(Config{SessionTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k2": pub2}})
	if _, err := m2.ParseSession(good); err == nil {
		t.Fatal("expected parse failure with mismatched key set")
	}
}

func FuzzParseSession(f *testing.F) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		f.Fatal(err)
	}
	mgr, err := NewManager(Config{
		SessionTTL:    5 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "fuzz-test",
		RequireIAT:    true,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub},
	})
	if err != nil {
		f.Fatal(err)
	}
	valid, err := mgr.CreateSession("uid1", "qrcode")
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid)
	f.Add("")
	f.Add("not.a.jwt")
	f.Add("eyJhbGciOiJub25lIn0.eyJ1aWQiOiJ0ZXN0In0.")

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := mgr.ParseSession(input)
		if err != nil {
			return
		}
		if claims == nil || claims.UID == "" {
			t.Fatal("ParseSession accepted a token without claims")
		}
	})
}
