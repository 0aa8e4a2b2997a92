package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/campscout/event-logistics-api/internal/platform/logging"
)

// Tiny dev-only JWT issuer + JWKS server.
//
// This is NOT a full OIDC provider. It exists to support local development against
// real RS256 JWT verification (iss/aud/exp + JWKS).

type jwk struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

type devIssuer struct {
	key      *rsa.PrivateKey
	kid      string
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func devJWTCmd() *cobra.Command {
	var (
		port string
		iss  devIssuer
	)

	cmd := &cobra.Command{
		Use:   "devjwt",
		Short: "Serve a local JWKS and mint RS256 tokens for AUTH_MODE=jwt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logging.New("info", "console")
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			key, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				return err
			}
			iss.key = key
			iss.now = func() time.Time { return time.Now().UTC() }

			srv := &http.Server{
				Addr:              ":" + port,
				Handler:           iss.routes(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			log.Info("devjwt listening",
				zap.String("addr", srv.Addr),
				zap.String("iss", iss.issuer),
				zap.String("aud", iss.audience),
				zap.String("kid", iss.kid),
				zap.Duration("ttl", iss.ttl),
			)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&port, "port", "5556", "listen port")
	cmd.Flags().StringVar(&iss.issuer, "issuer", "http://localhost:5556", "iss claim")
	cmd.Flags().StringVar(&iss.audience, "audience", "event-logistics", "aud claim")
	cmd.Flags().StringVar(&iss.kid, "kid", "dev-kid-1", "key id")
	cmd.Flags().DurationVar(&iss.ttl, "ttl", 30*time.Minute, "token lifetime")
	return cmd
}

func (d *devIssuer) routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Common JWKS path used by many providers.
	r.Get("/.well-known/jwks.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(d.jwks())
	})

	// Mint a JWT:
	//   GET /token?sub=dev|alice
	r.Get("/token", func(w http.ResponseWriter, r *http.Request) {
		sub := strings.TrimSpace(r.URL.Query().Get("sub"))
		if sub == "" {
			http.Error(w, "missing sub", http.StatusBadRequest)
			return
		}
		now := d.now()
		token, err := d.mint(sub, now)
		if err != nil {
			http.Error(w, "failed to mint token", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token": token,
			"sub":   sub,
			"iss":   d.issuer,
			"aud":   d.audience,
			"exp":   now.Add(d.ttl).Unix(),
		})
	})

	return r
}

func (d *devIssuer) jwks() jwks {
	enc := base64.RawURLEncoding
	pub := d.key.PublicKey
	return jwks{Keys: []jwk{{
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		Kid: d.kid,
		N:   enc.EncodeToString(pub.N.Bytes()),
		E:   enc.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}}
}

func (d *devIssuer) mint(sub string, now time.Time) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Issuer:    d.issuer,
		Audience:  jwt.ClaimStrings{d.audience},
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d.ttl)),
		// Small skew tolerance for local use.
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
	})
	tok.Header["kid"] = d.kid
	return tok.SignedString(d.key)
}
