package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"reelboard/internal/domain"
	"reelboard/internal/engine"
	"reelboard/internal/engine/auth"
	"reelboard/internal/repo"
)

const (
	defaultTokenTTL     = 12 * time.Hour
	defaultKeyCacheSize = 256
	defaultKeyCacheTTL  = time.Minute
)

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	// KeyCacheSize bounds the API key principal cache.
	KeyCacheSize int
	KeyCacheTTL  time.Duration
	Logger       *zap.Logger
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(auth.Principal)
	return p, ok
}

func principalFromRequest(ctx context.Context) (auth.Principal, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok {
		return p, nil
	}
	return auth.Principal{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
}

type keyCacheEntry struct {
	principal auth.Principal
	storedAt  time.Time
}

type authenticator struct {
	cfg    AuthConfig
	engine engine.Engine
	policy auth.Policy
	keys   *lru.Cache[string, keyCacheEntry]
	log    *zap.Logger
}

func newAuthenticator(cfg AuthConfig, e engine.Engine) (*authenticator, error) {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.KeyCacheSize <= 0 {
		cfg.KeyCacheSize = defaultKeyCacheSize
	}
	if cfg.KeyCacheTTL <= 0 {
		cfg.KeyCacheTTL = defaultKeyCacheTTL
	}
	keys, err := lru.New[string, keyCacheEntry](cfg.KeyCacheSize)
	if err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &authenticator{cfg: cfg, engine: e, policy: auth.Policy{Config: e.Config}, keys: keys, log: log}, nil
}

// issueToken signs a bearer token for an authenticated user.
func (a *authenticator) issueToken(p auth.Principal) (string, time.Time, error) {
	if strings.TrimSpace(a.cfg.JWTSecret) == "" {
		return "", time.Time{}, errors.New("jwt secret not configured")
	}
	now := time.Now()
	exp := now.Add(a.cfg.TokenTTL)
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.UserID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Name:  p.Name,
		Email: p.Email,
		Role:  p.Role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.cfg.JWTSecret))
	return token, exp, err
}

func (a *authenticator) authenticateJWT(token string) (auth.Principal, error) {
	if strings.TrimSpace(a.cfg.JWTSecret) == "" {
		return auth.Principal{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(a.cfg.JWTSecret), nil
	})
	if err != nil {
		return auth.Principal{}, err
	}
	if !parsed.Valid {
		return auth.Principal{}, errors.New("invalid token")
	}
	uid, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || uid <= 0 {
		return auth.Principal{}, errors.New("subject claim must be a user id")
	}
	if !auth.ValidRole(claims.Role) {
		return auth.Principal{}, errors.New("unknown role claim")
	}
	return auth.Principal{
		UserID:      uid,
		Name:        claims.Name,
		Email:       claims.Email,
		Role:        claims.Role,
		Permissions: a.policy.Permissions(claims.Role),
		Source:      "jwt",
	}, nil
}

// authenticateAPIKey resolves a key to its owner, caching hits briefly.
func (a *authenticator) authenticateAPIKey(ctx context.Context, key string) (auth.Principal, error) {
	if strings.TrimSpace(key) == "" {
		return auth.Principal{}, errors.New("api key required")
	}
	hash := repo.HashAPIKey(key)
	if entry, ok := a.keys.Get(hash); ok {
		if time.Since(entry.storedAt) < a.cfg.KeyCacheTTL {
			return entry.principal, nil
		}
		a.keys.Remove(hash)
	}
	u, err := a.engine.ResolveAPIKey(ctx, key)
	if err != nil {
		return auth.Principal{}, err
	}
	p := a.policy.PrincipalFor(u, "api_key")
	a.keys.Add(hash, keyCacheEntry{principal: p, storedAt: time.Now()})
	return p, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func (a *authenticator) middleware(basePath string) func(http.Handler) http.Handler {
	public := map[string]bool{
		path.Join(basePath, "health"):       true,
		path.Join(basePath, "auth/login"):   true,
		path.Join(basePath, "openapi.json"): true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath) || public[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}
			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKey := strings.TrimSpace(req.Header.Get("X-Api-Key"))
			var (
				principal auth.Principal
				err       error
			)
			switch {
			case authz != "":
				token, ok := bearerToken(authz)
				if !ok {
					err = errors.New("malformed authorization header")
					break
				}
				principal, err = a.authenticateJWT(token)
			case apiKey != "":
				principal, err = a.authenticateAPIKey(req.Context(), apiKey)
			default:
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			if err != nil {
				a.log.Warn("rejected credentials", zap.String("path", req.URL.Path), zap.Error(err))
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}

func registerAuth(api huma.API, e engine.Engine, a *authenticator) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange email and password for a bearer token",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body LoginResponse `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Email) == "" || input.Body.Password == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "email and password are required", nil)
		}
		u, err := e.Authenticate(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		p := a.policy.PrincipalFor(u, "jwt")
		token, exp, err := a.issueToken(p)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body LoginResponse `json:"body"`
		}{Body: LoginResponse{Token: token, ExpiresAt: exp.UTC().Format(time.RFC3339), User: u}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body auth.Principal `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body auth.Principal `json:"body"`
		}{Body: p}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine, a *authenticator) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Create an API key; the plaintext key is returned once",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body engine.CreatedAPIKey `json:"body"`
	}, error) {
		p, err := requirePerm(ctx, auth.PermAPIKeyWrite)
		if err != nil {
			return nil, err
		}
		userID := input.Body.UserID
		if userID == 0 {
			userID = p.UserID
		}
		key, err := e.CreateAPIKey(ctx, userID, input.Body.Name, p.Actor())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.CreatedAPIKey `json:"body"`
		}{Body: key}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List API key metadata",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID int64 `query:"user_id" doc:"Owner filter; 0 lists every key"`
	}) (*struct {
		Body []domain.APIKey `json:"body"`
	}, error) {
		if _, err := requirePerm(ctx, auth.PermAPIKeyWrite); err != nil {
			return nil, err
		}
		keys, err := e.ListAPIKeys(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.APIKey `json:"body"`
		}{Body: keys}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "revoke-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{id}",
		Summary:       "Revoke an API key",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		p, err := requirePerm(ctx, auth.PermAPIKeyWrite)
		if err != nil {
			return nil, err
		}
		if err := e.RevokeAPIKey(ctx, input.ID, p.Actor()); err != nil {
			return nil, handleError(err)
		}
		// Cached principals are keyed by the secret, which we no longer know.
		a.keys.Purge()
		return &struct{}{}, nil
	})
}
