// auth.go — middleware аутентификации и авторизации File Gateway.
// Цепочка из двух звеньев: сначала JWT (RS256 + JWKS), затем статический
// API-ключ. Любой сбой любого звена завершается единым 401 — детали
// остаются только в логах.
// Claims: sub (subject), scope (строка) или scopes (массив строк).
package middleware

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/goartstore/file-gateway/internal/api/errors"
)

// Scope'ы файловых операций.
const (
	ScopeFileRead  = "file:read"
	ScopeFileWrite = "file:write"
)

// APIKeyPrincipal — имя principal'а, под которым работают статические ключи.
const APIKeyPrincipal = "api-user"

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// contextKeyPrincipal — ключ principal'а в контексте запроса.
const contextKeyPrincipal contextKey = "auth_principal"

// Principal — аутентифицированный субъект запроса.
type Principal struct {
	// Name — sub из JWT либо APIKeyPrincipal для статических ключей.
	Name string
	// Scopes — предоставленные scope'ы.
	Scopes []string
}

// HasScope сообщает, предоставлен ли subject'у указанный scope.
func (p *Principal) HasScope(scope string) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Claims — структура JWT claims File Gateway.
// Поддерживает два формата scope'ов:
//   - Keycloak стандартный: "scope" (пробело-разделённая строка)
//   - Кастомный: "scopes" (массив строк)
type Claims struct {
	jwt.RegisteredClaims
	// ScopeString — стандартный OAuth2 claim (пробело-разделённая строка)
	ScopeString string `json:"scope"`
	// ScopeArray — кастомный claim (массив строк), альтернативный формат
	ScopeArray []string `json:"scopes"`
}

// Scopes возвращает объединённый список scope'ов из обоих форматов.
func (c *Claims) Scopes() []string {
	var result []string
	if c.ScopeString != "" {
		result = append(result, strings.Split(c.ScopeString, " ")...)
	}
	result = append(result, c.ScopeArray...)
	return result
}

// Auth — middleware аутентификации: JWT через JWKS плюс статические ключи.
type Auth struct {
	jwks      keyfunc.Keyfunc
	apiKeys   []string
	jwtLeeway time.Duration
	logger    *slog.Logger
}

// AuthConfig — параметры для создания middleware аутентификации.
type AuthConfig struct {
	// URL JWKS endpoint
	JWKSURL string
	// Путь к CA-сертификату (опционально)
	CACertPath string
	// Статические API-ключи (опционально)
	APIKeys []string
	// Таймаут HTTP-клиента JWKS
	ClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	RefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
}

// NewAuth создаёт middleware аутентификации с JWKS из указанного URL.
func NewAuth(authCfg AuthConfig, logger *slog.Logger) (*Auth, error) {
	httpClient, err := buildHTTPClient(authCfg.CACertPath, authCfg.ClientTimeout)
	if err != nil {
		return nil, err
	}

	if authCfg.CACertPath != "" {
		logger.Info("CA-сертификат добавлен в пул доверия",
			slog.String("ca_cert", authCfg.CACertPath),
		)
	}

	// NoErrorReturnFirstHTTPReq позволяет стартовать даже если JWKS endpoint
	// ещё недоступен (например, при одновременном запуске pod-ов).
	storage, err := jwkset.NewStorageFromHTTP(authCfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           authCfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", authCfg.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return &Auth{
		jwks:      k,
		apiKeys:   authCfg.APIKeys,
		jwtLeeway: authCfg.JWTLeeway,
		logger:    logger.With(slog.String("component", "auth")),
	}, nil
}

// buildHTTPClient создаёт HTTP-клиент с настроенным TLS и таймаутом.
func buildHTTPClient(caCertPath string, timeout time.Duration) (*http.Client, error) {
	tlsConfig := &tls.Config{}

	if caCertPath != "" {
		caCert, err := os.ReadFile(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", caCertPath, err)
		}

		caCertPool, err := x509.SystemCertPool()
		if err != nil {
			caCertPool = x509.NewCertPool()
		}
		caCertPool.AppendCertsFromPEM(caCert)
		tlsConfig.RootCAs = caCertPool
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
	}, nil
}

// NewAuthWithKeyfunc создаёт middleware с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewAuthWithKeyfunc(kf keyfunc.Keyfunc, apiKeys []string, jwtLeeway time.Duration, logger *slog.Logger) *Auth {
	return &Auth{
		jwks:      kf,
		apiKeys:   apiKeys,
		jwtLeeway: jwtLeeway,
		logger:    logger.With(slog.String("component", "auth")),
	}
}

// Middleware возвращает HTTP middleware аутентификации.
// Извлекает Bearer token из заголовка Authorization; сначала пробует
// валидировать его как JWT (подпись RS256, exp/nbf, наличие файлового
// scope), затем сверяет со статическими ключами. Любой отказ — 401
// без раскрытия причины клиенту.
func (a *Auth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Требуется аутентификация")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Требуется аутентификация")
				return
			}

			tokenString := parts[1]
			if tokenString == "" {
				apierrors.Unauthorized(w, "Требуется аутентификация")
				return
			}

			// Звено 1: JWT
			if principal, ok := a.authenticateJWT(r, tokenString); ok {
				next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
				return
			}

			// Звено 2: статический API-ключ
			if principal, ok := a.authenticateAPIKey(tokenString); ok {
				next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
				return
			}

			apierrors.Unauthorized(w, "Требуется аутентификация")
		})
	}
}

// authenticateJWT валидирует строку как JWT и возвращает principal.
// Токен с валидной подписью, но без файловых scope'ов, отклоняется:
// такой токен не получает доступ ни к одной операции gateway.
func (a *Auth) authenticateJWT(r *http.Request, tokenString string) (*Principal, bool) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, a.jwks.KeyfuncCtx(r.Context()),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.jwtLeeway),
	)
	if err != nil {
		a.logger.Debug("JWT валидация не пройдена",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr),
		)
		return nil, false
	}

	if !token.Valid {
		return nil, false
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		a.logger.Debug("Отсутствует sub в токене",
			slog.String("remote_addr", r.RemoteAddr),
		)
		return nil, false
	}

	principal := &Principal{
		Name:   subject,
		Scopes: claims.Scopes(),
	}

	if !principal.HasScope(ScopeFileRead) && !principal.HasScope(ScopeFileWrite) {
		a.logger.Debug("Токен без файловых scope'ов",
			slog.String("subject", subject),
			slog.String("remote_addr", r.RemoteAddr),
		)
		return nil, false
	}

	return principal, true
}

// authenticateAPIKey сверяет строку со статическими ключами.
// Совпавший ключ даёт principal api-user с полным файловым доступом.
func (a *Auth) authenticateAPIKey(tokenString string) (*Principal, bool) {
	for _, key := range a.apiKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(tokenString)) == 1 {
			return &Principal{
				Name:   APIKeyPrincipal,
				Scopes: []string{ScopeFileRead, ScopeFileWrite},
			}, true
		}
	}
	return nil, false
}

// RequireScope возвращает middleware, проверяющий наличие указанного scope.
// Если scope отсутствует — возвращает 403 Forbidden.
// Должен использоваться ПОСЛЕ Auth.Middleware().
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				apierrors.Forbidden(w, "Отсутствует principal в контексте")
				return
			}

			if !principal.HasScope(scope) {
				apierrors.Forbidden(w, "Недостаточно прав: требуется scope "+scope)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// withPrincipal помещает principal в контекст запроса.
func withPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal, p)
}

// PrincipalFromContext извлекает principal из контекста запроса.
// Возвращает nil, если principal не найден.
func PrincipalFromContext(ctx context.Context) *Principal {
	principal, _ := ctx.Value(contextKeyPrincipal).(*Principal)
	return principal
}
