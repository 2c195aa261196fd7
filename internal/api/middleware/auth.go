// auth.go — проверка Bearer-токена и извлечение идентичности.
// Режимы: HS256 с общим секретом (GW_JWT_SECRET) или RS256 через JWKS (GW_JWKS_URL).
// Идентичность — claim sub; для токенов, выпущенных формой входа, — claim userId.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/goartstore/ai-gateway/internal/api/errors"
	"github.com/bigkaa/goartstore/ai-gateway/internal/domain/failure"
)

// contextKey — тип для ключей контекста.
type contextKey string

// ContextKeySubject — ключ идентичности в контексте запроса.
const ContextKeySubject contextKey = "jwt_subject"

// Claims — claims токена шлюза.
type Claims struct {
	jwt.RegisteredClaims
	// UserID — идентификатор пользователя из формы входа (число или строка)
	UserID any `json:"userId,omitempty"`
}

// Identity возвращает sub, а при его отсутствии — userId.
func (c *Claims) Identity() string {
	if c.Subject != "" {
		return c.Subject
	}
	switch v := c.UserID.(type) {
	case string:
		return v
	case fmt.Stringer: // json.Number при разборе с WithJSONNumber
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// JWTAuth — проверка JWT.
type JWTAuth struct {
	keyfunc   func(ctx context.Context) jwt.Keyfunc
	methods   []string
	jwtLeeway time.Duration
	logger    *slog.Logger
}

// NewHS256Auth создаёт проверку токенов, подписанных общим секретом.
func NewHS256Auth(secret []byte, jwtLeeway time.Duration, logger *slog.Logger) *JWTAuth {
	key := append([]byte(nil), secret...)
	return &JWTAuth{
		keyfunc: func(context.Context) jwt.Keyfunc {
			return func(*jwt.Token) (any, error) { return key, nil }
		},
		methods:   []string{jwt.SigningMethodHS256.Alg()},
		jwtLeeway: jwtLeeway,
		logger:    logger.With(slog.String("component", "jwt_auth")),
	}
}

// JWKSAuthConfig — параметры проверки через JWKS.
type JWKSAuthConfig struct {
	// URL JWKS endpoint
	JWKSURL string
	// Таймаут HTTP-клиента JWKS
	ClientTimeout time.Duration
	// Интервал обновления ключей
	RefreshInterval time.Duration
	// Допустимое отклонение времени
	JWTLeeway time.Duration
}

// NewJWKSAuth создаёт проверку RS256-токенов по ключам из JWKS.
func NewJWKSAuth(cfg JWKSAuthConfig, logger *slog.Logger) (*JWTAuth, error) {
	// NoErrorReturnFirstHTTPReq позволяет стартовать, пока JWKS ещё недоступен
	storage, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: cfg.ClientTimeout},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           cfg.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", cfg.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewJWTAuthWithKeyfunc(k, cfg.JWTLeeway, logger), nil
}

// NewJWTAuthWithKeyfunc создаёт RS256-проверку с готовой keyfunc.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, jwtLeeway time.Duration, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		keyfunc:   kf.KeyfuncCtx,
		methods:   []string{jwt.SigningMethodRS256.Alg()},
		jwtLeeway: jwtLeeway,
		logger:    logger.With(slog.String("component", "jwt_auth")),
	}
}

// Verify проверяет значение заголовка Authorization и возвращает идентичность.
// Любая проблема — failure.Unauthenticated.
func (j *JWTAuth) Verify(ctx context.Context, authHeader string) (string, error) {
	const op = "middleware.Verify"

	if authHeader == "" {
		return "", failure.New(failure.Unauthenticated, op, errors.New("нет заголовка Authorization"))
	}

	scheme, tokenString, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", failure.New(failure.Unauthenticated, op, errors.New("схема авторизации не Bearer"))
	}
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return "", failure.New(failure.Unauthenticated, op, errors.New("пустой Bearer token"))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, j.keyfunc(ctx),
		jwt.WithValidMethods(j.methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.jwtLeeway),
		jwt.WithJSONNumber(),
	)
	if err != nil {
		return "", failure.New(failure.Unauthenticated, op, err)
	}
	if !token.Valid {
		return "", failure.New(failure.Unauthenticated, op, errors.New("невалидный токен"))
	}

	identity := claims.Identity()
	if identity == "" {
		return "", failure.New(failure.Unauthenticated, op, errors.New("в токене нет sub и userId"))
	}
	return identity, nil
}

// Middleware возвращает HTTP middleware: проверяет токен и кладёт
// идентичность в контекст. Отказ — 401 в едином формате ошибок.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := j.Verify(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				apierrors.WriteFailure(w, r, j.logger, err)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySubject, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SubjectFromContext извлекает идентичность из контекста запроса.
// Возвращает пустую строку, если её нет.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(ContextKeySubject).(string)
	return subject
}
