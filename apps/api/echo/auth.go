package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/coachdesk/core"
)

const (
	contextTokenKey = "coachToken"
	audience        = "Coaches"
)

// Claims represents the authorization claims transmitted via a JWT.
// The subject is the coach id.
type Claims struct {
	jwt.StandardClaims
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

func (c Claims) Coach() core.Coach {
	return core.Coach{ID: c.Subject, Name: c.Name, Email: c.Email}
}

// jwtConfig is the JWT auth middleware config.
func jwtConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

func GetCoachClaims(conf *core.Config, coach core.Coach) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   coach.ID,
			Audience:  audience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name:  coach.Name,
		Email: coach.Email,
	}
}

// GenerateToken generates a signed JWT token string representing the coach Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(middleware.AlgorithmHS256)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok && claims.Subject != "" {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextCoach(ctx echo.Context) (core.Coach, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return core.Coach{}, err
	}
	return claims.Coach(), nil
}
