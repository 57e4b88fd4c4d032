package pkg

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenInvalid      = errors.New("token invalid")
	ErrRefreshExpired    = errors.New("refresh expired")
	ErrRefreshInvalid    = errors.New("refresh invalid")
	ErrTokenParseFailure = errors.New("token parse failure")
)

const (
	AccessTTL  = time.Minute * 30
	RefreshTTL = time.Hour * 24

	subjectAccess  = "access"
	subjectRefresh = "refresh"
)

// Claims 运维接口的令牌声明
type Claims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TokenIssuer 签发/校验运维令牌，密钥来自配置
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	now           func() time.Time
}

func NewTokenIssuer(accessSecret, refreshSecret string) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		now:           time.Now,
	}
}

func (i *TokenIssuer) GeneratePair(operator string) (*Pair, error) {
	now := i.now()

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessTTL)),
			Subject:   subjectAccess,
		},
	})
	accessToken, err := access.SignedString(i.accessSecret)
	if err != nil {
		return nil, err
	}

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(RefreshTTL)),
			Subject:   subjectRefresh,
		},
	})
	refreshToken, err := refresh.SignedString(i.refreshSecret)
	if err != nil {
		return nil, err
	}

	return &Pair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// ParseAccess 解析 access
func (i *TokenIssuer) ParseAccess(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return i.accessSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenInvalid
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			return nil, ErrTokenParseFailure
		}
	}
	claims, ok := token.Claims.(*Claims)
	if !token.Valid || !ok || claims.Subject != subjectAccess {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Refresh 用 refresh 换一对新令牌
func (i *TokenIssuer) Refresh(refreshToken string) (*Pair, error) {
	token, err := jwt.ParseWithClaims(refreshToken, &Claims{}, func(t *jwt.Token) (any, error) {
		return i.refreshSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrRefreshInvalid
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrRefreshExpired
		}
		return nil, ErrRefreshInvalid
	}
	claims, ok := token.Claims.(*Claims)
	if !token.Valid || !ok || claims.Subject != subjectRefresh {
		return nil, ErrRefreshInvalid
	}
	return i.GeneratePair(claims.Operator)
}
