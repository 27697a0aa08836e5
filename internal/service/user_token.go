package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUserTokenInvalid 用户令牌无效
var ErrUserTokenInvalid = errors.New("user token invalid")

// UserJWTClaims 用户令牌声明，令牌由账户服务签发，本服务只负责校验
type UserJWTClaims struct {
	UserID uint `json:"user_id"`
	jwt.RegisteredClaims
}

// IssueUserToken 签发 HS256 用户令牌
func IssueUserToken(secret, issuer string, userID uint, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" || userID == 0 {
		return "", ErrUserTokenInvalid
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	claims := UserJWTClaims{
		UserID:           userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseUserToken 校验签名与有效期并返回声明
func ParseUserToken(secret, issuer, tokenString string) (*UserJWTClaims, error) {
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if strings.TrimSpace(issuer) != "" {
		options = append(options, jwt.WithIssuer(issuer))
	}
	claims := &UserJWTClaims{}
	token, err := jwt.NewParser(options...).ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil || !token.Valid || claims.UserID == 0 {
		return nil, ErrUserTokenInvalid
	}
	return claims, nil
}
