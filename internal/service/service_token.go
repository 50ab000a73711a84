package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrServiceTokenInvalid 服务令牌无效
var ErrServiceTokenInvalid = errors.New("service token invalid")

// ServiceClaims 内部服务令牌声明，TenantID 为 0 表示可访问全部运营方
type ServiceClaims struct {
	TenantID uint `json:"tenant_id"`
	jwt.RegisteredClaims
}

// IssueServiceToken 签发 HS256 服务令牌
func IssueServiceToken(secret, issuer string, tenantID uint, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, errors.New("jwt secret is empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := ServiceClaims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    strings.TrimSpace(issuer),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseServiceToken 校验服务令牌，配置了 issuer 时要求一致
func ParseServiceToken(secret, issuer, tokenString string) (*ServiceClaims, error) {
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if strings.TrimSpace(issuer) != "" {
		options = append(options, jwt.WithIssuer(strings.TrimSpace(issuer)))
	}
	parser := jwt.NewParser(options...)
	claims := &ServiceClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, errors.Join(ErrServiceTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrServiceTokenInvalid
	}
	return claims, nil
}
