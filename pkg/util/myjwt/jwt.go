package myjwt

import (
	"errors"
	"time"

	"KnowledgeHub/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

var errEmptyKey = errors.New("jwt key is empty")

// CustomClaims 身份由外部系统签发，这里只关心 user_id
type CustomClaims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func signingParams() (key []byte, issuer string, ttl time.Duration) {
	conf := config.GetConfig()
	jc := conf.JwtConfig
	issuer = jc.Issuer
	if issuer == "" {
		issuer = conf.MainConfig.AppName
	}
	hours := jc.ExpireHours
	if hours <= 0 {
		hours = 24
	}
	return []byte(jc.Key), issuer, time.Duration(hours) * time.Hour
}

// GenerateToken 供联调和测试签发 HS256 token
func GenerateToken(userID int64, username string) (string, error) {
	key, issuer, ttl := signingParams()
	if len(key) == 0 {
		return "", errEmptyKey
	}
	now := time.Now()
	claims := CustomClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// ParseToken 校验签名算法、签发方和有效期，user_id 必须为正数
func ParseToken(tokenString string) (*CustomClaims, error) {
	key, issuer, _ := signingParams()
	if len(key) == 0 {
		return nil, errEmptyKey
	}

	claims := &CustomClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, err
	}
	if claims.UserID <= 0 {
		return nil, errors.New("token missing user id")
	}
	return claims, nil
}
