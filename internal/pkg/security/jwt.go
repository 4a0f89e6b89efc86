package security

import (
	"Tradelink/internal/api/config"
	"Tradelink/internal/model"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GenerateToken 为指定身份签发 JWT
func GenerateToken(who *model.Identity) (string, error) {
	if who == nil || who.ID == "" || !who.Role.Valid() {
		return "", errors.New("无效的用户身份")
	}
	cfg := config.Cfg.JWT
	now := time.Now()

	claims := &UserClaims{
		UserID: who.ID,
		Name:   who.DisplayName,
		Email:  who.Email,
		Role:   who.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    cfg.Issuer,
			Subject:   who.ID,
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("签名 Token 失败: %w", err)
	}
	return tokenString, nil
}

// ValidateToken 验证 Token 字符串并解析出 Claims
func ValidateToken(tokenString string) (*UserClaims, error) {
	claims := &UserClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("非预期的签名方法: %v", token.Header["alg"])
		}
		return []byte(config.Cfg.JWT.Secret), nil
	}, jwt.WithIssuer(config.Cfg.JWT.Issuer))

	if err != nil {
		return nil, fmt.Errorf("token 解析失败: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("token 无效或已过期")
	}
	if claims.UserID == "" || !claims.Role.Valid() {
		return nil, errors.New("token 缺少用户信息")
	}

	return claims, nil
}

// ExtractSignature 从 Token 字符串中提取签名
func ExtractSignature(tokenString string) (string, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return "", errors.New("token 格式不正确")
	}
	return parts[2], nil
}
