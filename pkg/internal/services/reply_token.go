package services

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

// ReplyClaims authorize one thread reply from a notification action,
// without a session.
type ReplyClaims struct {
	UserID    uint `json:"user_id"`
	MessageID uint `json:"message_id"`
	jwt.RegisteredClaims
}

func CreateReplyToken(messageId uint, userId uint) (string, error) {
	claims := ReplyClaims{
		UserID:    userId,
		MessageID: messageId,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "relay",
			Subject:   "reply",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour * 24 * 7)),
		},
	}
	return signToken(claims, viper.GetString("security.reply_token_secret"))
}

func ParseReplyToken(tk string) (ReplyClaims, error) {
	var claims ReplyClaims
	if err := parseToken(tk, &claims, viper.GetString("security.reply_token_secret")); err != nil {
		return claims, err
	}
	if claims.Subject != "reply" {
		return claims, fmt.Errorf("not a reply token")
	}
	return claims, nil
}

// CreateAccessToken issues the bearer token the API and the gateway accept.
// Real deployments get these from the identity service sharing the secret.
func CreateAccessToken(userId uint, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    "relay",
		Subject:   strconv.FormatUint(uint64(userId), 10),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	return signToken(claims, viper.GetString("security.access_token_secret"))
}

func ParseAccessToken(tk string) (uint, error) {
	var claims jwt.RegisteredClaims
	if err := parseToken(tk, &claims, viper.GetString("security.access_token_secret")); err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid token subject")
	}
	return uint(id), nil
}

func signToken(claims jwt.Claims, secret string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	tks, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %v", err)
	}
	return tks, nil
}

func parseToken(tk string, claims jwt.Claims, secret string) error {
	token, err := jwt.ParseWithClaims(tk, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Method)
		}
		return []byte(secret), nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}
