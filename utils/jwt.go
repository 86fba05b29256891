package utils

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTSecret 簽章金鑰，由 InitJWTSecret 載入
var JWTSecret []byte

// InitJWTSecret 從環境變數載入 JWT_SECRET
func InitJWTSecret() {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Println("JWT_SECRET not set, using insecure default (development only)")
		secret = "carhive-dev-secret"
	}
	JWTSecret = []byte(secret)
}

// GenerateToken 簽發包含 user_id 和 role 的 token，效期 24 小時
func GenerateToken(userID int, role string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(JWTSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
