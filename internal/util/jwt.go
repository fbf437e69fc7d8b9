package util

import (
	"exam_coach_backend/internal/model"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims 学生身份。班级/批次/科目用于判断考试可见范围
type Claims struct {
	UserID     uint           `json:"user_id"`
	Role       model.UserRole `json:"role"`
	Email      string         `json:"email"`
	ClassID    uint           `json:"class_id,omitempty"`
	BatchIDs   []uint         `json:"batch_ids,omitempty"`
	SubjectIDs []uint         `json:"subject_ids,omitempty"`
	jwt.RegisteredClaims
}

func GenerateJWT(claims Claims, secret string, expiration time.Duration) (string, error) {
	claims.RegisteredClaims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(expiration))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	return token.SignedString([]byte(secret))
}

func ParseJWT(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrTokenInvalidClaims
}

func GetUserFromContext(c *gin.Context) *Claims {
	user, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := user.(*Claims)
	if !ok {
		return nil
	}
	return claims
}
