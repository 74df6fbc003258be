package api

import (
	"errors"
	"net/http"
	"strings"

	"storefront-cart/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// GuestIDHeader identifies the device whose guest cart a request uses
	GuestIDHeader = "X-Guest-ID"

	sessionContextKey = "cart_session"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims are the marketplace access token claims the cart cares about
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// ParseToken validates an HMAC-signed access token and returns its user id
func ParseToken(secret []byte, tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.UserID != "" {
		return claims.UserID, nil
	}
	if claims.Subject != "" {
		return claims.Subject, nil
	}
	return "", ErrInvalidToken
}

// SessionMiddleware turns the request's credentials into a service.Session.
// Requests without a bearer token are guests; a bad token is rejected
// instead of silently falling back to the guest cart.
func SessionMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := service.Session{GuestID: strings.TrimSpace(c.GetHeader(GuestIDHeader))}

		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			tokenString := strings.TrimPrefix(header, "Bearer ")
			userID, err := ParseToken(secret, tokenString)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": err.Error(),
					"code":  "UNAUTHORIZED",
				})
				return
			}
			sess.UserID = userID
			sess.Token = tokenString
		}

		c.Set(sessionContextKey, sess)
		c.Next()
	}
}

// SessionFrom returns the session SessionMiddleware attached to c
func SessionFrom(c *gin.Context) service.Session {
	if v, ok := c.Get(sessionContextKey); ok {
		if sess, ok := v.(service.Session); ok {
			return sess
		}
	}
	return service.Session{}
}
