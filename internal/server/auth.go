package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenTTL = 12 * time.Hour

var ErrInvalidToken = errors.New("invalid room token")

// RoomClaims scope a websocket connection to one room and one identity.
type RoomClaims struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Host   bool   `json:"host"`
	jwt.RegisteredClaims
}

// MintRoomToken issues a signed token admitting userID into roomID.
func MintRoomToken(secret, roomID, userID, name string, host bool) (string, error) {
	claims := RoomClaims{
		RoomID: roomID,
		UserID: userID,
		Name:   name,
		Host:   host,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseRoomToken validates a token and returns its claims.
func ParseRoomToken(secret, tokenString string) (*RoomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RoomClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*RoomClaims)
	if !ok || !token.Valid || claims.RoomID == "" || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
