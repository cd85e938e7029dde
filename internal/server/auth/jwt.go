// Package auth signs outbound alert envelopes so the delivery worker can
// check they were produced by this server.
package auth

import (
	"time"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const alertIssuer = "zkvault"

// AlertClaims carries one alert as JWT claims.
type AlertClaims struct {
	jwt.RegisteredClaims
	Kind      string            `json:"kind"`
	Recipient string            `json:"rcpt"`
	Subject   string            `json:"subj"`
	Body      string            `json:"body,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// SignAlert returns an HS256 token for claims, valid for validity.
func SignAlert(claims AlertClaims, secretKey []byte, validity time.Duration) (string, error) {
	now := time.Now()
	claims.Issuer = alertIssuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(validity))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// VerifyAlert parses and validates a token produced by SignAlert.
func VerifyAlert(tokenString string, secretKey []byte) (*AlertClaims, error) {
	claims := &AlertClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(alertIssuer))
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
