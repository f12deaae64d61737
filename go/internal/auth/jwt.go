package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const usageWebsocket = "websocket_auth"

// TicketClaims is the payload of a short-lived websocket ticket.
type TicketClaims struct {
	UserID string `json:"user_id"`
	Usage  string `json:"usage,omitempty"`
	jwt.RegisteredClaims
}

// TicketService issues and verifies HS256 websocket tickets.
type TicketService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTicketService(secret string, ttl time.Duration) (*TicketService, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwt secret must be at least 32 bytes, got %d", len(secret))
	}
	return &TicketService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a ticket for userID.
func (s *TicketService) Issue(userID string) (string, error) {
	now := s.now()
	claims := &TicketClaims{
		UserID: userID,
		Usage:  usageWebsocket,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign ticket: %w", err)
	}
	return signed, nil
}

// Parse verifies a ticket and returns its claims.
func (s *TicketService) Parse(ticket string) (*TicketClaims, error) {
	claims := &TicketClaims{}
	token, err := jwt.ParseWithClaims(ticket, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrExpiredTicket
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}
	if !token.Valid {
		return nil, ErrInvalidTicket
	}
	if claims.Usage != usageWebsocket {
		return nil, ErrWrongUsage
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: no user", ErrInvalidTicket)
	}
	return claims, nil
}

// Authenticate implements Authenticator.
func (s *TicketService) Authenticate(r *http.Request) (string, error) {
	ticket := ticketFromRequest(r)
	if ticket == "" {
		return "", ErrMissingCredentials
	}
	claims, err := s.Parse(ticket)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}
