package jwt

import (
	"idregistry/internal/platform/middleware"
)

// MiddlewareAdapter adapts Service to the middleware.JWTValidator interface.
type MiddlewareAdapter struct {
	service *Service
}

func NewMiddlewareAdapter(service *Service) *MiddlewareAdapter {
	return &MiddlewareAdapter{service: service}
}

func (a *MiddlewareAdapter) ValidateToken(tokenString string) (*middleware.ValidatedClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.ValidatedClaims{ActorID: claims.ActorID}, nil
}
