package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/stonewallbooks/storefront/internal/auth"
	"github.com/stonewallbooks/storefront/internal/domain"
)

func (s *Server) registerAuthRoutes() {
	if s.sessions == nil {
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "signInAnonymous",
		Method:      http.MethodPost,
		Path:        authPrefix + "anonymous",
		Summary:     "Start an anonymous session",
		Description: "Issues a token for a fresh anonymous identity. Anonymous visitors can browse but never edit.",
		Tags:        []string{"Authentication"},
	}, s.handleSignInAnonymous)

	huma.Register(s.api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        authPrefix + "login",
		Summary:     "Sign in",
		Description: "Authenticates an account with email and password and returns a session token",
		Tags:        []string{"Authentication"},
	}, s.handleLogin)

	huma.Register(s.api, huma.Operation{
		OperationID: "logout",
		Method:      http.MethodPost,
		Path:        authPrefix + "logout",
		Summary:     "Sign out",
		Description: "Ends the account session and returns a fresh anonymous session in its place",
		Tags:        []string{"Authentication"},
	}, s.handleLogout)

	huma.Register(s.api, huma.Operation{
		OperationID: "getCurrentIdentity",
		Method:      http.MethodGet,
		Path:        authPrefix + "me",
		Summary:     "Current identity",
		Description: "Returns the identity behind the bearer token and whether it is the librarian",
		Tags:        []string{"Authentication"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleMe)
}

// === DTOs ===

// SessionResponse is an issued session.
type SessionResponse struct {
	ExpiresAt time.Time       `json:"expiresAt" doc:"When the token expires"`
	Token     string          `json:"token" doc:"Bearer token for later requests"`
	Identity  domain.Identity `json:"identity" doc:"Identity proven by the token"`
}

// SessionOutput wraps a session for Huma.
type SessionOutput struct {
	Body SessionResponse
}

// LoginRequest is the request body for sign-in.
type LoginRequest struct {
	Email    string `json:"email" format:"email" maxLength:"254" doc:"Account email"`
	Password string `json:"password" minLength:"1" maxLength:"1024" doc:"Account password"`
}

// LoginInput wraps the login request for Huma.
type LoginInput struct {
	Body LoginRequest
}

// IdentityResponse describes the caller.
type IdentityResponse struct {
	Identity    domain.Identity `json:"identity" doc:"Caller identity"`
	IsLibrarian bool            `json:"isLibrarian" doc:"Whether the caller may edit the store"`
}

// IdentityOutput wraps the identity response for Huma.
type IdentityOutput struct {
	Body IdentityResponse
}

// === Handlers ===

func (s *Server) handleSignInAnonymous(ctx context.Context, _ *struct{}) (*SessionOutput, error) {
	session, err := s.sessions.SignInAnonymous(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	return sessionOutput(session), nil
}

func (s *Server) handleLogin(ctx context.Context, input *LoginInput) (*SessionOutput, error) {
	session, err := s.sessions.SignIn(ctx, input.Body.Email, input.Body.Password)
	if err != nil {
		s.logger.Info("Sign-in failed", "email", input.Body.Email, "error", err)
		return nil, apiError(err)
	}
	s.logger.Info("Signed in", "uid", session.Identity.UID)
	return sessionOutput(session), nil
}

// handleLogout issues an anonymous session so the client always holds an identity.
// Account tokens are stateless and simply expire.
func (s *Server) handleLogout(ctx context.Context, _ *struct{}) (*SessionOutput, error) {
	session, err := s.sessions.SignInAnonymous(ctx)
	if err != nil {
		return nil, apiError(err)
	}
	return sessionOutput(session), nil
}

func (s *Server) handleMe(ctx context.Context, _ *struct{}) (*IdentityOutput, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return &IdentityOutput{Body: IdentityResponse{
		Identity:    *actor,
		IsLibrarian: s.store != nil && s.store.LibrarianFor(actor),
	}}, nil
}

func sessionOutput(session *auth.Session) *SessionOutput {
	return &SessionOutput{Body: SessionResponse{
		ExpiresAt: session.ExpiresAt,
		Token:     session.Token,
		Identity:  session.Identity,
	}}
}
