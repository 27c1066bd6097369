// README: Firebase Admin SDK initialisation and ID token verification.
package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"potluck/internal/types"
)

// RoleClaim is the custom claim carrying the caller's marketplace role.
// Accounts provisioned before custom claims carry it as user_type instead.
const (
	RoleClaim       = "role"
	legacyRoleClaim = "user_type"
)

// FirebaseToken holds the verified token data used by downstream middleware.
type FirebaseToken struct {
	UID       string
	Claims    map[string]interface{}
	ExpiresAt time.Time
}

// Role returns the caller's role, or "" when the token carries no recognised role.
func (t *FirebaseToken) Role() types.Role {
	if t == nil || t.Claims == nil {
		return ""
	}
	for _, claim := range []string{RoleClaim, legacyRoleClaim} {
		raw, _ := t.Claims[claim].(string)
		role := types.Role(strings.ToLower(strings.TrimSpace(raw)))
		if role.Valid() {
			return role
		}
	}
	return ""
}

// TokenVerifier verifies a raw Firebase ID token string and returns token data.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error)
}

type firebaseVerifier struct {
	client *auth.Client
}

// NewFirebaseVerifier creates a TokenVerifier using the Firebase Admin SDK.
// An empty credentialsFile falls back to application-default credentials.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (TokenVerifier, error) {
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Auth: %w", err)
	}
	return &firebaseVerifier{client: client}, nil
}

func (v *firebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return &FirebaseToken{
		UID:       token.UID,
		Claims:    token.Claims,
		ExpiresAt: time.Unix(token.Expires, 0),
	}, nil
}
