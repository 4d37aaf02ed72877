package nabu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/rail-service/txengine/internal/domain/entities"
	"github.com/rail-service/txengine/internal/infrastructure/adapters/apiclient"
)

// AlreadyRegisteredError is returned for a 409 telling the device to restore
// an existing wallet
type AlreadyRegisteredError struct {
	WalletIDHint string
	Message      string
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("user already registered with another wallet (hint %s)", e.WalletIDHint)
}

func asConflict(err error) error {
	var resp *apiclient.ErrorResponse
	if !errors.As(err, &resp) || !resp.IsConflict() {
		return err
	}
	var body conflictBody
	if json.Unmarshal(resp.Body, &body) != nil {
		return err
	}
	return &AlreadyRegisteredError{WalletIDHint: body.WalletIDHint, Message: body.Message}
}

// WalletJWT exchanges wallet credentials for a retail JWT used to create a user
func (c *Client) WalletJWT(ctx context.Context, creds entities.WalletCredentials) (string, error) {
	q := url.Values{}
	q.Set("guid", creds.GUID)
	q.Set("sharedKey", creds.SharedKey)
	q.Set("api_code", "txengine")

	var resp jwtResponse
	if err := c.api.Get(ctx, "/wallet/signed-retail-token?"+q.Encode(), &resp); err != nil {
		return "", fmt.Errorf("get wallet jwt failed: %w", err)
	}
	if !resp.Success || resp.Token == "" {
		return "", fmt.Errorf("wallet jwt rejected: %s", resp.Error)
	}
	return resp.Token, nil
}

// CreateUser creates a nabu user for jwt and returns its offline token
func (c *Client) CreateUser(ctx context.Context, jwt string) (entities.OfflineToken, error) {
	var resp createUserResponse
	if err := c.api.Post(ctx, "/users/national", createUserRequest{JWT: jwt}, &resp); err != nil {
		return entities.OfflineToken{}, fmt.Errorf("create user failed: %w", asConflict(err))
	}
	return entities.OfflineToken{UserID: resp.UserID, Token: resp.Token}, nil
}

// SessionToken exchanges an offline token for a session token
func (c *Client) SessionToken(ctx context.Context, offline entities.OfflineToken, guid, email string) (entities.SessionToken, error) {
	var resp sessionResponse
	err := c.api.Post(ctx, "/auth?userId="+url.QueryEscape(offline.UserID), nil, &resp,
		apiclient.WithBearer(offline.Token),
		apiclient.WithHeader("X-WALLET-GUID", guid),
		apiclient.WithHeader("X-WALLET-EMAIL", email),
		apiclient.WithHeader("X-CLIENT-TYPE", "WALLET"))
	if err != nil {
		return entities.SessionToken{}, fmt.Errorf("get session token failed: %w", asConflict(err))
	}
	return entities.SessionToken{Token: resp.Token, UserID: resp.UserID, ExpiresAt: resp.ExpiresAt}, nil
}
