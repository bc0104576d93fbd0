package signal

import (
	"context"
	"encoding/json"
	"fmt"
)

// AccountManager is the typed façade over signal-cli's account
// operations.
type AccountManager struct {
	client *Client
}

// Accounts returns the account manager.
func (c *Client) Accounts() *AccountManager {
	return &AccountManager{client: c}
}

// Account describes one registered account known to the daemon.
type Account struct {
	Number string `json:"number"`
	UUID   string `json:"uuid,omitempty"`
}

// List returns the accounts registered with the daemon.
func (m *AccountManager) List(ctx context.Context) ([]Account, error) {
	result, err := m.client.Call(ctx, "listAccounts", nil)
	if err != nil {
		return nil, err
	}
	var accounts []Account
	if err := json.Unmarshal(result, &accounts); err != nil {
		return nil, fmt.Errorf("parsing account list: %w", err)
	}
	return accounts, nil
}

// UpdateProfile changes the account's profile name and optional about
// text.
func (m *AccountManager) UpdateProfile(ctx context.Context, givenName, familyName, about string) error {
	if givenName == "" {
		return &ValidationError{Field: "given name", Reason: "cannot be empty"}
	}
	params := m.client.accountParams()
	params["givenName"] = givenName
	if familyName != "" {
		params["familyName"] = familyName
	}
	if about != "" {
		params["about"] = about
	}
	_, err := m.client.Call(ctx, "updateProfile", params)
	return err
}

// Register starts registration for a new number. voice requests a phone
// call instead of an SMS.
func (m *AccountManager) Register(ctx context.Context, number string, voice bool) error {
	if err := ValidatePhoneNumber(number); err != nil {
		return err
	}
	params := map[string]any{"account": number}
	if voice {
		params["voice"] = true
	}
	_, err := m.client.Call(ctx, "register", params)
	return err
}

// Verify completes registration with the received code.
func (m *AccountManager) Verify(ctx context.Context, number, code string) error {
	if err := ValidatePhoneNumber(number); err != nil {
		return err
	}
	if code == "" {
		return &ValidationError{Field: "verification code", Reason: "cannot be empty"}
	}
	params := map[string]any{
		"account":          number,
		"verificationCode": code,
	}
	_, err := m.client.Call(ctx, "verify", params)
	return err
}
