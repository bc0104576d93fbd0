package signal

import (
	"context"
	"encoding/json"
	"fmt"
)

// ContactManager is the typed façade over signal-cli's contact
// operations.
type ContactManager struct {
	client *Client
}

// Contacts returns the contact manager.
func (c *Client) Contacts() *ContactManager {
	return &ContactManager{client: c}
}

// ContactEntry describes one known contact.
type ContactEntry struct {
	Number            string `json:"number"`
	UUID              string `json:"uuid,omitempty"`
	Name              string `json:"name,omitempty"`
	ProfileName       string `json:"profileName,omitempty"`
	IsBlocked         bool   `json:"isBlocked"`
	MessageExpiration string `json:"messageExpiration,omitempty"`
}

// List returns the account's contacts.
func (m *ContactManager) List(ctx context.Context) ([]ContactEntry, error) {
	result, err := m.client.Call(ctx, "listContacts", m.client.accountParams())
	if err != nil {
		return nil, err
	}
	var contacts []ContactEntry
	if err := json.Unmarshal(result, &contacts); err != nil {
		return nil, fmt.Errorf("parsing contact list: %w", err)
	}
	return contacts, nil
}

// Update sets the local name for a contact.
func (m *ContactManager) Update(ctx context.Context, number, name string) error {
	if err := ValidatePhoneNumber(number); err != nil {
		return err
	}
	params := m.client.accountParams()
	params["recipient"] = number
	params["name"] = name
	_, err := m.client.Call(ctx, "updateContact", params)
	return err
}

// Block blocks a contact or group.
func (m *ContactManager) Block(ctx context.Context, recipient string) error {
	if err := ValidateRecipient(recipient); err != nil {
		return err
	}
	params := m.client.accountParams()
	if IsGroupID(recipient) {
		params["groupId"] = recipient
	} else {
		params["recipient"] = []string{recipient}
	}
	_, err := m.client.Call(ctx, "block", params)
	return err
}

// Unblock unblocks a contact or group.
func (m *ContactManager) Unblock(ctx context.Context, recipient string) error {
	if err := ValidateRecipient(recipient); err != nil {
		return err
	}
	params := m.client.accountParams()
	if IsGroupID(recipient) {
		params["groupId"] = recipient
	} else {
		params["recipient"] = []string{recipient}
	}
	_, err := m.client.Call(ctx, "unblock", params)
	return err
}
