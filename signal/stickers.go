package signal

import (
	"context"
	"encoding/json"
	"fmt"
)

// StickerManager is the typed façade over signal-cli's sticker pack
// operations.
type StickerManager struct {
	client *Client
}

// Stickers returns the sticker manager.
func (c *Client) Stickers() *StickerManager {
	return &StickerManager{client: c}
}

// StickerPack describes one installed sticker pack.
type StickerPack struct {
	PackID    string `json:"packId"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Installed bool   `json:"installed"`
	URL       string `json:"url,omitempty"`
}

// List returns installed sticker packs.
func (m *StickerManager) List(ctx context.Context) ([]StickerPack, error) {
	result, err := m.client.Call(ctx, "listStickerPacks", m.client.accountParams())
	if err != nil {
		return nil, err
	}
	var packs []StickerPack
	if err := json.Unmarshal(result, &packs); err != nil {
		return nil, fmt.Errorf("parsing sticker pack list: %w", err)
	}
	return packs, nil
}

// Install adds a sticker pack from its share URL.
func (m *StickerManager) Install(ctx context.Context, url string) error {
	if url == "" {
		return &ValidationError{Field: "sticker pack url", Reason: "cannot be empty"}
	}
	params := m.client.accountParams()
	params["uri"] = url
	_, err := m.client.Call(ctx, "addStickerPack", params)
	return err
}

// SendSticker sends one sticker from an installed pack.
func (m *StickerManager) SendSticker(ctx context.Context, recipient, packID string, stickerID int) error {
	if err := ValidateRecipient(recipient); err != nil {
		return err
	}
	params := m.client.accountParams()
	if IsGroupID(recipient) {
		params["groupId"] = recipient
	} else {
		params["recipient"] = []string{recipient}
	}
	params["sticker"] = fmt.Sprintf("%s:%d", packID, stickerID)
	_, err := m.client.Call(ctx, "send", params)
	return err
}
