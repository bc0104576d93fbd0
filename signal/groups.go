package signal

import (
	"context"
	"encoding/json"
	"fmt"
)

// GroupManager is the typed façade over signal-cli's group operations.
type GroupManager struct {
	client *Client
}

// Groups returns the group manager.
func (c *Client) Groups() *GroupManager {
	return &GroupManager{client: c}
}

// Group describes one group membership.
type Group struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	IsMember        bool     `json:"isMember"`
	IsBlocked       bool     `json:"isBlocked"`
	Members         []string `json:"members,omitempty"`
	PendingMembers  []string `json:"pendingMembers,omitempty"`
	Admins          []string `json:"admins,omitempty"`
	GroupInviteLink string   `json:"groupInviteLink,omitempty"`
}

// List returns every group the account belongs to.
func (g *GroupManager) List(ctx context.Context) ([]Group, error) {
	result, err := g.client.Call(ctx, "listGroups", g.client.accountParams())
	if err != nil {
		return nil, err
	}
	var groups []Group
	if err := json.Unmarshal(result, &groups); err != nil {
		return nil, fmt.Errorf("parsing group list: %w", err)
	}
	return groups, nil
}

// CreateGroupRequest describes a new group.
type CreateGroupRequest struct {
	Name        string
	Description string
	Members     []string
	Avatar      string
}

// Create creates a group and returns its id.
func (g *GroupManager) Create(ctx context.Context, req *CreateGroupRequest) (string, error) {
	if req.Name == "" {
		return "", &ValidationError{Field: "group name", Reason: "cannot be empty"}
	}
	for _, member := range req.Members {
		if err := ValidatePhoneNumber(member); err != nil {
			return "", err
		}
	}

	params := g.client.accountParams()
	params["name"] = req.Name
	if req.Description != "" {
		params["description"] = req.Description
	}
	if len(req.Members) > 0 {
		params["members"] = req.Members
	}
	if req.Avatar != "" {
		params["avatar"] = req.Avatar
	}

	result, err := g.client.Call(ctx, "updateGroup", params)
	if err != nil {
		return "", err
	}
	var resp struct {
		GroupID string `json:"groupId"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return "", fmt.Errorf("parsing create group response: %w", err)
	}
	return resp.GroupID, nil
}

// AddMembers invites members to a group.
func (g *GroupManager) AddMembers(ctx context.Context, groupID string, members []string) error {
	for _, member := range members {
		if err := ValidatePhoneNumber(member); err != nil {
			return err
		}
	}
	params := g.client.accountParams()
	params["groupId"] = groupID
	params["addMembers"] = members
	_, err := g.client.Call(ctx, "updateGroup", params)
	return err
}

// RemoveMembers removes members from a group.
func (g *GroupManager) RemoveMembers(ctx context.Context, groupID string, members []string) error {
	params := g.client.accountParams()
	params["groupId"] = groupID
	params["removeMembers"] = members
	_, err := g.client.Call(ctx, "updateGroup", params)
	return err
}

// Join accepts a group invite link.
func (g *GroupManager) Join(ctx context.Context, inviteLink string) error {
	params := g.client.accountParams()
	params["uri"] = inviteLink
	_, err := g.client.Call(ctx, "joinGroup", params)
	return err
}

// Quit leaves a group.
func (g *GroupManager) Quit(ctx context.Context, groupID string) error {
	params := g.client.accountParams()
	params["groupId"] = groupID
	_, err := g.client.Call(ctx, "quitGroup", params)
	return err
}
