package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/workhuntr/internal/quota"
	"github.com/kiranshivaraju/workhuntr/pkg/models"
)

// flagPreferences serves the same preferences for every user.
type flagPreferences struct {
	prefs models.UserPreferences
}

func (f flagPreferences) GetPreferences(context.Context, uuid.UUID) (*models.UserPreferences, error) {
	p := f.prefs
	return &p, nil
}

// fixedTier reports an active subscription on the named tier.
type fixedTier string

func (t fixedTier) GetSubscription(context.Context, uuid.UUID) (quota.Subscription, error) {
	return quota.Subscription{Tier: string(t), Status: "active"}, nil
}

// resumeFile reads the resume from disk on each call. An empty path means no resume.
type resumeFile string

func (r resumeFile) GetResumeText(context.Context, uuid.UUID) (string, error) {
	if r == "" {
		return "", nil
	}
	b, err := os.ReadFile(string(r))
	if err != nil {
		return "", fmt.Errorf("read resume: %w", err)
	}
	return string(b), nil
}

// singleUser is the only auto-discovery user in local mode.
type singleUser uuid.UUID

func (u singleUser) ListAutoDiscoveryUsers(context.Context) ([]uuid.UUID, error) {
	return []uuid.UUID{uuid.UUID(u)}, nil
}
