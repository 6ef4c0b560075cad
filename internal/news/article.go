// Package news defines the core types shared across the pipeline stages.
package news

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DeliveryStatus represents the lifecycle state of a stored article.
type DeliveryStatus string

// Delivery status values persisted in the store. There is no transition
// back to StatusNew; StatusDelivered and StatusDeliveryFailed are terminal.
const (
	StatusNew            DeliveryStatus = "new"
	StatusDelivered      DeliveryStatus = "delivered"
	StatusDeliveryFailed DeliveryStatus = "delivery_failed"
)

// ArticleDraft is an extracted article that has not been persisted yet.
// SourceURL must be canonical before the draft is hashed or queued.
type ArticleDraft struct {
	SourceURL    string    `json:"source_url"`
	Title        string    `json:"title"`
	Subtitle     string    `json:"subtitle,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
	Authors      []string  `json:"authors,omitempty"`
	Category     string    `json:"category,omitempty"`
	BodyText     string    `json:"body_text,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	ImageCredits []string  `json:"image_credits,omitempty"`
}

// Validate checks the invariants a draft must satisfy before it may be
// hashed, queued, or persisted.
func (d ArticleDraft) Validate() error {
	if strings.TrimSpace(d.SourceURL) == "" {
		return errors.New("draft has empty source url")
	}
	canonical, err := CanonicalURL(d.SourceURL)
	if err != nil {
		return fmt.Errorf("draft source url: %w", err)
	}
	if canonical != d.SourceURL {
		return fmt.Errorf("draft source url %q is not canonical", d.SourceURL)
	}
	if strings.TrimSpace(d.Title) == "" {
		return errors.New("draft has empty title")
	}
	return nil
}

// NaturalKeyHash returns the deduplication key for the draft.
func (d ArticleDraft) NaturalKeyHash() string {
	return HashNaturalKey(d.SourceURL)
}

// StoredArticle is the durable record owned by the store.
type StoredArticle struct {
	ID             string         `json:"id"`
	NaturalKeyHash string         `json:"natural_key_hash"`
	SourceURL      string         `json:"source_url"`
	Title          string         `json:"title"`
	Subtitle       string         `json:"subtitle,omitempty"`
	PublishedAt    time.Time      `json:"published_at"`
	Authors        []string       `json:"authors,omitempty"`
	Category       string         `json:"category,omitempty"`
	BodyText       string         `json:"body_text,omitempty"`
	ImageURL       string         `json:"image_url,omitempty"`
	ImageCredits   []string       `json:"image_credits,omitempty"`
	Status         DeliveryStatus `json:"status"`
	FirstSeenAt    time.Time      `json:"first_seen_at"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
}

// CanonicalURL standardizes a URL so that equal articles hash equally.
// It lowercases the scheme and host, removes default ports and fragments,
// strips a trailing slash, and sorts query parameters.
func CanonicalURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("url %q has unsupported scheme %q", rawURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = u.Query().Encode()

	return u.String(), nil
}

// HashNaturalKey computes the stable hash of a canonical URL.
func HashNaturalKey(canonicalURL string) string {
	sum := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])
}
