// Package dedup assigns stable identity keys to listings and decides
// what an observation means against stored state, making repeated crawl
// runs idempotent.
package dedup

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"kvartometr/server/internal/models"
)

// Action is the outcome of comparing an observation with stored state.
type Action int

const (
	// ActionInsert creates a new listing.
	ActionInsert Action = iota
	// ActionUpdate replaces changed fields and bumps last_seen_at.
	ActionUpdate
	// ActionTouch only bumps last_seen_at: the observation carried no
	// semantic change.
	ActionTouch
)

// String returns the string representation of an Action.
func (a Action) String() string {
	switch a {
	case ActionInsert:
		return "insert"
	case ActionUpdate:
		return "update"
	case ActionTouch:
		return "touch"
	default:
		return "unknown"
	}
}

// IdentityKey derives the stable key for a listing. Sources with a
// native listing id use it directly; otherwise the key is a content
// hash of the normalized address, area and price. Keys are prefixed
// with the source id, so two sources can never collide.
func IdentityKey(l *models.Listing, nativeID string) string {
	if nativeID != "" {
		return fmt.Sprintf("%s:%s", l.SourceID, nativeID)
	}
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%.2f|%.2f", l.RawAddress, l.AreaSqm, l.PriceRub)))
	return fmt.Sprintf("%s:h:%s", l.SourceID, hex.EncodeToString(sum[:]))
}

// Decide reconciles a new observation with the stored listing carrying
// the same identity key (nil when absent). For updates and touches the
// candidate is mutated in place to preserve first_seen_at and carry the
// merged state; the caller persists it afterwards.
func Decide(existing, candidate *models.Listing, now time.Time) Action {
	candidate.LastSeenAt = now

	if existing == nil {
		candidate.FirstSeenAt = now
		return ActionInsert
	}

	candidate.FirstSeenAt = existing.FirstSeenAt

	// Never lose information the source stopped sending: coordinates
	// geocoded in an earlier pass and a district resolved back when the
	// source still carried the evidence stay on the record.
	if candidate.Latitude == nil && existing.Latitude != nil {
		candidate.Latitude = existing.Latitude
		candidate.Longitude = existing.Longitude
	}
	if candidate.District == models.DistrictUnresolved && existing.District != models.DistrictUnresolved {
		candidate.District = existing.District
	}

	if changed(existing, candidate) {
		return ActionUpdate
	}

	// Keep every stored field, only refresh the observation time. The
	// row is addressed by identity key on write, so the surrogate id
	// stays zero here.
	*candidate = *existing
	candidate.ID = 0
	candidate.LastSeenAt = now
	candidate.Status = models.StatusActive
	return ActionTouch
}

func changed(existing, candidate *models.Listing) bool {
	if existing.PriceRub != candidate.PriceRub ||
		existing.AreaSqm != candidate.AreaSqm ||
		existing.District != candidate.District ||
		existing.Status != models.StatusActive {
		return true
	}
	if !floatPtrEqual(existing.Latitude, candidate.Latitude) ||
		!floatPtrEqual(existing.Longitude, candidate.Longitude) {
		return true
	}
	return false
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
