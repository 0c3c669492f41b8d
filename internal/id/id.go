// Package id generates the identifiers used by the storefront.
package id

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// BookPrefix prefixes every catalog entry id.
const BookPrefix = "swb"

// Generate creates a prefixed unique ID using NanoID, e.g. "acct-V1StGXR8_Z5jdHi6B-myT".
// Returns an error if the system has insufficient entropy.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// BookID returns a caller-generated catalog id of the form swb-<unix millis>.
func BookID(now time.Time) string {
	return BookPrefix + "-" + strconv.FormatInt(now.UnixMilli(), 10)
}

// ItemBookID derives a catalog id from a marketplace item number.
func ItemBookID(itemNumber string) string {
	return BookPrefix + "-" + itemNumber
}

// RowBookID is the fallback id for an imported row without an item number.
func RowBookID(now time.Time, row int) string {
	return BookID(now) + "-" + strconv.Itoa(row)
}

// AnonymousUID returns a fresh uid for an anonymous session.
func AnonymousUID() string {
	return uuid.NewString()
}
