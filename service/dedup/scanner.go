/*
 * @module service/dedup/scanner
 * @description Finds groups of providers that share a normalized email, phone or fiscal id
 * @architecture Layered architecture - business service layer
 * @stateFlow load live providers -> bucket by normalized key -> union members of each bucket -> groups of size >= 2
 * @rules archived/merged providers are ignored; group ids are a hash of the sorted member ids so they are stable across scans
 * @dependencies gorm.io/gorm, github.com/ttacon/libphonenumber
 * @refs merger.go, api/controllers/provider_controller.go
 */

package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"backoffice-service/service/meta"
	"backoffice-service/service/models"

	"gorm.io/gorm"
)

// Match key fields
const (
	KeyEmail    = "email"
	KeyPhone    = "phone"
	KeyFiscalID = "fiscalId"
)

// MatchedKey a normalized value shared by members of a group
type MatchedKey struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// DuplicateGroup providers connected through shared keys
type DuplicateGroup struct {
	ID          string            `json:"groupId"`
	Members     []models.Provider `json:"members"`
	MatchedKeys []MatchedKey      `json:"matchedKeys"`
}

// MemberIDs ids of the members in order
func (g *DuplicateGroup) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.ID
	}
	return ids
}

// Scanner duplicate scanner
type Scanner struct {
	db         *gorm.DB
	normalizer *Normalizer
}

// NewScanner creates a scanner
func NewScanner(db *gorm.DB, normalizer *Normalizer) *Scanner {
	if normalizer == nil {
		normalizer = NewNormalizer("")
	}
	return &Scanner{db: db, normalizer: normalizer}
}

// Scan groups the live providers
func (s *Scanner) Scan(ctx context.Context) ([]DuplicateGroup, error) {
	return s.scanTx(s.db.WithContext(ctx))
}

func (s *Scanner) scanTx(tx *gorm.DB) ([]DuplicateGroup, error) {
	var providers []models.Provider
	if err := tx.Where("archived_at IS NULL AND status <> ?", meta.ProviderStatusMerged).
		Order("id").
		Find(&providers).Error; err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	return GroupProviders(providers, s.normalizer), nil
}

// GroupProviders groups providers sharing any normalized key; input order does not matter
func GroupProviders(providers []models.Provider, n *Normalizer) []DuplicateGroup {
	sorted := make([]models.Provider, len(providers))
	copy(sorted, providers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	type bucketKey struct{ field, value string }
	buckets := make(map[bucketKey][]int)
	var order []bucketKey
	add := func(field, value string, idx int) {
		if value == "" {
			return
		}
		k := bucketKey{field, value}
		if _, ok := buckets[k]; !ok {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], idx)
	}
	for i, p := range sorted {
		add(KeyEmail, n.Email(p.Email), i)
		add(KeyPhone, n.Phone(p.Phone), i)
		add(KeyFiscalID, n.FiscalID(p.FiscalID), i)
	}

	set := NewDisjointSet(len(sorted))
	for _, k := range order {
		members := buckets[k]
		for _, idx := range members[1:] {
			set.Union(members[0], idx)
		}
	}

	keysByRoot := make(map[int][]MatchedKey)
	for _, k := range order {
		members := buckets[k]
		if len(members) < 2 {
			continue
		}
		root := set.Find(members[0])
		keysByRoot[root] = append(keysByRoot[root], MatchedKey{Field: k.field, Value: k.value})
	}

	var groups []DuplicateGroup
	for _, indices := range set.Groups() {
		if len(indices) < 2 {
			continue
		}
		group := DuplicateGroup{Members: make([]models.Provider, 0, len(indices))}
		for _, idx := range indices {
			group.Members = append(group.Members, sorted[idx])
		}
		keys := keysByRoot[set.Find(indices[0])]
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].Field != keys[j].Field {
				return keys[i].Field < keys[j].Field
			}
			return keys[i].Value < keys[j].Value
		})
		group.MatchedKeys = keys
		group.ID = GroupID(group.MemberIDs())
		groups = append(groups, group)
	}
	return groups
}

// GroupID deterministic id of a member set
func GroupID(memberIDs []string) string {
	ids := append([]string(nil), memberIDs...)
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, "\x00")))
	return hex.EncodeToString(sum[:])[:16]
}
