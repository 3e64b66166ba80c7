package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ModelCategory names a scoring rule over quota models. A category with a
// secondary model blends the two percentages with PrimaryWeight; otherwise the
// primary model's raw percentage is the score.
type ModelCategory struct {
	Name           string
	PrimaryModel   string
	SecondaryModel string
	PrimaryWeight  float64
}

func (c ModelCategory) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: category name is required", ErrValidation)
	}
	if strings.TrimSpace(c.PrimaryModel) == "" {
		return fmt.Errorf("%w: category %s has no primary model", ErrValidation, c.Name)
	}
	if c.SecondaryModel != "" && (c.PrimaryWeight <= 0 || c.PrimaryWeight >= 1) {
		return fmt.Errorf("%w: category %s primary weight %v is out of (0, 1)", ErrValidation, c.Name, c.PrimaryWeight)
	}

	return nil
}

// Score computes the category score for one account. Absent models count as 0.
func (c ModelCategory) Score(account Account) int {
	primary := account.Quota.ModelPercentage(c.PrimaryModel)
	if c.SecondaryModel == "" {
		return primary
	}

	secondary := account.Quota.ModelPercentage(c.SecondaryModel)
	blended := c.PrimaryWeight*float64(primary) + (1-c.PrimaryWeight)*float64(secondary)
	return int(math.Round(blended))
}

type Recommendation struct {
	AccountID AccountID
	Category  string
	Score     int
}

type scoredAccount struct {
	accountID AccountID
	score     int
}

type categoryRanking struct {
	category ModelCategory
	ranked   []scoredAccount
	pick     int
}

// Recommend returns the best account per category from one consistent account
// snapshot, excluding excludeID (the currently active account) and resolving
// duplicate picks so no account is recommended for two categories.
//
// When two categories pick the same account, the pairing that maximizes the
// combined score wins; on equal totals the earlier category keeps its top pick
// and the later one falls back. A category whose fallbacks run out is dropped
// rather than duplicated.
func Recommend(accounts []Account, categories []ModelCategory, excludeID AccountID) []Recommendation {
	rankings := make([]categoryRanking, 0, len(categories))
	eligible := 0

	for _, category := range categories {
		ranking := categoryRanking{category: category, ranked: rankCandidates(accounts, category, excludeID)}
		if len(ranking.ranked) == 0 {
			ranking.pick = -1
		} else {
			eligible++
		}
		rankings = append(rankings, ranking)
	}

	if eligible >= 2 {
		resolveDuplicates(rankings)
	}

	recommendations := make([]Recommendation, 0, len(rankings))
	for _, ranking := range rankings {
		if ranking.pick < 0 || ranking.pick >= len(ranking.ranked) {
			continue
		}

		chosen := ranking.ranked[ranking.pick]
		recommendations = append(recommendations, Recommendation{
			AccountID: chosen.accountID,
			Category:  ranking.category.Name,
			Score:     chosen.score,
		})
	}

	return recommendations
}

// rankCandidates scores and orders the eligible accounts for one category:
// the excluded account and zero scores are out, ties keep input order.
func rankCandidates(accounts []Account, category ModelCategory, excludeID AccountID) []scoredAccount {
	ranked := make([]scoredAccount, 0, len(accounts))

	for _, account := range accounts {
		if excludeID != "" && account.ID == excludeID {
			continue
		}

		score := category.Score(account)
		if score == 0 {
			continue
		}

		ranked = append(ranked, scoredAccount{accountID: account.ID, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	return ranked
}

func resolveDuplicates(rankings []categoryRanking) {
	// Picks only ever advance down their ranking, so this settles.
	for changed := true; changed; {
		changed = false

		for i := range rankings {
			for j := i + 1; j < len(rankings); j++ {
				first, second := &rankings[i], &rankings[j]
				if !samePick(first, second) {
					continue
				}

				keepFirst := pickScore(first, first.pick) + pickScore(second, second.pick+1)
				keepSecond := pickScore(first, first.pick+1) + pickScore(second, second.pick)

				if keepSecond > keepFirst {
					advance(first)
				} else {
					advance(second)
				}
				changed = true
			}
		}
	}
}

func samePick(a, b *categoryRanking) bool {
	if a.pick < 0 || b.pick < 0 || a.pick >= len(a.ranked) || b.pick >= len(b.ranked) {
		return false
	}

	return a.ranked[a.pick].accountID == b.ranked[b.pick].accountID
}

func pickScore(r *categoryRanking, idx int) int {
	if idx < 0 || idx >= len(r.ranked) {
		return 0
	}

	return r.ranked[idx].score
}

func advance(r *categoryRanking) {
	r.pick++
	if r.pick >= len(r.ranked) {
		r.pick = -1
	}
}
