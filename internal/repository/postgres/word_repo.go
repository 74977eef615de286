package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"

	"github.com/lib/pq"
)

// WordRepo serves the word catalog: keywords grouped into themes, with
// per-language translations in roman and native script forms.
type WordRepo struct {
	db *sql.DB
}

// NewWordRepo creates a WordRepo.
func NewWordRepo(db *sql.DB) *WordRepo {
	return &WordRepo{db: db}
}

// RandomWords returns up to n distinct words in the given language and
// script form, restricted to the given theme titles (empty slice means all
// themes) and excluding the given words.
func (r *WordRepo) RandomWords(ctx context.Context, language, form string, themes, exclude []string, n int) ([]string, error) {
	if exclude == nil {
		exclude = []string{}
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT ON (t.keyword_id) t.text
		 FROM translations t
		 JOIN languages l ON l.id = t.language_id
		 WHERE l.name = $1 AND t.form = $2
		   AND NOT (t.text = ANY($3))
		   AND (cardinality($4::text[]) = 0 OR t.keyword_id IN (
		         SELECT tk.keyword_id FROM theme_keywords tk
		         JOIN themes th ON th.id = tk.theme_id
		         WHERE th.title = ANY($4)))
		 ORDER BY t.keyword_id, random()`,
		language, form, pq.Array(exclude), pq.Array(themes))
	if err != nil {
		return nil, fmt.Errorf("random words: %w", err)
	}
	defer rows.Close()

	var words []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("scan word: %w", err)
		}
		words = append(words, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// DISTINCT ON forbids a random outer order, so shuffle-limit here.
	rand.Shuffle(len(words), func(i, j int) { words[i], words[j] = words[j], words[i] })
	if len(words) > n {
		words = words[:n]
	}
	return words, nil
}
