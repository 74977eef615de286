package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/drawdash/api/internal/model"
	"github.com/drawdash/api/internal/repository"
)

// WordPicker selects drawing word options from the catalog, falling back
// through script forms so a thin catalog never stalls a game.
type WordPicker struct {
	words repository.WordRepository
}

// NewWordPicker creates a WordPicker.
func NewWordPicker(words repository.WordRepository) *WordPicker {
	return &WordPicker{words: words}
}

// Script forms stored in the catalog.
const (
	formRoman  = "roman"
	formNative = "native"
)

// pickTarget maps the room's script onto a catalog language and form:
// "native" keeps the room language in native form, "english" switches to
// English words outright, anything else is the room language romanized.
func pickTarget(language, script string) (string, string) {
	switch script {
	case "native":
		return language, formNative
	case "english":
		return "english", formRoman
	}
	return language, formRoman
}

// defaultWords keeps the game playable when the catalog has nothing for the
// requested language and categories.
var defaultWords = []string{
	"apple", "bridge", "camera", "dragon", "elephant",
	"guitar", "island", "mountain", "rocket", "umbrella",
}

// Pick returns n word options for the room's language, script, and
// categories, excluding words already used this game. Each step is retried
// without the used-word filter before falling further: a thin catalog
// recycles words rather than abandoning the room's language. Fallback
// order: requested form, roman form, catalog-wide roman, English, builtin
// pool.
func (w *WordPicker) Pick(ctx context.Context, room *model.Room, n int) ([]string, error) {
	language, form := pickTarget(room.Language, room.Script)

	type attempt struct {
		language string
		form     string
		themes   []string
	}
	attempts := []attempt{{language, form, room.Category}}
	if form != formRoman {
		attempts = append(attempts, attempt{language, formRoman, room.Category})
	}
	attempts = append(attempts, attempt{language, formRoman, nil})
	if language != "english" {
		attempts = append(attempts, attempt{"english", formRoman, nil})
	}

	for _, a := range attempts {
		words, err := w.words.RandomWords(ctx, a.language, a.form, a.themes, room.UsedWords, n)
		if err != nil {
			return nil, err
		}
		if len(words) >= n {
			return words, nil
		}
		if len(room.UsedWords) == 0 {
			continue
		}
		words, err = w.words.RandomWords(ctx, a.language, a.form, a.themes, nil, n)
		if err != nil {
			return nil, err
		}
		if len(words) >= n {
			return words, nil
		}
	}

	log.Warn().Str("code", room.Code).Str("language", room.Language).
		Msg("Word catalog exhausted, using builtin pool")
	return pickDefaults(room.UsedWords, n), nil
}

func pickDefaults(exclude []string, n int) []string {
	used := make(map[string]bool, len(exclude))
	for _, wd := range exclude {
		used[wd] = true
	}
	var out []string
	for _, wd := range defaultWords {
		if !used[wd] {
			out = append(out, wd)
		}
	}
	if len(out) == 0 {
		// Whole pool used this game; repeats beat a stuck room.
		out = append(out, defaultWords...)
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}
