// Package intent turns a free-text reply into one of the few intents the
// conversation flow reacts to.
package intent

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type Intent string

const (
	None             Intent = "none"
	Affirm           Intent = "affirm"
	Deny             Intent = "deny"
	ContinueShopping Intent = "continue_shopping"
	Finalize         Intent = "finalize"
)

// Classifier maps user text to an Intent.
type Classifier interface {
	Classify(text string) Intent
}

// KeywordClassifier matches whole words and phrases, ignoring case and accents.
// When several intents match, Finalize wins over ContinueShopping, which wins
// over Deny, which wins over Affirm.
type KeywordClassifier struct {
	AffirmKeywords   []string
	DenyKeywords     []string
	ContinueKeywords []string
	FinalizeKeywords []string
}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		AffirmKeywords:   []string{"sim", "quero", "pode", "adicione", "adiciona", "adicionar", "claro", "ok", "gostaria"},
		DenyKeywords:     []string{"não", "nao", "depois", "cancelar"},
		ContinueKeywords: []string{"mais itens", "continuar", "outro", "outra", "ver mais"},
		FinalizeKeywords: []string{"finalizar", "fechar", "concluir", "checkout", "pagar", "só isso"},
	}
}

func (c *KeywordClassifier) Classify(text string) Intent {
	words := Tokens(text)
	if len(words) == 0 {
		return None
	}
	switch {
	case containsAny(words, c.FinalizeKeywords):
		return Finalize
	case containsAny(words, c.ContinueKeywords):
		return ContinueShopping
	case containsAny(words, c.DenyKeywords):
		return Deny
	case containsAny(words, c.AffirmKeywords):
		return Affirm
	}
	return None
}

// Chain asks each classifier in order and returns the first answer other than None.
type Chain []Classifier

func (c Chain) Classify(text string) Intent {
	for _, cl := range c {
		if got := cl.Classify(text); got != None {
			return got
		}
	}
	return None
}

// Fold lowercases s and strips combining marks ("Não" -> "nao").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Tokens folds s and splits it into letter/digit runs.
func Tokens(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsAny(words []string, keywords []string) bool {
	for _, kw := range keywords {
		if containsPhrase(words, Tokens(kw)) {
			return true
		}
	}
	return false
}

func containsPhrase(words, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(words) {
		return false
	}
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j, p := range phrase {
			if words[i+j] != p {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
