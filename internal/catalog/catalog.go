package catalog

import (
	"strings"

	"sales-agent/internal/domain"
	"sales-agent/internal/intent"
)

// DefaultProducts is the catalog seeded into an empty product table and
// served when no table is configured.
var DefaultProducts = []domain.Product{
	{ID: "p1", Name: "NovoPhone X12", Price: "3.499,00", Category: "Smartphone"},
	{ID: "p2", Name: "UltraBook Pro 15", Price: "7.999,00", Category: "Laptop"},
	{ID: "p3", Name: "TimeWatch S2", Price: "1.299,00", Category: "Smartwatch"},
	{ID: "p4", Name: "TabMaster 10", Price: "2.499,00", Category: "Tablet"},
	{ID: "p5", Name: "SoundBuds Plus", Price: "399,00", Category: "Fone de Ouvido"},
	{ID: "p6", Name: "PhotoSnap DSLR", Price: "4.499,00", Category: "Câmera"},
	{ID: "p7", Name: `VisionScreen 55" 4K`, Price: "3.999,00", Category: "Smart TV"},
	{ID: "p8", Name: "GameBox X", Price: "2.999,00", Category: "Console de Videogame"},
}

// Match finds the product the user is talking about. A product matches when
// its name appears in text (case and accents ignored) or, for multi-word
// names, when every word of the name appears somewhere in text. The longest
// matching name wins so "TabMaster 10" beats a hypothetical "TabMaster".
func Match(products []domain.Product, text string) (domain.Product, bool) {
	words := intent.Tokens(text)
	if len(words) == 0 {
		return domain.Product{}, false
	}
	joined := " " + strings.Join(words, " ") + " "
	present := make(map[string]bool, len(words))
	for _, w := range words {
		present[w] = true
	}

	var best domain.Product
	bestLen := 0
	for _, p := range products {
		name := intent.Tokens(p.Name)
		if len(name) == 0 {
			continue
		}
		if !strings.Contains(joined, " "+strings.Join(name, " ")+" ") && !(len(name) > 1 && allPresent(present, name)) {
			continue
		}
		if l := len(strings.Join(name, " ")); l > bestLen {
			best, bestLen = p, l
		}
	}
	return best, bestLen > 0
}

// FindByName resolves a product name reported by the model. An exact
// (case and accent insensitive) name wins; otherwise Match is tried.
func FindByName(products []domain.Product, name string) (domain.Product, bool) {
	want := strings.Join(intent.Tokens(name), " ")
	if want == "" {
		return domain.Product{}, false
	}
	for _, p := range products {
		if strings.Join(intent.Tokens(p.Name), " ") == want {
			return p, true
		}
	}
	return Match(products, name)
}

// LineItem turns p into a cart line priced from the catalog text.
func LineItem(p domain.Product) (domain.LineItem, error) {
	amount, err := ParsePrice(p.Price)
	if err != nil {
		return domain.LineItem{}, err
	}
	return domain.LineItem{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Amount:    amount,
	}, nil
}

func allPresent(present map[string]bool, name []string) bool {
	for _, w := range name {
		if !present[w] {
			return false
		}
	}
	return true
}
