package usecase

import (
	"fmt"
	"strings"

	"sales-agent/internal/catalog"
	"sales-agent/internal/domain"
)

const (
	greetingMessage   = "Olá! Bem-vindo ao Marketplace. Sou 39A-na, sua assistente virtual. O que você está procurando hoje?"
	closingMessage    = "Obrigado! Para uma nova compra, por favor, reinicie a conversa."
	apologyMessage    = "Ops! Tive um problema de comunicação com nossa IA. Poderia tentar novamente?"
	errorStateMessage = "Desculpe, esta conversa encontrou um problema e não pode continuar. Por favor, inicie uma nova conversa."
	noProductsMessage = "Nenhum produto disponível no momento."
	checkoutURLPrefix = "http://marketplace-39A/"
)

func buildSystemPrompt(products []domain.Product) string {
	return strings.Join([]string{
		`Você é 39A-na, assistente de vendas virtual do "Marketplace" de eletrônicos.`,
		"Seu objetivo: ajudar clientes a encontrar produtos, adicioná-los ao carrinho e, se desejarem finalizar a compra, coletar Nome, Email e Telefone para gerar uma proposta comercial com um link de checkout falso.",
		"Mantenha tom amigável e profissional, sempre em português brasileiro.",
		"",
		"Produtos disponíveis:",
		productLines(products),
		"",
		"FLUXO DE VENDA:",
		salesFlow(),
		"",
		"REGRAS IMPORTANTES:",
		salesRules(),
		"",
		"FORMATO DA RESPOSTA:",
		outputContract(),
	}, "\n")
}

func productLines(products []domain.Product) string {
	if len(products) == 0 {
		return noProductsMessage
	}
	lines := make([]string, 0, len(products))
	for _, p := range products {
		lines = append(lines, fmt.Sprintf("- %s: %s - R$ %s", p.Category, p.Name, p.Price))
	}
	return strings.Join(lines, "\n")
}

func salesFlow() string {
	return strings.Join([]string{
		"1. AJUDA NA ESCOLHA: ajude o cliente a encontrar um produto.",
		`2. CONFIRMA CARRINHO: ao identificar um produto, pergunte se o cliente quer adicioná-lo ao carrinho. Ex: "O NovoPhone X12 custa R$ 3.499,00. Gostaria de adicioná-lo ao carrinho?"`,
		`3. APÓS ADICIONAR: informe que foi adicionado e pergunte: "Gostaria de adicionar mais itens ou finalizar a compra?"`,
		"4. CONTINUAR COMPRANDO: se quiser mais itens, volte ao passo 1.",
		"5. FINALIZAR COMPRA: colete Nome completo, Email e Telefone (com DDD), um dado por vez.",
		"6. PROPOSTA FINAL: com todos os dados, gere a proposta com todos os itens do carrinho, o valor total e o link de checkout.",
	}, "\n")
}

func salesRules() string {
	return strings.Join([]string{
		"- Não adivinhe informações. Peça explicitamente.",
		"- Se uma entrada para nome, email ou telefone for inválida, peça novamente com gentileza, explicando o formato esperado.",
		"- O link de checkout deve ser enviado somente na proposta final, no formato " + checkoutURLPrefix + "{id_da_proposta}.",
		"- Nunca inclua links em nenhuma outra resposta.",
		"- Pagamento e garantia: mencione parcelamento em 12x sem juros e garantia estendida se perguntado.",
	}, "\n")
}

func outputContract() string {
	return strings.Join([]string{
		"Responda SEMPRE com um único objeto JSON válido:",
		"{",
		`  "chat_state": "fase_atual",`,
		`  "resposta": "Sua resposta amigável e profissional aqui.",`,
		`  "product_selected_for_cart": {"nome": "Nome do produto", "preço": "Preço do produto"},`,
		`  "cart": [{"nome": "Nome do produto", "preço": "Preço do produto"}],`,
		`  "total_value": "Valor total do carrinho",`,
		`  "customer_data": {"name": "Nome do cliente", "email": "Email do cliente", "phone": "Telefone do cliente"},`,
		`  "last_input_invalid": false`,
		"}",
	}, "\n")
}

// buildContextInstruction describes what the next reply must do. Reading the
// invalid-input flag consumes it.
func buildContextInstruction(s *domain.Session) string {
	var b strings.Builder
	b.WriteString("INSTRUÇÃO PARA ESTA RESPOSTA ESPECÍFICA: ")

	switch s.State {
	case domain.StateGreeting, domain.StateBrowsing:
		b.WriteString("Saudação inicial ou busca de produtos. Pergunte o que o cliente procura.")
		if len(s.Cart) > 0 {
			b.WriteString(" Se fizer sentido, mencione brevemente o carrinho atual.")
		}
	case domain.StateProductPendingConfirm:
		if p := s.PendingProduct; p != nil {
			fmt.Fprintf(&b, "O cliente se interessou por %s (R$ %s). Pergunte se deseja adicioná-lo ao carrinho.", p.Name, p.Price)
		} else {
			b.WriteString("Pergunte qual produto o cliente deseja.")
		}
	case domain.StateItemAddedAskMore:
		b.WriteString("O item foi adicionado ao carrinho. Pergunte se o cliente deseja adicionar mais itens ou finalizar a compra.")
	case domain.StateAwaitingName:
		b.WriteString("Peça o nome completo do cliente.")
		if s.LastInputInvalid {
			b.WriteString(" A última resposta não é um nome válido: explique que precisamos de nome e sobrenome, começando com letra maiúscula.")
		}
	case domain.StateAwaitingEmail:
		b.WriteString("Agradeça pelo nome e peça o email do cliente.")
		if s.LastInputInvalid {
			b.WriteString(" O último email informado é inválido: explique o formato esperado, por exemplo nome@dominio.com.")
		}
	case domain.StateAwaitingPhone:
		b.WriteString("Peça o telefone do cliente com DDD.")
		if s.LastInputInvalid {
			b.WriteString(" O último telefone informado é inválido: explique que deve ter DDD e 10 ou 11 dígitos.")
		}
	case domain.StateProposalReady:
		fmt.Fprintf(&b, "Todos os dados foram coletados (Nome: %s, Email: %s, Telefone: %s). Gere a proposta final com todos os itens do carrinho, o valor total e o link de checkout %s%s.",
			s.Customer.Name, s.Customer.Email, s.Customer.Phone, checkoutURLPrefix, s.ID)
	default:
		b.WriteString("Responda ao usuário, considerando o estado atual da conversa.")
	}

	if len(s.Cart) > 0 {
		b.WriteString("\nCarrinho atual:\n")
		b.WriteString(cartLines(s))
	}
	fmt.Fprintf(&b, "\nEstado atual da conversa: %s.", s.State)

	s.LastInputInvalid = false
	return b.String()
}

func cartLines(s *domain.Session) string {
	lines := make([]string, 0, len(s.Cart)+1)
	for _, item := range s.Cart {
		lines = append(lines, fmt.Sprintf("- %s - R$ %s", item.Name, catalog.FormatBRL(item.Amount)))
	}
	lines = append(lines, "Total: R$ "+catalog.FormatBRL(s.TotalValue))
	return strings.Join(lines, "\n")
}
