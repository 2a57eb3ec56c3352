package extraction

import (
	"fmt"
	"strconv"
	"strings"
)

const defaultExtractPrompt = `Voce e um assistente que extrai dados de tickets e comprovantes de frete. Analise a imagem ou texto e extraia os seguintes campos em JSON: { "data", "origem", "destino", "toneladas", "precoTonelada", "valorTotal", "transportadora", "ticketNota", "placa", "motorista", "observacao" }. Use a data no formato AAAA-MM-DD. Se nao conseguir identificar um campo, retorne null. Retorne APENAS o JSON, sem explicacoes.`

const defaultClassifyPrompt = `Voce e um assistente que analisa mensagens de grupos de WhatsApp para identificar oportunidades de frete.

Analise a mensagem e determine:
1. Se e uma oportunidade de frete (isOpportunity: true/false)
2. Se sim, extraia: tipoCarga, origem, destino, tonelagem, precoOferecido, urgencia, contato
3. Classifique a prioridade como ALTA, MEDIA ou BAIXA baseado nos seguintes criterios:
   - Palavras-chave de interesse: {{keywords}}
   - Rotas preferenciais: {{routes}}
   - Preco minimo por tonelada: R$ {{min_price}}

   ALTA: contem palavras-chave E rota preferencial E preco acima do minimo
   MEDIA: atende pelo menos 2 dos 3 criterios
   BAIXA: atende 0 ou 1 criterio

Retorne APENAS JSON no formato:
{
  "isOpportunity": boolean,
  "tipoCarga": string | null,
  "origem": string | null,
  "destino": string | null,
  "tonelagem": number | null,
  "precoOferecido": number | null,
  "urgencia": string | null,
  "contato": string | null,
  "prioridade": "ALTA" | "MEDIA" | "BAIXA"
}`

// renderClassifyPrompt fills the criteria placeholders. Custom prompts that
// omit the placeholders get the criteria appended.
func renderClassifyPrompt(template string, opts ClassifyOptions) string {
	keywords := strings.Join(opts.Keywords, ", ")
	routes := strings.Join(opts.PreferredRoutes, ", ")
	minPrice := strconv.FormatFloat(opts.MinPricePerTon, 'f', -1, 64)

	if !strings.Contains(template, "{{keywords}}") {
		return fmt.Sprintf("%s\n\nPalavras-chave de interesse: %s\nRotas preferenciais: %s\nPreco minimo por tonelada: R$ %s",
			template, keywords, routes, minPrice)
	}
	r := strings.NewReplacer(
		"{{keywords}}", keywords,
		"{{routes}}", routes,
		"{{min_price}}", minPrice,
	)
	return r.Replace(template)
}
