package conversation

import (
	"fmt"
	"strings"

	"github.com/arteita/fretebot/internal/freight"
)

// Replies sent to drivers. The channel is pt-BR and the back office prefers
// unaccented text.
const (
	msgUnknownSender    = "Numero nao reconhecido. Procure o escritorio para cadastro."
	msgWelcome          = "Ola %s! Envie o ticket do frete (foto ou PDF) para registrar."
	msgSendTicket       = "Por favor, envie uma foto do ticket, um PDF ou uma descricao em texto do frete."
	msgExtractionFailed = "Desculpe, nao consegui processar o ticket. Tente novamente com uma foto mais nitida ou envie os dados por texto."
	msgConfirmQuestion  = "Esta correto? Responda *sim* para confirmar ou *nao* para cancelar."
	msgConfirmReprompt  = "Por favor, responda *sim* para confirmar ou *nao* para cancelar."
	msgSendMissingText  = "Por favor, envie as informacoes que faltam em uma mensagem de texto."
	msgRegistered       = "Frete registrado com sucesso! Aguardando validacao."
	msgRegisterFailed   = "Desculpe, ocorreu um erro ao registrar o frete. Tente novamente mais tarde."
	msgCancelled        = "Frete cancelado. Envie um novo ticket quando quiser."
)

var (
	confirmWords = map[string]struct{}{"sim": {}, "s": {}, "confirmo": {}}
	rejectWords  = map[string]struct{}{"nao": {}, "não": {}, "n": {}, "cancelar": {}}
)

type answer int

const (
	answerOther answer = iota
	answerYes
	answerNo
)

func classifyAnswer(text string) answer {
	word := strings.ToLower(strings.TrimSpace(text))
	if _, ok := confirmWords[word]; ok {
		return answerYes
	}
	if _, ok := rejectWords[word]; ok {
		return answerNo
	}
	return answerOther
}

func welcome(driverName string) string {
	name := strings.TrimSpace(driverName)
	if name == "" {
		name = "motorista"
	}
	return fmt.Sprintf(msgWelcome, name)
}

// summary renders the draft for confirmation.
func summary(d freight.Draft) string {
	var b strings.Builder
	b.WriteString("*Resumo do Frete:*\n\n")
	for _, f := range freight.RequiredFields {
		if v := d.Display(f); v != "" {
			fmt.Fprintf(&b, "- %s: %s\n", f.Label(), v)
		}
	}
	if v := d.Display(freight.FieldTotalValue); v != "" {
		fmt.Fprintf(&b, "- %s: R$ %s\n", freight.FieldTotalValue.Label(), v)
	}
	if v := d.Display(freight.FieldNote); v != "" {
		fmt.Fprintf(&b, "- %s: %s\n", freight.FieldNote.Label(), v)
	}
	b.WriteString("\n")
	b.WriteString(msgConfirmQuestion)
	return b.String()
}

func missingPrompt(missing []freight.Field) string {
	var b strings.Builder
	b.WriteString("Nao consegui identificar os seguintes campos:\n")
	for _, f := range missing {
		fmt.Fprintf(&b, "- %s\n", f.Label())
	}
	b.WriteString("\n")
	b.WriteString(msgSendMissingText)
	return b.String()
}
