// Package classify decides which extracted line items are real money
// movement and which are ledger-irrelevant noise (transfers between the
// user's own accounts, invoice payment confirmations, balance summaries).
//
// Classification is a pure function over the line's own content. It never
// looks at the enclosing section of the document: a genuine purchase listed
// under a "Pagamentos e Financiamentos" header must survive even though the
// header itself smells like a payment line.
package classify

import (
	"regexp"
	"strings"

	"github.com/lvicentin/grana/internal/domain"
)

// Verdict is the classification outcome for one record.
type Verdict string

const (
	VerdictKeep             Verdict = "keep"
	VerdictInternalTransfer Verdict = "internal_transfer"
	VerdictInvoicePayment   Verdict = "invoice_payment"
	VerdictBalanceInfo      Verdict = "balance_info"
	// VerdictOracleIgnore means no local rule matched but the extraction
	// model flagged the line itself.
	VerdictOracleIgnore Verdict = "oracle_ignore"
)

// Result carries the verdict and a human-readable reason for drops.
type Result struct {
	Verdict Verdict
	Reason  string
}

// Keep reports whether the record should enter the ledger.
func (r Result) Keep() bool { return r.Verdict == VerdictKeep }

// Payment-confirmation lines at the top of card invoices: "Pagamento em 05
// OUT", "Pagamento recebido", "Pagamento efetuado". Anchored at the start so
// a merchant whose name merely contains "pagamento" is not caught.
var invoicePaymentLine = regexp.MustCompile(`^pagamento (em|recebido|efetuado|realizado)\b`)

var invoicePaymentPatterns = []string{
	"pagamento de fatura",
	"pagto de fatura",
	"pgto fatura",
	"pagamento fatura",
	"debito automatico de fatura",
	"deb autom fatura",
	"payment received - thank you",
	"fatura paga",
}

var internalTransferPatterns = []string{
	"transferencia entre contas",
	"transferencia mesma titularidade",
	"aplicacao rdb",
	"aplicacao cdb",
	"aplicacao em fundo",
	"resgate rdb",
	"resgate cdb",
	"resgate de fundo",
	"aplicacao automatica",
	"resgate automatico",
}

var balanceInfoPatterns = []string{
	"saldo anterior",
	"saldo atual",
	"saldo disponivel",
	"saldo em conta",
	"saldo final",
	"previous balance",
	"current balance",
	"available balance",
}

// Directed transfer verbs that become internal when the counterparty is the
// account owner ("Transferência para Maria Silva" on Maria's own statement).
var directedTransferVerbs = []string{
	"transferencia para ",
	"transferencia de ",
	"transferencia recebida de ",
	"transferencia enviada para ",
	"ted para ",
	"ted de ",
	"doc para ",
	"pix para ",
	"pix de ",
	"pix recebido de ",
	"pix enviado para ",
}

// Classify evaluates one raw record. ownerName may be empty when the account
// holder is unknown; owner-directed transfer rules are then skipped.
//
// The model's own ShouldIgnore flag is honored, but only after every local
// rule ran: a wrong or missing flag never decides a line by itself.
func Classify(rec domain.RawRecord, docType domain.DocumentType, ownerName string) Result {
	desc := normalize(rec.Description)
	owner := normalize(ownerName)

	if v := matchBalanceInfo(desc); v != nil {
		return *v
	}
	if v := matchInvoicePayment(desc, docType); v != nil {
		return *v
	}
	if v := matchInternalTransfer(desc, owner); v != nil {
		return *v
	}

	if rec.ShouldIgnore {
		reason := rec.IgnoreReason
		if reason == "" {
			reason = "flagged by extraction model"
		}
		return Result{Verdict: VerdictOracleIgnore, Reason: reason}
	}

	return Result{Verdict: VerdictKeep}
}

func matchBalanceInfo(desc string) *Result {
	for _, p := range balanceInfoPatterns {
		if strings.Contains(desc, p) {
			return &Result{Verdict: VerdictBalanceInfo, Reason: "balance summary line: " + p}
		}
	}
	return nil
}

func matchInvoicePayment(desc string, docType domain.DocumentType) *Result {
	// "Pagamento em <date>" is the invoice's own payment-summary line; it
	// only appears on invoice documents.
	if docType == domain.DocumentInvoice && invoicePaymentLine.MatchString(desc) {
		return &Result{Verdict: VerdictInvoicePayment, Reason: "invoice payment summary line"}
	}
	for _, p := range invoicePaymentPatterns {
		if strings.Contains(desc, p) {
			return &Result{Verdict: VerdictInvoicePayment, Reason: "bill payment confirmation: " + p}
		}
	}
	return nil
}

func matchInternalTransfer(desc, owner string) *Result {
	for _, p := range internalTransferPatterns {
		if strings.Contains(desc, p) {
			return &Result{Verdict: VerdictInternalTransfer, Reason: "same-owner movement: " + p}
		}
	}
	if owner == "" {
		return nil
	}
	for _, verb := range directedTransferVerbs {
		idx := strings.Index(desc, verb)
		if idx < 0 {
			continue
		}
		counterparty := strings.TrimSpace(desc[idx+len(verb):])
		if counterparty != "" && strings.Contains(counterparty, owner) {
			return &Result{Verdict: VerdictInternalTransfer, Reason: "transfer to account owner"}
		}
	}
	return nil
}

var accentReplacer = strings.NewReplacer(
	"á", "a", "à", "a", "ã", "a", "â", "a",
	"é", "e", "ê", "e",
	"í", "i",
	"ó", "o", "õ", "o", "ô", "o",
	"ú", "u", "ü", "u",
	"ç", "c",
)

var whitespace = regexp.MustCompile(`\s+`)

// normalize lowercases, strips Portuguese accents and collapses whitespace
// so pattern matching survives the model's inconsistent rendering.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = accentReplacer.Replace(s)
	return whitespace.ReplaceAllString(s, " ")
}
