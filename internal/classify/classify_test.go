package classify

import (
	"testing"
	"time"

	"github.com/lvicentin/grana/internal/domain"
)

func rec(desc string) domain.RawRecord {
	return domain.RawRecord{
		Description: desc,
		Amount:      100,
		Date:        time.Date(2025, 10, 5, 0, 0, 0, 0, time.UTC),
		Type:        domain.EntryExpense,
	}
}

func TestClassifyInvoiceLines(t *testing.T) {
	tests := []struct {
		name    string
		desc    string
		docType domain.DocumentType
		want    Verdict
	}{
		{"payment summary line", "Pagamento em 05 OUT", domain.DocumentInvoice, VerdictInvoicePayment},
		{"payment received", "Pagamento recebido", domain.DocumentInvoice, VerdictInvoicePayment},
		{
			// A genuine purchase nested under a "Pagamentos e Financiamentos"
			// section header: classification looks at the line itself only.
			"merchant under financing section",
			"Casas Bahia Parcelamento 02/10",
			domain.DocumentInvoice,
			VerdictKeep,
		},
		{"merchant containing pagamento", "PagamentoFacil Serviços Ltda", domain.DocumentInvoice, VerdictKeep},
		{"payment line on statement stays", "Pagamento em 05 OUT", domain.DocumentBankStatement, VerdictKeep},
		{"issuer auto debit", "Débito automático de fatura Nubank", domain.DocumentBankStatement, VerdictInvoicePayment},
		{"fatura paga", "FATURA PAGA - OBRIGADO", domain.DocumentInvoice, VerdictInvoicePayment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(rec(tt.desc), tt.docType, "")
			if got.Verdict != tt.want {
				t.Errorf("Classify(%q) = %v (%s), want %v", tt.desc, got.Verdict, got.Reason, tt.want)
			}
		})
	}
}

func TestClassifyInternalTransfers(t *testing.T) {
	tests := []struct {
		name  string
		desc  string
		owner string
		want  Verdict
	}{
		{"transfer to owner", "Transferência para Maria da Silva", "Maria da Silva", VerdictInternalTransfer},
		{"transfer to owner accented vs plain", "Transferencia para MARIA DA SILVA", "maria da silva", VerdictInternalTransfer},
		{"pix to third party", "Pix para João Pereira", "Maria da Silva", VerdictKeep},
		{"transfer without owner context", "Transferência para Maria da Silva", "", VerdictKeep},
		{"between own accounts", "Transferência entre contas", "", VerdictInternalTransfer},
		{"investment application", "Aplicação RDB", "", VerdictInternalTransfer},
		{"investment redemption", "Resgate CDB pós-fixado", "", VerdictInternalTransfer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(rec(tt.desc), domain.DocumentBankStatement, tt.owner)
			if got.Verdict != tt.want {
				t.Errorf("Classify(%q, owner=%q) = %v (%s), want %v", tt.desc, tt.owner, got.Verdict, got.Reason, tt.want)
			}
		})
	}
}

func TestClassifyBalanceInfo(t *testing.T) {
	for _, desc := range []string{"SALDO ANTERIOR", "Saldo disponível", "Available Balance"} {
		got := Classify(rec(desc), domain.DocumentBankStatement, "")
		if got.Verdict != VerdictBalanceInfo {
			t.Errorf("Classify(%q) = %v, want balance_info", desc, got.Verdict)
		}
	}
}

func TestClassifyHonorsOracleFlag(t *testing.T) {
	r := rec("Estorno de tarifa")
	r.ShouldIgnore = true
	r.IgnoreReason = "refund of a fee"

	got := Classify(r, domain.DocumentBankStatement, "")
	if got.Verdict != VerdictOracleIgnore {
		t.Fatalf("Classify() = %v, want oracle_ignore", got.Verdict)
	}
	if got.Reason != "refund of a fee" {
		t.Errorf("Reason = %q, want the model's reason", got.Reason)
	}
}

func TestClassifyReEvaluatesDespiteMissingFlag(t *testing.T) {
	// Defense in depth: the model missed this one, the local rules must not.
	r := rec("Pagamento de fatura Itaú")
	r.ShouldIgnore = false

	got := Classify(r, domain.DocumentBankStatement, "")
	if got.Verdict != VerdictInvoicePayment {
		t.Errorf("Classify() = %v, want invoice_payment", got.Verdict)
	}
}
