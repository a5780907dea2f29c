package oracle

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lvicentin/grana/internal/domain"
)

// SchemaError reports a model response whose envelope does not match the
// contract. The whole document fails closed; nothing is imported.
type SchemaError struct {
	Field  string
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("oracle: schema violation at %q: %s", e.Field, e.Detail)
}

const dateLayout = "2006-01-02"

// decodeExtraction converts the dynamically-shaped model output into the
// strict Extraction schema. Envelope problems return a *SchemaError;
// per-record problems reject that record only.
func decodeExtraction(raw map[string]interface{}) (*Extraction, error) {
	docType, err := getString(raw, "document_type", true)
	if err != nil {
		return nil, err
	}
	out := &Extraction{}
	switch domain.DocumentType(docType) {
	case domain.DocumentInvoice, domain.DocumentBankStatement:
		out.DocumentType = domain.DocumentType(docType)
	default:
		return nil, &SchemaError{Field: "document_type", Detail: fmt.Sprintf("unknown value %q", docType)}
	}

	if out.Issuer, err = getString(raw, "issuer", false); err != nil {
		return nil, err
	}
	dueDate, err := getString(raw, "invoice_due_date", false)
	if err != nil {
		return nil, err
	}
	if dueDate != "" {
		if _, err := time.Parse(dateLayout, dueDate); err != nil {
			return nil, &SchemaError{Field: "invoice_due_date", Detail: fmt.Sprintf("invalid date %q", dueDate)}
		}
		out.InvoiceDueDate = dueDate
	}

	txAny, ok := raw["transactions"]
	if !ok {
		return nil, &SchemaError{Field: "transactions", Detail: "missing"}
	}
	txSlice, ok := txAny.([]interface{})
	if !ok {
		return nil, &SchemaError{Field: "transactions", Detail: fmt.Sprintf("is %T, want array", txAny)}
	}

	for i, item := range txSlice {
		obj, ok := item.(map[string]interface{})
		if !ok {
			out.Rejected = append(out.Rejected, RejectedRecord{Index: i, Reason: fmt.Sprintf("element is %T, want object", item)})
			continue
		}
		rec, err := decodeRecord(obj)
		if err != nil {
			out.Rejected = append(out.Rejected, RejectedRecord{Index: i, Reason: err.Error()})
			continue
		}
		out.Transactions = append(out.Transactions, rec)
	}
	return out, nil
}

func decodeRecord(obj map[string]interface{}) (domain.RawRecord, error) {
	var rec domain.RawRecord
	var err error

	if rec.Description, err = getString(obj, "description", true); err != nil {
		return rec, err
	}
	if rec.Amount, err = getFloat(obj, "amount", true); err != nil {
		return rec, err
	}

	dateStr, err := getString(obj, "date", true)
	if err != nil {
		return rec, err
	}
	if rec.Date, err = time.Parse(dateLayout, dateStr); err != nil {
		return rec, fmt.Errorf("invalid date %q", dateStr)
	}

	payStr, err := getString(obj, "payment_date", false)
	if err != nil {
		return rec, err
	}
	if payStr != "" {
		pay, err := time.Parse(dateLayout, payStr)
		if err != nil {
			return rec, fmt.Errorf("invalid payment_date %q", payStr)
		}
		rec.PaymentDate = &pay
	}

	if rec.Category, err = getString(obj, "category", false); err != nil {
		return rec, err
	}

	typeStr, err := getString(obj, "type", true)
	if err != nil {
		return rec, err
	}
	rec.Type = domain.EntryType(strings.ToUpper(strings.TrimSpace(typeStr)))

	if rec.IsRecurring, err = getBool(obj, "is_recurring"); err != nil {
		return rec, err
	}
	if rec.ShouldIgnore, err = getBool(obj, "should_ignore"); err != nil {
		return rec, err
	}
	if rec.IgnoreReason, err = getString(obj, "ignore_reason", false); err != nil {
		return rec, err
	}

	if rec.CurrentInstallment, err = getInt(obj, "current_installment"); err != nil {
		return rec, err
	}
	if rec.TotalInstallments, err = getInt(obj, "total_installments"); err != nil {
		return rec, err
	}

	if rec.Debtor, err = getString(obj, "debtor", false); err != nil {
		return rec, err
	}
	if rec.ReimbursedBy, err = getString(obj, "reimbursed_by", false); err != nil {
		return rec, err
	}
	if rec.Tags, err = getStringSlice(obj, "tags"); err != nil {
		return rec, err
	}
	return rec, nil
}

func getString(m map[string]interface{}, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("missing required field %q", key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, want string", key, v)
	}
	s = strings.TrimSpace(s)
	if required && s == "" {
		return "", fmt.Errorf("required field %q is empty", key)
	}
	return s, nil
}

func getFloat(m map[string]interface{}, key string, required bool) (float64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return 0, fmt.Errorf("missing required field %q", key)
		}
		return 0, nil
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("field %q is %T, want number", key, v)
	}
	return f, nil
}

func getInt(m map[string]interface{}, key string) (int, error) {
	f, err := getFloat(m, key, false)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("field %q is %v, want an integer", key, f)
	}
	return int(f), nil
}

func getBool(m map[string]interface{}, key string) (bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("field %q is %T, want boolean", key, v)
	}
	return b, nil
}

func getStringSlice(m map[string]interface{}, key string) ([]string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("field %q is %T, want array", key, v)
	}
	out := make([]string, 0, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("field %q[%d] is %T, want string", key, i, item)
		}
		out = append(out, s)
	}
	return out, nil
}
