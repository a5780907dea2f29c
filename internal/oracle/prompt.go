package oracle

import "strings"

// buildPrompt assembles the extraction instructions for one document.
func buildPrompt(doc Document) string {
	var b strings.Builder

	b.WriteString("You are a financial document parser for Brazilian credit card invoices and bank statements.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Identify the document type and extract ALL transaction line items.\n")
	b.WriteString("- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n")
	b.WriteString("- Output a single JSON object with this shape:\n\n")
	b.WriteString(`{
  "document_type": "INVOICE" or "BANK_STATEMENT",
  "issuer": string or null,
  "invoice_due_date": "YYYY-MM-DD" or null,
  "transactions": [
    {
      "description": string,
      "amount": number (always positive),
      "date": "YYYY-MM-DD" (purchase date),
      "payment_date": "YYYY-MM-DD" or null (settlement/due date),
      "category": string,
      "type": "INCOME" or "EXPENSE",
      "is_recurring": boolean,
      "current_installment": number or null (1-based),
      "total_installments": number or null,
      "should_ignore": boolean,
      "ignore_reason": string or null,
      "debtor": string or null,
      "tags": [string] or null
    }
  ]
}`)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Amounts are always positive; use \"type\" for direction.\n")
	b.WriteString("- For installment purchases like \"Loja X 3/10\", set current_installment and total_installments and report the per-installment amount.\n")
	b.WriteString("- Set should_ignore=true with a short ignore_reason for lines that are not real money movement: transfers between the user's own accounts, invoice payment confirmations, balance summaries.\n")
	b.WriteString("- Mark subscriptions and other recurring charges with is_recurring=true.\n")

	if len(doc.KnownRecurring) > 0 {
		b.WriteString("\nThe user already tracks these recurring charges; flag re-occurrences as recurring:\n")
		for _, desc := range doc.KnownRecurring {
			b.WriteString("- " + desc + "\n")
		}
	}
	if doc.Guidance != "" {
		b.WriteString("\nAdditional instructions from the user:\n")
		b.WriteString(doc.Guidance)
		b.WriteString("\n")
	}

	b.WriteString("\nReturn ONLY valid raw JSON.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Do NOT use ```json or any Markdown.\n")
	b.WriteString("Output must begin with \"{\" and end with \"}\".\n")

	return b.String()
}
