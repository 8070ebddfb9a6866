package transactions

// TypeConfig drives per-type labels, numbering, and notification routing.
// Adding a transaction kind means adding a row here, not a subtype.
type TypeConfig struct {
	Label                string
	NumberPrefix         string
	NotificationCategory string
	// SubmitMessage and ResolveMessage template the notification text sent to
	// the approver and back to the submitter.
	SubmitMessage  string
	ResolveMessage string
}

var typeConfigs = map[Type]TypeConfig{
	TypeCustomerInvoice: {
		Label:                "Customer Invoice",
		NumberPrefix:         "INV",
		NotificationCategory: "invoice_approval",
		SubmitMessage:        "Invoice %s awaits your approval",
		ResolveMessage:       "Invoice %s was %s",
	},
	TypeVendorBill: {
		Label:                "Vendor Bill",
		NumberPrefix:         "BILL",
		NotificationCategory: "bill_approval",
		SubmitMessage:        "Bill %s awaits your approval",
		ResolveMessage:       "Bill %s was %s",
	},
	TypeJournalEntry: {
		Label:                "Journal Entry",
		NumberPrefix:         "JE",
		NotificationCategory: "journal_approval",
		SubmitMessage:        "Journal %s awaits your approval",
		ResolveMessage:       "Journal %s was %s",
	},
	TypePayment: {
		Label:                "Payment",
		NumberPrefix:         "PAY",
		NotificationCategory: "payment_approval",
		SubmitMessage:        "Payment %s awaits your approval",
		ResolveMessage:       "Payment %s was %s",
	},
}

var defaultTypeConfig = TypeConfig{
	Label:                "Transaction",
	NumberPrefix:         "TXN",
	NotificationCategory: "transaction_approval",
	SubmitMessage:        "Transaction %s awaits your approval",
	ResolveMessage:       "Transaction %s was %s",
}

// ConfigFor returns the configuration for a type, falling back to a generic
// configuration for unknown tags.
func ConfigFor(t Type) TypeConfig {
	if cfg, ok := typeConfigs[t]; ok {
		return cfg
	}
	return defaultTypeConfig
}

// KnownType reports whether the tag has an explicit configuration.
func KnownType(t Type) bool {
	_, ok := typeConfigs[t]
	return ok
}
